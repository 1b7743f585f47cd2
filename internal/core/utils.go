//
//  Copyright © Manetu Inc. All rights reserved.
//

package core

import (
	"strings"
	"time"

	"github.com/manetu/dataguard/pkg/core/config"
	"github.com/manetu/dataguard/pkg/core/opa"
)

// safeNanos converts a time.Duration to uint64 nanoseconds safely,
// ensuring no integer overflow from negative values.
func safeNanos(d time.Duration) uint64 {
	return uint64(max(0, d.Nanoseconds())) // #nosec G115 -- guarded by max(0, ...)
}

func getUnsafeBuiltins() opa.Builtins {
	m := make(opa.Builtins)
	for _, f := range strings.Split(config.VConfig.GetString(config.UnsafeBuiltIns), ",") {
		if f = strings.TrimSpace(f); f != "" {
			m[f] = struct{}{}
		}
	}

	return m
}
