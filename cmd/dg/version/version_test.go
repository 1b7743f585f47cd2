//
//  Copyright © Manetu Inc. All rights reserved.
//

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	v, c := Version, Commit
	t.Cleanup(func() { Version, Commit = v, c })

	Version, Commit = "v1.2.3", ""
	assert.Equal(t, "v1.2.3", GetVersion())

	Commit = "abc123"
	assert.Equal(t, "v1.2.3 (abc123)", GetVersion())
}
