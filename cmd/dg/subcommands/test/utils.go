//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"io"
	"os"
)

// getInputExpression reads path, or stdin when path is "-" or empty.
func getInputExpression(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" || path == "" {
		if stdin == nil {
			stdin = os.Stdin
		}
		return io.ReadAll(stdin)
	}

	return os.ReadFile(path) // #nosec G304 -- CLI tool intentionally reads user-provided paths
}
