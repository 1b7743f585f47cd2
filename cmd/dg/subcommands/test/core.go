//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/manetu/dataguard/cmd/dg/common"
	pcommon "github.com/manetu/dataguard/pkg/common"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// ExecuteDecision evaluates a single access request and prints the decision as JSON.
// The request is read from --input (YAML or JSON) or stdin.
func ExecuteDecision(ctx context.Context, cmd *cli.Command) error {
	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	input, err := getInputExpression(cmd.String("input"), cmd.Root().Reader)
	if err != nil {
		return err
	}

	var request Request
	if err := yaml.Unmarshal(input, &request); err != nil {
		return fmt.Errorf("failed to parse request: %w", err)
	}

	// access records go to stderr with --trace, like the decision trace itself
	accessLogWriter := io.Discard
	if cmd.Root().Bool("trace") {
		accessLogWriter = os.Stderr
	}
	pe, err := common.NewCliPolicyEngine(cmd, accessLogWriter)
	if err != nil {
		return err
	}
	defer pe.Close()

	req, err := request.toAccessRequest(pe)
	if err != nil {
		return err
	}

	d, err := pe.Evaluate(ctx, req)
	if err != nil {
		return err
	}

	return pcommon.PrettyPrint(out, d)
}
