//
//  Copyright © Manetu Inc. All rights reserved.
//

package test

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/manetu/dataguard/cmd/dg/common"
	"github.com/manetu/dataguard/pkg/core"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Request is an access request whose resource is written "service/seg/seg".
type Request struct {
	Principal  types.Principal        `yaml:"principal" json:"principal"`
	Resource   string                 `yaml:"resource" json:"resource"`
	Action     string                 `yaml:"action" json:"action"`
	RowContext map[string]interface{} `yaml:"rowContext,omitempty" json:"rowContext,omitempty"`
}

// TestCase represents a single decision test case
type TestCase struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Request     Request `yaml:"request"`
	// Result is "allow" or "deny".
	Result string `yaml:"result"`
	// Optional expectations, checked only when present.
	Policies      []string `yaml:"policies,omitempty"`
	RowFilter     *string  `yaml:"rowFilter,omitempty"`
	MaskedColumns []string `yaml:"maskedColumns,omitempty"`
	RowMatch      *bool    `yaml:"rowMatch,omitempty"`
}

// TestSuite represents a collection of test cases
type TestSuite struct {
	Tests []TestCase `yaml:"tests"`
}

// toAccessRequest resolves the textual resource against the engine's active snapshot.
func (r Request) toAccessRequest(pe core.PolicyEngine) (*types.AccessRequest, error) {
	path, err := pe.GetBackend().Snapshot().ParsePath(r.Resource)
	if err != nil {
		return nil, err
	}
	return &types.AccessRequest{
		Principal:  r.Principal,
		Resource:   path,
		Action:     types.Action(r.Action),
		RowContext: r.RowContext,
	}, nil
}

// check compares a decision with the expectations of tc and returns the mismatches.
func (tc TestCase) check(d *types.Decision) []string {
	var problems []string

	want := types.Outcome(strings.ToUpper(tc.Result))
	if d.Outcome != want {
		problems = append(problems, fmt.Sprintf("expected %s, got %s", want, d.Outcome))
	}
	if tc.Policies != nil && !slices.Equal(tc.Policies, d.AppliedPolicyIDs) {
		problems = append(problems, fmt.Sprintf("expected policies %v, got %v", tc.Policies, d.AppliedPolicyIDs))
	}
	if tc.RowFilter != nil && *tc.RowFilter != d.RowFilter.String() {
		problems = append(problems, fmt.Sprintf("expected row filter %q, got %q", *tc.RowFilter, d.RowFilter.String()))
	}
	if tc.MaskedColumns != nil && !slices.Equal(tc.MaskedColumns, d.MaskedColumns()) {
		problems = append(problems, fmt.Sprintf("expected masked columns %v, got %v", tc.MaskedColumns, d.MaskedColumns()))
	}
	if tc.RowMatch != nil && (d.RowMatch == nil || *d.RowMatch != *tc.RowMatch) {
		got := "none"
		if d.RowMatch != nil {
			got = fmt.Sprint(*d.RowMatch)
		}
		problems = append(problems, fmt.Sprintf("expected row match %t, got %s", *tc.RowMatch, got))
	}

	return problems
}

// ExecuteDecisions runs a suite of policy decision tests from a YAML file
func ExecuteDecisions(ctx context.Context, cmd *cli.Command) error {
	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	// Read and parse the test file
	inputPath := cmd.String("input")
	testSuite, err := loadTestSuite(inputPath)
	if err != nil {
		return fmt.Errorf("failed to load test suite: %w", err)
	}

	if len(testSuite.Tests) == 0 {
		return fmt.Errorf("no tests found in test suite")
	}

	// Filter tests based on --test patterns
	testPatterns := cmd.StringSlice("test")
	testsToRun := filterTests(testSuite.Tests, testPatterns)

	if len(testsToRun) == 0 {
		return fmt.Errorf("no tests match the specified patterns")
	}

	// When --trace is enabled, output AccessRecords to stderr for debugging
	// Otherwise, suppress access logging for cleaner output
	accessLogWriter := io.Discard
	if cmd.Root().Bool("trace") {
		accessLogWriter = os.Stderr
	}
	pe, err := common.NewCliPolicyEngine(cmd, accessLogWriter)
	if err != nil {
		return err
	}
	defer pe.Close()

	// Run tests and collect results
	passed := 0
	failed := 0

	for _, tc := range testsToRun {
		req, err := tc.Request.toAccessRequest(pe)
		if err != nil {
			_, _ = fmt.Fprintf(out, "%s: ERROR (%v)\n", tc.Name, err)
			failed++
			continue
		}

		d, err := pe.Evaluate(ctx, req)
		if err != nil {
			_, _ = fmt.Fprintf(out, "%s: ERROR (%v)\n", tc.Name, err)
			failed++
			continue
		}

		if problems := tc.check(d); len(problems) > 0 {
			_, _ = fmt.Fprintf(out, "%s: FAIL (%s)\n", tc.Name, strings.Join(problems, "; "))
			failed++
		} else {
			_, _ = fmt.Fprintf(out, "%s: PASS\n", tc.Name)
			passed++
		}
	}

	// Print summary
	total := passed + failed
	_, _ = fmt.Fprintf(out, "\n%d/%d tests passed\n", passed, total)

	// Return error if any tests failed
	if failed > 0 {
		return cli.Exit("", 1)
	}

	return nil
}

// loadTestSuite reads and parses a test suite from a YAML file
func loadTestSuite(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- CLI tool intentionally reads user-provided paths
	if err != nil {
		return nil, fmt.Errorf("failed to read test file: %w", err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse test file: %w", err)
	}

	for i, tc := range suite.Tests {
		switch strings.ToLower(tc.Result) {
		case "allow", "deny":
		default:
			return nil, fmt.Errorf("test %d (%s): result must be 'allow' or 'deny', got '%s'", i, tc.Name, tc.Result)
		}
	}

	return &suite, nil
}

// filterTests returns tests that match the specified patterns.
// If no patterns are specified, all tests are returned.
// Patterns support glob matching (e.g., "admin-*" matches "admin-can-read").
func filterTests(tests []TestCase, patterns []string) []TestCase {
	if len(patterns) == 0 {
		return tests
	}

	matchers := make([]func(string) bool, 0, len(patterns))
	for _, pattern := range patterns {
		if g, err := glob.Compile(pattern); err == nil {
			matchers = append(matchers, g.Match)
		} else {
			// invalid patterns match literally
			literal := pattern
			matchers = append(matchers, func(name string) bool { return name == literal })
		}
	}

	var filtered []TestCase
	for _, tc := range tests {
		for _, match := range matchers {
			if match(tc.Name) {
				filtered = append(filtered, tc)
				break
			}
		}
	}

	return filtered
}
