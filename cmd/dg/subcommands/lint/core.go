//
//  Copyright © Manetu Inc. All rights reserved.
//

package lint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/manetu/dataguard/pkg/policydomain"
	"github.com/manetu/dataguard/pkg/policydomain/parsers"
	"github.com/manetu/dataguard/pkg/policydomain/registry"
	"github.com/manetu/dataguard/pkg/policydomain/validation"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Result represents the outcome of a lint operation on a file.
type Result struct {
	File    string
	Valid   bool
	Error   error
	Message string
	Type    string // "yaml" or "schema"
}

// Execute runs the lint command with the provided context and CLI command.
//
// Files are checked in three passes, each only when the previous one succeeded:
// YAML syntax per file, the PolicyDomain schema per file, and finally the domains
// together (duplicate IDs, service references, predicates) with row filters compiled.
func Execute(ctx context.Context, cmd *cli.Command) error {
	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	files, err := parsers.Expand(cmd.StringSlice("file"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files specified, use --file/-f to specify YAML files to lint")
	}

	_, _ = fmt.Fprintln(out, "Linting YAML files...")
	_, _ = fmt.Fprintln(out)

	failed := 0
	for _, file := range files {
		ext := strings.ToLower(filepath.Ext(file))
		if ext != ".yml" && ext != ".yaml" {
			_, _ = fmt.Fprintf(out, "⚠ %s: Unsupported file type (only .yml, .yaml supported)\n\n", file)
			continue
		}

		for _, result := range []Result{lintFile(file), lintSchema(file)} {
			if !result.Valid {
				failed++
				report(out, result)
				break
			}
		}
	}

	if failed > 0 {
		_, _ = fmt.Fprintln(out, "---")
		_, _ = fmt.Fprintf(out, "Linting completed: %d file(s) with errors\n", failed)
		return fmt.Errorf("linting failed: %d file(s) with errors", failed)
	}

	domainErrors := lintDomains(ctx, out, files)

	_, _ = fmt.Fprintln(out, "---")
	if domainErrors > 0 {
		_, _ = fmt.Fprintf(out, "Linting completed: %d error(s)\n", domainErrors)
		return fmt.Errorf("linting failed: %d error(s)", domainErrors)
	}

	_, _ = fmt.Fprintf(out, "All checks passed: %d file(s) validated successfully\n", len(files))
	return nil
}

func report(out io.Writer, result Result) {
	_, _ = fmt.Fprintf(out, "✗ %s (%s)\n", result.File, strings.ToUpper(result.Type))
	if result.Error != nil {
		_, _ = fmt.Fprintf(out, "  Error: %s\n", formatYAMLError(result.Error))
	} else {
		_, _ = fmt.Fprintf(out, "  Error: %s\n", result.Message)
	}
	_, _ = fmt.Fprintln(out)
}

// lintDomains validates every domain together and compiles their row filters.  It returns the
// number of problems found.
func lintDomains(ctx context.Context, out io.Writer, files []string) int {
	domainToFile := make(map[string]string)
	var domains []*policydomain.IntermediateModel
	for _, file := range files {
		if domain, err := parsers.Load(file); err == nil {
			domainToFile[domain.Name] = file
			domains = append(domains, domain)
		}
	}

	if _, err := registry.FromDomains(domains); err != nil {
		var verrs *validation.Errors
		if !errors.As(err, &verrs) {
			_, _ = fmt.Fprintf(out, "✗ Bundle validation failed: %s\n", err.Error())
			return 1
		}

		for _, verr := range verrs.Errors {
			file := domainToFile[verr.Domain]
			if file == "" {
				file = "unknown"
			}
			_, _ = fmt.Fprintf(out, "✗ %s (%s)\n", file, verr.Type)
			_, _ = fmt.Fprintf(out, "  Error: %s\n", verr.Error())
			_, _ = fmt.Fprintln(out)
		}
		_, _ = fmt.Fprintln(out, verrs.Summary())
		return verrs.Count()
	}

	// compile row filters the same way a running engine would
	store := registry.NewStoreFromLoader(func() (*registry.Registry, error) {
		return registry.FromDomains(domains)
	})
	if _, err := store.Load(ctx); err != nil {
		_, _ = fmt.Fprintf(out, "✗ Compilation failed: %s\n", err.Error())
		return 1
	}

	for _, domain := range domains {
		disabled := 0
		for _, p := range domain.Policies {
			if !p.Enabled {
				disabled++
			}
		}
		_, _ = fmt.Fprintf(out, "✓ %s: domain '%s' with %d service(s), %d policies (%d disabled), %d tag binding(s)\n",
			domainToFile[domain.Name], domain.Name, len(domain.Services), len(domain.Policies), disabled, len(domain.Tags))
	}

	return 0
}

func lintFile(filepath string) Result {
	result := Result{
		File:  filepath,
		Valid: true,
		Type:  "yaml",
	}

	// Read file
	content, err := os.ReadFile(filepath) // #nosec G304 -- CLI tool intentionally reads user-provided paths
	if err != nil {
		result.Valid = false
		result.Message = fmt.Sprintf("Failed to read file: %v", err)
		return result
	}

	// Try to parse the YAML
	var data interface{}
	err = yaml.Unmarshal(content, &data)
	if err != nil {
		result.Valid = false
		result.Error = err
		return result
	}

	return result
}

func lintSchema(filepath string) Result {
	result := Result{
		File:  filepath,
		Valid: true,
		Type:  "schema",
	}

	if _, err := parsers.Load(filepath); err != nil {
		result.Valid = false
		result.Message = err.Error()
	}

	return result
}

func formatYAMLError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "yaml:") {
		return errStr
	}

	var yamlErr *yaml.TypeError
	if errors.As(err, &yamlErr) && len(yamlErr.Errors) > 0 {
		return strings.Join(yamlErr.Errors, "\n  ")
	}

	return errStr
}
