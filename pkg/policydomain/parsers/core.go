//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package parsers loads PolicyDomain documents, dispatching on apiVersion.
package parsers

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/manetu/dataguard/pkg/policydomain"
	"github.com/manetu/dataguard/pkg/policydomain/parsers/v1beta1"

	"gopkg.in/yaml.v3"
)

// APIVersionV1Beta1 is the current document version.
const APIVersionV1Beta1 = "dataguard.manetu.io/v1beta1"

// Preamble represents the header information of a policy domain file
type Preamble struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
}

// Parse decodes a policy domain document.  source names it in error messages.
func Parse(source string, data []byte) (*policydomain.IntermediateModel, error) {
	var preamble Preamble
	if err := yaml.Unmarshal(data, &preamble); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	if preamble.Kind != "PolicyDomain" {
		return nil, fmt.Errorf("%s: expected PolicyDomain got '%s'", source, preamble.Kind)
	}

	switch preamble.APIVersion {
	case APIVersionV1Beta1:
		return v1beta1.Parse(source, data)
	}

	return nil, fmt.Errorf("%s: unsupported PolicyDomain API Version '%s'", source, preamble.APIVersion)
}

// Load loads a policy domain from a file path
func Load(path string) (*policydomain.IntermediateModel, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- policy paths come from operator configuration
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// Expand resolves paths to domain files.  Directories contribute their *.yml and *.yaml files
// in lexical order; files are returned as given.
func Expand(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var found []string
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".yml" || ext == ".yaml") {
				found = append(found, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}
