//
//  Copyright © Manetu Inc. All rights reserved.
//

package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	k8sLabels     map[string]string
	k8sLabelsOnce sync.Once
)

// resetK8sCache forgets the labels read so far.  Testing only.
func resetK8sCache() {
	k8sLabels = nil
	k8sLabelsOnce = sync.Once{}
}

// parseDownwardAPIFile reads key="value" lines.  A missing file yields nil.
func parseDownwardAPIFile(path string) (map[string]string, error) {
	f, err := os.Open(path) // #nosec G304 -- directory comes from operator configuration
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	result := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || key == "" {
			continue
		}
		result[key] = strings.Trim(value, "\"")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// getK8sLabels returns the pod labels, read once.  Outside Kubernetes this is nil.
func getK8sLabels() map[string]string {
	k8sLabelsOnce.Do(func() {
		p := filepath.Join(VConfig.GetString(AuditK8sPodinfo), "labels")
		labels, err := parseDownwardAPIFile(p)
		if err != nil {
			logger.SysWarnf("failed to read k8s labels from %s: %v", p, err)
			return
		}
		k8sLabels = labels
	})
	return k8sLabels
}
