//
//  Copyright © Manetu Inc. All rights reserved.
//

package version

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/manetu/dataguard/cmd/dg/version.Version=v0.3.0 -X github.com/manetu/dataguard/cmd/dg/version.Commit=$(git rev-parse --short HEAD)"
var (
	// Version is the release version (e.g., v1.0.0) or git ref for dev builds
	Version = "dev"
	// Commit is the source revision, when known.
	Commit = ""
)

// GetVersion returns the version, followed by the commit when one was recorded.
func GetVersion() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
