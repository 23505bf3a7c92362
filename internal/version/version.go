// Package version holds the build version and the schema version helpers
// used by the store migrator.
package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the release version of tiercache.
var Version = "0.3.1"

// DevVersion is the suffix appended in dev mode.
var DevVersion = "dev"

func GetCurrentVersion(mode string) string {
	if mode == "dev" {
		return fmt.Sprintf("%s-%s", Version, DevVersion)
	}
	return Version
}

// GetSchemaVersion returns the schema version for a release version.
// The schema version is the minor release, e.g. "0.3.1" -> "0.3".
func GetSchemaVersion(version string) string {
	parts := strings.Split(version, "-")
	return semver.MajorMinor("v" + parts[0])[1:]
}

// IsVersionGreaterOrEqualThan returns true if version >= target.
func IsVersionGreaterOrEqualThan(version, target string) bool {
	return semver.Compare("v"+version, "v"+target) >= 0
}

// IsVersionGreaterThan returns true if version > target.
func IsVersionGreaterThan(version, target string) bool {
	return semver.Compare("v"+version, "v"+target) > 0
}
