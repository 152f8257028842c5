package client

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// compareVersions orders two version strings. It returns -1 when local is
// older than remote, 1 when newer, and 0 when they are equal or either side
// is not a semantic version. Only used for wording; compatibility is exact
// string equality.
func compareVersions(local, remote string) int {
	lv, err := semver.NewVersion(strings.TrimSpace(local))
	if err != nil {
		return 0
	}
	rv, err := semver.NewVersion(strings.TrimSpace(remote))
	if err != nil {
		return 0
	}
	return lv.Compare(rv)
}
