package deb

import (
	"strings"

	"pault.ag/go/debian/version"
)

// UpstreamVersion returns the upstream part of a Debian version: the epoch and
// the Debian revision are dropped ("1:2.4.1-3ubuntu1" gives "2.4.1").
// Unparsable versions keep everything before the first hyphen.
func UpstreamVersion(v string) string {
	v = strings.TrimSpace(v)
	if parsed, err := version.Parse(v); err == nil && parsed.Version != "" {
		return parsed.Version
	}
	before, _, _ := strings.Cut(v, "-")
	return before
}

// CompareVersions compares two Debian versions using dpkg ordering.
// It returns a negative number when a < b, zero when equal and a positive number when a > b.
// Versions that fail to parse are compared as plain strings.
func CompareVersions(a, b string) int {
	va, errA := version.Parse(a)
	vb, errB := version.Parse(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return version.Compare(va, vb)
}
