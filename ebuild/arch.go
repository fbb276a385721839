package ebuild

import (
	"slices"
	"strings"
)

// ArchAll is the Debian architecture of architecture independent packages.
const ArchAll = "all"

// archKeywords maps Debian architecture names onto Gentoo keywords.
// Names missing from the table are kept as they are.
var archKeywords = map[string]string{
	"i386":    "x86",
	"i686":    "x86",
	"armhf":   "arm",
	"armel":   "arm",
	"ppc64el": "ppc64",
}

// NormalizeArch returns the Gentoo keyword of a Debian architecture.
// Applying it to its own result changes nothing.
func NormalizeArch(arch string) string {
	arch = strings.TrimSpace(arch)
	if kw, ok := archKeywords[arch]; ok {
		return kw
	}
	return arch
}

// Keywords builds the KEYWORDS value for the given architectures: "-*" followed
// by the testing keyword of every architecture, duplicates removed, order kept.
// An architecture independent package is marked for amd64 and x86 instead and
// does not mask the other architectures.
func Keywords(archs []string) string {
	var kws []string
	mask := false
	add := func(kw string) {
		if kw != "" && !slices.Contains(kws, kw) {
			kws = append(kws, kw)
		}
	}
	for _, a := range archs {
		if a == ArchAll {
			add("amd64")
			add("x86")
			continue
		}
		if kw := NormalizeArch(a); kw != "" {
			add(kw)
			mask = true
		}
	}
	if len(kws) == 0 {
		return ""
	}
	s := "~" + strings.Join(kws, " ~")
	if mask {
		s = "-* " + s
	}
	return s
}
