// Package ebuild assembles a Gentoo ebuild and its metadata.xml from the
// control data, payload layout and resolved dependencies of a Debian package.
//
// Assemble builds a Recipe, a plain record of every ebuild field. Rendering
// text is a separate step: Render fills a template with the recipe and
// Metadata writes the metadata.xml document.
package ebuild

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/etnz/deb2ebuild/deb"
	"github.com/etnz/deb2ebuild/kb"
	"github.com/etnz/deb2ebuild/resolve"
	"github.com/etnz/deb2ebuild/scan"
)

const (
	DefaultPackage = "unknown"
	DefaultVersion = "1.0.0"
	DefaultEAPI    = 8
	DefaultSlot    = "0"

	// versionToken stands for the package version in SRC_URI.
	versionToken = "${PV}"
)

// Source is one downloadable variant of the package.
type Source struct {
	// Arch is the Debian architecture of the variant.
	Arch string
	URL  string
}

// Input gathers what Assemble needs. Nil members count as empty.
type Input struct {
	Control      *deb.Control
	Sources      []Source
	Layout       *scan.Layout
	Dependencies *resolve.Result

	// Homepage and License override the control data when set.
	Homepage string
	License  string
}

// Recipe is every field of an ebuild. It is not modified after Assemble returns.
type Recipe struct {
	Package         string
	Version         string
	Description     string
	LongDescription string
	Homepage        string
	License         string
	Year            int
	EAPI            int
	Slot            string
	Inherit         []string
	Restrict        []string
	Sources         []Source
	// Flags is the IUSE content, sorted.
	Flags []string
	// Depends is the rendered RDEPEND content.
	Depends string
	// Prepare and Install are the bodies of src_prepare and src_install,
	// empty when there is nothing to do.
	Prepare  string
	Install  string
	Warnings []string
}

var licenseVersion = regexp.MustCompile(`v(\d)`)

// NormalizeLicense turns Debian style license names into Gentoo ones:
// "GPLv2" becomes "GPL-2".
func NormalizeLicense(license string) string {
	return licenseVersion.ReplaceAllString(strings.TrimSpace(license), "-$1")
}

// Assemble builds the recipe. lookup may be nil.
// Warnings come in order: control data first, then the layout, then dependencies.
func Assemble(in Input, lookup kb.Lookup) *Recipe {
	c := in.Control
	if c == nil {
		c = &deb.Control{Fields: map[string]string{}}
	}
	layout := in.Layout
	if layout == nil {
		layout = &scan.Layout{}
	}
	deps := in.Dependencies
	if deps == nil {
		deps = &resolve.Result{}
	}

	r := &Recipe{
		Year:     time.Now().Year(),
		EAPI:     DefaultEAPI,
		Slot:     DefaultSlot,
		Inherit:  []string{"unpacker"},
		Restrict: []string{"bindist", "mirror"},
	}

	if v, ok := c.Get(deb.FieldPackage); ok && v != "" {
		r.Package = v
	} else {
		r.Package = DefaultPackage
		r.warn("Package name not found. Using %q instead.", r.Package)
	}
	if v, ok := c.Get(deb.FieldVersion); ok && v != "" {
		r.Version = deb.UpstreamVersion(v)
	} else {
		r.Version = DefaultVersion
		r.warn("Package version not found. Using %q instead.", r.Version)
	}

	r.Homepage = in.Homepage
	if r.Homepage == "" {
		r.Homepage, _ = c.Get(deb.FieldHomepage)
	}
	if r.Homepage == "" {
		r.warn("Package homepage is missing.")
	}

	license := in.License
	if license == "" {
		license, _ = c.Get(deb.FieldLicense)
	}
	r.License = NormalizeLicense(license)
	if r.License == "" {
		r.warn("Package license is missing.")
	}

	// The short description falls back to the long one, which spans lines.
	r.Description = strings.Join(strings.Fields(c.Description), " ")
	if r.Description == "" {
		r.warn("Package description is missing.")
	}
	r.LongDescription = c.LongDescription
	if r.LongDescription == "" {
		r.warn("Package long description is missing.")
	}

	arch, _ := c.Get(deb.FieldArchitecture)
	for _, s := range in.Sources {
		if s.Arch == "" {
			s.Arch = arch
		}
		r.Sources = append(r.Sources, s)
	}

	if len(layout.DesktopFiles) > 0 {
		r.Inherit = append(r.Inherit, "xdg")
	}
	r.Warnings = append(r.Warnings, layout.Warnings...)

	flags := append(slices.Clone(deps.Flags), layout.Flags...)
	sort.Strings(flags)
	r.Flags = slices.Compact(flags)
	r.Depends = deps.String()
	r.Warnings = append(r.Warnings, deps.Warnings...)

	r.Prepare = prepareFragment(layout, r.Flags)
	r.Install = installFragment(layout, r.Package, lookup)
	return r
}

func (r *Recipe) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Name returns the ebuild file name, "<package>-<version>.ebuild" with dots of
// the package name turned into dashes.
func (r *Recipe) Name() string {
	return fmt.Sprintf("%s-%s.ebuild", fileStem(r.Package), r.Version)
}

// MetadataName returns the metadata file name, "<package>-metadata.xml".
func (r *Recipe) MetadataName() string {
	return fileStem(r.Package) + "-metadata.xml"
}

func fileStem(pkg string) string {
	return strings.ReplaceAll(pkg, ".", "-")
}

// Archs returns the architectures of the sources, in order.
func (r *Recipe) Archs() []string {
	archs := make([]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		archs = append(archs, s.Arch)
	}
	return archs
}

// Keywords returns the KEYWORDS value.
func (r *Recipe) Keywords() string {
	return Keywords(r.Archs())
}

// SrcURI returns the SRC_URI value. The version in the URLs is replaced by
// ${PV} and the distfile renamed after the package. With several sources
// every entry is guarded by its architecture keyword.
func (r *Recipe) SrcURI() string {
	var lines []string
	for _, s := range r.Sources {
		url := versionedURL(shellQuote(s.URL), r.Version)
		if len(r.Sources) == 1 {
			lines = append(lines, fmt.Sprintf("%s -> %s", url, r.Distfile(s)))
			break
		}
		lines = append(lines, fmt.Sprintf("%s? ( %s -> %s )", NormalizeArch(s.Arch), url, r.Distfile(s)))
	}
	return strings.Join(lines, "\n\t")
}

// versionedURL replaces version by ${PV} where it is a whole URL component:
// after one of "/_-=", optionally followed by "v", and before one of "/_-&",
// ".deb" or the end.
func versionedURL(url, version string) string {
	if version == "" {
		return url
	}
	re := regexp.MustCompile(`(^|[/_=-]v?)` + regexp.QuoteMeta(version) + `([/_&-]|\.deb|$)`)
	return re.ReplaceAllString(url, "${1}"+strings.ReplaceAll(versionToken, "$", "$$")+"${2}")
}

// Distfile returns the name SRC_URI gives to the file of a source, with the
// version spelled as ${PV}.
func (r *Recipe) Distfile(s Source) string {
	ext := strings.TrimPrefix(path.Ext(s.URL), ".")
	if ext == "" {
		ext = "deb"
	}
	if len(r.Sources) <= 1 {
		return fmt.Sprintf("%s-%s.%s", r.Package, versionToken, ext)
	}
	return fmt.Sprintf("%s-%s-%s.%s", r.Package, versionToken, s.Arch, ext)
}

// DistfileName is Distfile with the actual version.
func (r *Recipe) DistfileName(s Source) string {
	return strings.ReplaceAll(r.Distfile(s), versionToken, r.Version)
}
