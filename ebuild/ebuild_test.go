package ebuild

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/deb2ebuild/deb"
	"github.com/etnz/deb2ebuild/kb"
	"github.com/etnz/deb2ebuild/resolve"
	"github.com/etnz/deb2ebuild/scan"
)

const fooControl = `Package: foo.app
Version: 1:2.0.1-3
Architecture: amd64
Maintainer: Foo Team <team@foo.example>
Homepage: https://foo.example
License: GPLv3
Depends: libc6 (>= 2.34), libpulse0, libgtk-3-0 | libgtk2.0, qux
Description: Foo & friends
 Foo is a <great> app.
 .
 It does things.
`

func fooKB() *kb.KnowledgeBase {
	return kb.New(map[kb.Table]map[string][]string{
		kb.Dependencies: {
			"libc6":      {"sys-libs/glibc"},
			"libgtk-3-0": {"x11-libs/gtk+:3"},
			"libgtk2.0":  {"x11-libs/gtk+:2"},
		},
		kb.DependenciesOptional: {
			"libpulse0": {"pulseaudio"},
		},
		kb.UseDependencies: {
			"pulseaudio":    {"media-sound/pulseaudio"},
			"system-ffmpeg": {"media-video/ffmpeg[chromium]"},
		},
		kb.UseDescriptions: {
			"doc":           {"Install documentation"},
			"pulseaudio":    {"Enable PulseAudio <sound> support"},
			"system-ffmpeg": {"Use system ffmpeg"},
		},
		kb.UseSymlinks: {
			"system-ffmpeg": {"/usr/lib64/chromium/libffmpeg.so"},
		},
	})
}

func fooLayout() *scan.Layout {
	return &scan.Layout{
		DesktopFiles: []string{"usr/share/applications/foo.desktop"},
		DocDir:       "usr/share/doc/foo",
		DocArchives:  []string{"usr/share/doc/foo/changelog.gz"},
		Unnecessary: map[string][]string{
			"system-ffmpeg": {"opt/Foo/libffmpeg.so"},
			"system-mesa":   {"opt/Foo/swiftshader"},
		},
		Dirs:     map[string]bool{"opt/Foo/swiftshader": true},
		Flags:    []string{"doc", "system-ffmpeg", "system-mesa"},
		Moves:    []scan.Move{{From: "usr/share/appdata", To: "usr/share/metainfo"}},
		Removals: []string{"usr/share/menu"},
		RunFiles: []string{"opt/Foo/foo"},
	}
}

func fooRecipe(t *testing.T) *Recipe {
	t.Helper()
	c := deb.ParseControl(fooControl)
	lookup := fooKB()
	deps := resolve.New(lookup).Resolve(deb.ParseRelations(c.Depends), []string{"system-ffmpeg", "system-mesa"})
	r := Assemble(Input{
		Control: c,
		Sources: []Source{
			{Arch: "amd64", URL: "https://dl.foo.example/2.0.1/foo_2.0.1_amd64.deb"},
			{Arch: "i386", URL: "https://dl.foo.example/2.0.1/foo_2.0.1_i386.deb"},
		},
		Layout:       fooLayout(),
		Dependencies: deps,
	}, lookup)
	r.Year = 2024
	return r
}

func TestAssemble(t *testing.T) {
	r := fooRecipe(t)

	assert.Equal(t, "foo.app", r.Package)
	assert.Equal(t, "2.0.1", r.Version)
	assert.Equal(t, "GPL-3", r.License)
	assert.Equal(t, "https://foo.example", r.Homepage)
	assert.Equal(t, []string{"unpacker", "xdg"}, r.Inherit)
	assert.Equal(t, []string{"doc", "pulseaudio", "system-ffmpeg", "system-mesa"}, r.Flags)
	assert.Equal(t, "-* ~amd64 ~x86", r.Keywords())
	assert.Equal(t, []string{`Gentoo alternative dependency for "qux" not found in knowledge base.`}, r.Warnings)
	assert.Equal(t, "foo-app-2.0.1.ebuild", r.Name())
	assert.Equal(t, "foo-app-metadata.xml", r.MetadataName())
}

func TestRender_Golden(t *testing.T) {
	r := fooRecipe(t)

	g := goldie.New(t)
	g.Assert(t, "foo-app.ebuild", []byte(r.Render(DefaultTemplate)))
	g.Assert(t, "foo-app-metadata.xml", r.Metadata(fooKB()))
}

func TestRender_Minimal(t *testing.T) {
	r := Assemble(Input{
		Control: deb.ParseControl("Package: foo\nVersion: 1.2.3-1\n"),
		Sources: []Source{{Arch: "amd64", URL: "https://example.com/pool/f/foo/foo_1.2.3-1_amd64.deb"}},
	}, nil)
	r.Year = 2024

	g := goldie.New(t)
	g.Assert(t, "minimal.ebuild", []byte(r.Render(DefaultTemplate)))
	g.Assert(t, "minimal-metadata.xml", r.Metadata(nil))
}

func TestRender_CustomTemplate(t *testing.T) {
	r := fooRecipe(t)
	out := r.Render("@EAPI@|@SLOT@|@RESTRICT@|@QA_PREBUILT@|@UNKNOWN@\n")

	assert.Contains(t, out, "8|0|bindist mirror|*|@UNKNOWN@\n\nS=${WORKDIR}\n")
}

func TestLoadTemplate(t *testing.T) {
	tmpl, err := LoadTemplate("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplate, tmpl)

	p := filepath.Join(t.TempDir(), "custom.ebuild")
	require.NoError(t, os.WriteFile(p, []byte("EAPI=@EAPI@\n"), 0644))
	tmpl, err = LoadTemplate(p)
	require.NoError(t, err)
	assert.Equal(t, "EAPI=@EAPI@\n", tmpl)

	_, err = LoadTemplate(filepath.Join(t.TempDir(), "missing.ebuild"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAssemble_RoundTrip(t *testing.T) {
	c := deb.ParseControl("Package: foo\nVersion: 1.2.3-1\nDepends: bar, baz | qux\n")
	lookup := kb.New(map[kb.Table]map[string][]string{
		kb.Dependencies:         {"bar": {"dev-libs/bar"}},
		kb.DependenciesOptional: {"baz": {"baz-use"}},
		kb.UseDependencies:      {"baz-use": {"dev-libs/baz"}},
	})
	deps := resolve.New(lookup).Resolve(deb.ParseRelations(c.Depends), nil)

	r := Assemble(Input{Control: c, Dependencies: deps}, lookup)

	assert.Equal(t, "foo", r.Package)
	assert.Equal(t, "1.2.3", r.Version)
	assert.Equal(t, "dev-libs/bar\n\tbaz-use? ( dev-libs/baz )", r.Depends)
	assert.Equal(t, []string{"baz-use"}, r.Flags)
	assert.Equal(t, []string{
		"Package homepage is missing.",
		"Package license is missing.",
		"Package description is missing.",
		"Package long description is missing.",
		`Gentoo alternative dependency for "qux" not found in knowledge base.`,
	}, r.Warnings)
}

func TestAssemble_NoKnowledgeBase(t *testing.T) {
	c := deb.ParseControl("Package: foo\nVersion: 1.2.3-1\nDepends: bar, baz | qux\n")
	deps := resolve.New(nil).Resolve(deb.ParseRelations(c.Depends), []string{"system-ffmpeg"})

	r := Assemble(Input{Control: c, Dependencies: deps}, nil)

	assert.Empty(t, r.Depends)
	assert.Empty(t, r.Flags)
	for _, w := range r.Warnings {
		assert.NotContains(t, w, "Gentoo alternative dependency")
	}
}

func TestAssemble_Defaults(t *testing.T) {
	r := Assemble(Input{}, nil)

	assert.Equal(t, DefaultPackage, r.Package)
	assert.Equal(t, DefaultVersion, r.Version)
	assert.Equal(t, []string{
		`Package name not found. Using "unknown" instead.`,
		`Package version not found. Using "1.0.0" instead.`,
		"Package homepage is missing.",
		"Package license is missing.",
		"Package description is missing.",
		"Package long description is missing.",
	}, r.Warnings)
}

func TestAssemble_Overrides(t *testing.T) {
	r := Assemble(Input{
		Control:  deb.ParseControl("Package: foo\nVersion: 1.0\nHomepage: https://old.example\nLicense: MIT\n"),
		Homepage: "https://new.example",
		License:  "LGPLv2.1",
	}, nil)

	assert.Equal(t, "https://new.example", r.Homepage)
	assert.Equal(t, "LGPL-2.1", r.License)
}

func TestAssemble_WarningOrder(t *testing.T) {
	r := Assemble(Input{
		Control:      deb.ParseControl("Package: foo\nVersion: 1\nHomepage: h\nLicense: MIT\nDescription: d\n long\n"),
		Layout:       &scan.Layout{Warnings: []string{"No desktop files found."}},
		Dependencies: &resolve.Result{Warnings: []string{"unresolved"}},
	}, nil)

	assert.Equal(t, []string{"No desktop files found.", "unresolved"}, r.Warnings)
}

func TestAssemble_DocArchive(t *testing.T) {
	root := t.TempDir()
	for name, body := range map[string]string{
		"usr/share/doc/foo/changelog.gz": "gz",
		"usr/share/doc/foo/copyright":    "text",
		"usr/bin/foo":                    "bin",
	} {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	}
	layout := scan.New(root, nil).Scan("foo", nil)

	r := Assemble(Input{
		Control: deb.ParseControl("Package: foo\nVersion: 1.0-1\n"),
		Layout:  layout,
	}, nil)

	assert.Equal(t, []string{"doc"}, r.Flags)
	assert.Contains(t, r.Prepare, "\tif use doc ; then\n"+
		"\t\tunpack \"./usr/share/doc/foo/changelog.gz\" || die \"unpack failed\"\n"+
		"\t\trm -f \"usr/share/doc/foo/changelog.gz\" || die \"rm failed\"\n"+
		"\t\tmv \"changelog\" \"usr/share/doc/foo\" || die \"mv failed\"\n"+
		"\tfi\n")
	assert.Contains(t, r.Install, "\trm -r \"${ED}/usr/share/doc/foo\" || die \"rm failed\"\n")
	assert.Contains(t, r.Install, "\tif use doc ; then\n\t\tdodoc -r \"usr/share/doc/foo/\"* || die \"dodoc failed\"\n\tfi")
	assert.NotContains(t, r.Install, "/usr/bin/foo\" ||", "native binaries need no symlink")
}

func TestAssemble_SourceArchFromControl(t *testing.T) {
	r := Assemble(Input{
		Control: deb.ParseControl("Package: foo\nVersion: 1.0\nArchitecture: all\n"),
		Sources: []Source{{URL: "https://example.com/foo_1.0_all.deb"}},
	}, nil)

	assert.Equal(t, "~amd64 ~x86", r.Keywords())
	assert.Equal(t, "https://example.com/foo_${PV}_all.deb -> foo-${PV}.deb", r.SrcURI())
	assert.Equal(t, "foo-1.0.deb", r.DistfileName(r.Sources[0]))
}

func TestNormalizeLicense(t *testing.T) {
	tests := map[string]string{
		"GPLv2":    "GPL-2",
		"LGPLv2.1": "LGPL-2.1",
		" MIT ":    "MIT",
		"":         "",
		"Apache-2": "Apache-2",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeLicense(in), in)
	}
}

func TestAssemble_DescriptionFromLongDescription(t *testing.T) {
	c := deb.ParseControl("Package: foo\nVersion: 1.0\nDescription:\n First line of text.\n .\n Second paragraph.\n")
	r := Assemble(Input{Control: c}, nil)

	assert.Equal(t, "First line of text. Second paragraph.", r.Description)
	assert.Equal(t, "First line of text.\n\nSecond paragraph.", r.LongDescription)
	assert.Contains(t, r.Render(DefaultTemplate), "DESCRIPTION=\"First line of text. Second paragraph.\"\n")
}

func TestRender_EscapesControlValues(t *testing.T) {
	c := deb.ParseControl("Package: foo\nVersion: 1.0\nHomepage: https://foo.example/$HOME\nLicense: `id`\nDescription: The \"best\" app \\o/\n")
	r := Assemble(Input{Control: c}, nil)
	out := r.Render(DefaultTemplate)

	assert.Contains(t, out, `DESCRIPTION="The \"best\" app \\o/"`)
	assert.Contains(t, out, `HOMEPAGE="https://foo.example/\$HOME"`)
	assert.Contains(t, out, "LICENSE=\"\\`id\\`\"")
}

func TestAssemble_EscapesPayloadPaths(t *testing.T) {
	layout := &scan.Layout{
		DocDir:   "usr/share/doc/$foo",
		Removals: []string{"usr/share/menu/`rm -rf /`"},
		Unnecessary: map[string][]string{
			"system-ffmpeg": {`opt/Foo "lib"/libffmpeg.so`},
		},
		RunFiles: []string{"opt/Foo/$(foo)"},
	}
	r := Assemble(Input{Control: deb.ParseControl(fooControl), Layout: layout}, fooKB())

	assert.Contains(t, r.Prepare, "\trm -fr \"usr/share/menu/\\`rm -rf /\\`\" || die \"rm failed\"\n")
	assert.Contains(t, r.Prepare, `rm -f "opt/Foo \"lib\"/libffmpeg.so" || die "rm failed"`)
	assert.Contains(t, r.Install, `rm -r "${ED}/usr/share/doc/\$foo" || die "rm failed"`)
	assert.Contains(t, r.Install, `dodoc -r "usr/share/doc/\$foo/"* || die "dodoc failed"`)
	assert.Contains(t, r.Install, `dosym "/usr/lib64/chromium/libffmpeg.so" "/opt/Foo \"lib\"/libffmpeg.so" || die "dosym failed"`)
	assert.Contains(t, r.Install, `dosym "/opt/Foo/\$(foo)" "/usr/bin/foo.app" || die "dosym failed"`)
	assert.Contains(t, r.Install, `cp -a . "${ED}" || die "cp failed"`)
}

func TestSrcURI_VersionBoundaries(t *testing.T) {
	tests := []struct {
		version string
		url     string
		want    string
	}{
		{"6", "https://example.com/foo_6_amd64.deb", "https://example.com/foo_${PV}_amd64.deb"},
		{"6", "https://example.com/6/foo-6.deb", "https://example.com/${PV}/foo-${PV}.deb"},
		{"1.2", "https://example.com/v1.2/foo_1.2-1_arm64.deb", "https://example.com/v${PV}/foo_${PV}-1_arm64.deb"},
		{"1.2", "https://example.com/foo_11.2_amd64.deb", "https://example.com/foo_11.2_amd64.deb"},
		{"1.2", "https://example.com/get?version=1.2&file=foo.deb", "https://example.com/get?version=${PV}&file=foo.deb"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			r := &Recipe{Package: "foo", Version: tt.version, Sources: []Source{{Arch: "amd64", URL: tt.url}}}
			assert.Equal(t, tt.want+" -> foo-${PV}.deb", r.SrcURI())
		})
	}
}
