// Package convert runs the whole conversion of Debian packages into a Gentoo
// ebuild: it collects the source variants, fetches them through the cache,
// scans and resolves the first one, assembles the recipe and writes the files.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"go.trai.ch/zerr"

	"github.com/etnz/deb2ebuild/apt"
	"github.com/etnz/deb2ebuild/deb"
	"github.com/etnz/deb2ebuild/ebuild"
	"github.com/etnz/deb2ebuild/github"
	"github.com/etnz/deb2ebuild/kb"
	"github.com/etnz/deb2ebuild/manifest"
	"github.com/etnz/deb2ebuild/resolve"
	"github.com/etnz/deb2ebuild/scan"
)

var (
	ErrNoInput        = zerr.New("no input package given")
	ErrInvalidURL     = zerr.New("input has to be an http or https URL")
	ErrNoArchitecture = zerr.New("an architecture is required for URLs containing " + ArchToken)
	ErrCacheDir       = zerr.New("cannot create cache directory")
)

// ArchToken is replaced in input URLs by every selected architecture.
const ArchToken = "@ARCH@"

// ManifestName is the file name of the Gentoo distfile manifest.
const ManifestName = "Manifest"

// PublicKeyName is the armored public key written next to a signed Manifest.
const PublicKeyName = "public.asc"

// Options configures a conversion.
type Options struct {
	// URLs are direct download locations of .deb files.
	URLs []string
	// Archs are the selected Debian architectures, in output order.
	Archs []string
	// Use are USE flags requested by the operator.
	Use []string

	// GitHub is an "owner/repo[@tag]" slug whose release assets are inputs.
	GitHub      string
	GitHubToken string

	// Apt is a repository searched for AptPackage. It is ignored when
	// AptPackage is empty. Its architectures default to Archs.
	Apt        apt.RepoConfig
	AptPackage string

	// Database is the knowledge base file. A missing file is a warning.
	Database string
	// Template is an ebuild template file, the embedded one when empty.
	Template  string
	OutputDir string
	CacheDir  string

	Homepage string
	License  string

	// Manifest asks for a Manifest of the downloaded distfiles, clearsigned
	// with GPGKey when set.
	Manifest bool
	GPGKey   string

	Client *http.Client
	Logger *slog.Logger
}

// Result describes a finished conversion.
type Result struct {
	Recipe       *ebuild.Recipe
	EbuildPath   string
	MetadataPath string
	// ManifestPath is empty when no Manifest was asked for.
	ManifestPath string
	// PublicKeyPath is empty unless the Manifest was signed.
	PublicKeyPath string
	// Warnings are every recoverable problem met, in the order they were found.
	Warnings []string
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) cache() (*deb.Cache, error) {
	dir := o.CacheDir
	if dir == "" {
		dir = DefaultCacheDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, zerr.With(zerr.Wrap(ErrCacheDir, err.Error()), "dir", dir)
	}
	return &deb.Cache{Dir: dir, Client: o.Client, Logger: o.logger()}, nil
}

// DefaultCacheDir is the cache used when none is configured.
func DefaultCacheDir() string {
	return filepath.Join(os.TempDir(), "deb2ebuild-cache")
}

// Run converts the packages described by opts. No file is written unless
// every package was fetched and the recipe rendered.
func Run(ctx context.Context, opts Options, listener Listener) (*Result, error) {
	if listener == nil {
		listener = func(fmt.Stringer) {}
	}
	log := opts.logger()

	sources, err := collectSources(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, s := range sources {
		listener(EventSourceFound{URL: s.URL, Architecture: s.Arch})
	}

	var warnings []string
	lookup, err := loadKnowledgeBase(opts.Database)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.WarnContext(ctx, "knowledge base not found", "path", opts.Database)
		warnings = append(warnings, "Database file not found: "+opts.Database)
		listener(EventKnowledgeBaseLoad{Path: opts.Database, Missing: true})
	case err != nil:
		return nil, err
	case lookup != nil:
		listener(EventKnowledgeBaseLoad{Path: opts.Database})
	}

	cache, err := opts.cache()
	if err != nil {
		return nil, err
	}
	artifacts := make([]*deb.Artifact, 0, len(sources))
	for i, s := range sources {
		a, err := cache.Fetch(ctx, s.URL)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to fetch package"), "url", s.URL)
		}
		listener(EventPackageFetched{URL: s.URL, Root: a.Root})
		if s.Arch == "" {
			c, err := a.Control()
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, "failed to read control data"), "url", s.URL)
			}
			sources[i].Arch, _ = c.Get(deb.FieldArchitecture)
		}
		artifacts = append(artifacts, a)
	}
	sources, artifacts, dropped := uniqueArchs(sources, artifacts)
	for _, s := range dropped {
		log.WarnContext(ctx, "duplicate architecture", "arch", s.Arch, "url", s.URL)
		warnings = append(warnings, fmt.Sprintf("Several packages for architecture %q, ignoring %s.", s.Arch, s.URL))
	}

	control, err := artifacts[0].Control()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read control data"), "url", artifacts[0].URL)
	}
	pkg, ok := control.Get(deb.FieldPackage)
	if !ok || pkg == "" {
		pkg = ebuild.DefaultPackage
	}
	layout := scan.New(artifacts[0].DataDir(), lookup).Scan(pkg, opts.Use)
	deps := resolve.New(lookup).Resolve(deb.ParseRelations(control.Depends), opts.Use)

	recipe := ebuild.Assemble(ebuild.Input{
		Control:      control,
		Sources:      sources,
		Layout:       layout,
		Dependencies: deps,
		Homepage:     opts.Homepage,
		License:      opts.License,
	}, lookup)
	listener(EventRecipeAssembled{
		Package:  recipe.Package,
		Version:  recipe.Version,
		Flags:    len(recipe.Flags),
		Warnings: len(recipe.Warnings),
	})

	tmpl := ebuild.DefaultTemplate
	if opts.Template != "" {
		if tmpl, err = ebuild.LoadTemplate(opts.Template); err != nil {
			return nil, err
		}
	}

	outputs := []output{
		{name: recipe.Name(), content: []byte(recipe.Render(tmpl))},
		{name: recipe.MetadataName(), content: recipe.Metadata(lookup)},
	}
	if opts.Manifest {
		m, err := buildManifest(recipe, artifacts, opts.GPGKey)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, m...)
	}

	res := &Result{
		Recipe:   recipe,
		Warnings: append(warnings, recipe.Warnings...),
	}
	for _, o := range outputs {
		p, err := o.write(opts.OutputDir)
		if err != nil {
			return nil, err
		}
		listener(EventFileWritten{Path: p, Signed: o.signed})
		switch o.name {
		case recipe.Name():
			res.EbuildPath = p
		case recipe.MetadataName():
			res.MetadataPath = p
		case ManifestName:
			res.ManifestPath = p
		case PublicKeyName:
			res.PublicKeyPath = p
		}
	}
	return res, nil
}

// Inspection is what a single .deb is made of, as seen by the conversion.
type Inspection struct {
	Artifact  *deb.Artifact
	Control   *deb.Control
	Relations []deb.Relation
	Layout    *scan.Layout
	// Dependencies are the relations resolved against the knowledge base.
	Dependencies *resolve.Result
}

// Inspect fetches the .deb at rawURL and reports its control data, relations
// and payload layout without writing anything outside the cache.
func Inspect(ctx context.Context, opts Options, rawURL string) (*Inspection, error) {
	if err := checkURL(rawURL); err != nil {
		return nil, err
	}
	lookup, err := loadKnowledgeBase(opts.Database)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cache, err := opts.cache()
	if err != nil {
		return nil, err
	}
	a, err := cache.Fetch(ctx, rawURL)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to fetch package"), "url", rawURL)
	}
	c, err := a.Control()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read control data"), "url", rawURL)
	}
	pkg, _ := c.Get(deb.FieldPackage)
	relations := deb.ParseRelations(c.Depends)
	return &Inspection{
		Artifact:     a,
		Control:      c,
		Relations:    relations,
		Layout:       scan.New(a.DataDir(), lookup).Scan(pkg, opts.Use),
		Dependencies: resolve.New(lookup).Resolve(relations, opts.Use),
	}, nil
}

// loadKnowledgeBase returns a nil Lookup, never a typed nil, when there is
// no usable knowledge base.
func loadKnowledgeBase(path string) (kb.Lookup, error) {
	if path == "" {
		return nil, nil
	}
	base, err := kb.Load(path)
	if err != nil {
		return nil, err
	}
	return base, nil
}

func checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return zerr.With(zerr.Wrap(ErrInvalidURL, "invalid package URL"), "url", rawURL)
	}
	return nil
}

// collectSources gathers the source variants of every configured input:
// URLs first, then GitHub release assets, then APT repository packages.
func collectSources(ctx context.Context, opts Options) ([]ebuild.Source, error) {
	var sources []ebuild.Source
	for _, u := range opts.URLs {
		expanded, err := expandURL(u, opts.Archs)
		if err != nil {
			return nil, err
		}
		sources = append(sources, expanded...)
	}

	if opts.GitHub != "" {
		repo, tag, err := github.ParseRepo(opts.GitHub)
		if err != nil {
			return nil, err
		}
		assets, err := github.FetchDebAssets(ctx, repo.Owner, repo.Name, tag, opts.GitHubToken)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to list release assets"), "repo", repo.String())
		}
		picked := github.Sources(assets, opts.Archs)
		if len(picked) == 0 {
			return nil, zerr.With(zerr.Wrap(ErrNoInput, "no matching .deb asset"), "repo", repo.String())
		}
		for _, a := range picked {
			sources = append(sources, ebuild.Source{Arch: a.Arch, URL: a.URL})
		}
	}

	if opts.AptPackage != "" {
		repo := opts.Apt
		if len(repo.Architectures) == 0 {
			repo.Architectures = opts.Archs
		}
		found, err := apt.FindPackage(ctx, repo, opts.AptPackage)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to find package"), "repo", repo.URL)
		}
		for _, arch := range aptArchs(found, opts.Archs) {
			sources = append(sources, ebuild.Source{Arch: arch, URL: found[arch].Filename})
		}
	}

	if len(sources) == 0 {
		return nil, ErrNoInput
	}
	for _, s := range sources {
		if err := checkURL(s.URL); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

// expandURL replaces ArchToken by every architecture. A URL without the token
// is a single source whose architecture comes from its control data.
func expandURL(rawURL string, archs []string) ([]ebuild.Source, error) {
	if !strings.Contains(rawURL, ArchToken) {
		return []ebuild.Source{{URL: rawURL}}, nil
	}
	if len(archs) == 0 {
		return nil, zerr.With(zerr.Wrap(ErrNoArchitecture, "cannot expand "+ArchToken), "url", rawURL)
	}
	sources := make([]ebuild.Source, 0, len(archs))
	for _, arch := range archs {
		sources = append(sources, ebuild.Source{
			Arch: arch,
			URL:  strings.ReplaceAll(rawURL, ArchToken, arch),
		})
	}
	return sources, nil
}

// aptArchs orders the architectures found in a repository: selected ones
// first in their order, then the rest sorted. Architecture independent
// packages are only used when nothing more specific exists.
func aptArchs(found map[string]*apt.Package, selected []string) []string {
	var archs []string
	for _, arch := range selected {
		if _, ok := found[arch]; ok {
			archs = append(archs, arch)
		}
	}
	var rest []string
	for arch := range found {
		if !slices.Contains(selected, arch) && arch != ebuild.ArchAll {
			rest = append(rest, arch)
		}
	}
	sort.Strings(rest)
	archs = append(archs, rest...)
	if len(archs) == 0 && found[ebuild.ArchAll] != nil {
		archs = []string{ebuild.ArchAll}
	}
	return archs
}

// uniqueArchs keeps the first source of every architecture. Sources without
// an architecture are kept. The artifacts follow their sources.
func uniqueArchs(sources []ebuild.Source, artifacts []*deb.Artifact) ([]ebuild.Source, []*deb.Artifact, []ebuild.Source) {
	seen := make(map[string]bool)
	var keptSources []ebuild.Source
	var keptArtifacts []*deb.Artifact
	var dropped []ebuild.Source
	for i, s := range sources {
		if s.Arch != "" {
			if seen[s.Arch] {
				dropped = append(dropped, s)
				continue
			}
			seen[s.Arch] = true
		}
		keptSources = append(keptSources, s)
		keptArtifacts = append(keptArtifacts, artifacts[i])
	}
	return keptSources, keptArtifacts, dropped
}

// buildManifest returns the Manifest and, when key is set, the public key
// able to verify its signature.
func buildManifest(r *ebuild.Recipe, artifacts []*deb.Artifact, key string) ([]output, error) {
	m := manifest.New()
	for i, s := range r.Sources {
		f, err := os.Open(artifacts[i].Path)
		if err != nil {
			return nil, err
		}
		_, err = m.AddDist(r.DistfileName(s), f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	if key == "" {
		return []output{{name: ManifestName, content: m.Bytes()}}, nil
	}
	signed, err := m.Signed(key)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to sign manifest")
	}
	pub, err := manifest.PublicKey(key)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to extract public key")
	}
	return []output{
		{name: ManifestName, content: signed, signed: true},
		{name: PublicKeyName, content: pub},
	}, nil
}

type output struct {
	name    string
	content []byte
	signed  bool
}

func (o output) write(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	p := filepath.Join(dir, o.name)
	if err := os.WriteFile(p, o.content, 0644); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to write file"), "path", p)
	}
	return p, nil
}
