// Package apt finds packages in remote APT repositories.
package apt

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/etnz/deb2ebuild/deb"
)

// RepoConfig defines a source APT repository to harvest packages from.
// It supports both:
// 1. Flat Repositories: Just a URL (Suite is empty).
// 2. Standard Repositories: URL + Suite + Component + Architectures (e.g., deb http://archive.ubuntu.com/ubuntu focal main).
type RepoConfig struct {
	URL           string
	Suite         string
	Component     string
	Architectures []string
}

// Package represents the index entry of a single .deb package version.
type Package struct {
	Name         string
	Version      string
	Architecture string

	// Filename is the absolute URL of the .deb file.
	Filename string
	Size     int64
	SHA256   string
}

// PackageIndex is an in-memory database of packages.
// It enforces uniqueness based on "Name|Version|Architecture".
type PackageIndex struct {
	packages map[string]*Package // Key: Name|Version|Architecture
}

func NewPackageIndex() *PackageIndex {
	return &PackageIndex{packages: make(map[string]*Package)}
}

// Add inserts a package into the index. Packages without a name are ignored,
// and so are repeated entries pointing at the same file: architecture
// independent packages show up in the index of every architecture.
// It returns an error if another package with the same Name, Version, and Architecture already exists.
func (idx *PackageIndex) Add(p *Package) error {
	if p.Name == "" {
		return nil
	}
	id := fmt.Sprintf("%s|%s|%s", p.Name, p.Version, p.Architecture)
	if existing, exists := idx.packages[id]; exists {
		if existing.Filename == p.Filename {
			return nil
		}
		return fmt.Errorf("duplicate package: %s", id)
	}
	idx.packages[id] = p
	return nil
}

// Len returns the number of packages in the index.
func (idx *PackageIndex) Len() int { return len(idx.packages) }

// Newest returns, per architecture, the highest version of the named package
// according to Debian version ordering.
func (idx *PackageIndex) Newest(name string) map[string]*Package {
	newest := make(map[string]*Package)
	for _, p := range idx.packages {
		if p.Name != name {
			continue
		}
		if cur, ok := newest[p.Architecture]; !ok || deb.CompareVersions(p.Version, cur.Version) > 0 {
			newest[p.Architecture] = p
		}
	}
	return newest
}

// indexURLs returns the candidate locations of the Packages index, per
// architecture ("" for flat repositories), compressed one first.
func (r RepoConfig) indexURLs() (string, map[string][]string, error) {
	baseURL := r.URL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	urls := make(map[string][]string)
	if r.Suite == "" {
		// Flat repository
		urls[""] = []string{baseURL + "Packages.gz", baseURL + "Packages"}
		return baseURL, urls, nil
	}
	// Hierarchical repository
	if len(r.Architectures) == 0 {
		return "", nil, fmt.Errorf("architectures required for suite %s", r.Suite)
	}
	component := r.Component
	if component == "" {
		component = "main"
	}
	for _, arch := range r.Architectures {
		// Standard layout: dists/<suite>/<component>/binary-<arch>/Packages.gz
		dir := fmt.Sprintf("%sdists/%s/%s/binary-%s/", baseURL, r.Suite, component, arch)
		urls[arch] = []string{dir + "Packages.gz", dir + "Packages"}
	}
	return baseURL, urls, nil
}

// errNotFound is returned by fetchPackages when the index does not exist.
var errNotFound = errors.New("index not found")

// FetchPackageIndexFrom downloads and parses the 'Packages' index from a remote APT repository.
// It handles the logic for constructing URLs for both flat and hierarchical repository layouts.
// An index that cannot be read is logged and skipped.
func FetchPackageIndexFrom(ctx context.Context, r RepoConfig) (*PackageIndex, error) {
	baseURL, urls, err := r.indexURLs()
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "harvesting", "repo", r.URL, "suite", r.Suite)

	archs := make([]string, 0, len(urls))
	for arch := range urls {
		archs = append(archs, arch)
	}
	sort.Strings(archs)

	idx := NewPackageIndex()
	for _, arch := range archs {
		for _, u := range urls[arch] {
			err := fetchPackages(ctx, u, baseURL, idx)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, errNotFound) {
				slog.WarnContext(ctx, "failed to process index", "url", u, "error", err)
				break
			}
		}
	}
	return idx, nil
}

// FindPackage looks for the named package in the repository and returns its
// newest version per architecture.
func FindPackage(ctx context.Context, r RepoConfig, name string) (map[string]*Package, error) {
	idx, err := FetchPackageIndexFrom(ctx, r)
	if err != nil {
		return nil, err
	}
	newest := idx.Newest(name)
	if len(newest) == 0 {
		return nil, fmt.Errorf("package %q not found in %s", name, r.URL)
	}
	return newest, nil
}

func fetchPackages(ctx context.Context, url, baseURL string, idx *PackageIndex) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var r io.Reader = resp.Body
	if strings.HasSuffix(url, ".gz") {
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return err
		}
		defer gzr.Close()
		r = gzr
	}
	return processPackages(r, baseURL, idx)
}

// processPackages parses a 'Packages' text file.
// It extracts stanzas, rewrites relative filenames to absolute URLs,
// and adds them to the index.
func processPackages(r io.Reader, baseURL string, idx *PackageIndex) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer for long lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var currentStanza strings.Builder
	flush := func() error {
		if currentStanza.Len() == 0 {
			return nil
		}
		p := parseStanza(currentStanza.String())
		currentStanza.Reset()
		if p.Filename != "" && !strings.HasPrefix(p.Filename, "http://") && !strings.HasPrefix(p.Filename, "https://") {
			p.Filename = baseURL + strings.TrimPrefix(p.Filename, "./")
		}
		return idx.Add(p)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return err
			}
			continue
		}
		currentStanza.WriteString(line + "\n")
	}
	if err := flush(); err != nil {
		return err
	}
	return scanner.Err()
}

func parseStanza(stanza string) *Package {
	c := deb.ParseControl(stanza)
	p := &Package{
		Name:         c.Fields[string(deb.FieldPackage)],
		Version:      c.Fields[string(deb.FieldVersion)],
		Architecture: c.Fields[string(deb.FieldArchitecture)],
		Filename:     c.Fields["Filename"],
		SHA256:       c.Fields["SHA256"],
	}
	p.Size, _ = strconv.ParseInt(c.Fields["Size"], 10, 64)
	return p
}
