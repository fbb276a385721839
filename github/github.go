// Package github discovers .deb packages published as GitHub release assets.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

// Repo defines a GitHub repository to harvest packages from.
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string { return r.Owner + "/" + r.Name }

// ParseRepo parses "owner/repo" or "owner/repo@tag". The tag is empty when
// not given.
func ParseRepo(s string) (Repo, string, error) {
	slug, tag, _ := strings.Cut(strings.TrimSpace(s), "@")
	owner, name, ok := strings.Cut(slug, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, "", fmt.Errorf("invalid repo slug %q, expected owner/repo[@tag]", s)
	}
	return Repo{Owner: owner, Name: name}, tag, nil
}

type release struct {
	ID      int64   `json:"id"`
	TagName string  `json:"tag_name"`
	Assets  []asset `json:"assets"`
}

type asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Asset is a .deb file attached to a release.
type Asset struct {
	Name string
	URL  string
	// Arch is the Debian architecture guessed from the file name, empty when unknown.
	Arch string
	Tag  string
}

// fetchRelease gets the release with the given tag, or the latest release
// when tag is empty.
func fetchRelease(ctx context.Context, owner, repo, tag, token string) (*release, error) {
	u := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/latest", owner, repo)
	if tag != "" {
		u = fmt.Sprintf("https://api.github.com/repos/%s/%s/releases/tags/%s", owner, repo, url.PathEscape(tag))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		if tag == "" {
			return nil, fmt.Errorf("no release found in %s/%s", owner, repo)
		}
		return nil, fmt.Errorf("release not found: %s", tag)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API status %d", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}
	return &rel, nil
}

// FetchDebAssets lists the assets ending in ".deb" of a release of the
// repository, the latest one when tag is empty.
func FetchDebAssets(ctx context.Context, owner, repo, tag, token string) ([]Asset, error) {
	rel, err := fetchRelease(ctx, owner, repo, tag, token)
	if err != nil {
		return nil, err
	}
	var assets []Asset
	for _, a := range rel.Assets {
		if !strings.HasSuffix(a.Name, ".deb") {
			continue
		}
		assets = append(assets, Asset{
			Name: a.Name,
			URL:  a.BrowserDownloadURL,
			Arch: ArchOf(a.Name),
			Tag:  rel.TagName,
		})
	}
	return assets, nil
}

// archAliases maps the architecture spellings found in release file names
// onto Debian architecture names.
var archAliases = map[string]string{
	"x86_64":  "amd64",
	"x64":     "amd64",
	"aarch64": "arm64",
	"armv7":   "armhf",
	"armv7l":  "armhf",
	"i386":    "i386",
	"i686":    "i686",
	"amd64":   "amd64",
	"arm64":   "arm64",
	"armhf":   "armhf",
	"armel":   "armel",
	"ppc64el": "ppc64el",
	"riscv64": "riscv64",
	"all":     "all",
}

var archSeparators = regexp.MustCompile(`[_.-]`)

// ArchOf guesses the Debian architecture of a .deb from its file name:
// "foo_1.0_amd64.deb" and "foo-1.0-linux-x86_64.deb" both give "amd64".
func ArchOf(name string) string {
	base := strings.TrimSuffix(name, ".deb")
	if strings.HasSuffix(base, "x86_64") {
		return "amd64"
	}
	tokens := archSeparators.Split(base, -1)
	for i := len(tokens) - 1; i >= 0; i-- {
		if arch, ok := archAliases[strings.ToLower(tokens[i])]; ok {
			return arch
		}
	}
	return ""
}

// Sources picks one asset per requested architecture, in the order of archs.
// With no architecture requested every asset of a known architecture is kept,
// the first one per architecture.
func Sources(assets []Asset, archs []string) []Asset {
	var picked []Asset
	seen := make(map[string]bool)
	for _, a := range assets {
		if a.Arch == "" || seen[a.Arch] {
			continue
		}
		if len(archs) > 0 && !slices.Contains(archs, a.Arch) {
			continue
		}
		seen[a.Arch] = true
		picked = append(picked, a)
	}
	if len(archs) > 0 {
		slices.SortStableFunc(picked, func(x, y Asset) int {
			return slices.Index(archs, x.Arch) - slices.Index(archs, y.Arch)
		})
	}
	return picked
}
