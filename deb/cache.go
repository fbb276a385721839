package deb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Cache stores downloaded .deb files and their extracted content in a directory.
//
// Layout, for a download named foo_1.0_amd64.deb:
//
//	<Dir>/foo_1.0_amd64.deb          raw download
//	<Dir>/foo_1-0_amd64-deb/control  extracted control archive
//	<Dir>/foo_1-0_amd64-deb/data     extracted data archive
//
// Entries are never verified: whatever is present is reused as is.
type Cache struct {
	Dir    string
	Client *http.Client
	Logger *slog.Logger
}

// Artifact is a .deb held in a Cache.
type Artifact struct {
	URL      string
	Filename string
	// Path is the location of the raw .deb file.
	Path string
	// Root is the extraction directory holding the control and data trees.
	Root string
}

// ControlDir returns the directory holding the extracted control archive.
func (a *Artifact) ControlDir() string { return filepath.Join(a.Root, ControlDir) }

// DataDir returns the directory holding the extracted package payload.
func (a *Artifact) DataDir() string { return filepath.Join(a.Root, DataDir) }

// Control reads and parses the extracted control file.
func (a *Artifact) Control() (*Control, error) {
	content, err := os.ReadFile(filepath.Join(a.ControlDir(), string(FileControl)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", a.Filename, ErrControlNotFound)
	}
	if err != nil {
		return nil, err
	}
	return ParseControl(string(content)), nil
}

// Artifact computes where the .deb behind rawURL lives in the cache.
// It does not touch the filesystem.
func (c *Cache) Artifact(rawURL string) (*Artifact, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return nil, fmt.Errorf("no file name in %s", rawURL)
	}
	return &Artifact{
		URL:      rawURL,
		Filename: name,
		Path:     filepath.Join(c.Dir, name),
		Root:     filepath.Join(c.Dir, strings.ReplaceAll(name, ".", "-")),
	}, nil
}

// Fetch makes sure the .deb behind rawURL is downloaded and extracted in the cache.
// Both steps are skipped when their result is already present.
func (c *Cache) Fetch(ctx context.Context, rawURL string) (*Artifact, error) {
	a, err := c.Artifact(rawURL)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return nil, err
	}

	if exists(a.ControlDir()) && exists(a.DataDir()) {
		c.logger().InfoContext(ctx, "already extracted in cache", "file", a.Filename, "dir", a.Root)
		return a, nil
	}

	if exists(a.Path) {
		c.logger().InfoContext(ctx, "already downloaded in cache", "file", a.Filename)
	} else {
		c.logger().InfoContext(ctx, "downloading", "url", rawURL)
		if err := c.Download(ctx, rawURL, a.Path); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.logger().InfoContext(ctx, "extracting", "file", a.Filename, "dir", a.Root)
	if err := Extract(a.Path, a.Root); err != nil {
		return nil, err
	}
	return a, nil
}

// Download fetches rawURL into dest. The body is written to a temporary
// file first so that an interrupted download never looks complete.
func (c *Cache) Download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch %s: status %d", rawURL, resp.StatusCode)
	}

	tmp := dest + ".download"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

func (c *Cache) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *Cache) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
