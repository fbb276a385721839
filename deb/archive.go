package deb

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

var (
	// ErrControlNotFound is returned when a .deb has no control archive member.
	ErrControlNotFound = errors.New("control archive not found")
	// ErrUnsafePath is returned when an archive member would land outside the extraction directory.
	ErrUnsafePath = errors.New("unsafe path in archive")
)

// Extract unpacks the control and data archives of the .deb file at debPath
// into dest/control and dest/data.
//
// A sub-directory that already exists is trusted as a previous extraction and
// is not touched. Each archive is first unpacked into a sibling ".partial"
// directory and renamed once complete.
func Extract(debPath, dest string) error {
	targets := map[PackageFile]string{
		PkgControlTar: filepath.Join(dest, ControlDir),
		PkgDataTar:    filepath.Join(dest, DataDir),
	}
	pending := make(map[PackageFile]bool)
	for member, dir := range targets {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			pending[member] = true
		}
	}
	if len(pending) == 0 {
		return nil
	}

	f, err := os.Open(debPath)
	if err != nil {
		return err
	}
	defer f.Close()

	foundControl := !pending[PkgControlTar]
	arR := ar.NewReader(f)
	for {
		header, err := arR.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading ar header: %w", err)
		}

		name := strings.TrimSuffix(strings.TrimSpace(header.Name), "/")
		var member PackageFile
		switch {
		case strings.HasPrefix(name, string(PkgControlTar)):
			member = PkgControlTar
			foundControl = true
		case strings.HasPrefix(name, string(PkgDataTar)):
			member = PkgDataTar
		default:
			continue
		}
		if !pending[member] {
			continue
		}
		if err := extractMember(name, arR, targets[member]); err != nil {
			return fmt.Errorf("extracting %s: %w", name, err)
		}
		delete(pending, member)
	}

	if !foundControl {
		return fmt.Errorf("%s: %w", filepath.Base(debPath), ErrControlNotFound)
	}
	return nil
}

// extractMember decompresses one tar member of the ar container into dir.
func extractMember(name string, r io.Reader, dir string) error {
	tr, closer, err := decompress(name, r)
	if err != nil {
		return err
	}
	defer closer()

	partial := dir + ".partial"
	if err := os.RemoveAll(partial); err != nil {
		return err
	}
	if err := os.MkdirAll(partial, 0755); err != nil {
		return err
	}
	if err := untar(tr, partial); err != nil {
		return err
	}
	return os.Rename(partial, dir)
}

// decompress picks the decompressor matching the member name suffix.
// Supported: .gz, .xz, .zst, .bz2 and uncompressed tar.
func decompress(name string, r io.Reader) (io.Reader, func(), error) {
	noop := func() {}
	switch path.Ext(name) {
	case ".gz":
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gzr, func() { gzr.Close() }, nil
	case ".xz":
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xzr, noop, nil
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case ".bz2":
		return bzip2.NewReader(r), noop, nil
	case ".tar":
		return r, noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression %q", path.Ext(name))
	}
}

// untar writes the entries of a tar stream below dir.
// All writes go through an os.Root so that neither ".." nor symlinks can
// redirect them outside dir.
func untar(r io.Reader, dir string) error {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer root.Close()

	tr := tar.NewReader(r)
	for {
		th, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}

		name, err := memberPath(th.Name)
		if err != nil {
			return err
		}
		if name == "." {
			continue
		}
		if parent := path.Dir(name); parent != "." {
			if err := root.MkdirAll(parent, 0755); err != nil {
				return err
			}
		}

		switch th.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(root, name, tr, th.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			root.Remove(name)
			if err := root.Symlink(th.Linkname, name); err != nil {
				return err
			}
		case tar.TypeLink:
			target, err := memberPath(th.Linkname)
			if err != nil {
				return err
			}
			root.Remove(name)
			if err := root.Link(target, name); err != nil {
				return err
			}
		default:
			// Devices and fifos have no place in a package payload.
		}
	}
}

func writeFile(root *os.Root, name string, r io.Reader, perm fs.FileMode) error {
	f, err := root.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm|0200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// memberPath cleans a tar member name into a slash separated path relative
// to the extraction root ("./usr/bin/foo" gives "usr/bin/foo").
func memberPath(name string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(name, "/"))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return clean, nil
}
