// Package manifest writes Gentoo Manifest files.
//
// A Manifest lists the distfiles of a package with their size and digests so
// that Portage can verify downloads:
//
//	DIST foo-1.0.deb 1234 BLAKE2B <hex> SHA512 <hex>
//
// Reference: https://www.gentoo.org/glep/glep-0074.html
package manifest

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// EntryType is the tag starting a Manifest line.
type EntryType string

const (
	TypeDist EntryType = "DIST"
)

// Entry is one line of a Manifest.
type Entry struct {
	Type    EntryType
	Name    string
	Size    int64
	BLAKE2B string
	SHA512  string
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %d BLAKE2B %s SHA512 %s", e.Type, e.Name, e.Size, e.BLAKE2B, e.SHA512)
}

// Manifest is a set of entries, keyed by type and name.
type Manifest struct {
	entries map[string]Entry
}

// New creates an empty Manifest.
func New() *Manifest {
	return &Manifest{entries: make(map[string]Entry)}
}

// AddDist hashes the content of r and records it as the distfile name.
// An existing entry with the same name is replaced.
func (m *Manifest) AddDist(name string, r io.Reader) (Entry, error) {
	if name == "" || strings.ContainsAny(name, " \t\n/") {
		return Entry{}, fmt.Errorf("invalid distfile name %q", name)
	}
	b2, err := blake2b.New512(nil)
	if err != nil {
		return Entry{}, err
	}
	s512 := sha512.New()
	n, err := io.Copy(io.MultiWriter(b2, s512), r)
	if err != nil {
		return Entry{}, fmt.Errorf("hashing %s: %w", name, err)
	}
	e := Entry{
		Type:    TypeDist,
		Name:    name,
		Size:    n,
		BLAKE2B: hex.EncodeToString(b2.Sum(nil)),
		SHA512:  hex.EncodeToString(s512.Sum(nil)),
	}
	m.entries[string(e.Type)+" "+e.Name] = e
	return e, nil
}

// Entries returns the entries sorted by type then name.
func (m *Manifest) Entries() []Entry {
	entries := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type < entries[j].Type
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Bytes renders the Manifest file content.
func (m *Manifest) Bytes() []byte {
	var b bytes.Buffer
	for _, e := range m.Entries() {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// Signed renders the Manifest clearsigned with the ASCII-armored private key.
func (m *Manifest) Signed(key string) ([]byte, error) {
	return Sign(m.Bytes(), key)
}
