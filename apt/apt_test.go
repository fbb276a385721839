package apt

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const packagesIndex = `Package: test-pkg
Version: 1.0.0-1
Architecture: amd64
Filename: pool/main/t/test-pkg/test-pkg_1.0.0-1_amd64.deb
Size: 1234
SHA256: aaaa
Description: first
 more text

Package: test-pkg
Version: 1.10.0-1
Architecture: amd64
Filename: pool/main/t/test-pkg/test-pkg_1.10.0-1_amd64.deb
Size: 2345

Package: test-pkg
Version: 1:0.9-1
Architecture: i386
Filename: https://mirror.example/test-pkg_0.9-1_i386.deb

Package: other
Version: 9.9
Architecture: amd64
Filename: pool/main/o/other/other_9.9_amd64.deb
`

func gzipped(t *testing.T, s string) []byte {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	gw.Close()
	return buf.Bytes()
}

func TestPackageIndex_Add(t *testing.T) {
	idx := NewPackageIndex()
	p := &Package{Name: "test-pkg", Version: "1.0.0", Architecture: "amd64", Filename: "a.deb"}

	if err := idx.Add(p); err != nil {
		t.Errorf("Add failed: %v", err)
	}
	if err := idx.Add(&Package{Name: "test-pkg", Version: "1.0.0", Architecture: "amd64", Filename: "a.deb"}); err != nil {
		t.Errorf("Adding the same entry again should be ignored: %v", err)
	}
	if err := idx.Add(&Package{Name: "test-pkg", Version: "1.0.0", Architecture: "amd64", Filename: "b.deb"}); err == nil {
		t.Error("Expected error for duplicate package, got nil")
	}
	if err := idx.Add(&Package{}); err != nil {
		t.Errorf("Nameless packages should be ignored: %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("Expected 1 package, got %d", idx.Len())
	}
}

func TestProcessPackages(t *testing.T) {
	idx := NewPackageIndex()
	if err := processPackages(strings.NewReader(packagesIndex), "http://repo/", idx); err != nil {
		t.Fatalf("processPackages failed: %v", err)
	}
	if idx.Len() != 4 {
		t.Fatalf("Expected 4 packages, got %d", idx.Len())
	}

	p := idx.packages["test-pkg|1.0.0-1|amd64"]
	if p == nil {
		t.Fatal("test-pkg 1.0.0-1 not indexed")
	}
	if p.Filename != "http://repo/pool/main/t/test-pkg/test-pkg_1.0.0-1_amd64.deb" {
		t.Errorf("Relative filename not rewritten: %s", p.Filename)
	}
	if p.Size != 1234 || p.SHA256 != "aaaa" {
		t.Errorf("Unexpected size/hash: %d %s", p.Size, p.SHA256)
	}
	if p := idx.packages["test-pkg|1:0.9-1|i386"]; p == nil || p.Filename != "https://mirror.example/test-pkg_0.9-1_i386.deb" {
		t.Errorf("Absolute filename should be kept: %+v", p)
	}
}

func TestNewest(t *testing.T) {
	idx := NewPackageIndex()
	if err := processPackages(strings.NewReader(packagesIndex), "http://repo/", idx); err != nil {
		t.Fatal(err)
	}

	newest := idx.Newest("test-pkg")
	if len(newest) != 2 {
		t.Fatalf("Expected 2 architectures, got %d", len(newest))
	}
	if v := newest["amd64"].Version; v != "1.10.0-1" {
		t.Errorf("Expected 1.10.0-1 (Debian ordering), got %s", v)
	}
	if v := newest["i386"].Version; v != "1:0.9-1" {
		t.Errorf("Expected 1:0.9-1, got %s", v)
	}
	if len(idx.Newest("missing")) != 0 {
		t.Error("Expected nothing for an unknown package")
	}
}

func TestFindPackage_Flat(t *testing.T) {
	// Only the uncompressed index exists.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/Packages" {
			w.Write([]byte(packagesIndex))
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	found, err := FindPackage(context.Background(), RepoConfig{URL: ts.URL}, "other")
	if err != nil {
		t.Fatalf("FindPackage failed: %v", err)
	}
	p := found["amd64"]
	if p == nil || p.Filename != ts.URL+"/pool/main/o/other/other_9.9_amd64.deb" {
		t.Errorf("Unexpected package: %+v", p)
	}

	if _, err := FindPackage(context.Background(), RepoConfig{URL: ts.URL}, "missing"); err == nil {
		t.Error("Expected an error for a missing package")
	}
}

func TestFindPackage_Hierarchical(t *testing.T) {
	amd64 := gzipped(t, "Package: tool\nVersion: 2.0\nArchitecture: amd64\nFilename: pool/t/tool_2.0_amd64.deb\n\n"+
		"Package: tool-data\nVersion: 2.0\nArchitecture: all\nFilename: pool/t/tool-data_2.0_all.deb\n")
	arm64 := gzipped(t, "Package: tool\nVersion: 1.5\nArchitecture: arm64\nFilename: pool/t/tool_1.5_arm64.deb\n\n"+
		"Package: tool-data\nVersion: 2.0\nArchitecture: all\nFilename: pool/t/tool-data_2.0_all.deb\n")

	var (
		mu        sync.Mutex
		requested []string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/dists/stable/main/binary-amd64/Packages.gz":
			w.Write(amd64)
		case "/dists/stable/main/binary-arm64/Packages.gz":
			w.Write(arm64)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	repo := RepoConfig{URL: ts.URL, Suite: "stable", Architectures: []string{"amd64", "arm64"}}
	found, err := FindPackage(context.Background(), repo, "tool")
	if err != nil {
		t.Fatalf("FindPackage failed: %v", err)
	}
	if found["amd64"] == nil || found["amd64"].Version != "2.0" {
		t.Errorf("Unexpected amd64 package: %+v", found["amd64"])
	}
	if found["arm64"] == nil || found["arm64"].Filename != ts.URL+"/pool/t/tool_1.5_arm64.deb" {
		t.Errorf("Unexpected arm64 package: %+v", found["arm64"])
	}

	data, err := FindPackage(context.Background(), repo, "tool-data")
	if err != nil {
		t.Fatalf("FindPackage failed: %v", err)
	}
	if len(data) != 1 || data["all"] == nil {
		t.Errorf("Expected a single architecture independent package, got %+v", data)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(requested) != 4 {
		t.Errorf("Expected compressed indexes only, got %v", requested)
	}
}

func TestFetchPackageIndexFrom_NoArchitectures(t *testing.T) {
	_, err := FetchPackageIndexFrom(context.Background(), RepoConfig{URL: "http://repo", Suite: "stable"})
	if err == nil || !strings.Contains(err.Error(), "architectures required") {
		t.Errorf("Expected architectures error, got %v", err)
	}
}
