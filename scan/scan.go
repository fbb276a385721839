// Package scan inspects the extracted payload of a package to find what the
// generated ebuild has to take care of: desktop launchers, documentation,
// files made redundant by USE flags, deprecated paths and executables.
//
// Every path returned by a Scanner is relative to the payload root and uses
// forward slashes.
package scan

import (
	"bufio"
	"io/fs"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/etnz/deb2ebuild/kb"
)

const (
	// DocFlag is the USE flag guarding documentation.
	DocFlag = "doc"

	desktopPattern    = "**/*.desktop"
	docPattern        = "usr/share/doc/*"
	docArchivePattern = "**/*.gz"
	binDir            = "usr/bin"
)

// Move relocates a deprecated path of the payload.
type Move struct {
	From string
	To   string
}

// Layout is everything a Scanner found in a payload.
type Layout struct {
	DesktopFiles []string
	// DocDir is the documentation directory, empty when there is none.
	DocDir      string
	DocArchives []string
	// Unnecessary maps a USE flag to the payload paths that flag makes redundant.
	Unnecessary map[string][]string
	// Dirs tells which of the unnecessary paths are directories.
	Dirs map[string]bool
	// Flags are the USE flags the payload itself calls for, sorted.
	Flags    []string
	Moves    []Move
	Removals []string
	// RunFiles are the candidate executables, in discovery order.
	RunFiles []string
	// NativeBinary is the candidate installed under usr/bin, if any.
	NativeBinary string
	Warnings     []string
}

// Scanner looks for files below a payload root.
type Scanner struct {
	fsys fs.FS
	kb   kb.Lookup
}

// New creates a Scanner for the payload extracted at root. lookup may be nil.
func New(root string, lookup kb.Lookup) *Scanner {
	return &Scanner{
		fsys: os.DirFS(root),
		kb:   lookup,
	}
}

// Scan runs every finder and gathers the results.
// requested are the USE flags asked for by the operator; only those are
// checked for unnecessary files.
func (s *Scanner) Scan(pkg string, requested []string) *Layout {
	l := &Layout{}

	l.DesktopFiles = s.DesktopFiles()
	if len(l.DesktopFiles) == 0 {
		l.Warnings = append(l.Warnings, "No desktop files found.")
	}

	var flags []string
	if doc, ok := s.DocDirectory(); ok {
		l.DocDir = doc
		l.DocArchives = s.DocArchives(doc)
		flags = append(flags, DocFlag)
	}

	var active []string
	l.Unnecessary, active = s.UnnecessaryFiles(requested)
	flags = append(flags, active...)
	l.Dirs = make(map[string]bool)
	for _, paths := range l.Unnecessary {
		for _, p := range paths {
			if s.isDir(p) {
				l.Dirs[p] = true
			}
		}
	}
	sort.Strings(flags)
	l.Flags = slices.Compact(flags)

	l.Moves, l.Removals = s.DeprecatedFixes()

	l.RunFiles, l.NativeBinary = s.PotentialRunFiles(pkg, l.DesktopFiles)
	if len(l.RunFiles) == 0 {
		l.Warnings = append(l.Warnings, "No executable files found.")
	}
	return l
}

// DesktopFiles returns every *.desktop file of the payload, sorted.
func (s *Scanner) DesktopFiles() []string {
	return s.glob(desktopPattern, doublestar.WithFilesOnly())
}

// DocDirectory returns the first directory matching usr/share/doc/*.
func (s *Scanner) DocDirectory() (string, bool) {
	for _, m := range s.glob(docPattern) {
		if s.isDir(m) {
			return m, true
		}
	}
	return "", false
}

// DocArchives returns the gzip files found anywhere below docDir.
func (s *Scanner) DocArchives(docDir string) []string {
	if docDir == "" {
		return nil
	}
	return s.glob(escapeMeta(docDir)+"/"+docArchivePattern, doublestar.WithFilesOnly())
}

// UnnecessaryFiles matches, for each requested flag, the unnecessary-files
// patterns of the knowledge base anywhere in the payload. Matches nested in
// another match are dropped since removing the parent covers them.
// It returns the matches per flag and the sorted flags that matched anything.
func (s *Scanner) UnnecessaryFiles(requested []string) (map[string][]string, []string) {
	found := make(map[string][]string)
	var active []string

	if s.kb == nil {
		return found, nil
	}
	flags := slices.Clone(requested)
	sort.Strings(flags)
	for _, flag := range slices.Compact(flags) {
		patterns, ok := s.kb.Lookup(kb.UnnecessaryFiles, flag)
		if !ok {
			continue
		}
		var matches []string
		for _, p := range patterns {
			p = strings.TrimPrefix(p, "/")
			if p == "" {
				continue
			}
			matches = append(matches, s.glob("**/"+p)...)
		}
		if matches = DedupeContained(matches); len(matches) > 0 {
			found[flag] = matches
			active = append(active, flag)
		}
	}
	return found, active
}

// DeprecatedFixes checks the deprecated-movable and deprecated-removable
// tables against the payload. Keys may be literal paths or glob patterns.
// Moves are sorted by source then destination, removals are sorted.
func (s *Scanner) DeprecatedFixes() ([]Move, []string) {
	var moves []Move
	for _, key := range kb.Keys(s.kb, kb.DeprecatedMovable) {
		dest, ok := kb.First(s.kb, kb.DeprecatedMovable, key)
		if !ok || dest == "" {
			continue
		}
		for _, m := range s.glob(strings.TrimPrefix(key, "/")) {
			moves = append(moves, Move{From: m, To: strings.TrimPrefix(dest, "/")})
		}
	}
	sort.Slice(moves, func(i, j int) bool {
		if moves[i].From != moves[j].From {
			return moves[i].From < moves[j].From
		}
		return moves[i].To < moves[j].To
	})

	var removals []string
	for _, key := range kb.Keys(s.kb, kb.DeprecatedRemovable) {
		removals = append(removals, s.glob(strings.TrimPrefix(key, "/"))...)
	}
	sort.Strings(removals)
	return moves, slices.Compact(removals)
}

// PotentialRunFiles guesses the executables of the package.
//
// The Exec= lines of the desktop files come first; only commands given with a
// path are kept. Without any, files named after the package (as is, capitalized,
// and both again without a "-desktop" suffix) are searched in the payload.
// The second result is the first candidate installed under usr/bin.
func (s *Scanner) PotentialRunFiles(pkg string, desktops []string) ([]string, string) {
	var candidates []string
	add := func(p string) {
		if p != "" && !slices.Contains(candidates, p) {
			candidates = append(candidates, p)
		}
	}

	for _, d := range desktops {
		for _, cmd := range s.execCommands(d) {
			if strings.Contains(cmd, "/") {
				add(strings.TrimPrefix(cmd, "/"))
			}
		}
	}

	if len(candidates) == 0 && pkg != "" {
		base := strings.TrimSuffix(pkg, "-desktop")
		for _, name := range []string{pkg, capitalize(pkg), base, capitalize(base)} {
			for _, m := range s.glob("**/"+escapeMeta(name), doublestar.WithFilesOnly()) {
				add(m)
			}
		}
	}

	var native string
	for _, c := range candidates {
		if inBinDir(c) {
			native = c
			break
		}
	}
	return candidates, native
}

// execCommands returns the program of every Exec= entry of a desktop file.
func (s *Scanner) execCommands(desktop string) []string {
	f, err := s.fsys.Open(desktop)
	if err != nil {
		return nil
	}
	defer f.Close()

	var cmds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		value, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "Exec=")
		if !ok {
			continue
		}
		if cmd := firstToken(value); cmd != "" {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// firstToken returns the program part of an Exec value, honoring double quotes.
func firstToken(value string) string {
	value = strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(value, `"`); ok {
		if end := strings.Index(rest, `"`); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	if fields := strings.Fields(value); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// DedupeContained sorts paths, drops duplicates and drops every path that
// lives below another path of the list.
// ["usr/share/foo", "usr/share/foo/bar.gz"] gives ["usr/share/foo"].
func DedupeContained(paths []string) []string {
	sorted := slices.Clone(paths)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)

	var kept []string
	for _, p := range sorted {
		nested := false
		for _, parent := range kept {
			if strings.HasPrefix(p, strings.TrimSuffix(parent, "/")+"/") {
				nested = true
				break
			}
		}
		if !nested {
			kept = append(kept, p)
		}
	}
	return kept
}

func (s *Scanner) glob(pattern string, opts ...doublestar.GlobOption) []string {
	matches, err := doublestar.Glob(s.fsys, pattern, opts...)
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

func (s *Scanner) isDir(p string) bool {
	info, err := fs.Stat(s.fsys, p)
	return err == nil && info.IsDir()
}

func inBinDir(p string) bool {
	return strings.HasPrefix(p, binDir+"/") || strings.Contains(p, "/"+binDir+"/")
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\*?[]{}`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
