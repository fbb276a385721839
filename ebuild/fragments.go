package ebuild

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/etnz/deb2ebuild/kb"
	"github.com/etnz/deb2ebuild/scan"
)

// edVar is the only expansion allowed in command arguments, as a prefix.
const edVar = "${ED}"

// fragment accumulates shell lines. Every mutating command is followed by
// `|| die "<cmd> failed"`. Arguments are double quoted and escaped, options
// are not.
type fragment struct {
	strings.Builder
}

func (f *fragment) cmd(indent int, name string, args ...string) {
	f.WriteString(strings.Repeat("\t", indent))
	f.WriteString(name)
	for _, a := range args {
		switch {
		case a == "." || strings.HasPrefix(a, "-"):
			f.WriteString(" " + a)
		case strings.HasPrefix(a, edVar):
			f.WriteString(` "` + edVar + shellQuote(strings.TrimPrefix(a, edVar)) + `"`)
		default:
			f.WriteString(` "` + shellQuote(a) + `"`)
		}
	}
	verb, _, _ := strings.Cut(name, " ")
	fmt.Fprintf(f, " || die %q\n", verb+" failed")
}

// prepareFragment builds the src_prepare body run after "default".
func prepareFragment(l *scan.Layout, flags []string) string {
	var f fragment

	if len(l.DocArchives) > 0 && slices.Contains(flags, scan.DocFlag) {
		f.WriteString("\n\tif use " + scan.DocFlag + " ; then\n")
		for _, a := range l.DocArchives {
			dir, file := path.Split(a)
			f.cmd(2, "unpack", "./"+a)
			f.cmd(2, "rm", "-f", a)
			f.cmd(2, "mv", strings.TrimSuffix(file, path.Ext(file)), strings.TrimSuffix(dir, "/"))
		}
		f.WriteString("\tfi\n")
	}

	for _, flag := range slices.Sorted(maps.Keys(l.Unnecessary)) {
		f.WriteString("\n\tif use " + flag + " ; then\n")
		for _, p := range l.Unnecessary[flag] {
			opt := "-f"
			if l.Dirs[p] {
				opt = "-fr"
			}
			f.cmd(2, "rm", opt, p)
		}
		f.WriteString("\tfi\n")
	}

	if len(l.Moves) > 0 || len(l.Removals) > 0 {
		f.WriteString("\n")
		for _, m := range l.Moves {
			f.cmd(1, "mv", m.From, m.To)
		}
		for _, p := range l.Removals {
			f.cmd(1, "rm", "-fr", p)
		}
	}
	return f.String()
}

// installFragment builds the src_install body.
func installFragment(l *scan.Layout, pkg string, lookup kb.Lookup) string {
	var f fragment
	f.cmd(1, "cp", "-a", ".", edVar)

	if l.DocDir != "" {
		f.WriteString("\n")
		f.cmd(1, "rm", "-r", edVar+"/"+l.DocDir)
		f.WriteString("\n\tif use " + scan.DocFlag + " ; then\n")
		f.WriteString("\t\tdodoc -r \"" + shellQuote(l.DocDir) + "/\"* || die \"dodoc failed\"\n")
		f.WriteString("\tfi\n")
	}

	for _, flag := range slices.Sorted(maps.Keys(l.Unnecessary)) {
		target, ok := kb.First(lookup, kb.UseSymlinks, flag)
		if !ok || target == "" {
			continue
		}
		f.WriteString("\n\tif use " + flag + " ; then\n")
		for _, p := range l.Unnecessary[flag] {
			f.cmd(2, "dosym", target, "/"+p)
		}
		f.WriteString("\tfi\n")
	}

	if l.NativeBinary == "" && len(l.RunFiles) > 0 {
		f.WriteString("\n")
		f.cmd(1, "dosym", "/"+l.RunFiles[0], "/usr/bin/"+pkg)
	}
	return strings.TrimSuffix(f.String(), "\n")
}
