// Package resolve maps Debian package relations onto Gentoo dependencies.
//
// Every Debian package name is looked up in the knowledge base, first in the
// direct dependencies table, then in the optional dependencies table which
// names a USE flag whose use-dependencies entry gives the Gentoo atom.
// OR-groups keep their resolvable members; a group left with a single member
// becomes a plain dependency.
package resolve

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/etnz/deb2ebuild/deb"
	"github.com/etnz/deb2ebuild/kb"
)

// Dependency is a Gentoo dependency, guarded by Flag when Flag is not empty.
type Dependency struct {
	Atom string
	Flag string
}

// String renders the dependency in ebuild syntax: "atom" or "flag? ( atom )".
func (d Dependency) String() string {
	if d.Flag == "" {
		return d.Atom
	}
	return fmt.Sprintf("%s? ( %s )", d.Flag, d.Atom)
}

// Result is the outcome of resolving the relations of one package.
type Result struct {
	// Plain are the unconditional atoms, sorted.
	Plain []string
	// Gated maps a USE flag to the atom it pulls in.
	Gated map[string]string
	// Groups are the alternatives with more than one usable member.
	// Members are sorted, and so are the groups.
	Groups [][]Dependency
	// Flags are the USE flags the dependencies need, sorted.
	Flags []string
	// Warnings name the Debian packages that could not be resolved.
	Warnings []string
}

// Len returns the number of resolved entries.
func (r *Result) Len() int {
	return len(r.Plain) + len(r.Gated) + len(r.Groups)
}

// Lines renders one RDEPEND entry per element: plain atoms first, then the
// gated atoms by flag name, then the OR-groups.
func (r *Result) Lines() []string {
	lines := slices.Clone(r.Plain)

	flags := make([]string, 0, len(r.Gated))
	for f := range r.Gated {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	for _, f := range flags {
		lines = append(lines, Dependency{Atom: r.Gated[f], Flag: f}.String())
	}

	for _, g := range r.Groups {
		var b strings.Builder
		b.WriteString("|| (")
		for _, d := range g {
			b.WriteString("\n\t\t")
			b.WriteString(d.String())
		}
		b.WriteString("\n\t)")
		lines = append(lines, b.String())
	}
	return lines
}

// String renders the RDEPEND block content, entries separated by a newline and a tab.
func (r *Result) String() string {
	return strings.Join(r.Lines(), "\n\t")
}

// Resolver resolves relations against a knowledge base.
// A Resolver holds no state between calls.
type Resolver struct {
	kb kb.Lookup
}

// New creates a Resolver. A nil lookup resolves nothing and warns about nothing.
func New(lookup kb.Lookup) *Resolver {
	return &Resolver{kb: lookup}
}

// Lookup resolves a single Debian package name.
func (r *Resolver) Lookup(name string) (Dependency, bool) {
	if r.kb == nil {
		return Dependency{}, false
	}
	if atom, ok := kb.Joined(r.kb, kb.Dependencies, name); ok {
		return Dependency{Atom: atom}, true
	}
	flag, ok := kb.First(r.kb, kb.DependenciesOptional, name)
	if !ok || flag == "" {
		return Dependency{}, false
	}
	atom, ok := kb.Joined(r.kb, kb.UseDependencies, flag)
	if !ok {
		return Dependency{}, false
	}
	return Dependency{Atom: atom, Flag: flag}, true
}

// Resolve resolves relations in order. preselected are USE flags requested
// independently of the relations; those having a use-dependencies entry are
// added as gated dependencies.
func (r *Resolver) Resolve(relations []deb.Relation, preselected []string) *Result {
	res := &Result{Gated: make(map[string]string)}
	if r.kb == nil {
		return res
	}

	plain := make(map[string]bool)
	flags := make(map[string]bool)
	groups := make(map[string][]Dependency)
	warned := make(map[string]bool)

	add := func(d Dependency) {
		if d.Flag == "" {
			plain[d.Atom] = true
			return
		}
		res.Gated[d.Flag] = d.Atom
		flags[d.Flag] = true
	}

	for _, rel := range relations {
		var usable []Dependency
		for _, name := range rel.Alternatives {
			d, ok := r.Lookup(name)
			if !ok {
				if !warned[name] {
					warned[name] = true
					res.Warnings = append(res.Warnings, fmt.Sprintf("Gentoo alternative dependency for %q not found in knowledge base.", name))
				}
				continue
			}
			if !slices.Contains(usable, d) {
				usable = append(usable, d)
			}
		}

		switch len(usable) {
		case 0:
		case 1:
			add(usable[0])
		default:
			sort.Slice(usable, func(i, j int) bool { return usable[i].String() < usable[j].String() })
			groups[groupKey(usable)] = usable
			for _, d := range usable {
				if d.Flag != "" {
					flags[d.Flag] = true
				}
			}
		}
	}

	for _, flag := range preselected {
		if atom, ok := kb.Joined(r.kb, kb.UseDependencies, flag); ok {
			res.Gated[flag] = atom
			flags[flag] = true
		}
	}

	res.Plain = slices.Sorted(maps.Keys(plain))
	res.Flags = slices.Sorted(maps.Keys(flags))
	for _, k := range slices.Sorted(maps.Keys(groups)) {
		res.Groups = append(res.Groups, groups[k])
	}
	return res
}

func groupKey(g []Dependency) string {
	parts := make([]string, len(g))
	for i, d := range g {
		parts[i] = d.String()
	}
	return strings.Join(parts, "\x00")
}
