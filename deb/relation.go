package deb

import (
	"regexp"
	"strings"

	"pault.ag/go/debian/dependency"
)

// Relation is one comma separated item of a relationship field: a single
// package, or an OR-group of alternatives when it lists more than one name.
// Version constraints and architecture qualifiers are not kept.
type Relation struct {
	Alternatives []string
}

// IsGroup reports whether the relation offers alternatives.
func (r Relation) IsGroup() bool {
	return len(r.Alternatives) > 1
}

func (r Relation) String() string {
	return strings.Join(r.Alternatives, " | ")
}

var (
	versionConstraint = regexp.MustCompile(`\s*\(.*?\)`)
	archRestriction   = regexp.MustCompile(`\s*\[.*?\]`)
	profileRestrict   = regexp.MustCompile(`\s*<.*?>`)
)

// ParseRelations turns relationship items (as found in Control.Depends) into
// relations, in input order. Alternatives keep their input order too.
// Items without any usable package name are skipped.
func ParseRelations(items []string) []Relation {
	var rels []Relation
	for _, item := range items {
		if r, ok := parseRelation(item); ok {
			rels = append(rels, r)
		}
	}
	return rels
}

func parseRelation(item string) (Relation, bool) {
	var r Relation
	if dep, err := dependency.Parse(item); err == nil && len(dep.Relations) == 1 {
		for _, p := range dep.Relations[0].Possibilities {
			if p.Name != "" {
				r.Alternatives = append(r.Alternatives, p.Name)
			}
		}
		if len(r.Alternatives) > 0 {
			return r, true
		}
	}

	// dependency.Parse rejects some hand-written fields; split them by hand.
	r.Alternatives = nil
	for _, alt := range strings.Split(item, "|") {
		if name := StripConstraint(alt); name != "" {
			r.Alternatives = append(r.Alternatives, name)
		}
	}
	return r, len(r.Alternatives) > 0
}

// StripConstraint removes the version constraint, architecture and build profile
// restrictions and the multi-arch qualifier of a single relation token.
// "libc6 (>= 2.34) [amd64]" becomes "libc6".
func StripConstraint(token string) string {
	token = versionConstraint.ReplaceAllString(token, "")
	token = archRestriction.ReplaceAllString(token, "")
	token = profileRestrict.ReplaceAllString(token, "")
	token = strings.TrimSpace(token)
	if name, _, ok := strings.Cut(token, ":"); ok {
		token = name
	}
	return token
}
