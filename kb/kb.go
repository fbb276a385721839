// Package kb holds the knowledge base that maps Debian packages onto Gentoo
// dependencies and USE flags.
//
// A knowledge base is a document made of named tables. Every table maps a key
// to one or more string values:
//
//	dependencies           Debian package -> Gentoo atom(s)
//	dependencies-optional  Debian package -> USE flag
//	use-dependencies       USE flag       -> Gentoo atom(s)
//	use-descriptions       USE flag       -> human readable description
//	unnecessary-files      USE flag       -> glob patterns of payload files
//	use-symlinks           USE flag       -> replacement path for those files
//	deprecated-movable     payload path   -> destination path
//	deprecated-removable   payload path   (a list, or path -> action)
//
// Documents are JSON (comments and trailing commas allowed) or YAML.
// Unknown tables are ignored.
package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"go.yaml.in/yaml/v3"
)

// Table names a knowledge base table.
type Table string

const (
	Dependencies         Table = "dependencies"
	DependenciesOptional Table = "dependencies-optional"
	UseDependencies      Table = "use-dependencies"
	UseDescriptions      Table = "use-descriptions"
	UnnecessaryFiles     Table = "unnecessary-files"
	UseSymlinks          Table = "use-symlinks"
	DeprecatedMovable    Table = "deprecated-movable"
	DeprecatedRemovable  Table = "deprecated-removable"
)

// Tables lists every table the knowledge base understands.
var Tables = []Table{
	Dependencies,
	DependenciesOptional,
	UseDependencies,
	UseDescriptions,
	UnnecessaryFiles,
	UseSymlinks,
	DeprecatedMovable,
	DeprecatedRemovable,
}

// Lookup is read-only access to a knowledge base.
type Lookup interface {
	// Lookup returns the values stored for key in table.
	Lookup(table Table, key string) ([]string, bool)
	// Keys returns the sorted keys of table.
	Keys(table Table) []string
}

// First returns the first value stored for key in table.
// A nil Lookup behaves like an empty knowledge base.
func First(l Lookup, table Table, key string) (string, bool) {
	if l == nil {
		return "", false
	}
	values, ok := l.Lookup(table, key)
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Joined returns all values stored for key in table joined by a space.
// A nil Lookup behaves like an empty knowledge base.
func Joined(l Lookup, table Table, key string) (string, bool) {
	if l == nil {
		return "", false
	}
	values, ok := l.Lookup(table, key)
	if !ok || len(values) == 0 {
		return "", false
	}
	return strings.Join(values, " "), true
}

// Keys returns the sorted keys of table. A nil Lookup has no keys.
func Keys(l Lookup, table Table) []string {
	if l == nil {
		return nil
	}
	return l.Keys(table)
}

// KnowledgeBase is the in-memory Lookup implementation.
// It is never modified after construction. A nil *KnowledgeBase is empty.
type KnowledgeBase struct {
	tables map[Table]map[string][]string
}

// New creates a knowledge base from literal tables. The input is copied.
func New(tables map[Table]map[string][]string) *KnowledgeBase {
	kb := &KnowledgeBase{tables: make(map[Table]map[string][]string, len(tables))}
	for name, rows := range tables {
		t := make(map[string][]string, len(rows))
		for k, v := range rows {
			t[k] = append([]string(nil), v...)
		}
		kb.tables[name] = t
	}
	return kb
}

// Lookup implements Lookup.
func (kb *KnowledgeBase) Lookup(table Table, key string) ([]string, bool) {
	if kb == nil {
		return nil, false
	}
	v, ok := kb.tables[table][key]
	return v, ok
}

// Keys implements Lookup.
func (kb *KnowledgeBase) Keys(table Table) []string {
	if kb == nil {
		return nil
	}
	keys := make([]string, 0, len(kb.tables[table]))
	for k := range kb.tables[table] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries in table.
func (kb *KnowledgeBase) Len(table Table) int {
	if kb == nil {
		return 0
	}
	return len(kb.tables[table])
}

// Load reads a knowledge base file. The format is picked from the extension:
// .yaml and .yml are YAML, anything else is JSON with comments.
// A missing file yields an error matching fs.ErrNotExist.
func Load(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge base: %w", err)
	}
	kb, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return kb, nil
}

// Parse decodes a knowledge base document. ext selects the format like in Load.
func Parse(data []byte, ext string) (*KnowledgeBase, error) {
	var doc map[string]any
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
			return nil, err
		}
	}

	kb := &KnowledgeBase{tables: make(map[Table]map[string][]string)}
	for _, name := range Tables {
		raw, ok := doc[string(name)]
		if !ok || raw == nil {
			continue
		}
		rows, err := normalizeTable(raw)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", name, err)
		}
		kb.tables[name] = rows
	}
	return kb, nil
}

// normalizeTable accepts an object of scalars or lists, or a plain list
// (each item becomes a key with no value).
func normalizeTable(raw any) (map[string][]string, error) {
	rows := make(map[string][]string)
	switch t := raw.(type) {
	case map[string]any:
		for k, v := range t {
			values, err := normalizeValue(v)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			rows[k] = values
		}
	case []any:
		for _, item := range t {
			s, ok := scalar(item)
			if !ok {
				return nil, fmt.Errorf("list items must be strings, got %T", item)
			}
			rows[s] = nil
		}
	default:
		return nil, fmt.Errorf("expected an object or a list, got %T", raw)
	}
	return rows, nil
}

func normalizeValue(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := scalar(v); ok {
		return []string{s}, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a string or a list, got %T", v)
	}
	values := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := scalar(item)
		if !ok {
			return nil, fmt.Errorf("list items must be strings, got %T", item)
		}
		values = append(values, s)
	}
	return values, nil
}

func scalar(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool, int, int64, float64:
		return fmt.Sprint(s), true
	}
	return "", false
}
