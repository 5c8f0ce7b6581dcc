package inventory

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pronunciapa/pronunciapa/pkg/types"
)

// ErrPackNotFound is returned by [Set.Get] for languages without a loaded pack.
var ErrPackNotFound = errors.New("inventory: language pack not found")

//go:embed packs/*.yaml
var defaultPacks embed.FS

// packFile is the on-disk YAML schema of a language pack. Alias and collapse
// maps use [orderedMap] so declaration order survives decoding — tie-breaks
// and cycle reporting depend on it.
type packFile struct {
	Inventory []string          `yaml:"inventory"`
	Aliases   orderedMap        `yaml:"aliases"`
	Collapse  orderedMap        `yaml:"collapse"`
	Derive    []DeriveRule      `yaml:"derive"`
	Meta      map[string]string `yaml:"meta"`
}

// orderedMap decodes a YAML mapping into key/value pairs preserving the
// document's declaration order.
type orderedMap []Mapping

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *orderedMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("inventory: expected a mapping, got %s", node.Tag)
	}
	pairs := make([]Mapping, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		pairs = append(pairs, Mapping{
			From: node.Content[i].Value,
			To:   node.Content[i+1].Value,
		})
	}
	*m = pairs
	return nil
}

// Set is a read-only collection of loaded inventories keyed by language id.
type Set struct {
	packs map[string]*Inventory
}

// Get returns the inventory for lang. Wraps [ErrPackNotFound] when the
// language has no loaded pack.
func (s *Set) Get(lang string) (*Inventory, error) {
	inv, ok := s.packs[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPackNotFound, lang)
	}
	return inv, nil
}

// Languages lists the loaded language ids.
func (s *Set) Languages() []string {
	langs := make([]string, 0, len(s.packs))
	for lang := range s.packs {
		langs = append(langs, lang)
	}
	return langs
}

// LoadDefaults loads the language packs embedded in the binary.
func LoadDefaults() (*Set, error) {
	return LoadDir(defaultPacks, "packs")
}

// LoadDir loads every *.yaml pack in dir of fsys. The file stem becomes the
// language id ("packs/es.yaml" → "es"). Validation failures abort the load.
func LoadDir(fsys fs.FS, dir string) (*Set, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("inventory: read pack dir %q: %w", dir, err)
	}
	set := &Set{packs: make(map[string]*Inventory)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		lang := strings.TrimSuffix(entry.Name(), ".yaml")
		f, err := fsys.Open(path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("inventory: open pack %q: %w", entry.Name(), err)
		}
		inv, err := LoadPack(f, lang)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("inventory: pack %q: %w", entry.Name(), err)
		}
		set.packs[lang] = inv
	}
	return set, nil
}

// LoadPack decodes and validates a single language pack.
func LoadPack(r io.Reader, lang string) (*Inventory, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var pf packFile
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	inv := &Inventory{
		LangID:    lang,
		Canonical: make(map[types.Token]struct{}, len(pf.Inventory)),
		Aliases:   pf.Aliases,
		Collapse:  pf.Collapse,
		Derive:    pf.Derive,
		Meta:      pf.Meta,
	}
	for _, s := range pf.Inventory {
		if t := types.NewToken(s); t != "" {
			inv.Canonical[t] = struct{}{}
		}
	}
	if err := validate(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// validate enforces the pack invariants: alias and collapse graphs are
// acyclic and alias keys never shadow canonical tokens.
func validate(inv *Inventory) error {
	var errs []error

	for _, m := range inv.Aliases {
		// A multi-token key is a sequence, not a token, so only single-token
		// keys can shadow a canonical token.
		if from := strings.Fields(m.From); len(from) == 1 && inv.IsCanonical(types.NewToken(from[0])) {
			errs = append(errs, fmt.Errorf("alias key %q shadows a canonical token", from[0]))
		}
	}

	if cycle := findCycle(inv.Aliases); cycle != "" {
		errs = append(errs, fmt.Errorf("%w: via %q", ErrAliasCycle, cycle))
	}
	if cycle := findCycle(inv.Collapse); cycle != "" {
		errs = append(errs, fmt.Errorf("%w: via %q", ErrCollapseCycle, cycle))
	}

	for i, rule := range inv.Derive {
		if strings.TrimSpace(rule.From) == "" {
			errs = append(errs, fmt.Errorf("derive[%d]: from is required", i))
		}
	}

	return errors.Join(errs...)
}

// findCycle walks single-token mapping chains and returns a token on a cycle,
// or "" when the graph is acyclic. Multi-token mappings shrink or merge the
// sequence and cannot loop through this graph.
func findCycle(mappings []Mapping) string {
	next := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if strings.ContainsRune(m.From, ' ') || strings.ContainsRune(m.To, ' ') {
			continue
		}
		if _, dup := next[m.From]; !dup {
			next[m.From] = m.To
		}
	}
	for start := range next {
		seen := map[string]struct{}{start: {}}
		cur := start
		for {
			to, ok := next[cur]
			if !ok || to == "" {
				break
			}
			if _, loop := seen[to]; loop {
				return to
			}
			seen[to] = struct{}{}
			cur = to
		}
	}
	return ""
}
