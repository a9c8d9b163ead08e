package models

import (
	"fmt"
	"os"
	"sort"

	"github.com/MeKo-Tech/evalocr/internal/ocrerr"
	"gopkg.in/yaml.v3"
)

// Built-in language set IDs.
const (
	PrimaryMixed  = "primary-mixed"
	FallbackLatin = "fallback-latin"
	Minimal       = "minimal"
)

// Built-in profile names.
const (
	ProfileDefault = "default"
	ProfileSimple  = "simple"
	ProfileFast    = "fast"
	ProfileLocal   = "local"
)

// AssetSourceLocal marks a profile that reads language data from disk.
const AssetSourceLocal = "local"

// Profile is a named, ordered list of strategies.
type Profile struct {
	Name        string   `yaml:"name" json:"name"`
	Strategies  []string `yaml:"strategies" json:"strategies"`
	AssetSource string   `yaml:"asset_source,omitempty" json:"asset_source,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// Catalog holds the language sets and profiles known at start-up. It is
// never mutated after construction.
type Catalog struct {
	sets     map[string]LanguageSet
	order    []string
	profiles map[string]Profile
}

func builtinSets() []LanguageSet {
	return []LanguageSet{
		{
			ID:          PrimaryMixed,
			Languages:   []string{"chi_sim", "eng"},
			Variant:     VariantStandard,
			PageSegMode: PSMAuto,
			EngineMode:  OEMLSTMOnly,
			Description: "Simplified Chinese and English",
		},
		{
			ID:          FallbackLatin,
			Languages:   []string{"eng"},
			Variant:     VariantStandard,
			PageSegMode: PSMAuto,
			EngineMode:  OEMLSTMOnly,
			Description: "English only",
		},
		{
			ID:          Minimal,
			Languages:   []string{"eng"},
			Variant:     VariantFast,
			PageSegMode: PSMSingleBlock,
			EngineMode:  OEMLSTMOnly,
			Description: "English fast model, single text block",
		},
	}
}

func builtinProfiles() []Profile {
	all := []string{PrimaryMixed, FallbackLatin, Minimal}
	return []Profile{
		{Name: ProfileDefault, Strategies: all, Description: "mixed script, then Latin, then minimal"},
		{Name: ProfileSimple, Strategies: []string{FallbackLatin}, Description: "English only"},
		{Name: ProfileFast, Strategies: []string{Minimal}, Description: "fast English model"},
		{Name: ProfileLocal, Strategies: all, AssetSource: AssetSourceLocal, Description: "default order, language data from disk"},
	}
}

// DefaultCatalog returns the built-in sets and profiles.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(builtinSets(), builtinProfiles())
	if err != nil {
		panic(fmt.Sprintf("models: invalid built-in catalog: %v", err))
	}
	return c
}

// NewCatalog validates sets and profiles and builds a catalog. Set order
// is preserved; later definitions with the same ID replace earlier ones.
func NewCatalog(sets []LanguageSet, profiles []Profile) (*Catalog, error) {
	c := &Catalog{
		sets:     make(map[string]LanguageSet, len(sets)),
		profiles: make(map[string]Profile, len(profiles)),
	}
	for _, s := range sets {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.sets[s.ID]; !exists {
			c.order = append(c.order, s.ID)
		}
		s.Languages = append([]string(nil), s.Languages...)
		c.sets[s.ID] = s
	}
	for _, p := range profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("profile name is required")
		}
		if len(p.Strategies) == 0 {
			return nil, fmt.Errorf("profile %s: at least one strategy is required", p.Name)
		}
		for _, id := range p.Strategies {
			if _, ok := c.sets[id]; !ok {
				return nil, fmt.Errorf("profile %s: unknown strategy %q", p.Name, id)
			}
		}
		p.Strategies = append([]string(nil), p.Strategies...)
		c.profiles[p.Name] = p
	}
	return c, nil
}

// Get returns the set with the given ID.
func (c *Catalog) Get(id string) (LanguageSet, bool) {
	s, ok := c.sets[id]
	return s, ok
}

// Sets returns every set in definition order.
func (c *Catalog) Sets() []LanguageSet {
	out := make([]LanguageSet, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.sets[id])
	}
	return out
}

// Profile returns the named profile.
func (c *Catalog) Profile(name string) (Profile, bool) {
	p, ok := c.profiles[name]
	return p, ok
}

// Profiles returns all profiles sorted by name.
func (c *Catalog) Profiles() []Profile {
	out := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve maps strategy IDs to sets. Duplicates keep their first
// occurrence; an unknown ID fails with an InvalidRequest error.
func (c *Catalog) Resolve(ids []string) ([]LanguageSet, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]LanguageSet, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		s, ok := c.sets[id]
		if !ok {
			return nil, ocrerr.InvalidRequest("unknown strategy %q", id)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, ocrerr.InvalidRequest("no strategies requested")
	}
	return out, nil
}

// Assets returns the distinct assets needed by the given sets, in order.
func Assets(sets []LanguageSet) []Asset {
	seen := make(map[string]struct{})
	var out []Asset
	for _, s := range sets {
		for _, a := range s.Assets() {
			if _, dup := seen[a.Key()]; dup {
				continue
			}
			seen[a.Key()] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// File is the YAML layout for custom sets and profiles.
type File struct {
	LanguageSets []LanguageSet `yaml:"language_sets"`
	Profiles     []Profile     `yaml:"profiles"`
}

// Extend returns a new catalog with f's sets and profiles added to c's.
func (c *Catalog) Extend(f File) (*Catalog, error) {
	sets := append(c.Sets(), f.LanguageSets...)
	profiles := append(c.Profiles(), f.Profiles...)
	return NewCatalog(sets, profiles)
}

// LoadCatalogFile extends the default catalog with a YAML file. An empty
// path returns the default catalog.
func LoadCatalogFile(path string) (*Catalog, error) {
	return DefaultCatalog().ExtendFile(path)
}

// ExtendFile returns a new catalog with the sets and profiles of the YAML
// file at path added to c's. An empty path returns c.
func (c *Catalog) ExtendFile(path string) (*Catalog, error) {
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: profile path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles file %s: %w", path, err)
	}
	out, err := c.Extend(f)
	if err != nil {
		return nil, fmt.Errorf("profiles file %s: %w", path, err)
	}
	return out, nil
}
