// Package transform normalizes raw scraped tables into keyed source tables
// using per-site YAML rules.
package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/specsheet/internal/types"
)

// Config is the YAML form of a site transformer.
type Config struct {
	Source       string            `yaml:"source" json:"source"`
	Description  string            `yaml:"description,omitempty" json:"description,omitempty"`
	NullMarkers  []string          `yaml:"null_markers,omitempty" json:"null_markers,omitempty"`
	KeepUnmapped bool              `yaml:"keep_unmapped" json:"keep_unmapped"`
	Rename       []RenameRule      `yaml:"rename,omitempty" json:"rename,omitempty"`
	Drop         []string          `yaml:"drop,omitempty" json:"drop,omitempty"`
	Replace      []ReplaceRule     `yaml:"replace,omitempty" json:"replace,omitempty"`
	StripUnits   map[string]string `yaml:"strip_units,omitempty" json:"strip_units,omitempty"`
}

// RenameRule maps a site label to a common key. Matching ignores case.
type RenameRule struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// ReplaceRule rewrites values matching Pattern. Empty Keys applies to all keys.
type ReplaceRule struct {
	Pattern string   `yaml:"pattern" json:"pattern"`
	With    string   `yaml:"with,omitempty" json:"with,omitempty"`
	Keys    []string `yaml:"keys,omitempty" json:"keys,omitempty"`
}

type compiledRule struct {
	re   *regexp.Regexp
	with string
	keys map[string]bool
}

// Transformer applies one site's Config.
type Transformer struct {
	source  types.SourceID
	cfg     Config
	rename  map[string]string
	drop    map[string]bool
	replace []compiledRule
	markers []string
}

// New compiles cfg. The config is assumed to be schema-valid; regex and
// source errors are still reported.
func New(cfg Config) (*Transformer, error) {
	source, err := types.ParseSourceID(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("transformer source: %w", err)
	}

	t := &Transformer{
		source: source,
		cfg:    cfg,
		rename: make(map[string]string, len(cfg.Rename)),
		drop:   make(map[string]bool, len(cfg.Drop)),
	}
	for _, r := range cfg.Rename {
		k := labelKey(r.From)
		if _, dup := t.rename[k]; !dup {
			t.rename[k] = strings.TrimSpace(r.To)
		}
	}
	for _, d := range cfg.Drop {
		t.drop[labelKey(d)] = true
	}
	for i, r := range cfg.Replace {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%s replace rule %d: %w", cfg.Source, i, err)
		}
		rule := compiledRule{re: re, with: r.With}
		if len(r.Keys) > 0 {
			rule.keys = make(map[string]bool, len(r.Keys))
			for _, k := range r.Keys {
				rule.keys[k] = true
			}
		}
		t.replace = append(t.replace, rule)
	}

	t.markers = append([]string{""}, cfg.NullMarkers...)
	if len(cfg.NullMarkers) == 0 {
		t.markers = append(t.markers, types.DefaultNullMarker)
	}
	return t, nil
}

// Source returns the site this transformer handles.
func (t *Transformer) Source() types.SourceID { return t.source }

// Config returns the transformer's configuration.
func (t *Transformer) Config() Config { return t.cfg }

// Transform converts raw into a SourceTable. Labels are trimmed, dropped or
// renamed; values are rewritten by the replace rules and unit stripping;
// null markers and empty values become Absent. The first occurrence of a
// key wins.
func (t *Transformer) Transform(raw *types.RawTable) (*types.SourceTable, error) {
	if raw == nil {
		return nil, fmt.Errorf("%s: nil raw table", t.source)
	}
	if raw.Source != t.source {
		return nil, fmt.Errorf("%s transformer cannot handle %s table", t.source, raw.Source)
	}

	out := &types.SourceTable{Source: t.source, URL: raw.URL, Fields: make([]types.Field, 0, len(raw.Fields))}
	seen := make(map[string]bool, len(raw.Fields))
	for _, f := range raw.Fields {
		key, ok := t.key(f.Label)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		out.Fields = append(out.Fields, types.Field{Key: key, Value: t.value(key, f.Value)})
	}
	return out, nil
}

func (t *Transformer) key(label string) (string, bool) {
	trimmed := strings.Join(strings.Fields(label), " ")
	if trimmed == "" {
		return "", false
	}
	k := labelKey(trimmed)
	if t.drop[k] {
		return "", false
	}
	if to, ok := t.rename[k]; ok {
		return to, true
	}
	if !t.cfg.KeepUnmapped {
		return "", false
	}
	return trimmed, true
}

func (t *Transformer) value(key, raw string) types.Value {
	v := types.ParseValue(raw, t.markers...)
	if !v.IsPresent() {
		return v
	}

	s := strings.TrimSpace(v.String())
	for _, r := range t.replace {
		if r.keys != nil && !r.keys[key] {
			continue
		}
		s = r.re.ReplaceAllString(s, r.with)
	}
	if unit, ok := t.cfg.StripUnits[key]; ok {
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), unit))
	}
	return types.ParseValue(strings.TrimSpace(s), t.markers...)
}

func labelKey(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}
