package transform

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/jonathan/specsheet/internal/schemas"
	"github.com/jonathan/specsheet/internal/types"
)

//go:embed configs/*.yaml
var defaults embed.FS

// ConfigError reports an invalid transformer config file.
type ConfigError struct {
	Path  string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("transformer config %s: %v", e.Path, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// Set holds one transformer per source.
type Set struct {
	bySource map[types.SourceID]*Transformer
}

// Get returns the transformer for id.
func (s *Set) Get(id types.SourceID) (*Transformer, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.bySource[id]
	return t, ok
}

// Transform runs the transformer registered for raw's source.
func (s *Set) Transform(raw *types.RawTable) (*types.SourceTable, error) {
	if raw == nil {
		return nil, errors.New("nil raw table")
	}
	t, ok := s.Get(raw.Source)
	if !ok {
		return nil, fmt.Errorf("no transformer for %s", raw.Source)
	}
	return t.Transform(raw)
}

// Defaults loads the embedded site configs.
func Defaults() (*Set, error) {
	return Load("")
}

// Load reads the embedded configs and then overrides them with any
// site<N>.yaml found in dir. An empty dir uses only the embedded configs.
func Load(dir string) (*Set, error) {
	set := &Set{bySource: make(map[types.SourceID]*Transformer, types.NumSources)}
	for _, id := range types.AllSources {
		name := id.String() + ".yaml"

		data, path, err := readConfig(dir, name)
		if err != nil {
			return nil, err
		}
		t, err := Parse(data)
		if err != nil {
			return nil, &ConfigError{Path: path, Cause: err}
		}
		if t.Source() != id {
			return nil, &ConfigError{Path: path, Cause: fmt.Errorf("declares source %s", t.Source())}
		}
		set.bySource[id] = t
	}
	return set, nil
}

func readConfig(dir, name string) ([]byte, string, error) {
	if dir != "" {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			return data, path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, path, &ConfigError{Path: path, Cause: err}
		}
	}
	path := "configs/" + name
	data, err := defaults.ReadFile(path)
	if err != nil {
		return nil, path, &ConfigError{Path: path, Cause: err}
	}
	return data, "embedded:" + path, nil
}

// Parse validates YAML config data against the transformer schema and
// compiles it.
func Parse(data []byte) (*Transformer, error) {
	asJSON, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := schemas.ValidateJSON(schemas.Transformer, asJSON); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return New(cfg)
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
