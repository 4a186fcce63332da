// Package catalog loads and serves scenario definitions: built-ins embedded
// in the binary plus operator-provided YAML files.
package catalog

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/scenark/scenark/internal/validation"
	"github.com/scenark/scenark/pkg/schema"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Catalog is the read-only registry of known scenarios. Definitions are
// validated on registration and immutable afterwards.
type Catalog struct {
	mu        sync.RWMutex
	scenarios map[string]*schema.ScenarioDefinition
	validator *validation.Validator
}

// New creates a Catalog pre-loaded with the built-in scenarios.
func New() (*Catalog, error) {
	v, err := validation.NewValidator()
	if err != nil {
		return nil, err
	}
	c := &Catalog{
		scenarios: make(map[string]*schema.ScenarioDefinition),
		validator: v,
	}
	if err := c.loadFS(builtinFS, "builtin"); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadDir registers every *.yaml/*.yml scenario in a directory. Later loads
// override built-ins with the same name.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeConfig, "read scenario dir: %s", err.Error()).WithCause(err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeConfig, "read scenario file %s: %s", entry.Name(), err.Error()).WithCause(err)
		}
		if err := c.registerYAML(entry.Name(), data); err != nil {
			return err
		}
	}
	return nil
}

// Register validates and adds a definition, replacing any existing scenario
// with the same name.
func (c *Catalog) Register(def *schema.ScenarioDefinition) error {
	if result := c.validator.Validate(def); !result.Valid() {
		return result.ToError()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scenarios[def.Name] = def
	return nil
}

// Get returns the scenario with the given name.
func (c *Catalog) Get(name string) (*schema.ScenarioDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.scenarios[name]
	return def, ok
}

// List returns all scenarios sorted by name.
func (c *Catalog) List() []*schema.ScenarioDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*schema.ScenarioDefinition, 0, len(c.scenarios))
	for _, def := range c.scenarios {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) loadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		data, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return err
		}
		if err := c.registerYAML(entry.Name(), data); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) registerYAML(name string, data []byte) error {
	var def schema.ScenarioDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return schema.NewErrorf(schema.ErrCodeConfig, "parse scenario %s: %s", name, err.Error()).WithCause(err)
	}
	if err := c.Register(&def); err != nil {
		return schema.NewErrorf(schema.ErrCodeInvalidScenario, "scenario %s: %s", name, err.Error()).WithCause(err)
	}
	return nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
