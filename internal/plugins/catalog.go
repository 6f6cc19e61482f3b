package plugins

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Options is the free-form options object of a unit manifest.
type Options map[string]any

// Decode copies the options into a typed struct using JSON field tags.
func (o Options) Decode(dst any) error {
	if len(o) == 0 {
		return nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

// Factory creates a Unit from manifest options.
type Factory func(opts Options) (Unit, error)

// Catalog holds the compiled-in unit factories, keyed by unit kind.
// Manifests in the plugin directory select kinds from the catalog.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// RegisterFactory registers a factory for a unit kind (e.g. "ping", "weather").
// Registering the same kind twice replaces the earlier factory.
func (c *Catalog) RegisterFactory(kind string, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[kind] = factory
}

// Factory returns the factory for kind.
func (c *Catalog) Factory(kind string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds in sorted order.
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]string, 0, len(c.factories))
	for k := range c.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
