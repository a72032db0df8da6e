// Package plugin holds the decision-logic plugins consulted for access
// decisions, the catalog of known plugin factories and the registry that
// loads configured instances from a manifest directory.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

var (
	ErrUnknownPlugin   = errors.New("unknown plugin")
	ErrPluginNotLoaded = errors.New("plugin not loaded")
)

// Plugin is the lifecycle every decision plugin implements.  A plugin
// additionally implements CardEvaluator, PinEvaluator or both.
type Plugin interface {
	Name() string
	Version() string
	Description() string
	Init(ctx context.Context, config map[string]string) error
	Shutdown(ctx context.Context) error
}

type CardEvaluator interface {
	EvaluateCard(ctx context.Context, ev types.CardReadEvent) (bool, error)
}

type PinEvaluator interface {
	EvaluatePin(ctx context.Context, ev types.PinReadEvent) (bool, error)
}

// Factory builds a fresh, uninitialised plugin.
type Factory func() Plugin

// Catalog maps stable factory keys to constructors.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory under key.  It panics if key is empty, f is nil
// or key is already registered.
func (c *Catalog) Register(key string, f Factory) {
	if key == "" || f == nil {
		panic("plugin: Register with empty key or nil factory")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.factories[key]; dup {
		panic(fmt.Sprintf("plugin: Register called twice for %q", key))
	}
	c.factories[key] = f
}

func (c *Catalog) Lookup(key string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[key]
	return f, ok
}

func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.factories))
	for k := range c.factories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Instance is a loaded, initialised plugin together with its metadata.
type Instance struct {
	Metadata types.PluginMetadata
	Plugin   Plugin
}
