package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

const (
	DefaultPattern = "*.yaml"

	// reloadGuard is the window after a completed load during which a stale
	// cache is still served instead of triggering another load.
	reloadGuard = time.Second
)

// Registry loads plugin instances from manifest files, caches them and
// reloads them when the cache goes stale.
type Registry struct {
	dir     string
	pattern string
	catalog *Catalog
	log     *slog.Logger
	now     func() time.Time
	onLoad  func(loaded int)

	group singleflight.Group

	mu        sync.RWMutex
	instances []Instance
	available []types.PluginMetadata
	loaded    bool
	stale     bool
	loadedAt  time.Time

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
}

type Option func(*Registry)

func WithCatalog(c *Catalog) Option         { return func(r *Registry) { r.catalog = c } }
func WithLogger(l *slog.Logger) Option      { return func(r *Registry) { r.log = l } }
func WithPattern(p string) Option           { return func(r *Registry) { r.pattern = p } }
func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

// WithLoadObserver is called with the instance count after every load and
// unload.
func WithLoadObserver(fn func(loaded int)) Option { return func(r *Registry) { r.onLoad = fn } }

func NewRegistry(dir string, opts ...Option) *Registry {
	r := &Registry{
		dir:     dir,
		pattern: DefaultPattern,
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.catalog == nil {
		r.catalog = DefaultCatalog()
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.pattern == "" {
		r.pattern = DefaultPattern
	}
	return r
}

// LoadPlugins returns the cached plugin instances, loading them first if
// nothing is cached or the cache has gone stale.  Concurrent callers share
// a single in-flight load.
func (r *Registry) LoadPlugins(ctx context.Context) ([]Instance, error) {
	r.mu.RLock()
	if r.loaded && (!r.stale || r.now().Sub(r.loadedAt) < reloadGuard) {
		out := r.snapshotLocked()
		r.mu.RUnlock()
		return out, nil
	}
	r.mu.RUnlock()
	return r.doLoad(ctx, false)
}

// ReloadPlugins discards the cache and loads every manifest again.
func (r *Registry) ReloadPlugins(ctx context.Context) ([]Instance, error) {
	return r.doLoad(ctx, true)
}

func (r *Registry) doLoad(ctx context.Context, force bool) ([]Instance, error) {
	// The load outlives any single caller that gives up on it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do("load", func() (any, error) {
		if !force {
			// A load that finished between the caller's cache check and
			// joining the group already refreshed the cache.
			r.mu.RLock()
			if r.loaded && !r.stale {
				out := r.snapshotLocked()
				r.mu.RUnlock()
				return out, nil
			}
			r.mu.RUnlock()
		}
		return r.load(loadCtx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Instance), nil
}

// MarkStale forces the next LoadPlugins call to reload, subject to the
// reload guard.
func (r *Registry) MarkStale() {
	r.mu.Lock()
	r.stale = true
	r.mu.Unlock()
}

// GetAvailablePlugins returns metadata for every manifest found on the
// last load, including disabled ones.
func (r *Registry) GetAvailablePlugins(ctx context.Context) ([]types.PluginMetadata, error) {
	if _, err := r.LoadPlugins(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.PluginMetadata, len(r.available))
	copy(out, r.available)
	return out, nil
}

// UnloadPlugin shuts down one loaded instance and removes it from the cache.
func (r *Registry) UnloadPlugin(ctx context.Context, id string) error {
	r.mu.Lock()
	idx := -1
	for i, inst := range r.instances {
		if inst.Metadata.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginNotLoaded, id)
	}
	inst := r.instances[idx]
	r.instances = append(r.instances[:idx:idx], r.instances[idx+1:]...)
	remaining := len(r.instances)
	for i, md := range r.available {
		if md.ID == id {
			r.available = append(r.available[:i:i], r.available[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.shutdown(ctx, inst)
	r.log.Info("plugin unloaded", "plugin_id", id, "plugin", inst.Metadata.Name)
	r.observe(remaining)
	return nil
}

// Close stops the directory watcher and shuts down every loaded instance.
func (r *Registry) Close(ctx context.Context) error {
	r.watchMu.Lock()
	var err error
	if r.watcher != nil {
		err = r.watcher.Close()
		r.watcher = nil
	}
	r.watchMu.Unlock()

	r.mu.Lock()
	old := r.instances
	r.instances = nil
	r.available = nil
	r.loaded = false
	r.mu.Unlock()

	for _, inst := range old {
		r.shutdown(ctx, inst)
	}
	return err
}

func (r *Registry) observe(n int) {
	if r.onLoad != nil {
		r.onLoad(n)
	}
}

func (r *Registry) snapshotLocked() []Instance {
	out := make([]Instance, len(r.instances))
	copy(out, r.instances)
	return out
}

// load runs inside the single-flight group.
func (r *Registry) load(ctx context.Context) ([]Instance, error) {
	r.mu.Lock()
	old := r.instances
	r.instances = nil
	r.available = nil
	r.loaded = false
	r.mu.Unlock()

	for _, inst := range old {
		r.shutdown(ctx, inst)
	}

	instances, available, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.instances = instances
	r.available = available
	r.loaded = true
	r.stale = false
	r.loadedAt = r.now()
	out := r.snapshotLocked()
	r.mu.Unlock()

	r.log.Info("plugins loaded", "dir", r.dir, "loaded", len(instances), "available", len(available))
	r.observe(len(out))
	return out, nil
}

func (r *Registry) scan(ctx context.Context) ([]Instance, []types.PluginMetadata, error) {
	if _, err := os.Stat(r.dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.log.Warn("plugin directory missing", "dir", r.dir)
			return nil, nil, nil
		}
		r.log.Error("plugin directory unreadable", "dir", r.dir, "error", err)
		return nil, nil, nil
	}

	paths, err := filepath.Glob(filepath.Join(r.dir, r.pattern))
	if err != nil {
		return nil, nil, fmt.Errorf("plugin pattern %q: %w", r.pattern, err)
	}
	sort.Strings(paths)

	var (
		instances []Instance
		available []types.PluginMetadata
		seen      = make(map[string]string)
	)
	for _, path := range paths {
		m, err := ReadManifest(path)
		if err != nil {
			r.log.Warn("skipping plugin manifest", "path", path, "error", err)
			continue
		}

		if !m.IsEnabled() {
			md := disabledMetadata(m, path)
			if prev, dup := seen[md.ID]; dup {
				r.log.Warn("duplicate plugin id", "plugin_id", md.ID, "path", path, "first", prev)
				continue
			}
			seen[md.ID] = path
			available = append(available, md)
			continue
		}

		inst, err := r.instantiate(ctx, m, path)
		if err != nil {
			r.log.Warn("skipping plugin", "path", path, "plugin", m.Plugin, "error", err)
			continue
		}
		if prev, dup := seen[inst.Metadata.ID]; dup {
			r.log.Warn("duplicate plugin id", "plugin_id", inst.Metadata.ID, "path", path, "first", prev)
			r.shutdown(ctx, inst)
			continue
		}
		seen[inst.Metadata.ID] = path
		instances = append(instances, inst)
		available = append(available, inst.Metadata)
	}
	return instances, available, nil
}

func (r *Registry) instantiate(ctx context.Context, m Manifest, path string) (inst Instance, err error) {
	factory, ok := r.catalog.Lookup(m.Plugin)
	if !ok {
		return Instance{}, fmt.Errorf("%w: %q", ErrUnknownPlugin, m.Plugin)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin %q panicked: %v", m.Plugin, rec)
		}
	}()

	p := factory()
	if p == nil {
		return Instance{}, fmt.Errorf("factory %q returned nil", m.Plugin)
	}
	cfg := copyConfig(m.Config)
	if err := p.Init(ctx, cfg); err != nil {
		return Instance{}, fmt.Errorf("init %q: %w", m.Plugin, err)
	}

	name := m.Name
	if name == "" {
		name = p.Name()
	}
	id := m.ID
	if id == "" {
		id = DeriveID(name, p.Version())
	}

	return Instance{
		Metadata: types.PluginMetadata{
			ID:          id,
			Key:         m.Plugin,
			Name:        name,
			Version:     p.Version(),
			Description: p.Description(),
			Location:    path,
			Enabled:     true,
			Config:      cfg,
		},
		Plugin: p,
	}, nil
}

func disabledMetadata(m Manifest, path string) types.PluginMetadata {
	name := m.Name
	if name == "" {
		name = m.Plugin
	}
	id := m.ID
	if id == "" {
		id = DeriveID(name, "")
	}
	return types.PluginMetadata{
		ID:       id,
		Key:      m.Plugin,
		Name:     name,
		Location: path,
		Enabled:  false,
		Config:   copyConfig(m.Config),
	}
}

func copyConfig(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (r *Registry) shutdown(ctx context.Context, inst Instance) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("plugin shutdown panicked", "plugin_id", inst.Metadata.ID, "panic", rec)
		}
	}()
	if err := inst.Plugin.Shutdown(ctx); err != nil {
		r.log.Warn("plugin shutdown failed", "plugin_id", inst.Metadata.ID, "error", err)
	}
}
