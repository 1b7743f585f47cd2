//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package local provides a backend implementation that loads PolicyDomain files from the
// local filesystem.
//
// # Usage
//
//	pe, err := core.NewPolicyEngine(
//	    options.WithBackend(local.NewFactory([]string{"./policies"},
//	        local.WithTagSource(tags.NewRedisSourceFromAddr("localhost:6379", "")))),
//	)
//
// # Policy Compilation
//
// Row filters are compiled when a snapshot is built, so a bad expression rejects the whole
// reload and decisions never compile anything.
package local

import (
	"context"

	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/core/backend"
	"github.com/manetu/dataguard/pkg/core/opa"
	"github.com/manetu/dataguard/pkg/core/tags"
	"github.com/manetu/dataguard/pkg/policydomain/registry"
)

var logger = logging.GetLogger("dataguard.backend.local")
var actor = "backend.local"

// Factory creates [Backend] instances for a set of domain paths.
type Factory struct {
	paths     []string
	source    tags.Source
	cacheSize int64
	observers []registry.ReloadObserver
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithTagSource adds an external tag binding source.
func WithTagSource(source tags.Source) FactoryOption {
	return func(f *Factory) {
		f.source = source
	}
}

// WithTagCacheSize caches TagsFor results; zero disables the cache.
func WithTagCacheSize(size int64) FactoryOption {
	return func(f *Factory) {
		f.cacheSize = size
	}
}

// WithReloadObserver is called after every reload attempt.
func WithReloadObserver(observer registry.ReloadObserver) FactoryOption {
	return func(f *Factory) {
		f.observers = append(f.observers, observer)
	}
}

// Backend implements [backend.Service] over a [registry.Store].
type Backend struct {
	store *registry.Store
	cache *tags.Cache
}

// NewFactory creates a [backend.Factory] for domain files or directories.
func NewFactory(paths []string, opts ...FactoryOption) backend.Factory {
	f := &Factory{paths: paths}
	for _, o := range opts {
		o(f)
	}
	return f
}

// NewBackend creates a [Backend] and loads the first snapshot.  A malformed domain fails here
// with a *common.MalformedPolicyError.
func (f *Factory) NewBackend(compiler *opa.Compiler) (backend.Service, error) {
	storeOpts := []registry.StoreOptionsFunc{registry.WithCompiler(compiler)}
	if f.source != nil {
		storeOpts = append(storeOpts, registry.WithTagSource(f.source))
	}
	for _, o := range f.observers {
		storeOpts = append(storeOpts, registry.WithReloadObserver(o))
	}

	var cache *tags.Cache
	if f.cacheSize > 0 {
		var err error
		if cache, err = tags.NewCache(f.cacheSize); err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, registry.WithTagCache(cache))
	}

	store := registry.NewStore(f.paths, storeOpts...)
	if err := store.Reload(context.Background()); err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, err
	}

	logger.Infof(actor, "NewBackend", "serving %d policies from %v", store.Snapshot().PolicyCount(), f.paths)
	return &Backend{store: store, cache: cache}, nil
}

// Snapshot implements [backend.Service].
func (b *Backend) Snapshot() *registry.Snapshot {
	return b.store.Snapshot()
}

// Reload implements [backend.Service].
func (b *Backend) Reload(ctx context.Context) error {
	return b.store.Reload(ctx)
}

// OnReload implements [backend.Service].
func (b *Backend) OnReload(observer registry.ReloadObserver) {
	b.store.Observe(observer)
}

// Watch implements [backend.Service].
func (b *Backend) Watch(ctx context.Context, opts registry.WatchOptions) error {
	return b.store.Watch(ctx, opts)
}

// Close implements [backend.Service].  It stops the tag cache.
func (b *Backend) Close() {
	if b.cache != nil {
		b.cache.Close()
	}
}

// Store exposes the underlying store.
func (b *Backend) Store() *registry.Store {
	return b.store
}
