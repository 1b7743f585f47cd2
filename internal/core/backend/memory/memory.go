//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package memory provides a backend serving PolicyDomain documents held in memory.  It is the
// default when no policy paths are configured, and is handy in tests that rewrite policies
// between reloads.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/common"
	"github.com/manetu/dataguard/pkg/core/backend"
	"github.com/manetu/dataguard/pkg/core/opa"
	"github.com/manetu/dataguard/pkg/core/tags"
	"github.com/manetu/dataguard/pkg/policydomain"
	"github.com/manetu/dataguard/pkg/policydomain/parsers"
	"github.com/manetu/dataguard/pkg/policydomain/registry"
)

var logger = logging.GetLogger("dataguard.backend.memory")
var agent = "memory"

// Factory creates [Backend] instances over a fixed set of documents.
type Factory struct {
	documents map[string][]byte
	source    tags.Source
}

// Backend implements [backend.Service].  Documents may be replaced with Put before a Reload.
type Backend struct {
	mu        sync.Mutex
	documents map[string][]byte
	store     *registry.Store
}

// NewFactory creates a factory serving documents keyed by name.
func NewFactory(documents map[string][]byte) *Factory {
	docs := make(map[string][]byte, len(documents))
	for k, v := range documents {
		docs[k] = v
	}
	return &Factory{documents: docs}
}

// WithTagSource adds an external tag binding source.
func (f *Factory) WithTagSource(source tags.Source) *Factory {
	f.source = source
	return f
}

// NewBackend implements [backend.Factory].
func (f *Factory) NewBackend(compiler *opa.Compiler) (backend.Service, error) {
	if len(f.documents) == 0 {
		logger.Warn(agent, "NewBackend", "no policy domains configured; every request will be rejected")
	}

	b := &Backend{documents: f.documents}
	opts := []registry.StoreOptionsFunc{registry.WithCompiler(compiler)}
	if f.source != nil {
		opts = append(opts, registry.WithTagSource(f.source))
	}
	b.store = registry.NewStoreFromLoader(b.load, opts...)

	if err := b.store.Reload(context.Background()); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) load() (*registry.Registry, error) {
	b.mu.Lock()
	names := make([]string, 0, len(b.documents))
	for n := range b.documents {
		names = append(names, n)
	}
	sort.Strings(names)
	docs := make([][]byte, len(names))
	for i, n := range names {
		docs[i] = b.documents[n]
	}
	b.mu.Unlock()

	domains := make([]*policydomain.IntermediateModel, 0, len(names))
	for i, n := range names {
		model, err := parsers.Parse(n, docs[i])
		if err != nil {
			return nil, common.NewMalformedPolicyError(n, err)
		}
		domains = append(domains, model)
	}
	return registry.FromDomains(domains)
}

// Put replaces or adds a document.  It takes effect on the next Reload.
func (b *Backend) Put(name string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.documents[name] = data
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

// Close implements [backend.Service].  Nothing is held.
func (b *Backend) Close() {}

// Watch implements [backend.Service].  Only interval reloads apply.
func (b *Backend) Watch(ctx context.Context, opts registry.WatchOptions) error {
	opts.Files = false
	return b.store.Watch(ctx, opts)
}
