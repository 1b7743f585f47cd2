//
//  Copyright © Manetu Inc. All rights reserved.
//

package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/common"
	"github.com/manetu/dataguard/pkg/core/opa"
	"github.com/manetu/dataguard/pkg/core/tags"
	"github.com/manetu/dataguard/pkg/policydomain/validation"
)

var logger = logging.GetLogger("registry")
var agent = "registry"

// DomainLoader parses and validates the domains of one snapshot.
type DomainLoader func() (*Registry, error)

// ReloadObserver is told about every reload attempt.  snap is nil when err is not.
type ReloadObserver func(snap *Snapshot, err error)

// StoreOptions configures a Store
type StoreOptions struct {
	compiler  *opa.Compiler
	source    tags.Source
	cache     *tags.Cache
	observers []ReloadObserver
	now       func() time.Time
}

// StoreOptionsFunc modifies StoreOptions
type StoreOptionsFunc func(*StoreOptions)

// WithCompiler sets the compiler used for row filters
func WithCompiler(compiler *opa.Compiler) StoreOptionsFunc {
	return func(o *StoreOptions) {
		o.compiler = compiler
	}
}

// WithTagSource adds an external tag binding source
func WithTagSource(source tags.Source) StoreOptionsFunc {
	return func(o *StoreOptions) {
		o.source = source
	}
}

// WithTagCache enables caching of TagsFor results
func WithTagCache(cache *tags.Cache) StoreOptionsFunc {
	return func(o *StoreOptions) {
		o.cache = cache
	}
}

// WithReloadObserver registers a callback run after each reload attempt
func WithReloadObserver(observer ReloadObserver) StoreOptionsFunc {
	return func(o *StoreOptions) {
		o.observers = append(o.observers, observer)
	}
}

// Store publishes snapshots built from a set of domain paths.  Reload is the only writer;
// Snapshot may be called concurrently from any goroutine.
type Store struct {
	paths   []string
	loader  DomainLoader
	options *StoreOptions
	current atomic.Pointer[Snapshot]

	mu      sync.Mutex
	version uint64
}

// NewStore creates a store for domain files or directories.  No snapshot is active until the
// first Reload.
func NewStore(paths []string, options ...StoreOptionsFunc) *Store {
	s := NewStoreFromLoader(func() (*Registry, error) { return NewRegistry(paths) }, options...)
	s.paths = paths
	return s
}

// NewStoreFromLoader creates a store whose domains come from loader, e.g. documents held in
// memory.  Such a store has no files to watch.
func NewStoreFromLoader(loader DomainLoader, options ...StoreOptionsFunc) *Store {
	opts := &StoreOptions{now: time.Now}
	for _, o := range options {
		o(opts)
	}
	if opts.compiler == nil {
		opts.compiler = opa.NewCompiler()
	}

	return &Store{loader: loader, options: opts}
}

// Paths returns the configured domain paths.
func (s *Store) Paths() []string {
	return s.paths
}

// Snapshot returns the active snapshot, or nil before the first successful Reload.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Load builds a snapshot from the current domain files without publishing it.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx, s.version+1)
}

func (s *Store) load(ctx context.Context, version uint64) (*Snapshot, error) {
	reg, err := s.loader()
	if err != nil {
		return nil, err
	}

	b := &builder{
		compiler: s.options.compiler,
		cache:    s.options.cache,
		source:   s.options.source,
		now:      s.options.now,
	}

	snap, err := b.build(ctx, reg, version)
	if err != nil {
		var verrs *validation.Errors
		if errors.As(err, &verrs) {
			return nil, common.NewMalformedPolicyError(reg.sources(), err)
		}
		return nil, err
	}
	return snap, nil
}

// Reload builds a new snapshot and makes it active.  On failure the previous snapshot stays
// active and the error is returned.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	snap, err := s.load(ctx, s.version+1)
	if err != nil {
		logger.Errorf(agent, "reload", "reload rejected, keeping version %d: %v", s.version, err)
		s.notify(nil, err)
		return err
	}

	s.version = snap.Version
	s.current.Store(snap)

	logger.Infof(agent, "reload", "published snapshot %d: %d policies, %d tag bindings in %s",
		snap.Version, snap.PolicyCount(), snap.TagBindingCount(), time.Since(start))
	s.notify(snap, nil)
	return nil
}

// Observe registers observer for later reload attempts.
func (s *Store) Observe(observer ReloadObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options.observers = append(s.options.observers, observer)
}

func (s *Store) notify(snap *Snapshot, err error) {
	for _, o := range s.options.observers {
		o(snap, err)
	}
}
