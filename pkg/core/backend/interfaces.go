//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package backend defines the interfaces for policy storage backends.
//
// A backend owns the policy store: it loads policy domains and tag bindings, publishes them as
// immutable snapshots and reloads them on demand.  The engine reads one snapshot per request.
//
// # Built-in Backends
//
// The following backend implementations are available:
//   - [local]: Loads PolicyDomain YAML files from the filesystem
//   - Memory backend (internal): Serves documents held in memory, useful for testing
//
// # Implementing a Custom Backend
//
// To implement a custom backend (e.g., for domains kept in a database):
//
//  1. Implement the [Factory] interface to create backend instances
//  2. Implement the [Service] interface, usually by wrapping a [registry.Store] built with
//     [registry.NewStoreFromLoader]
//  3. Use the backend with [options.WithBackend] when creating the engine
//
// Example:
//
//	type MyFactory struct { /* ... */ }
//
//	func (f *MyFactory) NewBackend(c *opa.Compiler) (backend.Service, error) {
//	    store := registry.NewStoreFromLoader(f.load, registry.WithCompiler(c))
//	    return &MyBackend{store: store}, store.Reload(context.Background())
//	}
package backend

import (
	"context"

	"github.com/manetu/dataguard/pkg/core/opa"
	"github.com/manetu/dataguard/pkg/policydomain/registry"
)

// Factory creates [Service] instances.
//
// The compiler carries the engine's OPA settings (unsafe built-ins, Rego version) and must be
// used for every row filter the backend compiles.
type Factory interface {
	// NewBackend creates the backend and publishes its first snapshot.
	NewBackend(compiler *opa.Compiler) (Service, error)
}

// Service provides policy snapshots to the engine.
//
// Implementations must be safe for concurrent use.  Snapshot is called once per request and
// must not block.
type Service interface {
	// Snapshot returns the active snapshot.  It is never nil once NewBackend succeeded.
	Snapshot() *registry.Snapshot

	// Reload builds and publishes a new snapshot.  On error the active snapshot is kept.
	Reload(ctx context.Context) error

	// Watch reloads until ctx is done, per opts.
	Watch(ctx context.Context, opts registry.WatchOptions) error

	// OnReload registers a callback for every later reload attempt, including those made
	// by Watch.
	OnReload(observer registry.ReloadObserver)

	// Close releases resources held by the backend, such as caches.  It is safe to call
	// more than once.  Snapshot keeps answering afterwards.
	Close()
}
