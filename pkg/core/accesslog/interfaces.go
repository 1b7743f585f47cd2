//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package accesslog delivers the access record of every decision made outside of probe mode.
//
// A record names the principal, action and resource, the outcome, the policies with clause
// hits (and whether each came from a resource or a tag), the row filter and the masked columns.
//
// Streams:
//   - [NewStdoutFactory] and [NewIoWriterFactory] write one JSON document per line
//   - [NewSQLiteFactory] inserts rows into an access_log table that [SQLiteStream.Query] reads back
//   - [NewNullFactory] discards records
//
// Other destinations implement [Factory] and [Stream] and are passed to the engine with
// [options.WithAccessLog].
package accesslog

import (
	"github.com/manetu/dataguard/pkg/events"
)

// Factory creates the engine's [Stream].  NewStream is called once, after the configuration
// was loaded, so connections are opened there rather than in the constructor.
type Factory interface {
	NewStream() (Stream, error)
}

// Stream receives access records.  Send is called concurrently by every request being
// decided and must not modify the record.  A failed Send is logged by the engine and the
// decision is still returned.
type Stream interface {
	Send(record *events.AccessRecord) error

	// Close flushes and releases the destination.  The stream is not used afterwards.
	Close()
}
