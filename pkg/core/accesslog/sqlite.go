//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"context"
	"database/sql"
	_ "embed" // schema
	"encoding/json"
	"fmt"
	"sync"

	"github.com/manetu/dataguard/pkg/events"
	"github.com/oarkflow/squealx"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteFactory creates streams that insert records into a SQLite database.
type SQLiteFactory struct {
	path string
}

// SQLiteStream inserts each record as a row of the access_log table.
type SQLiteStream struct {
	raw  *sql.DB
	db   *squealx.DB
	once sync.Once
}

// RecordFilter narrows Query results.  Empty fields match everything.
type RecordFilter struct {
	Subject  string
	Resource string
	Limit    int
}

// NewSQLiteFactory stores records in the database at path; ":memory:" is allowed.
func NewSQLiteFactory(path string) *SQLiteFactory {
	return &SQLiteFactory{path: path}
}

// NewStream implements Factory.  The database is opened and migrated here.
func (f *SQLiteFactory) NewStream() (Stream, error) {
	return OpenSQLiteStream(f.path)
}

// OpenSQLiteStream opens and migrates the database at path.
func OpenSQLiteStream(path string) (*SQLiteStream, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases shared across calls
	sqlDB.SetMaxOpenConns(1)

	db := squealx.NewDb(sqlDB, "sqlite", "accesslog")
	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate access log: %w", err)
	}

	return &SQLiteStream{raw: sqlDB, db: db}, nil
}

// Send implements Stream.
func (s *SQLiteStream) Send(record *events.AccessRecord) error {
	if record == nil {
		return nil
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}

	q := `INSERT INTO access_log(id, timestamp, subject, action, resource, decision, snapshot_version, record_json) VALUES(:id, :timestamp, :subject, :action, :resource, :decision, :snapshot_version, :record_json)`
	_, err = s.db.NamedExecContext(context.Background(), q, map[string]any{
		"id":               record.Metadata.ID,
		"timestamp":        record.Metadata.Timestamp,
		"subject":          record.Principal.Subject,
		"action":           record.Action,
		"resource":         record.Resource,
		"decision":         string(record.Decision),
		"snapshot_version": record.SnapshotVersion,
		"record_json":      string(raw),
	})
	return err
}

// Query returns stored records, newest first.
func (s *SQLiteStream) Query(ctx context.Context, filter RecordFilter) ([]*events.AccessRecord, error) {
	q := `SELECT record_json FROM access_log WHERE 1=1`
	params := map[string]any{}
	if filter.Subject != "" {
		q += " AND subject = :subject"
		params["subject"] = filter.Subject
	}
	if filter.Resource != "" {
		q += " AND resource = :resource"
		params["resource"] = filter.Resource
	}
	q += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}

	rows, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// recordRows is the part of *squealx.Rows that scanRecords reads.
type recordRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanRecords(rows recordRows) ([]*events.AccessRecord, error) {
	var out []*events.AccessRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		record := &events.AccessRecord{}
		if err := json.Unmarshal([]byte(raw), record); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close implements Stream.
func (s *SQLiteStream) Close() {
	s.once.Do(func() {
		_ = s.raw.Close()
	})
}
