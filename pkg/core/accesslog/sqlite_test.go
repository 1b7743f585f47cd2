//
//  Copyright © Manetu Inc. All rights reserved.
//

package accesslog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/manetu/dataguard/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStream(t *testing.T) {
	stream, err := OpenSQLiteStream(":memory:")
	require.NoError(t, err)
	defer stream.Close()

	base := time.Now().Add(-time.Minute)
	for i, r := range []*events.AccessRecord{
		record("alice", "read", "hbase/temp/colfam1", events.Allow),
		record("alice", "write", "hbase/temp/colfam1", events.Deny),
		record("dave", "read", "hive/default/words", events.Allow),
	} {
		r.Metadata.ID = r.Metadata.ID + ":" + r.Action
		r.Metadata.Timestamp = base.Add(time.Duration(i) * time.Second)
		r.SnapshotVersion = 3
		require.NoError(t, stream.Send(r))
	}

	ctx := context.Background()
	all, err := stream.Query(ctx, RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "dave", all[0].Principal.Subject, "newest first")

	alice, err := stream.Query(ctx, RecordFilter{Subject: "alice"})
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, events.Deny, alice[0].Decision)
	assert.Equal(t, uint64(3), alice[0].SnapshotVersion)

	words, err := stream.Query(ctx, RecordFilter{Resource: "hive/default/words", Limit: 1})
	require.NoError(t, err)
	require.Len(t, words, 1)

	assert.NoError(t, stream.Send(nil))
}

func TestSQLiteFactory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	factory := NewSQLiteFactory(path)

	stream, err := factory.NewStream()
	require.NoError(t, err)
	require.NoError(t, stream.Send(record("bob", "write", "hive/default/words", events.Allow)))
	stream.Close()
	stream.Close()

	// records survive reopening the file
	reopened, err := OpenSQLiteStream(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Query(context.Background(), RecordFilter{Subject: "bob"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "write", records[0].Action)
}

func TestSQLiteDuplicateID(t *testing.T) {
	stream, err := OpenSQLiteStream(":memory:")
	require.NoError(t, err)
	defer stream.Close()

	r := record("alice", "read", "hbase/temp", events.Allow)
	require.NoError(t, stream.Send(r))
	assert.Error(t, stream.Send(r))
}

type failingRows struct {
	raw []string
	err error
}

func (r *failingRows) Next() bool {
	return len(r.raw) > 0
}

func (r *failingRows) Scan(dest ...interface{}) error {
	*(dest[0].(*string)) = r.raw[0]
	r.raw = r.raw[1:]
	return nil
}

func (r *failingRows) Err() error {
	return r.err
}

func TestScanRecordsIterationError(t *testing.T) {
	rows := &failingRows{
		raw: []string{`{"action":"read","resource":"hbase/temp"}`},
		err: errors.New("disk I/O error"),
	}
	records, err := scanRecords(rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Nil(t, records)

	records, err = scanRecords(&failingRows{raw: []string{`{"action":"read","resource":"hbase/temp"}`}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "hbase/temp", records[0].Resource)
}
