//
//  Copyright © Manetu Inc. All rights reserved.
//

package interceptor

import (
	"context"
	"errors"
	"testing"

	"github.com/manetu/dataguard/internal/core/test"
	"github.com/manetu/dataguard/pkg/common"
	"github.com/manetu/dataguard/pkg/core"
	"github.com/manetu/dataguard/pkg/core/accesslog"
	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin = types.Principal{User: "admin"}
	it    = types.Principal{User: "alice", Groups: []string{"IT"}}
	dev   = types.Principal{User: "carol", Groups: []string{"dev"}}
	etl   = types.Principal{User: "loader", Groups: []string{"etl"}}
	anon  = types.Principal{User: "eve"}
)

func newEngine(t *testing.T) core.PolicyEngine {
	t.Helper()
	require.NoError(t, test.ResetTestConfig())
	pe, _, err := test.NewTestPolicyEngine(0, options.WithAccessLog(accesslog.NewNullFactory()))
	require.NoError(t, err)
	t.Cleanup(pe.Close)
	return pe
}

func TestRegistryBuild(t *testing.T) {
	pe := newEngine(t)
	reg := NewRegistry()
	assert.Equal(t, []string{"hbase", "hive"}, reg.Names())

	set, err := reg.Build(pe, []string{"hbase", " hive=warehouse "})
	require.NoError(t, err)
	assert.Equal(t, []string{"hbase", "hive"}, set.Names())
	assert.Equal(t, "hbase", set.Get("hbase").Service())
	assert.Equal(t, "warehouse", set.Get("hive").Service())
	assert.IsType(t, &HBase{}, set.Get("hbase"))
	assert.Nil(t, set.Get("kafka"))

	_, err = reg.Build(pe, []string{"kafka"})
	assert.ErrorContains(t, err, "unknown interceptor 'kafka'")

	_, err = reg.Build(pe, []string{"hive", "hive"})
	assert.ErrorContains(t, err, "configured twice")

	var nilSet *Set
	assert.Nil(t, nilSet.Get("hbase"))
	assert.Empty(t, nilSet.Names())
}

func TestRegistryCustomInterceptor(t *testing.T) {
	pe := newEngine(t)
	reg := NewRegistry()
	reg.Register("hdfs", func(e Evaluator, svc string) Interceptor { return NewHBase(e, svc) })

	set, err := reg.Build(pe, []string{"hdfs"})
	require.NoError(t, err)
	assert.Equal(t, "hdfs", set.Get("hdfs").Service())
}

func TestAccessDeniedError(t *testing.T) {
	err := &AccessDeniedError{User: "bob", Action: types.ActionRead, Resource: types.NewResourcePath("hive", "db"), PolicyIDs: []string{"3", "4"}}
	assert.True(t, errors.Is(err, ErrAccessDenied))
	assert.Equal(t, "access denied: user 'bob' may not read hive/db (policies 3,4)", err.Error())
}

func TestHBaseTableDDL(t *testing.T) {
	h := NewHBase(newEngine(t), "hbase")
	ctx := context.Background()

	assert.NoError(t, h.PreCreateTable(ctx, admin, "temp2"))
	assert.NoError(t, h.PreDropTable(ctx, admin, "temp2"))

	err := h.PreDropTable(ctx, it, "temp2")
	assert.ErrorIs(t, err, ErrAccessDenied)

	// table tag lets developers create temp3 but nothing else
	assert.NoError(t, h.PreCreateTable(ctx, dev, "temp3"))
	assert.ErrorIs(t, h.PreCreateTable(ctx, dev, "temp7"), ErrAccessDenied)
}

func TestHBaseGet(t *testing.T) {
	h := NewHBase(newEngine(t), "hbase")
	ctx := context.Background()

	families, err := h.PreGet(ctx, it, "temp", []string{"colfam1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"colfam1"}, families)

	families, err = h.PreGet(ctx, it, "temp", []string{"colfam1", "colfam2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"colfam1"}, families)

	_, err = h.PreGet(ctx, it, "temp", []string{"colfam2"})
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = h.PreGet(ctx, anon, "temp", []string{"colfam1"})
	var denied *AccessDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "eve", denied.User)

	// whole-row get needs table read
	_, err = h.PreGet(ctx, it, "temp", nil)
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = h.PreGet(ctx, admin, "temp", nil)
	assert.NoError(t, err)

	// tag inherited from temp3/colfam1
	families, err = h.PreGet(ctx, dev, "temp3", []string{"colfam1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"colfam1"}, families)
}

func TestHBaseInvalidRequest(t *testing.T) {
	h := NewHBase(newEngine(t), "hbase")

	_, err := h.PreGet(context.Background(), it, "tem*", []string{"colfam1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAccessDenied)

	var invalid *common.InvalidRequestError
	assert.True(t, errors.As(err, &invalid))
}

func TestHBaseMutations(t *testing.T) {
	h := NewHBase(newEngine(t), "hbase")
	ctx := context.Background()

	assert.ErrorIs(t, h.PrePut(ctx, it, "temp", []Cell{{Family: "colfam1", Qualifier: "col1", Value: []byte("v")}}), ErrAccessDenied)
	assert.NoError(t, h.PrePut(ctx, admin, "temp", []Cell{{Family: "colfam1", Qualifier: "col1"}}))
	assert.NoError(t, h.PrePut(ctx, etl, "stage_orders", []Cell{{Family: "f", Qualifier: "q"}, {Family: "g"}}))
	assert.ErrorIs(t, h.PrePut(ctx, etl, "orders", nil), ErrAccessDenied)

	// column tag grants write on col1 only
	assert.NoError(t, h.PrePut(ctx, dev, "temp3", []Cell{{Family: "colfam1", Qualifier: "col1"}}))
	assert.ErrorIs(t, h.PrePut(ctx, dev, "temp3", []Cell{{Family: "colfam1", Qualifier: "col1"}, {Family: "colfam1", Qualifier: "col2"}}), ErrAccessDenied)

	assert.NoError(t, h.PreDelete(ctx, admin, "temp", nil))
	assert.ErrorIs(t, h.PreDelete(ctx, it, "temp", nil), ErrAccessDenied)
	assert.ErrorIs(t, h.PreDelete(ctx, it, "temp", []string{"colfam1"}), ErrAccessDenied)
}

func TestHBaseScanAndList(t *testing.T) {
	h := NewHBase(newEngine(t), "hbase")
	ctx := context.Background()

	rows := []Row{
		{Key: "row1", Cells: []Cell{
			{Family: "colfam1", Qualifier: "col1", Value: []byte("val1")},
			{Family: "colfam2", Qualifier: "col1", Value: []byte("val2")},
		}},
		{Key: "row2", Cells: []Cell{
			{Family: "colfam2", Qualifier: "col1", Value: []byte("val3")},
		}},
	}

	visible, err := h.PostScanFilter(ctx, it, "temp", rows)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "row1", visible[0].Key)
	assert.Equal(t, []Cell{{Family: "colfam1", Qualifier: "col1", Value: []byte("val1")}}, visible[0].Cells)
	assert.Len(t, rows[0].Cells, 2, "input rows are not modified")

	visible, err = h.PostScanFilter(ctx, admin, "temp", rows)
	require.NoError(t, err)
	assert.Equal(t, rows, visible)

	tables, err := h.ListTables(ctx, it, []string{"temp", "temp5"})
	require.NoError(t, err)
	assert.Empty(t, tables)

	tables, err = h.ListTables(ctx, admin, []string{"temp", "temp5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"temp", "temp5"}, tables)
}

func TestParseHiveOperation(t *testing.T) {
	tests := []struct {
		in      string
		want    HiveOperation
		wantErr bool
	}{
		{"select", HiveSelect, false},
		{" QUERY ", HiveQuery, false},
		{"alterTable_addCols", HiveAlterTable, false},
		{"CREATEDATABASE", HiveCreateDatabase, false},
		{"SHOWTABLES", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			op, err := ParseHiveOperation(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
		})
	}
}

func TestHiveCheckPrivileges(t *testing.T) {
	h := NewHive(newEngine(t), "hive")
	ctx := context.Background()
	bob := types.Principal{User: "bob"}
	dave := types.Principal{User: "dave"}
	zoe := types.Principal{User: "zoe"}
	words := HiveObject{Database: "default", Table: "words", Columns: []string{"word", "count"}}

	tests := []struct {
		name      string
		principal types.Principal
		op        HiveOperation
		objects   []HiveObject
		denied    bool
	}{
		{"bob selects all", bob, HiveQuery, []HiveObject{words}, false},
		{"alice selects all", types.Principal{User: "alice"}, HiveQuery, []HiveObject{words}, true},
		{"IT selects count", it, HiveSelect, []HiveObject{{Database: "default", Table: "words", Columns: []string{"count"}}}, false},
		{"IT selects word", it, HiveSelect, []HiveObject{{Database: "default", Table: "words", Columns: []string{"word"}}}, true},
		{"bob inserts", bob, HiveInsert, []HiveObject{{Database: "default", Table: "words"}}, false},
		{"dave inserts", dave, HiveInsert, []HiveObject{{Database: "default", Table: "words"}}, true},
		{"admin creates database", admin, HiveCreateDatabase, []HiveObject{{Database: "admintemp"}}, false},
		{"bob creates database", bob, HiveCreateDatabase, []HiveObject{{Database: "bobtemp"}}, true},
		{"bob reads another database", bob, HiveSelect, []HiveObject{{Database: "admintemp", Table: "words"}}, true},
		{"bob alters words2", bob, HiveAlterTable, []HiveObject{{Database: "default", Table: "words2"}}, true},
		{"admin alters words2", admin, HiveAlterTable, []HiveObject{{Database: "default", Table: "words2"}}, false},
		{"public reads tagged table", zoe, HiveSelect, []HiveObject{{Database: "tagdb", Table: "tagged"}}, false},
		{"public reads untagged table", zoe, HiveSelect, []HiveObject{{Database: "tagdb", Table: "other"}}, true},
		{"developer creates in tagged database", dev, HiveCreateTable, []HiveObject{{Database: "tagdb", Table: "new"}}, false},
		{"one denied object refuses all", bob, HiveSelect, []HiveObject{words, {Database: "tagdb", Table: "other"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.CheckPrivileges(ctx, tt.principal, tt.op, tt.objects)
			if tt.denied {
				assert.ErrorIs(t, err, ErrAccessDenied)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.ErrorContains(t, h.CheckPrivileges(ctx, bob, "SHOWTABLES", []HiveObject{words}), "unsupported")
	assert.ErrorContains(t, h.CheckPrivileges(ctx, bob, HiveSelect, nil), "no objects")
}

func TestHiveApplyRowPolicies(t *testing.T) {
	h := NewHive(newEngine(t), "hive")
	ctx := context.Background()

	rows := []map[string]interface{}{
		{"word": "Mr.", "count": 100},
		{"word": "Mrs.", "count": 79},
	}

	out, err := h.ApplyRowPolicies(ctx, types.Principal{User: "bob"}, "default", "words", rows)
	require.NoError(t, err)
	assert.Equal(t, rows, out)

	out, err = h.ApplyRowPolicies(ctx, types.Principal{User: "dave"}, "default", "words", rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 100, out[0]["count"])

	out, err = h.ApplyRowPolicies(ctx, types.Principal{User: "jane"}, "default", "words", rows)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "127469a6b4253ebb77adccc0dd48461e", out[0]["word"])
	assert.Equal(t, 100, out[0]["count"])
	assert.Equal(t, "Mr.", rows[0]["word"], "input rows are not modified")

	_, err = h.ApplyRowPolicies(ctx, types.Principal{User: "mallory"}, "default", "words", rows)
	assert.ErrorIs(t, err, ErrAccessDenied)
}
