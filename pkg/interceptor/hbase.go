//
//  Copyright © Manetu Inc. All rights reserved.
//

package interceptor

import (
	"context"
	"errors"

	"github.com/manetu/dataguard/pkg/core/options"
	"github.com/manetu/dataguard/pkg/core/types"
)

var hbaseAgent = "hbase"

// Cell is one HBase cell.  An empty Qualifier addresses the whole column family.
type Cell struct {
	Family    string `json:"family"`
	Qualifier string `json:"qualifier,omitempty"`
	Value     []byte `json:"value,omitempty"`
}

// Row is a row key with its cells.
type Row struct {
	Key   string `json:"key"`
	Cells []Cell `json:"cells"`
}

// HBase maps HBase master and region observer hooks onto access requests:
// table DDL to create/drop, Get and Scan to read, Put and Delete to write.
type HBase struct {
	engine  Evaluator
	service string
}

// NewHBase guards service with engine.
func NewHBase(engine Evaluator, service string) *HBase {
	return &HBase{engine: engine, service: service}
}

// Name implements Interceptor.
func (h *HBase) Name() string { return "hbase" }

// Service implements Interceptor.
func (h *HBase) Service() string { return h.service }

func (h *HBase) path(segments ...string) types.ResourcePath {
	return types.NewResourcePath(h.service, segments...)
}

func cellPath(h *HBase, table string, c Cell) types.ResourcePath {
	if c.Qualifier == "" {
		return h.path(table, c.Family)
	}
	return h.path(table, c.Family, c.Qualifier)
}

// PreCreateTable checks create on table.
func (h *HBase) PreCreateTable(ctx context.Context, principal types.Principal, table string) error {
	_, err := guard(ctx, h.engine, principal, types.ActionCreate, h.path(table))
	return err
}

// PreDropTable checks drop on table.
func (h *HBase) PreDropTable(ctx context.Context, principal types.Principal, table string) error {
	_, err := guard(ctx, h.engine, principal, types.ActionDrop, h.path(table))
	return err
}

// PreGet checks read for a Get on families (all families when empty) and returns the
// families that may be returned.  Unreadable families are dropped from the result the way a
// region observer trims a Get; only when none remains is the Get refused.
func (h *HBase) PreGet(ctx context.Context, principal types.Principal, table string, families []string) ([]string, error) {
	if len(families) == 0 {
		if _, err := guard(ctx, h.engine, principal, types.ActionRead, h.path(table)); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var (
		readable []string
		denied   error
	)
	for _, f := range families {
		_, err := guard(ctx, h.engine, principal, types.ActionRead, h.path(table, f))
		switch {
		case err == nil:
			readable = append(readable, f)
		case errors.Is(err, ErrAccessDenied):
			logger.Debugf(hbaseAgent, "preGet", "%s may not read %s:%s", principal.User, table, f)
			if denied == nil {
				denied = err
			}
		default:
			return nil, err
		}
	}
	if len(readable) == 0 {
		return nil, denied
	}
	return readable, nil
}

// PrePut checks write on every cell of a Put.  One denied cell refuses the whole mutation.
func (h *HBase) PrePut(ctx context.Context, principal types.Principal, table string, cells []Cell) error {
	if len(cells) == 0 {
		_, err := guard(ctx, h.engine, principal, types.ActionWrite, h.path(table))
		return err
	}
	for _, c := range cells {
		if _, err := guard(ctx, h.engine, principal, types.ActionWrite, cellPath(h, table, c)); err != nil {
			return err
		}
	}
	return nil
}

// PreDelete checks write on the families a Delete touches, or on the table for a whole-row
// delete.
func (h *HBase) PreDelete(ctx context.Context, principal types.Principal, table string, families []string) error {
	if len(families) == 0 {
		_, err := guard(ctx, h.engine, principal, types.ActionWrite, h.path(table))
		return err
	}
	for _, f := range families {
		if _, err := guard(ctx, h.engine, principal, types.ActionWrite, h.path(table, f)); err != nil {
			return err
		}
	}
	return nil
}

// PostScanFilter removes the cells of rows the principal may not read.  Rows left without
// cells are dropped.  Each distinct column is decided once per call.
func (h *HBase) PostScanFilter(ctx context.Context, principal types.Principal, table string, rows []Row) ([]Row, error) {
	visible := make(map[string]bool)
	readable := func(c Cell) (bool, error) {
		key := c.Family + ":" + c.Qualifier
		if ok, seen := visible[key]; seen {
			return ok, nil
		}
		_, err := guard(ctx, h.engine, principal, types.ActionRead, cellPath(h, table, c))
		if err != nil && !errors.Is(err, ErrAccessDenied) {
			return false, err
		}
		visible[key] = err == nil
		return err == nil, nil
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		kept := Row{Key: row.Key}
		for _, c := range row.Cells {
			ok, err := readable(c)
			if err != nil {
				return nil, err
			}
			if ok {
				kept.Cells = append(kept.Cells, c)
			}
		}
		if len(kept.Cells) > 0 {
			out = append(out, kept)
		}
	}
	return out, nil
}

// ListTables returns the tables the principal may read.  It probes, so listing leaves no
// access records.
func (h *HBase) ListTables(ctx context.Context, principal types.Principal, tables []string) ([]string, error) {
	var out []string
	for _, t := range tables {
		_, err := guard(ctx, h.engine, principal, types.ActionRead, h.path(t), options.SetProbeMode(true))
		switch {
		case err == nil:
			out = append(out, t)
		case !errors.Is(err, ErrAccessDenied):
			return nil, err
		}
	}
	return out, nil
}
