//
//  Copyright © Manetu Inc. All rights reserved.
//

package interceptor

import (
	"context"
	"strings"

	"github.com/manetu/dataguard/pkg/core/types"
	"github.com/pkg/errors"
)

// HiveOperation is a compiled HiveQL statement type.
type HiveOperation string

// Operations checked by CheckPrivileges.
const (
	HiveQuery          HiveOperation = "QUERY"
	HiveSelect         HiveOperation = "SELECT"
	HiveInsert         HiveOperation = "INSERT"
	HiveLoad           HiveOperation = "LOAD"
	HiveCreateDatabase HiveOperation = "CREATEDATABASE"
	HiveDropDatabase   HiveOperation = "DROPDATABASE"
	HiveCreateTable    HiveOperation = "CREATETABLE"
	HiveDropTable      HiveOperation = "DROPTABLE"
	HiveAlterTable     HiveOperation = "ALTERTABLE"
)

var hiveActions = map[HiveOperation]types.Action{
	HiveQuery:          types.ActionRead,
	HiveSelect:         types.ActionRead,
	HiveInsert:         types.ActionWrite,
	HiveLoad:           types.ActionWrite,
	HiveCreateDatabase: types.ActionCreate,
	HiveDropDatabase:   types.ActionDrop,
	HiveCreateTable:    types.ActionCreate,
	HiveDropTable:      types.ActionDrop,
	HiveAlterTable:     types.ActionAlter,
}

// ParseHiveOperation accepts operation names case-insensitively; "ALTERTABLE_ADDCOLS" style
// subtypes map to their base operation.
func ParseHiveOperation(s string) (HiveOperation, error) {
	op := HiveOperation(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := hiveActions[op]; ok {
		return op, nil
	}
	if base, _, found := strings.Cut(string(op), "_"); found {
		if _, ok := hiveActions[HiveOperation(base)]; ok {
			return HiveOperation(base), nil
		}
	}
	return "", errors.Errorf("unsupported hive operation '%s'", s)
}

// HiveObject is a database, table or set of columns a statement reads or writes.
type HiveObject struct {
	Database string   `json:"database"`
	Table    string   `json:"table,omitempty"`
	Columns  []string `json:"columns,omitempty"`
}

func (o HiveObject) paths(service string) []types.ResourcePath {
	switch {
	case o.Table == "":
		return []types.ResourcePath{types.NewResourcePath(service, o.Database)}
	case len(o.Columns) == 0:
		return []types.ResourcePath{types.NewResourcePath(service, o.Database, o.Table)}
	}
	out := make([]types.ResourcePath, 0, len(o.Columns))
	for _, c := range o.Columns {
		out = append(out, types.NewResourcePath(service, o.Database, o.Table, c))
	}
	return out
}

// Hive is a HiveServer2 authorization hook: CheckPrivileges guards compiled statements and
// ApplyRowPolicies enforces row filters and column masks on result rows.
type Hive struct {
	engine  Evaluator
	service string
}

// NewHive guards service with engine.
func NewHive(engine Evaluator, service string) *Hive {
	return &Hive{engine: engine, service: service}
}

// Name implements Interceptor.
func (h *Hive) Name() string { return "hive" }

// Service implements Interceptor.
func (h *Hive) Service() string { return h.service }

// CheckPrivileges authorizes op over its objects.  Reads are checked against every selected
// column; everything else against the named object.  The first denial refuses the statement.
func (h *Hive) CheckPrivileges(ctx context.Context, principal types.Principal, op HiveOperation, objects []HiveObject) error {
	action, ok := hiveActions[op]
	if !ok {
		return errors.Errorf("unsupported hive operation '%s'", op)
	}
	if len(objects) == 0 {
		return errors.Errorf("%s names no objects", op)
	}

	for _, o := range objects {
		for _, p := range o.paths(h.service) {
			if _, err := guard(ctx, h.engine, principal, action, p); err != nil {
				logger.Debugf("hive", "checkPrivileges", "%s refused: %v", op, err)
				return err
			}
		}
	}
	return nil
}

// ApplyRowPolicies returns the rows of database.table the principal may see, with column
// masks applied.  Input rows are not modified.
func (h *Hive) ApplyRowPolicies(ctx context.Context, principal types.Principal, database, table string, rows []map[string]interface{}) ([]map[string]interface{}, error) {
	d, err := guard(ctx, h.engine, principal, types.ActionRead, types.NewResourcePath(h.service, database, table))
	if err != nil {
		return nil, err
	}

	visible := d.RowFilter.Apply(ctx, rows)
	if len(d.ColumnMasks) == 0 {
		return visible, nil
	}
	out := make([]map[string]interface{}, len(visible))
	for i, row := range visible {
		out[i] = d.MaskRow(row)
	}
	return out, nil
}
