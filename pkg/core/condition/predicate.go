//
//  Copyright © Manetu Inc. All rights reserved.
//

package condition

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/manetu/dataguard/internal/logging"
	"github.com/manetu/dataguard/pkg/common"
	"github.com/manetu/dataguard/pkg/core/opa"
)

var logger = logging.GetLogger("condition")
var agent = "condition"

// Predicate is a compiled row-filter expression.  It is immutable and safe for concurrent use.
type Predicate struct {
	source string
	root   Node
	refs   []*Comparison
	query  *opa.Query
}

// Compile parses expr and compiles it to Rego with the given compiler.  Syntax errors are
// reported here, so that a bad expression rejects the whole policy load.
func Compile(ctx context.Context, compiler *opa.Compiler, expr string) (*Predicate, error) {
	root, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	module := renderRego(root)
	compiled, err := compiler.Compile(expr, opa.Modules{"rowfilter.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile predicate %q: %w", expr, err)
	}

	query, err := compiled.Prepare(ctx, regoQuery)
	if err != nil {
		return nil, fmt.Errorf("prepare predicate %q: %w", expr, err)
	}

	return &Predicate{
		source: expr,
		root:   root,
		refs:   comparisons(root),
		query:  query,
	}, nil
}

// String returns the expression the predicate was compiled from.
func (p *Predicate) String() string {
	return p.source
}

// Attributes lists the row attributes the predicate reads.
func (p *Predicate) Attributes() []string {
	seen := make(map[string]struct{}, len(p.refs))
	var attrs []string
	for _, c := range p.refs {
		if _, ok := seen[c.Attribute]; !ok {
			seen[c.Attribute] = struct{}{}
			attrs = append(attrs, c.Attribute)
		}
	}
	return attrs
}

// Check evaluates the predicate against row.  An *common.UnknownAttributeError is returned when
// a referenced attribute is absent or has a type its literal cannot be compared with; any other
// error comes from evaluation.  The boolean is false whenever the error is non-nil.
func (p *Predicate) Check(ctx context.Context, row map[string]interface{}) (bool, error) {
	input := make(map[string]interface{}, len(p.refs))
	for _, c := range p.refs {
		raw, ok := row[c.Attribute]
		if !ok {
			return false, &common.UnknownAttributeError{Attribute: c.Attribute, Reason: "not present in row"}
		}
		v, ok := normalize(raw, c.Value.Kind)
		if !ok {
			return false, &common.UnknownAttributeError{
				Attribute: c.Attribute,
				Reason:    fmt.Sprintf("%T is not comparable with %s", raw, c.Value.Kind),
			}
		}
		input[c.Attribute] = v
	}

	ok, perr := p.query.EvalBool(ctx, map[string]interface{}{"row": input})
	if perr != nil {
		return false, perr
	}
	return ok, nil
}

// Evaluate is Check with failures folded into false.
func (p *Predicate) Evaluate(ctx context.Context, row map[string]interface{}) bool {
	ok, err := p.Check(ctx, row)
	if err != nil {
		logger.Debugf(agent, "evaluate", "predicate %q fails closed: %v", p.source, err)
		return false
	}
	return ok
}

// normalize converts a row value into a form OPA compares the same way as the literal kind, or
// reports that the two cannot be compared.
func normalize(v interface{}, kind Kind) (interface{}, bool) {
	if v == nil {
		return nil, false
	}

	switch kind {
	case KindString:
		switch s := v.(type) {
		case string:
			return s, true
		case []byte:
			return string(s), true
		case time.Time:
			return s.Format("2006-01-02"), true
		}
		return nil, false

	case KindBool:
		b, ok := v.(bool)
		return b, ok

	case KindInt:
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i, true
			}
			f, err := n.Float64()
			return f, err == nil
		}
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u := rv.Uint()
			if u > math.MaxInt64 {
				return float64(u), true
			}
			return int64(u), true
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if math.IsNaN(f) {
				return nil, false
			}
			return f, true
		}
	}
	return nil, false
}
