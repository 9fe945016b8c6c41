// Package querysql compiles journal queries to parameterized SQLite SQL.
package querysql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/team-wildflyer/mapsync/internal/queryir"
)

// columns maps filter fields to their qualified columns.
var columns = map[queryir.Field]string{
	queryir.FieldTrigger:   "p.trigger",
	queryir.FieldPassToken: "p.token",
	queryir.FieldOp:        "m.op",
	queryir.FieldTargetID:  "m.target_id",
}

// orderBy is appended to every query: journal order, with a binary
// collation tiebreak on the token.
const orderBy = " ORDER BY p.seq ASC, p.token COLLATE BINARY ASC, m.idx ASC"

// Compile converts a query to SQL and its parameters. The query is
// validated first.
//
// Values are always passed as ? parameters, never interpolated.
func Compile(q queryir.Query) (string, []any, error) {
	if errs := queryir.Validate(q); len(errs) > 0 {
		return "", nil, fmt.Errorf("invalid query: %w", errors.Join(errs...))
	}

	var sel queryir.Select
	switch query := q.(type) {
	case queryir.Select:
		sel = query
	case *queryir.Select:
		sel = *query
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}

	var b strings.Builder
	b.WriteString("SELECT p.token, p.seq, p.trigger, m.op, m.target_id, m.before_id, m.error")
	b.WriteString(" FROM mutations m INNER JOIN passes p ON m.pass_token = p.token")

	var params []any
	if sel.Filter != nil {
		where, whereParams, err := compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
		params = whereParams
	}

	b.WriteString(orderBy)
	if sel.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, sel.Limit)
	}
	return b.String(), params, nil
}

// compilePredicate compiles a predicate to a WHERE fragment.
func compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.And:
		return compileAnd(pred)
	case *queryir.And:
		return compileAnd(*pred)
	case queryir.Failed, *queryir.Failed:
		return "m.error <> ''", nil, nil
	case queryir.SeqAtLeast:
		return "p.seq >= ?", []any{pred.Seq}, nil
	case *queryir.SeqAtLeast:
		return "p.seq >= ?", []any{pred.Seq}, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq queryir.Equals) (string, []any, error) {
	col, ok := columns[eq.Field]
	if !ok {
		return "", nil, fmt.Errorf("unknown field %q", eq.Field)
	}
	return col + " = ?", []any{eq.Value}, nil
}

// compileAnd joins sub-predicates with AND. An empty And is always true.
func compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, predParams, err := compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		if len(and.Predicates) > 1 {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
		params = append(params, predParams...)
	}
	return strings.Join(parts, " AND "), params, nil
}
