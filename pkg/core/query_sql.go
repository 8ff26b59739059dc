package core

import (
	"fmt"
	"regexp"
	"strings"
)

// idField addresses the document id instead of a body field
const idField = "_id"

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// jsonScope is the JSON value fields are resolved against: the document
// body at the top level, or the current array element inside a NESTED node.
type jsonScope struct {
	source string // SQL expression yielding JSON text
	prefix string // nested path plus "." that field names must start with
	nested bool
}

// sqlBuilder converts a Query tree into a SQL boolean expression
type sqlBuilder struct {
	aliases int
}

var documentScope = jsonScope{source: "d.body"}

// BuildSQLFromQuery converts q into a WHERE-clause fragment over the
// documents table aliased as d, with its bound parameters.
func BuildSQLFromQuery(q *Query) (string, []any, error) {
	b := &sqlBuilder{}
	return b.build(q, documentScope)
}

func (b *sqlBuilder) build(q *Query, scope jsonScope) (string, []any, error) {
	if q == nil {
		return "1", nil, nil
	}

	switch q.Operator {
	case QueryAll:
		return "1", nil, nil

	case QueryAnd:
		if len(q.Children) == 0 {
			return "1", nil, nil
		}
		return b.join(q.Children, scope, " AND ")

	case QueryOr:
		if len(q.Children) == 0 {
			return "0", nil, nil
		}
		return b.join(q.Children, scope, " OR ")

	case QueryNot:
		if len(q.Children) == 0 {
			return "1", nil, nil
		}
		clause, params, err := b.join(q.Children, scope, " OR ")
		if err != nil {
			return "", nil, err
		}
		// A NULL comparison must count as "not matched" before negation
		return fmt.Sprintf("NOT COALESCE(%s, 0)", clause), params, nil

	case QueryTerm:
		expr, err := fieldExpr(scope, q.Field)
		if err != nil {
			return "", nil, err
		}
		return expr + " = ?", []any{q.Value}, nil

	case QueryWildcard:
		expr, err := fieldExpr(scope, q.Field)
		if err != nil {
			return "", nil, err
		}
		return expr + " GLOB ?", []any{globPattern(q.Value)}, nil

	case QueryNested:
		if len(q.Children) != 1 {
			return "", nil, fmt.Errorf("%w: nested query on %q needs exactly one child", ErrInvalidQuery, q.Field)
		}
		rel, err := relativeField(scope, q.Field)
		if err != nil {
			return "", nil, err
		}
		b.aliases++
		alias := fmt.Sprintf("n%d", b.aliases)
		inner := jsonScope{source: alias + ".value", prefix: q.Field + ".", nested: true}
		clause, params, err := b.build(q.Children[0], inner)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s, '$.%s') AS %s WHERE %s)",
			scope.source, rel, alias, clause), params, nil

	case QueryIDs:
		if scope.nested {
			return "", nil, fmt.Errorf("%w: ids query inside nested %q", ErrInvalidQuery, strings.TrimSuffix(scope.prefix, "."))
		}
		if len(q.Values) == 0 {
			return "0", nil, nil
		}
		params := make([]any, len(q.Values))
		for i, v := range q.Values {
			params[i] = v
		}
		return "d.id IN (" + placeholders(len(q.Values)) + ")", params, nil

	default:
		return "", nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, q.Operator)
	}
}

func (b *sqlBuilder) join(children []*Query, scope jsonScope, sep string) (string, []any, error) {
	clauses := make([]string, 0, len(children))
	var params []any
	for _, child := range children {
		clause, childParams, err := b.build(child, scope)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "("+clause+")")
		params = append(params, childParams...)
	}
	return "(" + strings.Join(clauses, sep) + ")", params, nil
}

// fieldExpr returns the SQL expression extracting field within scope
func fieldExpr(scope jsonScope, field string) (string, error) {
	if field == idField && !scope.nested {
		return "d.id", nil
	}
	rel, err := relativeField(scope, field)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("json_extract(%s, '$.%s')", scope.source, rel), nil
}

func relativeField(scope jsonScope, field string) (string, error) {
	if !strings.HasPrefix(field, scope.prefix) {
		return "", fmt.Errorf("%w: field %q is outside nested path %q", ErrInvalidQuery, field, strings.TrimSuffix(scope.prefix, "."))
	}
	rel := strings.TrimPrefix(field, scope.prefix)
	if !fieldPattern.MatchString(rel) {
		return "", fmt.Errorf("%w: invalid field name %q", ErrInvalidQuery, field)
	}
	return rel, nil
}

// globPattern translates an index wildcard ('*', '?', '\' escape) into a
// SQLite GLOB pattern in which every other character is literal.
func globPattern(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		if escaped {
			writeGlobLiteral(&b, r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '*', '?':
			b.WriteRune(r)
		default:
			writeGlobLiteral(&b, r)
		}
	}
	if escaped {
		b.WriteRune('\\')
	}
	return b.String()
}

func writeGlobLiteral(b *strings.Builder, r rune) {
	switch r {
	case '*', '?', '[':
		b.WriteByte('[')
		b.WriteRune(r)
		b.WriteByte(']')
	default:
		b.WriteRune(r)
	}
}
