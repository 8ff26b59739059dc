package core

import (
	"fmt"
	"strings"
)

// QueryOperator identifies the kind of a Query node
type QueryOperator string

const (
	QueryAll      QueryOperator = "ALL"      // every document
	QueryAnd      QueryOperator = "AND"      // all children match
	QueryOr       QueryOperator = "OR"       // at least one child matches
	QueryNot      QueryOperator = "NOT"      // no child matches
	QueryTerm     QueryOperator = "TERM"     // Field equals Value exactly
	QueryWildcard QueryOperator = "WILDCARD" // Field matches the Value pattern (*, ?)
	QueryNested   QueryOperator = "NESTED"   // some element of array Field matches the single child
	QueryIDs      QueryOperator = "IDS"      // document id is one of Values
)

// Query is a node of a structured boolean query over the index.
// Fields are dotted document paths; inside a NESTED node, fields are written
// with the nested path as prefix ("tags.name").
type Query struct {
	Operator QueryOperator
	Field    string
	Value    string
	Values   []string
	Children []*Query
}

// MatchAll returns a query matching every document
func MatchAll() *Query {
	return &Query{Operator: QueryAll}
}

// And returns a query matching documents that match every child
func And(children ...*Query) *Query {
	return &Query{Operator: QueryAnd, Children: children}
}

// Or returns a query matching documents that match any child
func Or(children ...*Query) *Query {
	return &Query{Operator: QueryOr, Children: children}
}

// Not returns a query matching documents that match none of the children
func Not(children ...*Query) *Query {
	return &Query{Operator: QueryNot, Children: children}
}

// Term returns an exact-match query
func Term(field, value string) *Query {
	return &Query{Operator: QueryTerm, Field: field, Value: value}
}

// Wildcard returns a pattern query. '*' matches any run of characters,
// '?' exactly one, and '\' escapes the following character.
func Wildcard(field, pattern string) *Query {
	return &Query{Operator: QueryWildcard, Field: field, Value: pattern}
}

// Nested returns a query matching documents where at least one element of
// the array at path satisfies q on its own.
func Nested(path string, q *Query) *Query {
	return &Query{Operator: QueryNested, Field: path, Children: []*Query{q}}
}

// IDs returns a query matching the documents with the given ids
func IDs(ids ...string) *Query {
	return &Query{Operator: QueryIDs, Values: ids}
}

// String renders the query in a compact prefix form, used in logs and tests
func (q *Query) String() string {
	if q == nil {
		return "<nil>"
	}
	switch q.Operator {
	case QueryAll:
		return "ALL"
	case QueryTerm:
		return fmt.Sprintf("%s=%q", q.Field, q.Value)
	case QueryWildcard:
		return fmt.Sprintf("%s~%q", q.Field, q.Value)
	case QueryIDs:
		return fmt.Sprintf("IDS(%s)", strings.Join(q.Values, ","))
	case QueryNested:
		parts := make([]string, len(q.Children))
		for i, c := range q.Children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("NESTED[%s](%s)", q.Field, strings.Join(parts, " "))
	default:
		parts := make([]string, len(q.Children))
		for i, c := range q.Children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("%s(%s)", q.Operator, strings.Join(parts, " "))
	}
}

// SortField orders search hits by a document field
type SortField struct {
	Field string
	Desc  bool
}

// SearchRequest is a fully specified query plan against one index
type SearchRequest struct {
	Index       string
	Query       *Query
	From        int
	Size        int
	Sort        []SortField
	SearchAfter []string // sort values of the last hit of the previous page
}

// Hit is one search result
type Hit struct {
	ID     string
	Source []byte
	Sort   []string
}

// SearchResponse holds ordered hits
type SearchResponse struct {
	Hits []Hit
}

// Cursor returns the sort values of the last hit, to be passed as
// SearchAfter for the next page. It is nil when there are no hits.
func (r *SearchResponse) Cursor() []string {
	if r == nil || len(r.Hits) == 0 {
		return nil
	}
	return r.Hits[len(r.Hits)-1].Sort
}
