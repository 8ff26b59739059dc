package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Search executes a structured query against one index. Hits are ordered by
// req.Sort (by id when empty) with the id as final tie-break. When
// SearchAfter is set, it positions the page strictly after that sort key and
// From is ignored.
func (s *SQLiteStore) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("search"); err != nil {
		return nil, err
	}

	query, args, err := s.buildSearchSQL(req)
	if err != nil {
		return nil, wrapError("search", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("search failed", "index", req.Index, "query", req.Query.String(), "error", err)
		return nil, wrapError("search", fmt.Errorf("failed to execute search: %w", err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("failed to close rows during search", "error", closeErr)
		}
	}()

	sortFields := effectiveSort(req.Sort)
	resp := &SearchResponse{}
	for rows.Next() {
		var id, body string
		sortVals := make([]sql.NullString, len(sortFields))
		dest := make([]any, 0, 2+len(sortVals))
		dest = append(dest, &id, &body)
		for i := range sortVals {
			dest = append(dest, &sortVals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, wrapError("search", fmt.Errorf("failed to scan hit: %w", err))
		}

		hit := Hit{ID: id, Source: []byte(body), Sort: make([]string, len(sortVals))}
		for i, v := range sortVals {
			hit.Sort[i] = v.String
		}
		resp.Hits = append(resp.Hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("search", err)
	}

	s.logger.Debug("search completed", "index", req.Index, "hits", len(resp.Hits))

	return resp, nil
}

func effectiveSort(sort []SortField) []SortField {
	if len(sort) == 0 {
		return []SortField{{Field: idField}}
	}
	return sort
}

func (s *SQLiteStore) buildSearchSQL(req SearchRequest) (string, []any, error) {
	if req.Index == "" {
		return "", nil, fmt.Errorf("%w: index name cannot be empty", ErrInvalidQuery)
	}
	if req.From < 0 {
		return "", nil, fmt.Errorf("%w: from must be non-negative, got %d", ErrInvalidQuery, req.From)
	}
	if req.Size < 0 {
		return "", nil, fmt.Errorf("%w: size must be non-negative, got %d", ErrInvalidQuery, req.Size)
	}

	from := req.From
	if len(req.SearchAfter) > 0 {
		from = 0
	}
	if window := s.config.MaxSearchWindow; window > 0 && from+req.Size > window {
		return "", nil, fmt.Errorf("%w: from + size must be at most %d, got %d", ErrInvalidQuery, window, from+req.Size)
	}

	where, args, err := BuildSQLFromQuery(req.Query)
	if err != nil {
		return "", nil, err
	}

	sortFields := effectiveSort(req.Sort)
	sortExprs := make([]string, len(sortFields))
	orderBy := make([]string, 0, len(sortFields)+1)
	for i, f := range sortFields {
		expr, err := fieldExpr(documentScope, f.Field)
		if err != nil {
			return "", nil, err
		}
		sortExprs[i] = expr
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		orderBy = append(orderBy, expr+" "+dir)
	}
	if sortFields[len(sortFields)-1].Field != idField {
		dir := "ASC"
		if sortFields[len(sortFields)-1].Desc {
			dir = "DESC"
		}
		orderBy = append(orderBy, "d.id "+dir)
	}

	var b strings.Builder
	b.WriteString("SELECT d.id, d.body")
	for _, expr := range sortExprs {
		b.WriteString(", ")
		b.WriteString(expr)
	}
	b.WriteString(" FROM documents d WHERE d.idx = ? AND ")
	b.WriteString(where)

	params := make([]any, 0, len(args)+len(req.SearchAfter)+3)
	params = append(params, req.Index)
	params = append(params, args...)

	if len(req.SearchAfter) > 0 {
		clause, err := searchAfterClause(sortFields, sortExprs, len(req.SearchAfter))
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" AND ")
		b.WriteString(clause)
		for _, v := range req.SearchAfter {
			params = append(params, v)
		}
	}

	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(orderBy, ", "))
	b.WriteString(" LIMIT ? OFFSET ?")
	params = append(params, req.Size, from)

	return b.String(), params, nil
}

// searchAfterClause compares the sort key as a row value, so every sort
// field must share one direction.
func searchAfterClause(fields []SortField, exprs []string, n int) (string, error) {
	if n != len(fields) {
		return "", fmt.Errorf("%w: search_after has %d values but the sort has %d fields", ErrInvalidQuery, n, len(fields))
	}
	desc := fields[0].Desc
	for _, f := range fields[1:] {
		if f.Desc != desc {
			return "", fmt.Errorf("%w: search_after requires a single sort direction", ErrInvalidQuery)
		}
	}
	op := ">"
	if desc {
		op = "<"
	}
	if n == 1 {
		return fmt.Sprintf("%s %s ?", exprs[0], op), nil
	}
	return fmt.Sprintf("(%s) %s (%s)", strings.Join(exprs, ", "), op, placeholders(n)), nil
}
