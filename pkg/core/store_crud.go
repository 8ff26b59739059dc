package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// multiGetChunk bounds the number of bound parameters per lookup query
const multiGetChunk = 500

// BulkItem is one document of a bulk request
type BulkItem struct {
	ID  string
	Doc []byte
}

// BulkItemResult is the outcome for one item of a bulk request
type BulkItemResult struct {
	ID     string
	Result Result
	Err    error
}

// BulkResponse holds per-item results in request order
type BulkResponse struct {
	Items []BulkItemResult
}

// Errors reports whether any item failed
func (r *BulkResponse) Errors() bool {
	for _, item := range r.Items {
		if item.Err != nil {
			return true
		}
	}
	return false
}

// Failed returns the number of failed items
func (r *BulkResponse) Failed() int {
	n := 0
	for _, item := range r.Items {
		if item.Err != nil {
			n++
		}
	}
	return n
}

// Err aggregates every item failure under ErrBulkFailure, or returns nil.
// Items that succeeded stay written.
func (r *BulkResponse) Err() error {
	var combined error
	for _, item := range r.Items {
		if item.Err != nil {
			combined = multierr.Append(combined, fmt.Errorf("%s: %w", item.ID, item.Err))
		}
	}
	if combined == nil {
		return nil
	}
	return wrapError("bulk_upsert", fmt.Errorf("%w: %w", ErrBulkFailure, combined))
}

// Get returns the document stored under id
func (s *SQLiteStore) Get(ctx context.Context, index, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("get"); err != nil {
		return nil, err
	}

	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE idx = ? AND id = ?", index, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, wrapError("get", fmt.Errorf("%w: %s/%s", ErrNotFound, index, id))
	}
	if err != nil {
		s.logger.Error("failed to get document", "index", index, "id", id, "error", err)
		return nil, wrapError("get", err)
	}

	return []byte(body), nil
}

// Exists reports whether a document is stored under id
func (s *SQLiteStore) Exists(ctx context.Context, index, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("exists"); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM documents WHERE idx = ? AND id = ?", index, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapError("exists", err)
	}
	return true, nil
}

// MultiGet returns the documents found for ids
func (s *SQLiteStore) MultiGet(ctx context.Context, index string, ids []string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("multi_get"); err != nil {
		return nil, err
	}

	found := make(map[string][]byte, len(ids))
	for start := 0; start < len(ids); start += multiGetChunk {
		end := min(start+multiGetChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, index)
		for _, id := range chunk {
			args = append(args, id)
		}
		query := "SELECT id, body FROM documents WHERE idx = ? AND id IN (" + placeholders(len(chunk)) + ")"

		if err := s.scanDocuments(ctx, query, args, found); err != nil {
			return nil, wrapError("multi_get", err)
		}
	}

	return found, nil
}

func (s *SQLiteStore) scanDocuments(ctx context.Context, query string, args []any, into map[string][]byte) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("failed to close rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return fmt.Errorf("failed to scan document: %w", err)
		}
		into[id] = []byte(body)
	}
	return rows.Err()
}

const upsertSQL = `
	INSERT INTO documents (idx, id, body, version, created_at, updated_at)
	VALUES (?, ?, ?, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(idx, id) DO UPDATE SET
		body = excluded.body,
		version = documents.version + 1,
		updated_at = CURRENT_TIMESTAMP
	RETURNING version
`

// Index creates or fully replaces a single document
func (s *SQLiteStore) Index(ctx context.Context, index, id string, doc []byte) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("index"); err != nil {
		return ResultFailed, err
	}
	if err := validateItem(index, id, doc); err != nil {
		return ResultFailed, wrapError("index", err)
	}

	var version int64
	if err := s.db.QueryRowContext(ctx, upsertSQL, index, id, string(doc)).Scan(&version); err != nil {
		s.logger.Error("failed to index document", "index", index, "id", id, "error", err)
		return ResultFailed, wrapError("index", fmt.Errorf("failed to index document: %w", err))
	}

	return versionResult(version), nil
}

// BulkUpsert writes all items in a single transaction. A failing item does not
// stop the others; the transaction is committed with every item that succeeded.
func (s *SQLiteStore) BulkUpsert(ctx context.Context, index string, items []BulkItem) (*BulkResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("bulk_upsert"); err != nil {
		return nil, err
	}

	resp := &BulkResponse{Items: make([]BulkItemResult, len(items))}
	if len(items) == 0 {
		return resp, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapError("bulk_upsert", fmt.Errorf("failed to begin transaction: %w", err))
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rollErr := tx.Rollback(); rollErr != nil {
			s.logger.Warn("failed to rollback transaction during bulk upsert", "error", rollErr)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return nil, wrapError("bulk_upsert", fmt.Errorf("failed to prepare statement: %w", err))
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			s.logger.Warn("failed to close statement during bulk upsert", "error", closeErr)
		}
	}()

	for i, item := range items {
		resp.Items[i].ID = item.ID
		if err := validateItem(index, item.ID, item.Doc); err != nil {
			resp.Items[i].Result = ResultFailed
			resp.Items[i].Err = err
			continue
		}

		var version int64
		if err := stmt.QueryRowContext(ctx, index, item.ID, string(item.Doc)).Scan(&version); err != nil {
			s.logger.Warn("bulk item failed", "index", index, "id", item.ID, "error", err)
			resp.Items[i].Result = ResultFailed
			resp.Items[i].Err = err
			continue
		}
		resp.Items[i].Result = versionResult(version)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapError("bulk_upsert", fmt.Errorf("failed to commit transaction: %w", err))
	}
	committed = true

	if resp.Errors() {
		s.logger.Error("bulk had errors", "index", index, "items", len(items), "failed", resp.Failed())
	}

	return resp, nil
}

// Delete removes a document and reports whether it existed
func (s *SQLiteStore) Delete(ctx context.Context, index, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("delete"); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE idx = ? AND id = ?", index, id)
	if err != nil {
		s.logger.Error("failed to delete document", "index", index, "id", id, "error", err)
		return false, wrapError("delete", fmt.Errorf("failed to delete document: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapError("delete", err)
	}
	return n > 0, nil
}

// Count returns the number of documents in the index
func (s *SQLiteStore) Count(ctx context.Context, index string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen("count"); err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE idx = ?", index).Scan(&n); err != nil {
		return 0, wrapError("count", err)
	}
	return n, nil
}

func validateItem(index, id string, doc []byte) error {
	if index == "" {
		return fmt.Errorf("%w: index name cannot be empty", ErrInvalidInput)
	}
	if id == "" {
		return fmt.Errorf("%w: document id cannot be empty", ErrInvalidInput)
	}
	if !json.Valid(doc) {
		return fmt.Errorf("%w: document %q is not valid JSON", ErrInvalidInput, id)
	}
	return nil
}

func versionResult(version int64) Result {
	if version <= 1 {
		return ResultCreated
	}
	return ResultUpdated
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
