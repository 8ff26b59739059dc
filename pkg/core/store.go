package core

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Config represents configuration options for the index store
type Config struct {
	Path            string        `json:"path"`            // Database file path
	BusyTimeout     time.Duration `json:"busyTimeout"`     // How long a writer waits for the lock
	MaxOpenConns    int           `json:"maxOpenConns"`    // Connection pool size
	MaxSearchWindow int           `json:"maxSearchWindow"` // Upper bound for From+Size, 0 = unlimited
	Logger          Logger        `json:"-"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		BusyTimeout:     5 * time.Second,
		MaxOpenConns:    25,
		MaxSearchWindow: 0,
	}
}

// Result reports what a single write did to a document
type Result string

const (
	ResultCreated  Result = "created"
	ResultUpdated  Result = "updated"
	ResultDeleted  Result = "deleted"
	ResultNotFound Result = "not_found"
	ResultFailed   Result = "failed"
)

// IndexStore is the document store the catalog is built on: one JSON
// document per resource, keyed by (index, id). It offers no multi-document
// transactions; every write is visible to reads as soon as it returns.
type IndexStore interface {
	// Get returns the document stored under id, or ErrNotFound
	Get(ctx context.Context, index, id string) ([]byte, error)

	// Exists reports whether a document is stored under id
	Exists(ctx context.Context, index, id string) (bool, error)

	// MultiGet returns the documents found for ids; missing ids are absent from the map
	MultiGet(ctx context.Context, index string, ids []string) (map[string][]byte, error)

	// Index creates or fully replaces a single document
	Index(ctx context.Context, index, id string, doc []byte) (Result, error)

	// BulkUpsert creates or replaces many documents in one round trip.
	// Items fail independently; see BulkResponse.Err.
	BulkUpsert(ctx context.Context, index string, items []BulkItem) (*BulkResponse, error)

	// Search executes a structured query
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)

	// Delete removes a document and reports whether it existed
	Delete(ctx context.Context, index, id string) (bool, error)

	// Count returns the number of documents in the index
	Count(ctx context.Context, index string) (int, error)
}

// SQLiteStore implements IndexStore using SQLite as backend
type SQLiteStore struct {
	db     *sql.DB
	config Config
	mu     sync.RWMutex
	closed bool
	logger Logger
}

var _ IndexStore = (*SQLiteStore)(nil)

// New creates a new SQLite index store at path
func New(path string) (*SQLiteStore, error) {
	config := DefaultConfig()
	config.Path = path

	return NewWithConfig(config)
}

// NewWithConfig creates a new SQLite index store with custom configuration
func NewWithConfig(config Config) (*SQLiteStore, error) {
	if config.Path == "" {
		return nil, wrapError("init", fmt.Errorf("database path cannot be empty"))
	}
	if config.MaxSearchWindow < 0 {
		return nil, wrapError("init", fmt.Errorf("max search window must be non-negative"))
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = DefaultConfig().MaxOpenConns
	}

	logger := config.Logger
	if logger == nil {
		logger = NopLogger()
	}

	return &SQLiteStore{
		config: config,
		logger: logger.With("component", "indexstore"),
	}, nil
}

// GetDB returns the underlying database handle
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

// Config returns the store configuration
func (s *SQLiteStore) Config() Config {
	return s.config
}

func (s *SQLiteStore) checkOpen(op string) error {
	if s.closed || s.db == nil {
		return wrapError(op, ErrStoreClosed)
	}
	return nil
}
