// Package core provides the data model and the index store of the channel
// catalog.
//
// The index store keeps one JSON document per resource, keyed by an index
// name and a document id, in a single SQLite database (modernc.org/sqlite, no
// CGO). Structured queries are pushed down to SQL: nested array membership is
// evaluated with json_each, wildcards with GLOB.
//
// # Key Components
//
//   - SQLiteStore: the IndexStore implementation (get, exists, bulk upsert, search, delete).
//   - Query: the boolean query tree (AND/OR/NOT, term, wildcard, nested, ids) consumed by Search.
//   - Channel, Tag, Property: the catalog resources.
//   - Error taxonomy: ErrInvalidInput, ErrNotFound, ErrUnauthorized and StoreError, see Classify.
//
// The store offers no multi-document transactions to its callers. A bulk
// upsert runs in one round trip and may partially succeed; BulkResponse.Err
// reports every failed item.
package core
