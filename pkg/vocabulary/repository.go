package vocabulary

import (
	"context"
	"errors"
	"fmt"

	"github.com/liliang-cn/channelfinder/internal/encoding"
	"github.com/liliang-cn/channelfinder/pkg/core"
)

// Entry is a vocabulary entry: a tag or property name and its owner
type Entry struct {
	Name  string
	Owner string
}

// Repository manages one name -> owner vocabulary stored in its own index.
// Tags and properties use separate repositories over different indexes.
type Repository struct {
	store  core.IndexStore
	index  string
	kind   string
	logger core.Logger
}

// NewRepository creates a repository over index. kind ("tag", "property")
// names the entries in errors and logs.
func NewRepository(store core.IndexStore, index, kind string, logger core.Logger) (*Repository, error) {
	if store == nil {
		return nil, errors.New("vocabulary: store is required")
	}
	if index == "" {
		return nil, errors.New("vocabulary: index name is required")
	}
	if logger == nil {
		logger = core.NopLogger()
	}
	return &Repository{
		store:  store,
		index:  index,
		kind:   kind,
		logger: logger.With("component", "vocabulary", "index", index),
	}, nil
}

// Kind returns the entry kind served by this repository
func (r *Repository) Kind() string {
	return r.kind
}

// Index creates or replaces one entry
func (r *Repository) Index(ctx context.Context, e Entry) (Entry, error) {
	if err := r.check(e); err != nil {
		return Entry{}, err
	}
	doc, err := encoding.EncodeEntry(e.Name, e.Owner)
	if err != nil {
		return Entry{}, err
	}
	if _, err := r.store.Index(ctx, r.index, e.Name, doc); err != nil {
		return Entry{}, err
	}
	r.logger.Info("entry stored", "kind", r.kind, "name", e.Name, "owner", e.Owner)
	return r.FindByID(ctx, e.Name)
}

// IndexAll creates or replaces entries in one bulk write
func (r *Repository) IndexAll(ctx context.Context, entries []Entry) ([]Entry, error) {
	items := make([]core.BulkItem, len(entries))
	for i, e := range entries {
		if err := r.check(e); err != nil {
			return nil, err
		}
		doc, err := encoding.EncodeEntry(e.Name, e.Owner)
		if err != nil {
			return nil, err
		}
		items[i] = core.BulkItem{ID: e.Name, Doc: doc}
	}

	resp, err := r.store.BulkUpsert(ctx, r.index, items)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		r.logger.Error("bulk write had errors", "kind", r.kind, "items", len(items), "failed", resp.Failed())
		return nil, err
	}

	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// FindByID returns the entry with the given name, or an ErrNotFound error
func (r *Repository) FindByID(ctx context.Context, name string) (Entry, error) {
	data, err := r.store.Get(ctx, r.index, name)
	if err != nil {
		if core.IsNotFound(err) {
			return Entry{}, core.NotFoundf("%s %q does not exist", r.kind, name)
		}
		return Entry{}, err
	}
	n, owner, err := encoding.DecodeEntry(data)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Name: n, Owner: owner}, nil
}

// ExistsByID reports whether an entry with the given name exists
func (r *Repository) ExistsByID(ctx context.Context, name string) (bool, error) {
	return r.store.Exists(ctx, r.index, name)
}

// FindAll returns every entry sorted by name
func (r *Repository) FindAll(ctx context.Context) ([]Entry, error) {
	count, err := r.store.Count(ctx, r.index)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []Entry{}, nil
	}

	resp, err := r.store.Search(ctx, core.SearchRequest{
		Index: r.index,
		Query: core.MatchAll(),
		Size:  count,
		Sort:  []core.SortField{{Field: "name"}},
	})
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		name, owner, err := encoding.DecodeEntry(hit.Source)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", r.kind, hit.ID, err)
		}
		entries = append(entries, Entry{Name: name, Owner: owner})
	}
	return entries, nil
}

// DeleteByID removes an entry, or returns an ErrNotFound error. Channels
// referencing the entry are left as they are.
func (r *Repository) DeleteByID(ctx context.Context, name string) error {
	existed, err := r.store.Delete(ctx, r.index, name)
	if err != nil {
		return err
	}
	if !existed {
		return core.NotFoundf("%s %q does not exist", r.kind, name)
	}
	r.logger.Info("entry deleted", "kind", r.kind, "name", name)
	return nil
}

// Owners returns the owners of the named entries that exist
func (r *Repository) Owners(ctx context.Context, names []string) (map[string]string, error) {
	owners := make(map[string]string, len(names))
	if len(names) == 0 {
		return owners, nil
	}
	docs, err := r.store.MultiGet(ctx, r.index, names)
	if err != nil {
		return nil, err
	}
	for id, data := range docs {
		_, owner, err := encoding.DecodeEntry(data)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", r.kind, id, err)
		}
		owners[id] = owner
	}
	return owners, nil
}

func (r *Repository) check(e Entry) error {
	if e.Name == "" {
		return core.InvalidInputf("%s name cannot be empty", r.kind)
	}
	if e.Owner == "" {
		return core.InvalidInputf("%s %q owner cannot be empty", r.kind, e.Name)
	}
	return nil
}
