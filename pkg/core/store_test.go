package core

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIndex = "channelfinder"

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func channelDoc(name, owner string) []byte {
	return []byte(fmt.Sprintf(`{"name":%q,"owner":%q,"properties":[],"tags":[]}`, name, owner))
}

func TestNewWithConfigValidation(t *testing.T) {
	_, err := NewWithConfig(Config{})
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Path = "x.db"
	cfg.MaxSearchWindow = -1
	_, err = NewWithConfig(cfg)
	assert.Error(t, err)
}

func TestStoreClosed(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.Get(context.Background(), testIndex, "a")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.Equal(t, ClassStore, Classify(err))
}

func TestIndexAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	res, err := store.Index(ctx, testIndex, "c1", channelDoc("c1", "dave"))
	require.NoError(t, err)
	assert.Equal(t, ResultCreated, res)

	res, err = store.Index(ctx, testIndex, "c1", channelDoc("c1", "erin"))
	require.NoError(t, err)
	assert.Equal(t, ResultUpdated, res)

	body, err := store.Get(ctx, testIndex, "c1")
	require.NoError(t, err)
	assert.JSONEq(t, string(channelDoc("c1", "erin")), string(body))

	// Indices are separate namespaces
	_, err = store.Get(ctx, "cf_tags", "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))

	ok, err := store.Exists(ctx, testIndex, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, testIndex, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndexRejectsInvalidDocuments(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Index(ctx, testIndex, "", channelDoc("", "x"))
	assert.True(t, IsInvalidInput(err))

	_, err = store.Index(ctx, testIndex, "c1", []byte("{broken"))
	assert.True(t, IsInvalidInput(err))
}

func TestMultiGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, name := range []string{"a", "b", "c"} {
		_, err := store.Index(ctx, testIndex, name, channelDoc(name, "o"))
		require.NoError(t, err)
	}

	docs, err := store.MultiGet(ctx, testIndex, []string{"a", "c", "zzz"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Contains(t, docs, "a")
	assert.Contains(t, docs, "c")
	assert.NotContains(t, docs, "zzz")

	docs, err = store.MultiGet(ctx, testIndex, nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMultiGetChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	n := multiGetChunk + 20
	items := make([]BulkItem, n)
	ids := make([]string, n)
	for i := range items {
		ids[i] = fmt.Sprintf("ch-%04d", i)
		items[i] = BulkItem{ID: ids[i], Doc: channelDoc(ids[i], "o")}
	}
	resp, err := store.BulkUpsert(ctx, testIndex, items)
	require.NoError(t, err)
	require.NoError(t, resp.Err())

	docs, err := store.MultiGet(ctx, testIndex, ids)
	require.NoError(t, err)
	assert.Len(t, docs, n)
}

func TestBulkUpsertPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Index(ctx, testIndex, "existing", channelDoc("existing", "o"))
	require.NoError(t, err)

	resp, err := store.BulkUpsert(ctx, testIndex, []BulkItem{
		{ID: "new", Doc: channelDoc("new", "o")},
		{ID: "bad", Doc: []byte("not json")},
		{ID: "existing", Doc: channelDoc("existing", "p")},
	})
	require.NoError(t, err)
	require.Len(t, resp.Items, 3)

	assert.Equal(t, ResultCreated, resp.Items[0].Result)
	assert.Equal(t, ResultFailed, resp.Items[1].Result)
	assert.Equal(t, ResultUpdated, resp.Items[2].Result)
	assert.True(t, resp.Errors())
	assert.Equal(t, 1, resp.Failed())

	bulkErr := resp.Err()
	require.Error(t, bulkErr)
	assert.ErrorIs(t, bulkErr, ErrBulkFailure)
	assert.Contains(t, bulkErr.Error(), "bad")
	assert.Equal(t, ClassStore, Classify(bulkErr), "invalid item errors must not reclassify a bulk failure")

	// Items that succeeded stay written
	count, err := store.Count(ctx, testIndex)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBulkUpsertEmpty(t *testing.T) {
	store := newTestStore(t)

	resp, err := store.BulkUpsert(context.Background(), testIndex, nil)
	require.NoError(t, err)
	assert.False(t, resp.Errors())
	assert.NoError(t, resp.Err())
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Index(ctx, testIndex, "c1", channelDoc("c1", "o"))
	require.NoError(t, err)

	existed, err := store.Delete(ctx, testIndex, "c1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Delete(ctx, testIndex, "c1")
	require.NoError(t, err)
	assert.False(t, existed)

	// A deleted document is created afresh
	res, err := store.Index(ctx, testIndex, "c1", channelDoc("c1", "o"))
	require.NoError(t, err)
	assert.Equal(t, ResultCreated, res)
}

func TestInitIsIdempotentAndPersistent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.Init(ctx))
	_, err = store.Index(ctx, testIndex, "c1", channelDoc("c1", "o"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	require.NoError(t, reopened.Init(ctx))
	defer reopened.Close()

	count, err := reopened.Count(ctx, testIndex)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
