package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChannels(t *testing.T, store *SQLiteStore) {
	t.Helper()

	docs := map[string]string{
		"SR:C01-BI:G02A<BPM:L1>Pos-X": `{"name":"SR:C01-BI:G02A<BPM:L1>Pos-X","owner":"dave",
			"properties":[{"name":"Loc","owner":"carol","value":"building7"},{"name":"Cell","owner":"carol","value":"01"}],
			"tags":[{"name":"T1","owner":"bob"}]}`,
		"SR:C02-BI:G02A<BPM:L1>Pos-X": `{"name":"SR:C02-BI:G02A<BPM:L1>Pos-X","owner":"dave",
			"properties":[{"name":"Loc","owner":"carol","value":"building8"},{"name":"Cell","owner":"carol","value":"02"}],
			"tags":[{"name":"T1","owner":"bob"},{"name":"T2","owner":"bob"}]}`,
		"BR:C01-MG:QF1": `{"name":"BR:C01-MG:QF1","owner":"erin",
			"properties":[{"name":"Loc","owner":"carol","value":"booster"}],
			"tags":[]}`,
		"weird*name": `{"name":"weird*name","owner":"erin","properties":[],"tags":[]}`,
	}

	items := make([]BulkItem, 0, len(docs))
	for id, doc := range docs {
		items = append(items, BulkItem{ID: id, Doc: []byte(doc)})
	}
	resp, err := store.BulkUpsert(context.Background(), testIndex, items)
	require.NoError(t, err)
	require.NoError(t, resp.Err())
}

func searchIDs(t *testing.T, store *SQLiteStore, q *Query) []string {
	t.Helper()

	resp, err := store.Search(context.Background(), SearchRequest{
		Index: testIndex,
		Query: q,
		Size:  100,
		Sort:  []SortField{{Field: "name"}},
	})
	require.NoError(t, err)

	ids := make([]string, len(resp.Hits))
	for i, h := range resp.Hits {
		ids[i] = h.ID
	}
	return ids
}

func TestSearchQueries(t *testing.T) {
	store := newTestStore(t)
	seedChannels(t, store)

	c01 := "SR:C01-BI:G02A<BPM:L1>Pos-X"
	c02 := "SR:C02-BI:G02A<BPM:L1>Pos-X"
	booster := "BR:C01-MG:QF1"
	weird := "weird*name"

	tests := []struct {
		name  string
		query *Query
		want  []string
	}{
		{"match all", MatchAll(), []string{booster, c01, c02, weird}},
		{"nil query", nil, []string{booster, c01, c02, weird}},
		{"name wildcard", Wildcard("name", "SR:C0*"), []string{c01, c02}},
		{"single char wildcard", Wildcard("name", "SR:C0?-BI*"), []string{c01, c02}},
		{"case sensitive", Wildcard("name", "sr:*"), []string{}},
		{"escaped star", Wildcard("name", `weird\*name`), []string{weird}},
		{"angle brackets are literal", Wildcard("name", "*<BPM*"), []string{c01, c02}},
		{"term owner", Term("owner", "erin"), []string{booster, weird}},
		{"tag nested", Nested("tags", Wildcard("tags.name", "T2")), []string{c02}},
		{
			"property nested pairs name and value in one element",
			Nested("properties", And(Term("properties.name", "Cell"), Wildcard("properties.value", "0*"))),
			[]string{c01, c02},
		},
		{
			"property name and value of different elements do not match",
			Nested("properties", And(Term("properties.name", "Cell"), Wildcard("properties.value", "building*"))),
			[]string{},
		},
		{
			"property value negated",
			Nested("properties", And(Term("properties.name", "Loc"), Not(Wildcard("properties.value", "building*")))),
			[]string{booster},
		},
		{"or", Or(Term("owner", "erin"), Nested("tags", Term("tags.name", "T2"))), []string{booster, c02, weird}},
		{"not", Not(Wildcard("name", "SR:*")), []string{booster, weird}},
		{"ids", IDs(c01, weird, "unknown"), []string{c01, weird}},
		{"empty ids", IDs(), []string{}},
		{"empty or", Or(), []string{}},
		{"empty and", And(), []string{booster, c01, c02, weird}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchIDs(t, store, tt.query)
			assert.Equal(t, tt.want, got, "query %s", tt.query)
		})
	}
}

func TestSearchPagination(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedChannels(t, store)

	base := SearchRequest{Index: testIndex, Query: MatchAll(), Size: 2, Sort: []SortField{{Field: "name"}}}

	first, err := store.Search(ctx, base)
	require.NoError(t, err)
	require.Len(t, first.Hits, 2)
	assert.Equal(t, []string{"BR:C01-MG:QF1"}, first.Hits[0].Sort)

	next := base
	next.SearchAfter = first.Cursor()
	next.From = 7 // ignored with search_after
	second, err := store.Search(ctx, next)
	require.NoError(t, err)
	require.Len(t, second.Hits, 2)
	assert.Equal(t, "SR:C02-BI:G02A<BPM:L1>Pos-X", second.Hits[0].ID)
	assert.Equal(t, "weird*name", second.Hits[1].ID)

	offset := base
	offset.From = 3
	third, err := store.Search(ctx, offset)
	require.NoError(t, err)
	require.Len(t, third.Hits, 1)
	assert.Equal(t, "weird*name", third.Hits[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(third.Hits[0].Source, &decoded))
	assert.Equal(t, "erin", decoded["owner"])
}

func TestSearchDescending(t *testing.T) {
	store := newTestStore(t)
	seedChannels(t, store)

	resp, err := store.Search(context.Background(), SearchRequest{
		Index: testIndex, Query: MatchAll(), Size: 1,
		Sort:        []SortField{{Field: "name", Desc: true}},
		SearchAfter: []string{"weird*name"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "SR:C02-BI:G02A<BPM:L1>Pos-X", resp.Hits[0].ID)
}

func TestSearchValidation(t *testing.T) {
	store := newTestStore(t)
	cfg := store.Config()
	cfg.MaxSearchWindow = 10
	store.config = cfg

	tests := []struct {
		name string
		req  SearchRequest
	}{
		{"missing index", SearchRequest{Size: 1}},
		{"negative from", SearchRequest{Index: testIndex, From: -1, Size: 1}},
		{"negative size", SearchRequest{Index: testIndex, Size: -1}},
		{"window exceeded", SearchRequest{Index: testIndex, From: 5, Size: 6}},
		{"bad field", SearchRequest{Index: testIndex, Size: 1, Query: Term("name'; DROP", "x")}},
		{"unknown operator", SearchRequest{Index: testIndex, Size: 1, Query: &Query{Operator: "FUZZY"}}},
		{
			"search_after arity",
			SearchRequest{Index: testIndex, Size: 1, Sort: []SortField{{Field: "name"}}, SearchAfter: []string{"a", "b"}},
		},
		{
			"mixed directions",
			SearchRequest{
				Index: testIndex, Size: 1,
				Sort:        []SortField{{Field: "name"}, {Field: "owner", Desc: true}},
				SearchAfter: []string{"a", "b"},
			},
		},
		{"ids inside nested", SearchRequest{Index: testIndex, Size: 1, Query: Nested("tags", IDs("a"))}},
		{"field outside nested", SearchRequest{Index: testIndex, Size: 1, Query: Nested("tags", Term("name", "a"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Search(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidQuery)
			assert.Equal(t, ClassInvalidInput, Classify(err))
		})
	}
}

func TestGlobPattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SR*", "SR*"},
		{"a?c", "a?c"},
		{`a\*b`, "a[*]b"},
		{`a\?b`, "a[?]b"},
		{"x[1]", "x[[]1]"},
		{`trailing\`, `trailing\`},
		{`a\\b`, `a\b`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, globPattern(tt.in), "pattern %q", tt.in)
	}
}

func TestQueryString(t *testing.T) {
	q := And(Nested("tags", Wildcard("tags.name", "T*")), Not(IDs("a", "b")))
	assert.Equal(t, `AND(NESTED[tags](tags.name~"T*") NOT(IDS(a,b)))`, q.String())
	assert.Equal(t, "<nil>", (*Query)(nil).String())
}
