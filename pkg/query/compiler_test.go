package query

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/channelfinder/pkg/core"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		raw  string
		want Key
	}{
		{"~name", Key{Kind: KindName, Name: "~name"}},
		{" ~tag! ", Key{Kind: KindTag, Name: "~tag", Negate: true}},
		{"~size!", Key{Kind: KindSize, Name: "~size"}},
		{"~from", Key{Kind: KindFrom, Name: "~from"}},
		{"~search_after", Key{Kind: KindSearchAfter, Name: "~search_after"}},
		{"Loc", Key{Kind: KindProperty, Name: "Loc"}},
		{"Loc!", Key{Kind: KindProperty, Name: "Loc", Negate: true}},
		{"~unknown", Key{Kind: KindProperty, Name: "~unknown"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseKey(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, raw := range []string{" ! ", "~name!!", "Loc! !"} {
		_, err := ParseKey(raw)
		assert.True(t, core.IsInvalidInput(err), raw)
	}
}

func TestSplitPatterns(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c", "d"}, SplitPatterns("a|b, c;d"))
	assert.Equal(t, []string{"SR*"}, SplitPatterns(" SR* |"))
	assert.Empty(t, SplitPatterns(" | ; "))
}

func TestCompileDefaults(t *testing.T) {
	c := NewCompiler(Config{})
	req, err := c.Compile(nil)
	require.NoError(t, err)

	assert.Equal(t, "channelfinder", req.Index)
	assert.Equal(t, 10000, req.Size)
	assert.Equal(t, 0, req.From)
	assert.Nil(t, req.SearchAfter)
	assert.Equal(t, []core.SortField{{Field: "name"}}, req.Sort)
	assert.Equal(t, core.QueryAll, req.Query.Operator)
}

func TestCompileClauses(t *testing.T) {
	c := NewCompiler(Config{Index: "cf", DefaultSize: 50})

	tests := []struct {
		name   string
		params url.Values
		want   string
	}{
		{
			"name alternation",
			url.Values{"~name": {"a|b"}},
			`OR(name~"a" name~"b")`,
		},
		{
			"name repeats are AND'ed",
			url.Values{"~name": {"SR*", "*BPM*;*QF*"}},
			`AND(OR(name~"SR*") OR(name~"*BPM*" name~"*QF*"))`,
		},
		{
			"negated name",
			url.Values{"~name!": {"SR*"}},
			`NOT(OR(name~"SR*"))`,
		},
		{
			"tag",
			url.Values{"~tag": {"T1,T2"}},
			`OR(NESTED[tags](tags.name~"T1") NESTED[tags](tags.name~"T2"))`,
		},
		{
			"negated tag repeats exclude each value",
			url.Values{"~tag!": {"T1", "T2"}},
			`AND(NOT(OR(NESTED[tags](tags.name~"T1"))) NOT(OR(NESTED[tags](tags.name~"T2"))))`,
		},
		{
			"property alternation is flat across values",
			url.Values{"Loc": {"b7|b8", "booster"}},
			`OR(NESTED[properties](AND(properties.name="Loc" properties.value~"b7")) ` +
				`NESTED[properties](AND(properties.name="Loc" properties.value~"b8")) ` +
				`NESTED[properties](AND(properties.name="Loc" properties.value~"booster")))`,
		},
		{
			"negated property keeps name positive",
			url.Values{"Loc!": {"b*"}},
			`OR(NESTED[properties](AND(properties.name="Loc" NOT(properties.value~"b*"))))`,
		},
		{
			"keys are AND'ed in sorted order",
			url.Values{"~tag": {"T1"}, "Loc": {"build*"}},
			`AND(OR(NESTED[properties](AND(properties.name="Loc" properties.value~"build*"))) OR(NESTED[tags](tags.name~"T1")))`,
		},
		{
			"empty property values are a no-op",
			url.Values{"Loc": {}, "Cell": {" | "}},
			`ALL`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := c.Compile(tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Query.String())
			assert.Equal(t, "cf", req.Index)
		})
	}
}

func TestCompilePagination(t *testing.T) {
	c := NewCompiler(Config{DefaultSize: 100})

	t.Run("numeric maximum wins", func(t *testing.T) {
		req, err := c.Compile(url.Values{"~size": {"5", "20", "3"}, "~from": {"9", "10", "2"}})
		require.NoError(t, err)
		assert.Equal(t, 20, req.Size)
		assert.Equal(t, 10, req.From)
	})

	t.Run("maximum is numeric not lexical", func(t *testing.T) {
		req, err := c.Compile(url.Values{"~size": {"9", "10"}})
		require.NoError(t, err)
		assert.Equal(t, 10, req.Size)
	})

	t.Run("size below default is honored", func(t *testing.T) {
		req, err := c.Compile(url.Values{"~size": {"7"}})
		require.NoError(t, err)
		assert.Equal(t, 7, req.Size)
	})

	t.Run("negation suffix is ignored", func(t *testing.T) {
		req, err := c.Compile(url.Values{"~size!": {"7"}})
		require.NoError(t, err)
		assert.Equal(t, 7, req.Size)
		assert.Equal(t, core.QueryAll, req.Query.Operator)
	})

	t.Run("search_after first value wins and overrides from", func(t *testing.T) {
		req, err := c.Compile(url.Values{"~search_after": {"SR:C02", "SR:C09"}, "~from": {"40"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"SR:C02"}, req.SearchAfter)
		assert.Equal(t, 0, req.From)
	})

	for _, bad := range []url.Values{
		{"~size": {"ten"}},
		{"~size": {"1", ""}},
		{"~from": {"-1"}},
		{"~from": {"1.5"}},
	} {
		t.Run(fmt.Sprintf("rejects %v", bad), func(t *testing.T) {
			_, err := c.Compile(bad)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
}

func TestCompiledQueriesAgainstStore(t *testing.T) {
	ctx := context.Background()
	store, err := core.New(filepath.Join(t.TempDir(), "query.db"))
	require.NoError(t, err)
	require.NoError(t, store.Init(ctx))
	t.Cleanup(func() { _ = store.Close() })

	docs := []core.BulkItem{
		{ID: "a", Doc: []byte(`{"name":"a","owner":"o","properties":[],"tags":[]}`)},
		{ID: "b", Doc: []byte(`{"name":"b","owner":"o","properties":[],"tags":[]}`)},
		{ID: "ab", Doc: []byte(`{"name":"ab","owner":"o","properties":[],"tags":[]}`)},
		{ID: "C1", Doc: []byte(`{"name":"C1","owner":"dave",
			"properties":[{"name":"Loc","owner":"carol","value":"building7"}],
			"tags":[{"name":"T1","owner":"bob"}]}`)},
		{ID: "C2", Doc: []byte(`{"name":"C2","owner":"dave",
			"properties":[{"name":"Loc","owner":"carol","value":"building8"}],
			"tags":[]}`)},
	}
	resp, err := store.BulkUpsert(ctx, "channelfinder", docs)
	require.NoError(t, err)
	require.NoError(t, resp.Err())

	c := NewCompiler(DefaultConfig())
	search := func(params url.Values) []string {
		req, err := c.Compile(params)
		require.NoError(t, err)
		res, err := store.Search(ctx, *req)
		require.NoError(t, err)
		names := make([]string, 0, len(res.Hits))
		for _, h := range res.Hits {
			names = append(names, h.ID)
		}
		return names
	}

	assert.Equal(t, []string{"a", "b"}, search(url.Values{"~name": {"a|b"}}))
	assert.Equal(t, []string{"C1"}, search(url.Values{"~tag": {"T1"}, "Loc": {"build*"}}))
	assert.Equal(t, []string{"C2"}, search(url.Values{"~tag!": {"T1"}, "Loc": {"build*"}}))
	assert.Equal(t, []string{"C2"}, search(url.Values{"Loc!": {"*7"}}))
	assert.Equal(t, []string{"C1", "C2", "a", "ab", "b"}, search(nil))
	assert.Equal(t, []string{"a", "ab"}, search(url.Values{"~size": {"2"}, "~search_after": {"C2"}}))
	assert.Equal(t, []string{"ab", "b"}, search(url.Values{"~size": {"2"}, "~from": {"3"}}))
}
