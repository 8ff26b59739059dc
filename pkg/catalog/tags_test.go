package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/channelfinder/pkg/core"
)

// seedChannels stores C0..C2 owned by dave with no associations
func seedChannels(t *testing.T, c *Catalog) {
	t.Helper()
	_, err := c.Channels.CreateAll(context.Background(), []core.Channel{
		channel("C0", "dave", nil, nil),
		channel("C1", "dave", nil, nil),
		channel("C2", "dave", nil, nil),
	})
	require.NoError(t, err)
}

func carrying(t *testing.T, c *Catalog, tag string) []string {
	t.Helper()
	chs, err := c.Channels.Query(context.Background(), map[string][]string{"~tag": {tag}})
	require.NoError(t, err)
	return channelNames(chs)
}

func TestTagListAndRead(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedVocabulary(t, c)
	seedChannels(t, c)

	tags, err := c.Tags.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Tag{{Name: "T1", Owner: "bob"}, {Name: "T2", Owner: "bob"}}, tags)

	_, err = c.Tags.AddSingle(ctx, "T1", "C1")
	require.NoError(t, err)

	plain, err := c.Tags.Read(ctx, "T1", false)
	require.NoError(t, err)
	assert.Equal(t, core.Tag{Name: "T1", Owner: "bob"}, plain)

	full, err := c.Tags.Read(ctx, "T1", true)
	require.NoError(t, err)
	require.Len(t, full.Channels, 1)
	assert.Equal(t, core.Channel{
		Name:       "C1",
		Owner:      "dave",
		Properties: []core.Property{},
		Tags:       []core.Tag{{Name: "T1", Owner: "bob"}},
	}, full.Channels[0])

	_, err = c.Tags.Read(ctx, "missing", false)
	assert.True(t, core.IsNotFound(err))
}

func TestTagCreateWithChannels(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedVocabulary(t, c)
	seedChannels(t, c)

	created, err := c.Tags.Create(ctx, "T3", core.Tag{
		Name:     "T3",
		Owner:    "alice",
		Channels: []core.Channel{{Name: "C0"}, {Name: "C1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Owner)
	assert.Equal(t, []string{"C0", "C1"}, channelNames(created.Channels))
	assert.Equal(t, []string{"C0", "C1"}, carrying(t, c, "T3"))

	// recreating replaces the channel list
	_, err = c.Tags.Create(ctx, "T3", core.Tag{
		Name:     "T3",
		Owner:    "alice",
		Channels: []core.Channel{{Name: "C2"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C2"}, carrying(t, c, "T3"))

	_, err = c.Tags.Create(ctx, "T4", core.Tag{Name: "T4", Owner: "alice", Channels: []core.Channel{{Name: "nope"}}})
	assert.True(t, core.IsNotFound(err))
	_, err = c.Tags.Create(ctx, "T4", core.Tag{Name: "T4"})
	assert.True(t, core.IsInvalidInput(err))
}

func TestTagRenameByCreate(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedVocabulary(t, c)
	seedChannels(t, c)

	_, err := c.Tags.Create(ctx, "T3", core.Tag{Name: "T3", Owner: "alice", Channels: []core.Channel{{Name: "C0"}}})
	require.NoError(t, err)

	renamed, err := c.Tags.Create(ctx, "T3", core.Tag{Name: "T4", Owner: "alice", Channels: []core.Channel{{Name: "C1"}}})
	require.NoError(t, err)
	assert.Equal(t, "T4", renamed.Name)

	_, err = c.Tags.Read(ctx, "T3", false)
	assert.True(t, core.IsNotFound(err))
	assert.Empty(t, carrying(t, c, "T3"))
	assert.Equal(t, []string{"C1"}, carrying(t, c, "T4"))
}

func TestTagCreateAllKeepsOwnerAndReplacesChannels(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedVocabulary(t, c)
	seedChannels(t, c)

	_, err := c.Tags.CreateAll(ctx, []core.Tag{
		{Name: "T3", Owner: "alice", Channels: []core.Channel{{Name: "C0"}}},
	})
	require.NoError(t, err)

	out, err := c.Tags.CreateAll(ctx, []core.Tag{
		{Name: "T3", Owner: "alice-updated", Channels: []core.Channel{{Name: "C1"}}},
		{Name: "T4", Owner: "alice"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "alice", out[0].Owner)

	stored, err := c.Tags.Read(ctx, "T3", true)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Owner)
	assert.Equal(t, []string{"C1"}, channelNames(stored.Channels))

	_, err = c.Tags.CreateAll(ctx, []core.Tag{{Name: "T5", Owner: "x"}, {Name: "T5", Owner: "x"}})
	assert.True(t, core.IsInvalidInput(err))
}

func TestTagUpdate(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedVocabulary(t, c)
	seedChannels(t, c)

	_, err := c.Tags.Create(ctx, "T3", core.Tag{Name: "T3", Owner: "alice", Channels: []core.Channel{{Name: "C0"}}})
	require.NoError(t, err)

	// additive channels, owner override
	updated, err := c.Tags.Update(ctx, "T3", core.Tag{Owner: "frank", Channels: []core.Channel{{Name: "C1"}}})
	require.NoError(t, err)
	assert.Equal(t, "frank", updated.Owner)
	assert.Equal(t, []string{"C0", "C1"}, channelNames(updated.Channels))
	for _, ch := range updated.Channels {
		assert.Equal(t, []core.Tag{{Name: "T3", Owner: "frank"}}, ch.Tags)
	}

	// rename moves every association
	renamed, err := c.Tags.Update(ctx, "T3", core.Tag{Name: "T9", Channels: []core.Channel{{Name: "C2"}}})
	require.NoError(t, err)
	assert.Equal(t, "T9", renamed.Name)
	assert.Equal(t, "frank", renamed.Owner)
	assert.Equal(t, []string{"C0", "C1", "C2"}, carrying(t, c, "T9"))
	assert.Empty(t, carrying(t, c, "T3"))

	_, err = c.Tags.Read(ctx, "T3", false)
	assert.True(t, core.IsNotFound(err))

	_, err = c.Tags.Update(ctx, "missing", core.Tag{Owner: "x"})
	assert.True(t, core.IsNotFound(err))
}

func TestTagSingleAndRemove(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedVocabulary(t, c)
	seedChannels(t, c)

	added, err := c.Tags.AddSingle(ctx, "T1", "C0")
	require.NoError(t, err)
	assert.Equal(t, []string{"C0"}, channelNames(added.Channels))

	_, err = c.Tags.AddSingle(ctx, "T1", "nope")
	assert.True(t, core.IsNotFound(err))
	_, err = c.Tags.AddSingle(ctx, "nope", "C0")
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, c.Tags.RemoveSingle(ctx, "T1", "C0"))
	assert.Empty(t, carrying(t, c, "T1"))

	_, err = c.Tags.AddSingle(ctx, "T2", "C1")
	require.NoError(t, err)
	require.NoError(t, c.Tags.Remove(ctx, "T2"))

	// removing a tag leaves channels untouched
	ch, err := c.Channels.Read(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"T2"}, ch.TagNames())

	assert.True(t, core.IsNotFound(c.Tags.Remove(ctx, "T2")))
}

func TestTagAuthorization(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t, WithAuthorizer(denyOwners{"bob": true}))
	seedChannels(t, c)

	_, err := c.Tags.Create(ctx, "T1", core.Tag{Name: "T1", Owner: "bob"})
	assert.Equal(t, core.ClassUnauthorized, core.Classify(err))

	_, err = c.Tags.Create(ctx, "T1", core.Tag{Name: "T1", Owner: "alice"})
	require.NoError(t, err)

	_, err = c.Tags.Update(ctx, "T1", core.Tag{Owner: "bob"})
	assert.Equal(t, core.ClassUnauthorized, core.Classify(err))

	denied := newTestCatalog(t, WithAuthorizer(denyRoles{ResourceTag: true}))
	_, err = denied.Tags.Create(ctx, "T1", core.Tag{Name: "T1", Owner: "alice"})
	assert.Equal(t, core.ClassUnauthorized, core.Classify(err))
	assert.Equal(t, core.ClassUnauthorized, core.Classify(denied.Tags.Remove(ctx, "T1")))
}

func TestReplaceTag(t *testing.T) {
	ch := core.Channel{Name: "C", Tags: []core.Tag{{Name: "A"}, {Name: "B"}, {Name: "C"}}}

	dropped := replaceTag(ch, "B", core.Tag{})
	assert.Equal(t, []string{"A", "C"}, dropped.TagNames())

	renamed := replaceTag(ch, "B", core.Tag{Name: "Z", Owner: "o"})
	assert.Equal(t, []string{"A", "Z", "C"}, renamed.TagNames())

	merged := replaceTag(ch, "A", core.Tag{Name: "C"})
	assert.Equal(t, []string{"C", "B"}, merged.TagNames())

	assert.Equal(t, []string{"A", "B", "C"}, ch.TagNames(), "input must not change")
}
