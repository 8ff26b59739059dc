package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/channelfinder/pkg/core"
	"github.com/liliang-cn/channelfinder/pkg/vocabulary"
)

// valued lists channels carrying the property name with the given values
func valued(name, owner string, values map[string]string) core.Property {
	prop := core.Property{Name: name, Owner: owner}
	for _, ch := range []string{"C0", "C1", "C2"} {
		if v, ok := values[ch]; ok {
			prop.Channels = append(prop.Channels, core.Channel{
				Name:       ch,
				Properties: []core.Property{{Name: name, Value: v}},
			})
		}
	}
	return prop
}

func valuesOf(t *testing.T, c *Catalog, name string) map[string]string {
	t.Helper()
	prop, err := c.Properties.Read(context.Background(), name, true)
	require.NoError(t, err)
	out := make(map[string]string, len(prop.Channels))
	for _, ch := range prop.Channels {
		require.Len(t, ch.Properties, 1)
		assert.Equal(t, prop.Owner, ch.Properties[0].Owner)
		out[ch.Name] = ch.Properties[0].Value
	}
	return out
}

func TestPropertyListAndRead(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedVocabulary(t, c)

	props, err := c.Properties.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Property{{Name: "Cell", Owner: "carol"}, {Name: "Loc", Owner: "carol"}}, props)

	plain, err := c.Properties.Read(ctx, "Loc", false)
	require.NoError(t, err)
	assert.Equal(t, core.Property{Name: "Loc", Owner: "carol"}, plain)

	_, err = c.Properties.Read(ctx, "missing", true)
	assert.True(t, core.IsNotFound(err))
}

func TestPropertyCreateWithChannels(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedChannels(t, c)

	created, err := c.Properties.Create(ctx, "P0", valued("P0", "alice", map[string]string{"C0": "v0", "C1": "v1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"C0", "C1"}, channelNames(created.Channels))
	assert.Equal(t, map[string]string{"C0": "v0", "C1": "v1"}, valuesOf(t, c, "P0"))

	// recreating without channels detaches the property everywhere
	recreated, err := c.Properties.Create(ctx, "P0", core.Property{Name: "P0", Owner: "alice2"})
	require.NoError(t, err)
	assert.Empty(t, recreated.Channels)
	assert.Empty(t, valuesOf(t, c, "P0"))

	_, err = c.Properties.Create(ctx, "P1", valued("P1", "alice", map[string]string{"C0": ""}))
	assert.True(t, core.IsInvalidInput(err))
}

func TestPropertyRenameByCreate(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedChannels(t, c)

	_, err := c.Properties.Create(ctx, "P0", valued("P0", "alice", map[string]string{"C0": "v0"}))
	require.NoError(t, err)
	_, err = c.Properties.Create(ctx, "P0", valued("P1", "alice", map[string]string{"C1": "v1"}))
	require.NoError(t, err)

	_, err = c.Properties.Read(ctx, "P0", false)
	assert.True(t, core.IsNotFound(err))
	assert.Equal(t, map[string]string{"C1": "v1"}, valuesOf(t, c, "P1"))

	ch, err := c.Channels.Read(ctx, "C0")
	require.NoError(t, err)
	assert.Empty(t, ch.Properties)
}

func TestPropertyCreateAllOverride(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedChannels(t, c)

	_, err := c.Properties.CreateAll(ctx, []core.Property{
		{Name: "P0", Owner: "owner"},
		valued("P0WithChannels", "owner", map[string]string{"C0": "value"}),
	})
	require.NoError(t, err)

	out, err := c.Properties.CreateAll(ctx, []core.Property{
		{Name: "P0", Owner: "owner-updated"},
		valued("P0WithChannels", "owner-updated", map[string]string{"C1": "value"}),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "owner", out[0].Owner)
	assert.Equal(t, "owner", out[1].Owner)

	assert.Equal(t, map[string]string{"C1": "value"}, valuesOf(t, c, "P0WithChannels"))

	chs, err := c.Channels.Query(ctx, map[string][]string{"P0WithChannels": {"*"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1"}, channelNames(chs))
}

func TestPropertyUpdateRenameKeepsValues(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedChannels(t, c)

	_, err := c.Properties.Create(ctx, "P0", valued("P0", "owner", map[string]string{"C0": "value0", "C1": "value1"}))
	require.NoError(t, err)

	updated, err := c.Properties.Update(ctx, "P0", valued("P1", "updateOwner", map[string]string{"C2": "newValueX"}))
	require.NoError(t, err)
	assert.Equal(t, "P1", updated.Name)
	assert.Equal(t, "updateOwner", updated.Owner)

	_, err = c.Properties.Read(ctx, "P0", false)
	assert.True(t, core.IsNotFound(err))
	assert.Equal(t, map[string]string{"C0": "value0", "C1": "value1", "C2": "newValueX"}, valuesOf(t, c, "P1"))

	// listed channels take the new value, others keep theirs
	_, err = c.Properties.Update(ctx, "P1", valued("P1", "", map[string]string{"C1": "changed"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"C0": "value0", "C1": "changed", "C2": "newValueX"}, valuesOf(t, c, "P1"))
}

func TestPropertySingleAndRemove(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	seedVocabulary(t, c)
	seedChannels(t, c)

	added, err := c.Properties.AddSingle(ctx, "Loc", "C0", "b7")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"C0": "b7"}, valuesOf(t, c, "Loc"))
	assert.Equal(t, []string{"C0"}, channelNames(added.Channels))

	_, err = c.Properties.AddSingle(ctx, "Loc", "C1", "")
	assert.True(t, core.IsInvalidInput(err))

	require.NoError(t, c.Properties.RemoveSingle(ctx, "Loc", "C0"))
	assert.Empty(t, valuesOf(t, c, "Loc"))

	_, err = c.Properties.AddSingle(ctx, "Cell", "C2", "A")
	require.NoError(t, err)
	require.NoError(t, c.Properties.Remove(ctx, "Cell"))

	ch, err := c.Channels.Read(ctx, "C2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Cell"}, ch.PropertyNames())

	// a channel referencing a removed property can no longer be written as is
	_, err = c.Channels.Create(ctx, "C2", ch)
	assert.True(t, core.IsNotFound(err))
}

func TestReplaceProperty(t *testing.T) {
	ch := core.Channel{Name: "C", Properties: []core.Property{
		{Name: "A", Value: "1"}, {Name: "B", Owner: "old", Value: "2"},
	}}

	moved := replaceProperty(ch, "B", vocabulary.Entry{Name: "Z", Owner: "new"})
	assert.Equal(t, []core.Property{{Name: "A", Value: "1"}, {Name: "Z", Owner: "new", Value: "2"}}, moved.Properties)

	dropped := replaceProperty(ch, "A", vocabulary.Entry{})
	assert.Equal(t, []string{"B"}, dropped.PropertyNames())
}
