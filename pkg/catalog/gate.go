package catalog

import (
	"context"
	"unicode/utf8"

	"github.com/liliang-cn/channelfinder/pkg/core"
	"github.com/liliang-cn/channelfinder/pkg/merge"
	"github.com/liliang-cn/channelfinder/pkg/vocabulary"
)

// Gate validates payloads against the vocabularies before any write.
// Checks run in a fixed order and the first violation is returned.
type Gate struct {
	tags       *vocabulary.Repository
	properties *vocabulary.Repository
	channels   *merge.Engine
}

// ValidateChannel checks, in order: the name (non-empty, valid UTF-8), the owner, that every tag
// exists, that every property exists, and that every property value is
// non-empty. Missing vocabulary entries are ErrNotFound; the other
// violations are ErrInvalidInput.
func (g *Gate) ValidateChannel(ctx context.Context, ch core.Channel) error {
	if ch.Name == "" {
		return core.InvalidInputf("the channel name cannot be empty (%s)", ch.LogString())
	}
	if !utf8.ValidString(ch.Name) {
		return core.InvalidInputf("the channel name %q is not valid UTF-8", ch.Name)
	}
	if ch.Owner == "" {
		return core.InvalidInputf("the owner of channel %q cannot be empty", ch.Name)
	}
	for _, t := range ch.Tags {
		ok, err := g.tags.ExistsByID(ctx, t.Name)
		if err != nil {
			return err
		}
		if !ok {
			return core.NotFoundf("the tag %q does not exist", t.Name)
		}
	}
	for _, p := range ch.Properties {
		ok, err := g.properties.ExistsByID(ctx, p.Name)
		if err != nil {
			return err
		}
		if !ok {
			return core.NotFoundf("the property %q does not exist", p.Name)
		}
	}
	for _, p := range ch.Properties {
		if p.Value == "" {
			return core.InvalidInputf("the property %q on channel %q has an empty value", p.Name, ch.Name)
		}
	}
	return nil
}

// ValidateTag checks the tag name and owner and that every listed channel exists
func (g *Gate) ValidateTag(ctx context.Context, tag core.Tag) error {
	if tag.Name == "" {
		return core.InvalidInputf("the tag name cannot be empty")
	}
	if tag.Owner == "" {
		return core.InvalidInputf("the owner of tag %q cannot be empty", tag.Name)
	}
	return g.channelsExist(ctx, tag.Channels)
}

// ValidateProperty checks the property name and owner, that every listed
// channel exists and that each of them carries a non-empty value for it
func (g *Gate) ValidateProperty(ctx context.Context, prop core.Property) error {
	if prop.Name == "" {
		return core.InvalidInputf("the property name cannot be empty")
	}
	if prop.Owner == "" {
		return core.InvalidInputf("the owner of property %q cannot be empty", prop.Name)
	}
	if err := g.channelsExist(ctx, prop.Channels); err != nil {
		return err
	}
	for _, ch := range prop.Channels {
		if propertyValue(ch, prop.Name) == "" {
			return core.InvalidInputf("the property %q on channel %q has an empty value", prop.Name, ch.Name)
		}
	}
	return nil
}

func (g *Gate) channelsExist(ctx context.Context, chs []core.Channel) error {
	for _, ch := range chs {
		if ch.Name == "" {
			return core.InvalidInputf("a listed channel has no name")
		}
		ok, err := g.channels.Exists(ctx, ch.Name)
		if err != nil {
			return err
		}
		if !ok {
			return core.NotFoundf("the channel %q does not exist", ch.Name)
		}
	}
	return nil
}

// propertyValue returns the value ch assigns to the named property
func propertyValue(ch core.Channel, name string) string {
	p, _ := ch.Property(name)
	return p.Value
}
