package catalog

import (
	"context"
	"time"

	"github.com/liliang-cn/channelfinder/pkg/core"
	"github.com/liliang-cn/channelfinder/pkg/vocabulary"
)

// TagManager serves the tag vocabulary and the tag associations of channels
type TagManager struct {
	manager
	repo   *vocabulary.Repository
	logger core.Logger
}

// List returns every tag sorted by name
func (m *TagManager) List(ctx context.Context) (tags []core.Tag, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceTag), "list", start, err) }()

	entries, err := m.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	tags = make([]core.Tag, len(entries))
	for i, e := range entries {
		tags[i] = core.Tag{Name: e.Name, Owner: e.Owner}
	}
	return tags, nil
}

// Read returns the tag. With withChannels set, Channels lists every channel
// carrying it, reduced to its name, owner and this one tag.
func (m *TagManager) Read(ctx context.Context, name string, withChannels bool) (tag core.Tag, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceTag), "read", start, err) }()

	e, err := m.repo.FindByID(ctx, name)
	if err != nil {
		return core.Tag{}, err
	}
	if !withChannels {
		return core.Tag{Name: e.Name, Owner: e.Owner}, nil
	}
	return m.view(ctx, e)
}

// Create creates or replaces the tag at name. The tag at name is first
// removed from every channel carrying it; when tag is named differently the
// entry at name is deleted. The new tag is then attached to tag.Channels.
func (m *TagManager) Create(ctx context.Context, name string, tag core.Tag) (out core.Tag, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceTag), "create", start, err) }()

	if tag.Name == "" {
		tag.Name = name
	}
	if err := authorizeRole(ctx, m.auth, ResourceTag); err != nil {
		return core.Tag{}, err
	}
	if err := m.gate.ValidateTag(ctx, tag); err != nil {
		return core.Tag{}, err
	}
	if err := authorizeOwner(ctx, m.auth, ResourceTag, tag.Name, tag.Owner); err != nil {
		return core.Tag{}, err
	}
	existing, exists, err := m.lookup(ctx, name)
	if err != nil {
		return core.Tag{}, err
	}
	if exists {
		if err := authorizeOwner(ctx, m.auth, ResourceTag, name, existing.Owner); err != nil {
			return core.Tag{}, err
		}
		if err := m.detachAll(ctx, name); err != nil {
			return core.Tag{}, err
		}
		if name != tag.Name {
			if err := m.repo.DeleteByID(ctx, name); err != nil {
				return core.Tag{}, err
			}
		}
	}

	e, err := m.repo.Index(ctx, vocabulary.Entry{Name: tag.Name, Owner: tag.Owner})
	if err != nil {
		return core.Tag{}, err
	}
	attached, err := m.engine.AttachTag(ctx, e.Name, channelNames(tag.Channels))
	if err != nil {
		return core.Tag{}, err
	}

	m.logger.Info("tag created", "tag", e.Name, "owner", e.Owner, "previous", name, "channels", len(attached))
	return tagView(e, attached), nil
}

// CreateAll creates or replaces every tag of the batch. Tags that already
// exist keep their stored owner.
func (m *TagManager) CreateAll(ctx context.Context, tags []core.Tag) (out []core.Tag, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceTag), "create_all", start, err) }()

	if err := authorizeRole(ctx, m.auth, ResourceTag); err != nil {
		return nil, err
	}
	if err := checkNames(ResourceTag, tagNames(tags)); err != nil {
		return nil, err
	}

	planned := make([]core.Tag, len(tags))
	exists := make([]bool, len(tags))
	for i, tag := range tags {
		stored, ok, err := m.lookup(ctx, tag.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			tag.Owner = stored.Owner
		}
		if err := authorizeOwner(ctx, m.auth, ResourceTag, tag.Name, tag.Owner); err != nil {
			return nil, err
		}
		if err := m.gate.ValidateTag(ctx, tag); err != nil {
			return nil, err
		}
		planned[i] = tag
		exists[i] = ok
	}

	entries := make([]vocabulary.Entry, len(planned))
	for i, tag := range planned {
		if exists[i] {
			if err := m.detachAll(ctx, tag.Name); err != nil {
				return nil, err
			}
		}
		entries[i] = vocabulary.Entry{Name: tag.Name, Owner: tag.Owner}
	}
	if _, err := m.repo.IndexAll(ctx, entries); err != nil {
		return nil, err
	}

	out = make([]core.Tag, len(planned))
	for i, tag := range planned {
		attached, err := m.engine.AttachTag(ctx, tag.Name, channelNames(tag.Channels))
		if err != nil {
			return nil, err
		}
		out[i] = tagView(entries[i], attached)
	}

	m.logger.Info("tags created", "count", len(out))
	return out, nil
}

// Update changes the tag at name and adds it to tag.Channels. A non-empty
// owner replaces the stored one. A new name moves the tag on every channel
// carrying it and deletes the entry at name. Channels already carrying the
// tag keep it.
func (m *TagManager) Update(ctx context.Context, name string, tag core.Tag) (out core.Tag, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceTag), "update", start, err) }()

	if err := authorizeRole(ctx, m.auth, ResourceTag); err != nil {
		return core.Tag{}, err
	}
	stored, err := m.repo.FindByID(ctx, name)
	if err != nil {
		return core.Tag{}, err
	}
	if tag.Name == "" {
		tag.Name = name
	}
	if tag.Owner == "" {
		tag.Owner = stored.Owner
	}
	if err := m.gate.ValidateTag(ctx, tag); err != nil {
		return core.Tag{}, err
	}
	if err := authorizeOwner(ctx, m.auth, ResourceTag, tag.Name, tag.Owner); err != nil {
		return core.Tag{}, err
	}
	if err := authorizeOwner(ctx, m.auth, ResourceTag, name, stored.Owner); err != nil {
		return core.Tag{}, err
	}

	e, err := m.repo.Index(ctx, vocabulary.Entry{Name: tag.Name, Owner: tag.Owner})
	if err != nil {
		return core.Tag{}, err
	}

	carrying, err := m.finder.names(ctx, withTag(name))
	if err != nil {
		return core.Tag{}, err
	}
	replacement := core.Tag{Name: e.Name, Owner: e.Owner}
	if _, err := m.engine.EditAll(ctx, "update_tag", carrying, func(ch core.Channel) core.Channel {
		return replaceTag(ch, name, replacement)
	}); err != nil {
		return core.Tag{}, err
	}

	if name != e.Name {
		if err := m.repo.DeleteByID(ctx, name); err != nil {
			return core.Tag{}, err
		}
	}
	if _, err := m.engine.AttachTag(ctx, e.Name, channelNames(tag.Channels)); err != nil {
		return core.Tag{}, err
	}

	m.logger.Info("tag updated", "tag", e.Name, "owner", e.Owner, "previous", name)
	return m.view(ctx, e)
}

// AddSingle adds the tag to one channel
func (m *TagManager) AddSingle(ctx context.Context, tagName, channelName string) (out core.Tag, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceTag), "add_single", start, err) }()

	e, err := m.authorizeEntry(ctx, tagName)
	if err != nil {
		return core.Tag{}, err
	}
	attached, err := m.engine.AttachTag(ctx, tagName, []string{channelName})
	if err != nil {
		return core.Tag{}, err
	}

	m.logger.Info("tag added", "tag", tagName, "channel", channelName)
	return tagView(e, attached), nil
}

// Remove deletes the tag. Channels carrying it are left unchanged.
func (m *TagManager) Remove(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceTag), "remove", start, err) }()

	if _, err := m.authorizeEntry(ctx, name); err != nil {
		return err
	}
	if err := m.repo.DeleteByID(ctx, name); err != nil {
		return err
	}
	m.logger.Info("tag removed", "tag", name)
	return nil
}

// RemoveSingle removes the tag from one channel
func (m *TagManager) RemoveSingle(ctx context.Context, tagName, channelName string) (err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceTag), "remove_single", start, err) }()

	if _, err := m.authorizeEntry(ctx, tagName); err != nil {
		return err
	}
	if _, err := m.engine.DetachTag(ctx, tagName, channelName); err != nil {
		return err
	}
	m.logger.Info("tag removed from channel", "tag", tagName, "channel", channelName)
	return nil
}

// authorizeEntry checks the role and the owner of an existing tag
func (m *TagManager) authorizeEntry(ctx context.Context, name string) (vocabulary.Entry, error) {
	if err := authorizeRole(ctx, m.auth, ResourceTag); err != nil {
		return vocabulary.Entry{}, err
	}
	e, err := m.repo.FindByID(ctx, name)
	if err != nil {
		return vocabulary.Entry{}, err
	}
	if err := authorizeOwner(ctx, m.auth, ResourceTag, name, e.Owner); err != nil {
		return vocabulary.Entry{}, err
	}
	return e, nil
}

func (m *TagManager) lookup(ctx context.Context, name string) (vocabulary.Entry, bool, error) {
	e, err := m.repo.FindByID(ctx, name)
	if core.IsNotFound(err) {
		return vocabulary.Entry{}, false, nil
	}
	if err != nil {
		return vocabulary.Entry{}, false, err
	}
	return e, true, nil
}

// detachAll removes the tag from every channel carrying it
func (m *TagManager) detachAll(ctx context.Context, name string) error {
	carrying, err := m.finder.names(ctx, withTag(name))
	if err != nil {
		return err
	}
	_, err = m.engine.EditAll(ctx, "detach_tag", carrying, func(ch core.Channel) core.Channel {
		return replaceTag(ch, name, core.Tag{})
	})
	return err
}

func (m *TagManager) view(ctx context.Context, e vocabulary.Entry) (core.Tag, error) {
	chs, err := m.finder.find(ctx, withTag(e.Name))
	if err != nil {
		return core.Tag{}, err
	}
	return tagView(e, chs), nil
}

// tagView lists chs reduced to their name, owner and the tag itself
func tagView(e vocabulary.Entry, chs []core.Channel) core.Tag {
	tag := core.Tag{Name: e.Name, Owner: e.Owner, Channels: make([]core.Channel, 0, len(chs))}
	for _, ch := range chs {
		reduced := core.Channel{Name: ch.Name, Owner: ch.Owner, Properties: []core.Property{}, Tags: []core.Tag{}}
		if t, ok := ch.Tag(e.Name); ok {
			reduced.Tags = append(reduced.Tags, t)
		}
		tag.Channels = append(tag.Channels, reduced)
	}
	return tag
}

// replaceTag swaps the tag called name for replacement, or drops it when
// replacement has no name
func replaceTag(ch core.Channel, name string, replacement core.Tag) core.Channel {
	out := ch.Clone()
	out.Tags = make([]core.Tag, 0, len(ch.Tags))
	replaced := false
	for _, t := range ch.Tags {
		switch {
		case t.Name == name && replacement.Name != "" && !replaced:
			out.Tags = append(out.Tags, replacement)
			replaced = true
		case t.Name == name, replacement.Name != "" && t.Name == replacement.Name:
		default:
			out.Tags = append(out.Tags, t)
		}
	}
	return out
}

func tagNames(tags []core.Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}

// checkNames rejects batches with blank or repeated names
func checkNames(resource Resource, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" {
			return core.InvalidInputf("a %s in the batch has no name", resource)
		}
		if seen[name] {
			return core.InvalidInputf("%s %q appears more than once in the batch", resource, name)
		}
		seen[name] = true
	}
	return nil
}
