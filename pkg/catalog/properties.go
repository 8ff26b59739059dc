package catalog

import (
	"context"
	"time"

	"github.com/liliang-cn/channelfinder/pkg/core"
	"github.com/liliang-cn/channelfinder/pkg/merge"
	"github.com/liliang-cn/channelfinder/pkg/vocabulary"
)

// PropertyManager serves the property vocabulary and the property values of
// channels
type PropertyManager struct {
	manager
	repo   *vocabulary.Repository
	logger core.Logger
}

// List returns every property sorted by name
func (m *PropertyManager) List(ctx context.Context) (props []core.Property, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceProperty), "list", start, err) }()

	entries, err := m.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	props = make([]core.Property, len(entries))
	for i, e := range entries {
		props[i] = core.Property{Name: e.Name, Owner: e.Owner}
	}
	return props, nil
}

// Read returns the property. With withChannels set, Channels lists every
// channel using it, reduced to its name, owner and its value for this property.
func (m *PropertyManager) Read(ctx context.Context, name string, withChannels bool) (prop core.Property, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceProperty), "read", start, err) }()

	e, err := m.repo.FindByID(ctx, name)
	if err != nil {
		return core.Property{}, err
	}
	if !withChannels {
		return core.Property{Name: e.Name, Owner: e.Owner}, nil
	}
	return m.view(ctx, e)
}

// Create creates or replaces the property at name. The property at name is
// first removed from every channel using it; when prop is named differently
// the entry at name is deleted. prop.Channels then receive their listed values.
func (m *PropertyManager) Create(ctx context.Context, name string, prop core.Property) (out core.Property, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceProperty), "create", start, err) }()

	if prop.Name == "" {
		prop.Name = name
	}
	if err := authorizeRole(ctx, m.auth, ResourceProperty); err != nil {
		return core.Property{}, err
	}
	if err := m.gate.ValidateProperty(ctx, prop); err != nil {
		return core.Property{}, err
	}
	if err := authorizeOwner(ctx, m.auth, ResourceProperty, prop.Name, prop.Owner); err != nil {
		return core.Property{}, err
	}
	existing, exists, err := m.lookup(ctx, name)
	if err != nil {
		return core.Property{}, err
	}
	if exists {
		if err := authorizeOwner(ctx, m.auth, ResourceProperty, name, existing.Owner); err != nil {
			return core.Property{}, err
		}
		if err := m.detachAll(ctx, name); err != nil {
			return core.Property{}, err
		}
		if name != prop.Name {
			if err := m.repo.DeleteByID(ctx, name); err != nil {
				return core.Property{}, err
			}
		}
	}

	e, err := m.repo.Index(ctx, vocabulary.Entry{Name: prop.Name, Owner: prop.Owner})
	if err != nil {
		return core.Property{}, err
	}
	attached, err := m.attach(ctx, e.Name, prop)
	if err != nil {
		return core.Property{}, err
	}

	m.logger.Info("property created", "property", e.Name, "owner", e.Owner, "previous", name, "channels", len(attached))
	return propertyView(e, attached), nil
}

// CreateAll creates or replaces every property of the batch. Properties that
// already exist keep their stored owner.
func (m *PropertyManager) CreateAll(ctx context.Context, props []core.Property) (out []core.Property, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceProperty), "create_all", start, err) }()

	if err := authorizeRole(ctx, m.auth, ResourceProperty); err != nil {
		return nil, err
	}
	if err := checkNames(ResourceProperty, propertyNames(props)); err != nil {
		return nil, err
	}

	planned := make([]core.Property, len(props))
	exists := make([]bool, len(props))
	for i, prop := range props {
		stored, ok, err := m.lookup(ctx, prop.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			prop.Owner = stored.Owner
		}
		if err := authorizeOwner(ctx, m.auth, ResourceProperty, prop.Name, prop.Owner); err != nil {
			return nil, err
		}
		if err := m.gate.ValidateProperty(ctx, prop); err != nil {
			return nil, err
		}
		planned[i] = prop
		exists[i] = ok
	}

	entries := make([]vocabulary.Entry, len(planned))
	for i, prop := range planned {
		if exists[i] {
			if err := m.detachAll(ctx, prop.Name); err != nil {
				return nil, err
			}
		}
		entries[i] = vocabulary.Entry{Name: prop.Name, Owner: prop.Owner}
	}
	if _, err := m.repo.IndexAll(ctx, entries); err != nil {
		return nil, err
	}

	out = make([]core.Property, len(planned))
	for i, prop := range planned {
		attached, err := m.attach(ctx, prop.Name, prop)
		if err != nil {
			return nil, err
		}
		out[i] = propertyView(entries[i], attached)
	}

	m.logger.Info("properties created", "count", len(out))
	return out, nil
}

// Update changes the property at name and sets the values listed in
// prop.Channels. A non-empty owner replaces the stored one. A new name moves
// the property, with its values, on every channel using it and deletes the
// entry at name.
func (m *PropertyManager) Update(ctx context.Context, name string, prop core.Property) (out core.Property, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceProperty), "update", start, err) }()

	if err := authorizeRole(ctx, m.auth, ResourceProperty); err != nil {
		return core.Property{}, err
	}
	stored, err := m.repo.FindByID(ctx, name)
	if err != nil {
		return core.Property{}, err
	}
	if prop.Name == "" {
		prop.Name = name
	}
	if prop.Owner == "" {
		prop.Owner = stored.Owner
	}
	if err := m.gate.ValidateProperty(ctx, prop); err != nil {
		return core.Property{}, err
	}
	if err := authorizeOwner(ctx, m.auth, ResourceProperty, prop.Name, prop.Owner); err != nil {
		return core.Property{}, err
	}
	if err := authorizeOwner(ctx, m.auth, ResourceProperty, name, stored.Owner); err != nil {
		return core.Property{}, err
	}

	e, err := m.repo.Index(ctx, vocabulary.Entry{Name: prop.Name, Owner: prop.Owner})
	if err != nil {
		return core.Property{}, err
	}

	using, err := m.finder.names(ctx, withProperty(name))
	if err != nil {
		return core.Property{}, err
	}
	if _, err := m.engine.EditAll(ctx, "update_property", using, func(ch core.Channel) core.Channel {
		return replaceProperty(ch, name, e)
	}); err != nil {
		return core.Property{}, err
	}

	if name != e.Name {
		if err := m.repo.DeleteByID(ctx, name); err != nil {
			return core.Property{}, err
		}
	}
	if _, err := m.attach(ctx, e.Name, prop); err != nil {
		return core.Property{}, err
	}

	m.logger.Info("property updated", "property", e.Name, "owner", e.Owner, "previous", name)
	return m.view(ctx, e)
}

// AddSingle sets the property on one channel to value
func (m *PropertyManager) AddSingle(ctx context.Context, propertyName, channelName, value string) (out core.Property, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceProperty), "add_single", start, err) }()

	e, err := m.authorizeEntry(ctx, propertyName)
	if err != nil {
		return core.Property{}, err
	}
	attached, err := m.engine.AttachProperty(ctx, propertyName, []merge.PropertyValue{{Channel: channelName, Value: value}})
	if err != nil {
		return core.Property{}, err
	}

	m.logger.Info("property added", "property", propertyName, "channel", channelName)
	return propertyView(e, attached), nil
}

// Remove deletes the property. Channels using it are left unchanged.
func (m *PropertyManager) Remove(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceProperty), "remove", start, err) }()

	if _, err := m.authorizeEntry(ctx, name); err != nil {
		return err
	}
	if err := m.repo.DeleteByID(ctx, name); err != nil {
		return err
	}
	m.logger.Info("property removed", "property", name)
	return nil
}

// RemoveSingle removes the property from one channel
func (m *PropertyManager) RemoveSingle(ctx context.Context, propertyName, channelName string) (err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceProperty), "remove_single", start, err) }()

	if _, err := m.authorizeEntry(ctx, propertyName); err != nil {
		return err
	}
	if _, err := m.engine.DetachProperty(ctx, propertyName, channelName); err != nil {
		return err
	}
	m.logger.Info("property removed from channel", "property", propertyName, "channel", channelName)
	return nil
}

func (m *PropertyManager) authorizeEntry(ctx context.Context, name string) (vocabulary.Entry, error) {
	if err := authorizeRole(ctx, m.auth, ResourceProperty); err != nil {
		return vocabulary.Entry{}, err
	}
	e, err := m.repo.FindByID(ctx, name)
	if err != nil {
		return vocabulary.Entry{}, err
	}
	if err := authorizeOwner(ctx, m.auth, ResourceProperty, name, e.Owner); err != nil {
		return vocabulary.Entry{}, err
	}
	return e, nil
}

func (m *PropertyManager) lookup(ctx context.Context, name string) (vocabulary.Entry, bool, error) {
	e, err := m.repo.FindByID(ctx, name)
	if core.IsNotFound(err) {
		return vocabulary.Entry{}, false, nil
	}
	if err != nil {
		return vocabulary.Entry{}, false, err
	}
	return e, true, nil
}

// attach sets the values listed in prop.Channels
func (m *PropertyManager) attach(ctx context.Context, name string, prop core.Property) ([]core.Channel, error) {
	values := make([]merge.PropertyValue, len(prop.Channels))
	for i, ch := range prop.Channels {
		values[i] = merge.PropertyValue{Channel: ch.Name, Value: propertyValue(ch, prop.Name)}
	}
	if len(values) == 0 {
		return []core.Channel{}, nil
	}
	return m.engine.AttachProperty(ctx, name, values)
}

// detachAll removes the property from every channel using it
func (m *PropertyManager) detachAll(ctx context.Context, name string) error {
	using, err := m.finder.names(ctx, withProperty(name))
	if err != nil {
		return err
	}
	_, err = m.engine.EditAll(ctx, "detach_property", using, func(ch core.Channel) core.Channel {
		return replaceProperty(ch, name, vocabulary.Entry{})
	})
	return err
}

func (m *PropertyManager) view(ctx context.Context, e vocabulary.Entry) (core.Property, error) {
	chs, err := m.finder.find(ctx, withProperty(e.Name))
	if err != nil {
		return core.Property{}, err
	}
	return propertyView(e, chs), nil
}

// propertyView lists chs reduced to their name, owner and their value for
// the property
func propertyView(e vocabulary.Entry, chs []core.Channel) core.Property {
	prop := core.Property{Name: e.Name, Owner: e.Owner, Channels: make([]core.Channel, 0, len(chs))}
	for _, ch := range chs {
		reduced := core.Channel{Name: ch.Name, Owner: ch.Owner, Properties: []core.Property{}, Tags: []core.Tag{}}
		if p, ok := ch.Property(e.Name); ok {
			reduced.Properties = append(reduced.Properties, p)
		}
		prop.Channels = append(prop.Channels, reduced)
	}
	return prop
}

// replaceProperty renames the property called name to e, keeping its value
// and taking e's owner, or drops it when e has no name
func replaceProperty(ch core.Channel, name string, e vocabulary.Entry) core.Channel {
	out := ch.Clone()
	out.Properties = make([]core.Property, 0, len(ch.Properties))
	replaced := false
	for _, p := range ch.Properties {
		switch {
		case p.Name == name && e.Name != "" && !replaced:
			out.Properties = append(out.Properties, core.Property{Name: e.Name, Owner: e.Owner, Value: p.Value})
			replaced = true
		case p.Name == name, e.Name != "" && p.Name == e.Name:
		default:
			out.Properties = append(out.Properties, p)
		}
	}
	return out
}

func propertyNames(props []core.Property) []string {
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}
	return names
}
