package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/liliang-cn/channelfinder/internal/encoding"
	"github.com/liliang-cn/channelfinder/pkg/core"
)

// OwnerResolver looks up the current owners of vocabulary entries
type OwnerResolver interface {
	ResolveOwners(ctx context.Context, tagNames, propertyNames []string) (Owners, error)
}

// Gate validates a payload before it is written. It sees the payload after
// owner inheritance and before association owners are resolved.
type Gate interface {
	ValidateChannel(ctx context.Context, ch core.Channel) error
}

// Config holds the engine configuration
type Config struct {
	Index  string      // channel index
	Gate   Gate        // optional validation hook
	Logger core.Logger // nil discards logs
}

// PropertyValue assigns a property value to one channel
type PropertyValue struct {
	Channel string
	Value   string
}

// Engine reconciles incoming channel payloads with stored state and writes
// the result to the index store. It holds no state between calls.
type Engine struct {
	store  core.IndexStore
	owners OwnerResolver
	config Config
	logger core.Logger
}

// NewEngine creates a merge engine
func NewEngine(store core.IndexStore, owners OwnerResolver, config Config) (*Engine, error) {
	if store == nil {
		return nil, errors.New("merge: store is required")
	}
	if owners == nil {
		return nil, errors.New("merge: owner resolver is required")
	}
	if config.Index == "" {
		config.Index = "channelfinder"
	}
	logger := config.Logger
	if logger == nil {
		logger = core.NopLogger()
	}
	return &Engine{
		store:  store,
		owners: owners,
		config: config,
		logger: logger.With("component", "merge", "index", config.Index),
	}, nil
}

// Find returns the stored channel, or an ErrNotFound error
func (e *Engine) Find(ctx context.Context, name string) (core.Channel, error) {
	data, err := e.store.Get(ctx, e.config.Index, name)
	if err != nil {
		if core.IsNotFound(err) {
			return core.Channel{}, core.NotFoundf("channel %q does not exist", name)
		}
		return core.Channel{}, err
	}
	return encoding.DecodeChannel(data)
}

// FindAll returns the stored channels among names, keyed by name
func (e *Engine) FindAll(ctx context.Context, names []string) (map[string]core.Channel, error) {
	docs, err := e.store.MultiGet(ctx, e.config.Index, names)
	if err != nil {
		return nil, err
	}
	found := make(map[string]core.Channel, len(docs))
	for id, data := range docs {
		ch, err := encoding.DecodeChannel(data)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", id, err)
		}
		found[id] = ch
	}
	return found, nil
}

// Exists reports whether a channel is stored under name
func (e *Engine) Exists(ctx context.Context, name string) (bool, error) {
	return e.store.Exists(ctx, e.config.Index, name)
}

// Delete removes a stored channel, or returns an ErrNotFound error
func (e *Engine) Delete(ctx context.Context, name string) error {
	existed, err := e.store.Delete(ctx, e.config.Index, name)
	if err != nil {
		return err
	}
	if !existed {
		return core.NotFoundf("channel %q does not exist", name)
	}
	e.logger.Info("channel deleted", "channel", name)
	return nil
}

// Replace stores incoming as the complete new state of the channel at name.
// Associations not carried by incoming are dropped. When incoming names a
// different channel, the document at name is removed once the new one is
// written.
func (e *Engine) Replace(ctx context.Context, name string, incoming core.Channel) (core.Channel, error) {
	ch := Normalize(incoming)
	if ch.Name == "" {
		ch.Name = name
	}
	if err := e.validate(ctx, ch); err != nil {
		return core.Channel{}, err
	}

	resolved, err := e.resolve(ctx, []core.Channel{ch})
	if err != nil {
		return core.Channel{}, err
	}

	if err := e.write(ctx, resolved[0]); err != nil {
		return core.Channel{}, err
	}
	if err := e.dropRenamed(ctx, name, resolved[0].Name); err != nil {
		return core.Channel{}, err
	}

	e.logger.Info("channel replaced", "channel", resolved[0].Name, "previous", name)
	return e.Find(ctx, resolved[0].Name)
}

// Merge adds the associations of incoming to the channel at name, creating
// the channel when it does not exist. A blank incoming owner keeps the stored
// owner.
func (e *Engine) Merge(ctx context.Context, name string, incoming core.Channel) (core.Channel, error) {
	ch := Normalize(incoming)
	if ch.Name == "" {
		ch.Name = name
	}

	stored, exists, err := e.lookup(ctx, name)
	if err != nil {
		return core.Channel{}, err
	}
	if exists && ch.Owner == "" {
		ch.Owner = stored.Owner
	}

	if err := e.validate(ctx, ch); err != nil {
		return core.Channel{}, err
	}

	resolved, err := e.resolve(ctx, []core.Channel{ch})
	if err != nil {
		return core.Channel{}, err
	}

	merged := resolved[0]
	if exists {
		merged = Union(stored, resolved[0])
	}

	if err := e.write(ctx, merged); err != nil {
		return core.Channel{}, err
	}
	if err := e.dropRenamed(ctx, name, merged.Name); err != nil {
		return core.Channel{}, err
	}

	e.logger.Info("channel merged", "channel", merged.Name, "created", !exists)
	return e.Find(ctx, merged.Name)
}

// ReplaceAll replaces every channel of the batch in a single bulk write.
// Channels that already exist keep their stored owner.
func (e *Engine) ReplaceAll(ctx context.Context, incoming []core.Channel) ([]core.Channel, error) {
	existing, err := e.FindAll(ctx, names(incoming))
	if err != nil {
		return nil, err
	}

	planned, err := PlanReplaceAll(incoming, existing)
	if err != nil {
		return nil, err
	}
	for _, ch := range planned {
		if err := e.validate(ctx, ch); err != nil {
			return nil, err
		}
	}

	resolved, err := e.resolve(ctx, planned)
	if err != nil {
		return nil, err
	}

	return e.bulkWrite(ctx, "replace", resolved)
}

// MergeAll merges every channel of the batch into its stored counterpart in
// a single bulk write. Independent channels of the batch do not interact.
func (e *Engine) MergeAll(ctx context.Context, incoming []core.Channel) ([]core.Channel, error) {
	existing, err := e.FindAll(ctx, names(incoming))
	if err != nil {
		return nil, err
	}

	planned, err := PlanMergeAll(incoming, existing)
	if err != nil {
		return nil, err
	}
	for _, ch := range planned {
		if err := e.validate(ctx, ch); err != nil {
			return nil, err
		}
	}

	resolved, err := e.resolve(ctx, planned)
	if err != nil {
		return nil, err
	}

	return e.bulkWrite(ctx, "merge", ApplyMerge(resolved, existing))
}

// AttachTag adds tag to every named channel. All channels must exist.
func (e *Engine) AttachTag(ctx context.Context, tagName string, channelNames []string) ([]core.Channel, error) {
	owners, err := e.owners.ResolveOwners(ctx, []string{tagName}, nil)
	if err != nil {
		return nil, err
	}
	owner, ok := owners.Tags[tagName]
	if !ok {
		return nil, core.NotFoundf("tag %q does not exist", tagName)
	}

	return e.EditAll(ctx, "attach_tag", channelNames, func(ch core.Channel) core.Channel {
		return Union(ch, core.Channel{Tags: []core.Tag{{Name: tagName, Owner: owner}}})
	})
}

// AttachProperty sets the property on every listed channel to its value.
// All channels must exist and every value must be non-empty.
func (e *Engine) AttachProperty(ctx context.Context, propertyName string, values []PropertyValue) ([]core.Channel, error) {
	byChannel := make(map[string]string, len(values))
	channelNames := make([]string, 0, len(values))
	for _, v := range values {
		if v.Value == "" {
			return nil, core.InvalidInputf("property %q on channel %q has an empty value", propertyName, v.Channel)
		}
		if _, dup := byChannel[v.Channel]; !dup {
			channelNames = append(channelNames, v.Channel)
		}
		byChannel[v.Channel] = v.Value
	}

	owners, err := e.owners.ResolveOwners(ctx, nil, []string{propertyName})
	if err != nil {
		return nil, err
	}
	owner, ok := owners.Properties[propertyName]
	if !ok {
		return nil, core.NotFoundf("property %q does not exist", propertyName)
	}

	return e.EditAll(ctx, "attach_property", channelNames, func(ch core.Channel) core.Channel {
		return Union(ch, core.Channel{Properties: []core.Property{{
			Name: propertyName, Owner: owner, Value: byChannel[ch.Name],
		}}})
	})
}

// DetachTag removes the tag from one channel
func (e *Engine) DetachTag(ctx context.Context, tagName, channelName string) (core.Channel, error) {
	return e.edit(ctx, channelName, func(ch core.Channel) core.Channel {
		out := ch.Clone()
		out.Tags = out.Tags[:0]
		for _, t := range ch.Tags {
			if t.Name != tagName {
				out.Tags = append(out.Tags, t)
			}
		}
		return out
	})
}

// DetachProperty removes the property from one channel
func (e *Engine) DetachProperty(ctx context.Context, propertyName, channelName string) (core.Channel, error) {
	return e.edit(ctx, channelName, func(ch core.Channel) core.Channel {
		out := ch.Clone()
		out.Properties = out.Properties[:0]
		for _, p := range ch.Properties {
			if p.Name != propertyName {
				out.Properties = append(out.Properties, p)
			}
		}
		return out
	})
}

func (e *Engine) edit(ctx context.Context, channelName string, fn func(core.Channel) core.Channel) (core.Channel, error) {
	stored, err := e.Find(ctx, channelName)
	if err != nil {
		return core.Channel{}, err
	}
	if err := e.write(ctx, fn(stored)); err != nil {
		return core.Channel{}, err
	}
	return e.Find(ctx, channelName)
}

// EditAll applies fn to each named stored channel and writes the results in
// one bulk write. Every channel must exist. fn must set association owners
// itself; they are not resolved again.
func (e *Engine) EditAll(ctx context.Context, op string, channelNames []string, fn func(core.Channel) core.Channel) ([]core.Channel, error) {
	channelNames = dedupe(channelNames)
	if len(channelNames) == 0 {
		return []core.Channel{}, nil
	}
	existing, err := e.FindAll(ctx, channelNames)
	if err != nil {
		return nil, err
	}

	edited := make([]core.Channel, len(channelNames))
	for i, name := range channelNames {
		stored, ok := existing[name]
		if !ok {
			return nil, core.NotFoundf("channel %q does not exist", name)
		}
		edited[i] = fn(stored)
	}
	return e.bulkWrite(ctx, op, edited)
}

func (e *Engine) lookup(ctx context.Context, name string) (core.Channel, bool, error) {
	stored, err := e.Find(ctx, name)
	if core.IsNotFound(err) {
		return core.Channel{}, false, nil
	}
	if err != nil {
		return core.Channel{}, false, err
	}
	return stored, true, nil
}

func (e *Engine) validate(ctx context.Context, ch core.Channel) error {
	if ch.Name == "" {
		return core.InvalidInputf("channel name cannot be empty")
	}
	if e.config.Gate == nil {
		return nil
	}
	return e.config.Gate.ValidateChannel(ctx, ch)
}

// resolve replaces association owners with the vocabulary owners, using one
// lookup for the whole batch
func (e *Engine) resolve(ctx context.Context, chs []core.Channel) ([]core.Channel, error) {
	tags, props := ReferencedNames(chs...)
	owners := Owners{}
	if len(tags) > 0 || len(props) > 0 {
		var err error
		owners, err = e.owners.ResolveOwners(ctx, tags, props)
		if err != nil {
			return nil, err
		}
	}

	out := make([]core.Channel, len(chs))
	for i, ch := range chs {
		resolved, err := ResolveOwners(ch, owners)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

func (e *Engine) write(ctx context.Context, ch core.Channel) error {
	doc, err := encoding.EncodeChannel(ch)
	if err != nil {
		return err
	}
	if _, err := e.store.Index(ctx, e.config.Index, ch.Name, doc); err != nil {
		e.logger.Error("failed to write channel", "channel", ch.Name, "error", err)
		return err
	}
	return nil
}

// dropRenamed removes the document left behind when a write moved a channel
// to a new name
func (e *Engine) dropRenamed(ctx context.Context, previous, current string) error {
	if previous == "" || previous == current {
		return nil
	}
	if _, err := e.store.Delete(ctx, e.config.Index, previous); err != nil {
		return err
	}
	e.logger.Info("channel renamed", "from", previous, "to", current)
	return nil
}

// bulkWrite stores chs in one round trip and returns them as stored, in order
func (e *Engine) bulkWrite(ctx context.Context, op string, chs []core.Channel) ([]core.Channel, error) {
	batch := uuid.New().String()
	logger := e.logger.With("batch", batch, "op", op)

	items := make([]core.BulkItem, len(chs))
	for i, ch := range chs {
		doc, err := encoding.EncodeChannel(ch)
		if err != nil {
			return nil, err
		}
		items[i] = core.BulkItem{ID: ch.Name, Doc: doc}
	}

	resp, err := e.store.BulkUpsert(ctx, e.config.Index, items)
	if err != nil {
		logger.Error("bulk write failed", "items", len(items), "error", err)
		return nil, err
	}
	if err := resp.Err(); err != nil {
		logger.Error("bulk write had errors", "items", len(items), "failed", resp.Failed())
		return nil, err
	}
	logger.Info("bulk write completed", "items", len(items))

	written := names(chs)
	stored, err := e.FindAll(ctx, written)
	if err != nil {
		return nil, err
	}
	out := make([]core.Channel, 0, len(written))
	for _, name := range written {
		ch, ok := stored[name]
		if !ok {
			return nil, fmt.Errorf("channel %q missing after write", name)
		}
		out = append(out, ch)
	}
	return out, nil
}

func names(chs []core.Channel) []string {
	out := make([]string, len(chs))
	for i, ch := range chs {
		out[i] = ch.Name
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
