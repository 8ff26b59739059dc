package merge

import (
	"github.com/liliang-cn/channelfinder/pkg/core"
)

// Owners maps vocabulary names to their current owners
type Owners struct {
	Tags       map[string]string
	Properties map[string]string
}

// Normalize returns a copy of ch with duplicate associations collapsed.
// Tags keep their first position; properties keep their first position and
// take the last value given for their name. Derived channel views are dropped.
func Normalize(ch core.Channel) core.Channel {
	out := core.Channel{
		Name:       ch.Name,
		Owner:      ch.Owner,
		Tags:       make([]core.Tag, 0, len(ch.Tags)),
		Properties: make([]core.Property, 0, len(ch.Properties)),
	}

	seenTags := make(map[string]bool, len(ch.Tags))
	for _, t := range ch.Tags {
		if seenTags[t.Name] {
			continue
		}
		seenTags[t.Name] = true
		out.Tags = append(out.Tags, core.Tag{Name: t.Name, Owner: t.Owner})
	}

	propIndex := make(map[string]int, len(ch.Properties))
	for _, p := range ch.Properties {
		if i, ok := propIndex[p.Name]; ok {
			out.Properties[i].Value = p.Value
			continue
		}
		propIndex[p.Name] = len(out.Properties)
		out.Properties = append(out.Properties, core.Property{Name: p.Name, Owner: p.Owner, Value: p.Value})
	}

	return out
}

// Union merges incoming into stored. The incoming name and owner win when
// non-empty. Stored associations are kept, incoming tags are added once, and
// an incoming property replaces the stored value of the same name.
func Union(stored, incoming core.Channel) core.Channel {
	base := Normalize(stored)
	in := Normalize(incoming)

	if in.Name != "" {
		base.Name = in.Name
	}
	if in.Owner != "" {
		base.Owner = in.Owner
	}

	tagIndex := make(map[string]int, len(base.Tags))
	for i, t := range base.Tags {
		tagIndex[t.Name] = i
	}
	for _, t := range in.Tags {
		if _, ok := tagIndex[t.Name]; ok {
			continue
		}
		tagIndex[t.Name] = len(base.Tags)
		base.Tags = append(base.Tags, t)
	}

	propIndex := make(map[string]int, len(base.Properties))
	for i, p := range base.Properties {
		propIndex[p.Name] = i
	}
	for _, p := range in.Properties {
		if i, ok := propIndex[p.Name]; ok {
			base.Properties[i] = p
			continue
		}
		propIndex[p.Name] = len(base.Properties)
		base.Properties = append(base.Properties, p)
	}

	return base
}

// InheritOwner returns a copy of ch owned by owner
func InheritOwner(ch core.Channel, owner string) core.Channel {
	out := ch.Clone()
	out.Owner = owner
	return out
}

// ResolveOwners returns a copy of ch whose tag and property owners are taken
// from the vocabulary. Client-supplied association owners are discarded.
func ResolveOwners(ch core.Channel, owners Owners) (core.Channel, error) {
	out := ch.Clone()
	for i, t := range out.Tags {
		owner, ok := owners.Tags[t.Name]
		if !ok {
			return core.Channel{}, core.NotFoundf("tag %q does not exist", t.Name)
		}
		out.Tags[i].Owner = owner
	}
	for i, p := range out.Properties {
		owner, ok := owners.Properties[p.Name]
		if !ok {
			return core.Channel{}, core.NotFoundf("property %q does not exist", p.Name)
		}
		out.Properties[i].Owner = owner
	}
	return out, nil
}

// ReferencedNames returns the distinct tag and property names used by chs
func ReferencedNames(chs ...core.Channel) (tags, properties []string) {
	seenTags := make(map[string]bool)
	seenProps := make(map[string]bool)
	for _, ch := range chs {
		for _, t := range ch.Tags {
			if !seenTags[t.Name] {
				seenTags[t.Name] = true
				tags = append(tags, t.Name)
			}
		}
		for _, p := range ch.Properties {
			if !seenProps[p.Name] {
				seenProps[p.Name] = true
				properties = append(properties, p.Name)
			}
		}
	}
	return tags, properties
}

// PlanReplaceAll prepares a bulk replace. Channels already stored keep their
// stored owner whatever the payload says; new channels keep the payload owner.
func PlanReplaceAll(incoming []core.Channel, existing map[string]core.Channel) ([]core.Channel, error) {
	if err := checkBatch(incoming); err != nil {
		return nil, err
	}
	planned := make([]core.Channel, len(incoming))
	for i, ch := range incoming {
		planned[i] = Normalize(ch)
		if stored, ok := existing[ch.Name]; ok {
			planned[i].Owner = stored.Owner
		}
	}
	return planned, nil
}

// PlanMergeAll prepares a bulk merge. A blank payload owner inherits the
// stored owner; a non-empty one overrides it.
func PlanMergeAll(incoming []core.Channel, existing map[string]core.Channel) ([]core.Channel, error) {
	if err := checkBatch(incoming); err != nil {
		return nil, err
	}
	planned := make([]core.Channel, len(incoming))
	for i, ch := range incoming {
		planned[i] = Normalize(ch)
		if stored, ok := existing[ch.Name]; ok && planned[i].Owner == "" {
			planned[i].Owner = stored.Owner
		}
	}
	return planned, nil
}

// ApplyMerge unions each resolved payload with its stored counterpart
func ApplyMerge(resolved []core.Channel, existing map[string]core.Channel) []core.Channel {
	out := make([]core.Channel, len(resolved))
	for i, ch := range resolved {
		if stored, ok := existing[ch.Name]; ok {
			out[i] = Union(stored, ch)
		} else {
			out[i] = ch
		}
	}
	return out
}

// checkBatch rejects blank names and names given twice in one batch
func checkBatch(incoming []core.Channel) error {
	seen := make(map[string]bool, len(incoming))
	for i, ch := range incoming {
		if ch.Name == "" {
			return core.InvalidInputf("channel at position %d has no name", i)
		}
		if seen[ch.Name] {
			return core.InvalidInputf("channel %q appears more than once in the batch", ch.Name)
		}
		seen[ch.Name] = true
	}
	return nil
}
