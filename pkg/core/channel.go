package core

import (
	"fmt"
	"strings"
)

// Channel is the primary catalog resource. Its name is its identity.
type Channel struct {
	Name       string     `json:"name"`
	Owner      string     `json:"owner"`
	Properties []Property `json:"properties"`
	Tags       []Tag      `json:"tags"`
}

// Tag is a boolean label. On a channel only Name and Owner are meaningful;
// Channels is the derived "with channels" view of the vocabulary entry.
type Tag struct {
	Name     string    `json:"name"`
	Owner    string    `json:"owner"`
	Channels []Channel `json:"channels,omitempty"`
}

// Property is a named key. On a channel it carries that channel's Value;
// Channels is the derived view listing every channel using the property.
type Property struct {
	Name     string    `json:"name"`
	Owner    string    `json:"owner"`
	Value    string    `json:"value,omitempty"`
	Channels []Channel `json:"channels,omitempty"`
}

// TagNames returns the names of the channel's tags in order
func (c Channel) TagNames() []string {
	names := make([]string, len(c.Tags))
	for i, t := range c.Tags {
		names[i] = t.Name
	}
	return names
}

// PropertyNames returns the names of the channel's properties in order
func (c Channel) PropertyNames() []string {
	names := make([]string, len(c.Properties))
	for i, p := range c.Properties {
		names[i] = p.Name
	}
	return names
}

// Tag returns the tag with the given name, if the channel carries it
func (c Channel) Tag(name string) (Tag, bool) {
	for _, t := range c.Tags {
		if t.Name == name {
			return t, true
		}
	}
	return Tag{}, false
}

// Property returns the property association with the given name
func (c Channel) Property(name string) (Property, bool) {
	for _, p := range c.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Clone returns a deep copy of the channel
func (c Channel) Clone() Channel {
	out := Channel{Name: c.Name, Owner: c.Owner}
	if c.Properties != nil {
		out.Properties = make([]Property, len(c.Properties))
		for i, p := range c.Properties {
			out.Properties[i] = Property{Name: p.Name, Owner: p.Owner, Value: p.Value}
		}
	}
	if c.Tags != nil {
		out.Tags = make([]Tag, len(c.Tags))
		for i, t := range c.Tags {
			out.Tags[i] = Tag{Name: t.Name, Owner: t.Owner}
		}
	}
	return out
}

// LogString renders a compact description suitable for log lines
func (c Channel) LogString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s)", c.Name, c.Owner)
	if len(c.Properties) > 0 {
		b.WriteString(" props=")
		for i, p := range c.Properties {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%s=%s", p.Name, p.Value)
		}
	}
	if len(c.Tags) > 0 {
		b.WriteString(" tags=")
		b.WriteString(strings.Join(c.TagNames(), ","))
	}
	return b.String()
}
