package encoding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/liliang-cn/channelfinder/pkg/core"
)

// ErrInvalidDocument is returned when a stored document cannot be decoded
var ErrInvalidDocument = errors.New("invalid document")

// channelDoc is the stored form of a channel: nested associations never
// carry derived channel views, and empty sets are written as [] not null.
type channelDoc struct {
	Name       string        `json:"name"`
	Owner      string        `json:"owner"`
	Properties []propertyDoc `json:"properties"`
	Tags       []entryDoc    `json:"tags"`
}

type propertyDoc struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
	Value string `json:"value"`
}

type entryDoc struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
}

// EncodeChannel encodes a channel into its stored JSON form
func EncodeChannel(ch core.Channel) ([]byte, error) {
	doc := channelDoc{
		Name:       ch.Name,
		Owner:      ch.Owner,
		Properties: make([]propertyDoc, len(ch.Properties)),
		Tags:       make([]entryDoc, len(ch.Tags)),
	}
	for i, p := range ch.Properties {
		doc.Properties[i] = propertyDoc{Name: p.Name, Owner: p.Owner, Value: p.Value}
	}
	for i, t := range ch.Tags {
		doc.Tags[i] = entryDoc{Name: t.Name, Owner: t.Owner}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode channel %q: %w", ch.Name, err)
	}
	return data, nil
}

// DecodeChannel decodes a stored channel document
func DecodeChannel(data []byte) (core.Channel, error) {
	var doc channelDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return core.Channel{}, fmt.Errorf("%w: failed to decode channel: %v", ErrInvalidDocument, err)
	}

	ch := core.Channel{
		Name:       doc.Name,
		Owner:      doc.Owner,
		Properties: make([]core.Property, len(doc.Properties)),
		Tags:       make([]core.Tag, len(doc.Tags)),
	}
	for i, p := range doc.Properties {
		ch.Properties[i] = core.Property{Name: p.Name, Owner: p.Owner, Value: p.Value}
	}
	for i, t := range doc.Tags {
		ch.Tags[i] = core.Tag{Name: t.Name, Owner: t.Owner}
	}
	return ch, nil
}

// EncodeEntry encodes a vocabulary entry (tag or property definition)
func EncodeEntry(name, owner string) ([]byte, error) {
	data, err := json.Marshal(entryDoc{Name: name, Owner: owner})
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry %q: %w", name, err)
	}
	return data, nil
}

// DecodeEntry decodes a stored vocabulary entry
func DecodeEntry(data []byte) (name, owner string, err error) {
	var doc entryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", "", fmt.Errorf("%w: failed to decode entry: %v", ErrInvalidDocument, err)
	}
	return doc.Name, doc.Owner, nil
}

// DecodeList decodes either a JSON array of T or a single JSON object as a
// one-element list. Payload files may hold one resource or many.
func DecodeList[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", core.ErrInvalidInput)
	}

	if trimmed[0] == '[' {
		var list []T
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: failed to parse JSON list: %v", core.ErrInvalidInput, err)
		}
		return list, nil
	}

	var one T
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON object: %v", core.ErrInvalidInput, err)
	}
	return []T{one}, nil
}
