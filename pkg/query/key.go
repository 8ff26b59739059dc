package query

import (
	"strings"

	"github.com/liliang-cn/channelfinder/pkg/core"
)

// Kind classifies a search parameter key
type Kind int

const (
	// KindProperty is any non-reserved key: a literal property name filter
	KindProperty Kind = iota
	// KindName filters on the channel name
	KindName
	// KindTag filters on the names of the channel's tags
	KindTag
	// KindSize sets the maximum number of hits
	KindSize
	// KindFrom sets the offset into the sorted result set
	KindFrom
	// KindSearchAfter positions the page after a cursor
	KindSearchAfter
)

// Reserved parameter keys
const (
	KeyName        = "~name"
	KeyTag         = "~tag"
	KeySize        = "~size"
	KeyFrom        = "~from"
	KeySearchAfter = "~search_after"
)

var reserved = map[string]Kind{
	KeyName:        KindName,
	KeyTag:         KindTag,
	KeySize:        KindSize,
	KeyFrom:        KindFrom,
	KeySearchAfter: KindSearchAfter,
}

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindName:
		return "name"
	case KindTag:
		return "tag"
	case KindSize:
		return "size"
	case KindFrom:
		return "from"
	case KindSearchAfter:
		return "search_after"
	default:
		return "property"
	}
}

// Key is a parsed parameter key
type Key struct {
	Kind   Kind
	Name   string // property name for KindProperty, the reserved key otherwise
	Negate bool   // trailing '!'
}

// IsPagination reports whether the key only positions the result page
func (k Key) IsPagination() bool {
	return k.Kind == KindSize || k.Kind == KindFrom || k.Kind == KindSearchAfter
}

// ParseKey classifies a raw parameter key. Surrounding whitespace is ignored
// and a single trailing '!' requests negation; a repeated '!' is rejected.
func ParseKey(raw string) (Key, error) {
	name := strings.TrimSpace(raw)
	negate := strings.HasSuffix(name, "!")
	if negate {
		name = strings.TrimSpace(strings.TrimSuffix(name, "!"))
	}
	if name == "" {
		return Key{}, core.InvalidInputf("empty search parameter name in %q", raw)
	}
	if strings.HasSuffix(name, "!") {
		return Key{}, core.InvalidInputf("search parameter %q has more than one trailing '!'", raw)
	}

	if kind, ok := reserved[name]; ok {
		key := Key{Kind: kind, Name: name, Negate: negate}
		if key.IsPagination() {
			key.Negate = false
		}
		return key, nil
	}
	return Key{Kind: KindProperty, Name: name, Negate: negate}, nil
}

// SplitPatterns splits one parameter value into its alternative patterns.
// '|', ',' and ';' separate alternatives; blank alternatives are dropped.
func SplitPatterns(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == '|' || r == ',' || r == ';'
	})
	patterns := make([]string, 0, len(fields))
	for _, f := range fields {
		if p := strings.TrimSpace(f); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}
