package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/liliang-cn/channelfinder/pkg/core"
)

// Channel document fields addressed by compiled queries
const (
	FieldName          = "name"
	FieldTags          = "tags"
	FieldTagName       = "tags.name"
	FieldProperties    = "properties"
	FieldPropertyName  = "properties.name"
	FieldPropertyValue = "properties.value"
)

// Config holds the compiler defaults
type Config struct {
	Index       string // channel index searched by compiled requests
	DefaultSize int    // result count when no ~size is given
	SortField   string // field results are ordered by, ascending
}

// DefaultConfig returns the default compiler configuration
func DefaultConfig() Config {
	return Config{
		Index:       "channelfinder",
		DefaultSize: 10000,
		SortField:   FieldName,
	}
}

// Compiler translates multi-valued search parameters into a SearchRequest.
// It performs no I/O and is safe for concurrent use.
type Compiler struct {
	config Config
}

// NewCompiler creates a compiler; zero-valued fields take their defaults
func NewCompiler(config Config) *Compiler {
	defaults := DefaultConfig()
	if config.Index == "" {
		config.Index = defaults.Index
	}
	if config.DefaultSize <= 0 {
		config.DefaultSize = defaults.DefaultSize
	}
	if config.SortField == "" {
		config.SortField = defaults.SortField
	}
	return &Compiler{config: config}
}

// Config returns the compiler configuration
func (c *Compiler) Config() Config {
	return c.config
}

// Compile builds the search request for params. Every distinct filter key
// contributes one clause and the clauses are AND'ed; a request without
// filters matches every channel. Results are sorted by name ascending.
func (c *Compiler) Compile(params map[string][]string) (*core.SearchRequest, error) {
	req := &core.SearchRequest{
		Index: c.config.Index,
		Size:  c.config.DefaultSize,
		Sort:  []core.SortField{{Field: c.config.SortField}},
	}

	rawKeys := make([]string, 0, len(params))
	for k := range params {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	var (
		clauses             []*core.Query
		sizeSet, fromSet    bool
		searchAfter         string
		searchAfterResolved bool
	)

	for _, raw := range rawKeys {
		values := params[raw]
		key, err := ParseKey(raw)
		if err != nil {
			return nil, err
		}

		switch key.Kind {
		case KindName:
			if q := valueClauses(values, key.Negate, nameMatch); q != nil {
				clauses = append(clauses, q)
			}

		case KindTag:
			if q := valueClauses(values, key.Negate, tagMatch); q != nil {
				clauses = append(clauses, q)
			}

		case KindSize:
			n, ok, err := maxValue(key, values)
			if err != nil {
				return nil, err
			}
			if ok && (!sizeSet || n > req.Size) {
				req.Size = n
				sizeSet = true
			}

		case KindFrom:
			n, ok, err := maxValue(key, values)
			if err != nil {
				return nil, err
			}
			if ok && (!fromSet || n > req.From) {
				req.From = n
				fromSet = true
			}

		case KindSearchAfter:
			if !searchAfterResolved && len(values) > 0 {
				searchAfter = strings.TrimSpace(values[0])
				searchAfterResolved = true
			}

		case KindProperty:
			if q := propertyClause(key, values); q != nil {
				clauses = append(clauses, q)
			}
		}
	}

	if searchAfter != "" {
		req.SearchAfter = []string{searchAfter}
		req.From = 0
	}

	switch len(clauses) {
	case 0:
		req.Query = core.MatchAll()
	case 1:
		req.Query = clauses[0]
	default:
		req.Query = core.And(clauses...)
	}

	return req, nil
}

func nameMatch(pattern string) *core.Query {
	return core.Wildcard(FieldName, pattern)
}

func tagMatch(pattern string) *core.Query {
	return core.Nested(FieldTags, core.Wildcard(FieldTagName, pattern))
}

// valueClauses builds one alternation per value and ANDs the values. With
// negate, each value excludes the channels matching any of its alternatives.
func valueClauses(values []string, negate bool, match func(string) *core.Query) *core.Query {
	perValue := make([]*core.Query, 0, len(values))
	for _, v := range values {
		patterns := SplitPatterns(v)
		if len(patterns) == 0 {
			continue
		}
		alts := make([]*core.Query, len(patterns))
		for i, p := range patterns {
			alts[i] = match(p)
		}
		q := core.Or(alts...)
		if negate {
			q = core.Not(q)
		}
		perValue = append(perValue, q)
	}

	switch len(perValue) {
	case 0:
		return nil
	case 1:
		return perValue[0]
	default:
		return core.And(perValue...)
	}
}

// propertyClause ORs every pattern of every value. Each alternative requires
// one property element carrying the exact name whose value matches, or with
// negate does not match, the pattern.
func propertyClause(key Key, values []string) *core.Query {
	var alts []*core.Query
	for _, v := range values {
		for _, p := range SplitPatterns(v) {
			valueMatch := core.Wildcard(FieldPropertyValue, p)
			if key.Negate {
				valueMatch = core.Not(valueMatch)
			}
			alts = append(alts, core.Nested(FieldProperties,
				core.And(core.Term(FieldPropertyName, key.Name), valueMatch)))
		}
	}
	if len(alts) == 0 {
		return nil
	}
	return core.Or(alts...)
}

// maxValue returns the numeric maximum of values. ok is false when there are
// no values. Non-integer and negative values are rejected.
func maxValue(key Key, values []string) (best int, ok bool, err error) {
	for _, v := range values {
		n, convErr := strconv.Atoi(strings.TrimSpace(v))
		if convErr != nil {
			return 0, false, core.InvalidInputf("%s must be an integer, got %q", key.Name, v)
		}
		if n < 0 {
			return 0, false, core.InvalidInputf("%s must be non-negative, got %d", key.Name, n)
		}
		if !ok || n > best {
			best = n
			ok = true
		}
	}
	return best, ok, nil
}
