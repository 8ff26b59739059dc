package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/liliang-cn/channelfinder/internal/encoding"
	"github.com/liliang-cn/channelfinder/pkg/core"
	"github.com/liliang-cn/channelfinder/pkg/merge"
	"github.com/liliang-cn/channelfinder/pkg/query"
	"github.com/liliang-cn/channelfinder/pkg/vocabulary"
)

// Config names the indexes the catalog uses and the default page size
type Config struct {
	ChannelIndex  string `json:"channelIndex"`
	TagIndex      string `json:"tagIndex"`
	PropertyIndex string `json:"propertyIndex"`
	DefaultSize   int    `json:"defaultSize"` // channels returned when a query gives no ~size
}

// DefaultConfig returns the default catalog configuration
func DefaultConfig() Config {
	return Config{
		ChannelIndex:  "channelfinder",
		TagIndex:      "cf_tags",
		PropertyIndex: "cf_properties",
		DefaultSize:   10000,
	}
}

// Option configures a Catalog
type Option func(*options)

type options struct {
	logger     core.Logger
	auth       Authorizer
	registerer prometheus.Registerer
}

// WithLogger sets the logger used by every component
func WithLogger(logger core.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAuthorizer sets the authorization collaborator; the default allows everything
func WithAuthorizer(auth Authorizer) Option {
	return func(o *options) { o.auth = auth }
}

// WithRegisterer registers the catalog metrics on reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// Catalog wires the resource managers over one index store
type Catalog struct {
	Channels   *ChannelManager
	Tags       *TagManager
	Properties *PropertyManager

	store  core.IndexStore
	closer func() error
	logger core.Logger
}

// New creates a catalog over an initialized store
func New(store core.IndexStore, config Config, opts ...Option) (*Catalog, error) {
	if store == nil {
		return nil, errors.New("catalog: store is required")
	}
	config = withDefaults(config)

	o := options{auth: AllowAll{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = core.NopLogger()
	}
	if o.auth == nil {
		o.auth = AllowAll{}
	}

	metrics, err := NewMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to register metrics: %w", err)
	}

	tags, err := vocabulary.NewRepository(store, config.TagIndex, "tag", o.logger)
	if err != nil {
		return nil, err
	}
	props, err := vocabulary.NewRepository(store, config.PropertyIndex, "property", o.logger)
	if err != nil {
		return nil, err
	}

	gate := &Gate{tags: tags, properties: props}
	engine, err := merge.NewEngine(store, &vocabulary.Resolver{Tags: tags, Properties: props}, merge.Config{
		Index:  config.ChannelIndex,
		Gate:   gate,
		Logger: o.logger,
	})
	if err != nil {
		return nil, err
	}
	gate.channels = engine

	finder := &channelFinder{store: store, index: config.ChannelIndex}
	base := manager{
		auth:    o.auth,
		metrics: metrics,
		gate:    gate,
		engine:  engine,
		finder:  finder,
	}

	c := &Catalog{store: store, logger: o.logger}

	c.Channels = &ChannelManager{
		manager:  base,
		compiler: query.NewCompiler(query.Config{Index: config.ChannelIndex, DefaultSize: config.DefaultSize}),
		store:    store,
		logger:   o.logger.With("component", "channels"),
	}
	c.Tags = &TagManager{
		manager: base,
		repo:    tags,
		logger:  o.logger.With("component", "tags"),
	}
	c.Properties = &PropertyManager{
		manager: base,
		repo:    props,
		logger:  o.logger.With("component", "properties"),
	}

	return c, nil
}

// Open opens (creating if needed) a SQLite-backed catalog at path. Close
// releases the store.
func Open(ctx context.Context, path string, config Config, opts ...Option) (*Catalog, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	storeConfig := core.DefaultConfig()
	storeConfig.Path = path
	storeConfig.Logger = o.logger

	return OpenWithStoreConfig(ctx, storeConfig, config, opts...)
}

// OpenWithStoreConfig opens a SQLite-backed catalog with a custom store configuration
func OpenWithStoreConfig(ctx context.Context, storeConfig core.Config, config Config, opts ...Option) (*Catalog, error) {
	store, err := core.NewWithConfig(storeConfig)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}

	c, err := New(store, config, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	c.closer = store.Close
	return c, nil
}

// Store returns the underlying index store
func (c *Catalog) Store() core.IndexStore {
	return c.store
}

// Close releases the store when the catalog opened it
func (c *Catalog) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func withDefaults(config Config) Config {
	defaults := DefaultConfig()
	if config.ChannelIndex == "" {
		config.ChannelIndex = defaults.ChannelIndex
	}
	if config.TagIndex == "" {
		config.TagIndex = defaults.TagIndex
	}
	if config.PropertyIndex == "" {
		config.PropertyIndex = defaults.PropertyIndex
	}
	if config.DefaultSize <= 0 {
		config.DefaultSize = defaults.DefaultSize
	}
	return config
}

// manager carries the collaborators shared by the resource managers
type manager struct {
	auth    Authorizer
	metrics *Metrics
	gate    *Gate
	engine  *merge.Engine
	finder  *channelFinder
}

// channelFinder lists every channel matching a structured query, sorted by name
type channelFinder struct {
	store core.IndexStore
	index string
}

func (f *channelFinder) find(ctx context.Context, q *core.Query) ([]core.Channel, error) {
	count, err := f.store.Count(ctx, f.index)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []core.Channel{}, nil
	}

	resp, err := f.store.Search(ctx, core.SearchRequest{
		Index: f.index,
		Query: q,
		Size:  count,
		Sort:  []core.SortField{{Field: query.FieldName}},
	})
	if err != nil {
		return nil, err
	}
	return decodeHits(resp.Hits)
}

func (f *channelFinder) names(ctx context.Context, q *core.Query) ([]string, error) {
	chs, err := f.find(ctx, q)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(chs))
	for i, ch := range chs {
		names[i] = ch.Name
	}
	return names, nil
}

func decodeHits(hits []core.Hit) ([]core.Channel, error) {
	chs := make([]core.Channel, 0, len(hits))
	for _, hit := range hits {
		ch, err := encoding.DecodeChannel(hit.Source)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", hit.ID, err)
		}
		chs = append(chs, ch)
	}
	return chs, nil
}

func withTag(name string) *core.Query {
	return core.Nested(query.FieldTags, core.Term(query.FieldTagName, name))
}

func withProperty(name string) *core.Query {
	return core.Nested(query.FieldProperties, core.Term(query.FieldPropertyName, name))
}
