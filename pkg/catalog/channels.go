package catalog

import (
	"context"
	"time"

	"github.com/liliang-cn/channelfinder/pkg/core"
	"github.com/liliang-cn/channelfinder/pkg/query"
)

// Page is one page of query results. Cursor is the sort key of the last
// channel and is empty when the page is empty; pass it as ~search_after to
// fetch the next page.
type Page struct {
	Channels []core.Channel
	Cursor   string
}

// ChannelManager serves the channel resource
type ChannelManager struct {
	manager
	compiler *query.Compiler
	store    core.IndexStore
	logger   core.Logger
}

// Query returns the channels matching the multi-valued query parameters
func (m *ChannelManager) Query(ctx context.Context, params map[string][]string) ([]core.Channel, error) {
	page, err := m.QueryPage(ctx, params)
	if err != nil {
		return nil, err
	}
	return page.Channels, nil
}

// QueryPage is Query plus the cursor of the returned page
func (m *ChannelManager) QueryPage(ctx context.Context, params map[string][]string) (page Page, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceChannel), "query", start, err) }()

	req, err := m.compiler.Compile(params)
	if err != nil {
		return Page{}, err
	}
	m.logger.Debug("compiled query", "query", req.Query.String(), "from", req.From, "size", req.Size)

	resp, err := m.store.Search(ctx, *req)
	if err != nil {
		return Page{}, err
	}
	chs, err := decodeHits(resp.Hits)
	if err != nil {
		return Page{}, err
	}

	page.Channels = chs
	if cursor := resp.Cursor(); len(cursor) > 0 {
		page.Cursor = cursor[0]
	}
	return page, nil
}

// Read returns the channel with the given name, or an ErrNotFound error
func (m *ChannelManager) Read(ctx context.Context, name string) (ch core.Channel, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceChannel), "read", start, err) }()
	return m.engine.Find(ctx, name)
}

// Create creates or fully replaces the channel at name with ch
func (m *ChannelManager) Create(ctx context.Context, name string, ch core.Channel) (out core.Channel, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceChannel), "create", start, err) }()

	if err := authorizeRole(ctx, m.auth, ResourceChannel); err != nil {
		return core.Channel{}, err
	}
	if err := m.gate.ValidateChannel(ctx, ch); err != nil {
		return core.Channel{}, err
	}
	if err := authorizeOwner(ctx, m.auth, ResourceChannel, ch.Name, ch.Owner); err != nil {
		return core.Channel{}, err
	}
	if err := m.authorizeExisting(ctx, name); err != nil {
		return core.Channel{}, err
	}
	if ch.Name != name {
		if err := m.authorizeExisting(ctx, ch.Name); err != nil {
			return core.Channel{}, err
		}
	}

	out, err = m.engine.Replace(ctx, name, ch)
	if err != nil {
		return core.Channel{}, err
	}
	m.logger.Info("channel created", "channel", out.Name, "owner", out.Owner)
	return out, nil
}

// CreateAll creates or replaces every channel in one bulk write. Existing
// channels keep their stored owner.
func (m *ChannelManager) CreateAll(ctx context.Context, chs []core.Channel) (out []core.Channel, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceChannel), "create_all", start, err) }()

	if err := m.authorizeBatch(ctx, chs); err != nil {
		return nil, err
	}
	out, err = m.engine.ReplaceAll(ctx, chs)
	if err != nil {
		return nil, err
	}
	m.logger.Info("channels created", "count", len(out))
	return out, nil
}

// Update merges ch into the channel at name, creating it when absent
func (m *ChannelManager) Update(ctx context.Context, name string, ch core.Channel) (out core.Channel, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceChannel), "update", start, err) }()

	if err := authorizeRole(ctx, m.auth, ResourceChannel); err != nil {
		return core.Channel{}, err
	}

	stored, exists, err := m.lookup(ctx, name)
	if err != nil {
		return core.Channel{}, err
	}
	owner := ch.Owner
	if owner == "" && exists {
		owner = stored.Owner
	}
	if owner != "" {
		if err := authorizeOwner(ctx, m.auth, ResourceChannel, name, owner); err != nil {
			return core.Channel{}, err
		}
	}
	if exists {
		if err := authorizeOwner(ctx, m.auth, ResourceChannel, name, stored.Owner); err != nil {
			return core.Channel{}, err
		}
	}
	if ch.Name != "" && ch.Name != name {
		if err := m.authorizeExisting(ctx, ch.Name); err != nil {
			return core.Channel{}, err
		}
	}

	out, err = m.engine.Merge(ctx, name, ch)
	if err != nil {
		return core.Channel{}, err
	}
	m.logger.Info("channel updated", "channel", out.Name, "created", !exists)
	return out, nil
}

// UpdateAll merges every channel of the batch in one bulk write
func (m *ChannelManager) UpdateAll(ctx context.Context, chs []core.Channel) (out []core.Channel, err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceChannel), "update_all", start, err) }()

	if err := m.authorizeBatch(ctx, chs); err != nil {
		return nil, err
	}
	out, err = m.engine.MergeAll(ctx, chs)
	if err != nil {
		return nil, err
	}
	m.logger.Info("channels updated", "count", len(out))
	return out, nil
}

// Remove deletes the channel at name
func (m *ChannelManager) Remove(ctx context.Context, name string) (err error) {
	start := time.Now()
	defer func() { m.metrics.observe(string(ResourceChannel), "remove", start, err) }()

	if err := authorizeRole(ctx, m.auth, ResourceChannel); err != nil {
		return err
	}
	stored, err := m.engine.Find(ctx, name)
	if err != nil {
		return err
	}
	if err := authorizeOwner(ctx, m.auth, ResourceChannel, name, stored.Owner); err != nil {
		return err
	}
	if err := m.engine.Delete(ctx, name); err != nil {
		return err
	}
	m.logger.Info("channel removed", "channel", name)
	return nil
}

// authorizeBatch checks the role, then each channel against its stored owner
// when it exists and against its payload owner otherwise
func (m *ChannelManager) authorizeBatch(ctx context.Context, chs []core.Channel) error {
	if err := authorizeRole(ctx, m.auth, ResourceChannel); err != nil {
		return err
	}
	existing, err := m.engine.FindAll(ctx, channelNames(chs))
	if err != nil {
		return err
	}
	for _, ch := range chs {
		owner := ch.Owner
		if stored, ok := existing[ch.Name]; ok {
			owner = stored.Owner
		}
		if err := authorizeOwner(ctx, m.auth, ResourceChannel, ch.Name, owner); err != nil {
			return err
		}
	}
	return nil
}

func (m *ChannelManager) authorizeExisting(ctx context.Context, name string) error {
	stored, exists, err := m.lookup(ctx, name)
	if err != nil || !exists {
		return err
	}
	return authorizeOwner(ctx, m.auth, ResourceChannel, name, stored.Owner)
}

func (m *ChannelManager) lookup(ctx context.Context, name string) (core.Channel, bool, error) {
	stored, err := m.engine.Find(ctx, name)
	if core.IsNotFound(err) {
		return core.Channel{}, false, nil
	}
	if err != nil {
		return core.Channel{}, false, err
	}
	return stored, true, nil
}

func channelNames(chs []core.Channel) []string {
	names := make([]string, 0, len(chs))
	for _, ch := range chs {
		if ch.Name != "" {
			names = append(names, ch.Name)
		}
	}
	return names
}
