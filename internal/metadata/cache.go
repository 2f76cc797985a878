package metadata

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
	"golang.org/x/sync/singleflight"
)

// maxCoalesceRetries bounds how often a waiter re-issues a fetch whose
// leader was cancelled.
const maxCoalesceRetries = 3

// Fetcher loads metadata from the API.
type Fetcher interface {
	FetchTables(ctx context.Context, appID string) ([]quickbase.TableDescriptor, error)
	FetchFields(ctx context.Context, tableID string) ([]quickbase.FieldDescriptor, error)
}

// Metrics observes cache activity.
type Metrics interface {
	ObserveLookup(kind string, hit bool)
	ObserveFetch(kind, outcome string)
	ObserveInvalidation(origin string)
}

// Publisher broadcasts local invalidations to other processes.
type Publisher interface {
	Publish(scope quickbase.Scope) error
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger quickbase.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithMetrics records lookups, fetches and invalidations.
func WithMetrics(metrics Metrics) Option {
	return func(c *Cache) {
		c.metrics = metrics
	}
}

// WithPublisher broadcasts every local invalidation.
func WithPublisher(publisher Publisher) Option {
	return func(c *Cache) {
		c.publisher = publisher
	}
}

// WithClock overrides time.Now for insertion timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// stamp identifies the cache state a fetch started from. A fetch may commit
// only if neither the global nor its key's generation moved meanwhile.
type stamp struct {
	global uint64
	key    uint64
}

// Cache resolves app, table and field names to IDs. Entries live until they
// are invalidated. Concurrent misses on the same key share one fetch.
type Cache struct {
	fetcher   Fetcher
	logger    quickbase.Logger
	metrics   Metrics
	publisher Publisher
	now       func() time.Time

	apps []quickbase.AppDescriptor

	mutex       sync.RWMutex
	tables      map[string]*tableSet
	fields      map[string]*fieldSet
	generation  uint64
	generations map[string]uint64

	group singleflight.Group
}

// New creates a cache seeded with the configured apps (name to ID).
func New(fetcher Fetcher, appIDs map[string]string, opts ...Option) *Cache {
	cache := &Cache{
		fetcher:     fetcher,
		now:         time.Now,
		tables:      make(map[string]*tableSet),
		fields:      make(map[string]*fieldSet),
		generations: make(map[string]uint64),
	}

	for name, id := range appIDs {
		cache.apps = append(cache.apps, quickbase.AppDescriptor{Name: name, ID: id})
	}

	sort.Slice(cache.apps, func(i, j int) bool { return cache.apps[i].Name < cache.apps[j].Name })

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// Apps returns the configured apps sorted by name.
func (c *Cache) Apps() []quickbase.AppDescriptor {
	return append([]quickbase.AppDescriptor(nil), c.apps...)
}

// ResolveApp finds a configured app by exact name, case-insensitive name or
// ID.
func (c *Cache) ResolveApp(name string) (quickbase.AppDescriptor, error) {
	var folded []quickbase.AppDescriptor

	for _, app := range c.apps {
		if app.Name == name || app.ID == name {
			return app, nil
		}

		if fold(app.Name) == fold(name) {
			folded = append(folded, app)
		}
	}

	if len(folded) == 1 {
		return folded[0], nil
	}

	available := make([]string, len(c.apps))
	for i, app := range c.apps {
		available[i] = app.Name
	}

	cause := quickbase.ErrAppNotConfigured
	if len(folded) > 1 {
		cause = quickbase.ErrAmbiguousName
	}

	return quickbase.AppDescriptor{}, &quickbase.LookupError{
		Kind:      quickbase.LookupApp,
		Name:      name,
		Available: available,
		Err:       cause,
	}
}

// Tables returns every table of app.
func (c *Cache) Tables(ctx context.Context, app string) ([]quickbase.TableDescriptor, error) {
	descriptor, err := c.ResolveApp(app)
	if err != nil {
		return nil, err
	}

	set, err := c.loadTables(ctx, descriptor.ID)
	if err != nil {
		return nil, err
	}

	return set.list(), nil
}

// ResolveTable finds table inside app by ID, name, or alias.
func (c *Cache) ResolveTable(ctx context.Context, app, table string) (quickbase.TableDescriptor, error) {
	descriptor, err := c.ResolveApp(app)
	if err != nil {
		return quickbase.TableDescriptor{}, err
	}

	set, err := c.loadTables(ctx, descriptor.ID)
	if err != nil {
		return quickbase.TableDescriptor{}, err
	}

	found, err := set.lookup(table)
	if err != nil {
		var lookupErr *quickbase.LookupError
		if errors.As(err, &lookupErr) {
			lookupErr.Scope = "app " + descriptor.Name
		}

		return quickbase.TableDescriptor{}, err
	}

	return found, nil
}

// Fields returns every field of table.
func (c *Cache) Fields(ctx context.Context, table quickbase.TableDescriptor) ([]quickbase.FieldDescriptor, error) {
	set, err := c.loadFields(ctx, table)
	if err != nil {
		return nil, err
	}

	return set.list(), nil
}

// ResolveField finds label inside table.
func (c *Cache) ResolveField(ctx context.Context, table quickbase.TableDescriptor, label string) (quickbase.FieldDescriptor, error) {
	set, err := c.loadFields(ctx, table)
	if err != nil {
		return quickbase.FieldDescriptor{}, err
	}

	return set.lookup(label)
}

// Snapshot returns an immutable view of table's fields for rendering.
func (c *Cache) Snapshot(ctx context.Context, table quickbase.TableDescriptor) (*Snapshot, error) {
	set, err := c.loadFields(ctx, table)
	if err != nil {
		return nil, err
	}

	return &Snapshot{set: set}, nil
}

// Invalidate drops the entries selected by scope and broadcasts the scope
// when a publisher is configured.
func (c *Cache) Invalidate(scope quickbase.Scope) {
	c.invalidate(scope, "local")

	if c.publisher == nil {
		return
	}

	err := c.publisher.Publish(scope)
	if err != nil && c.logger != nil {
		c.logger.Warn("Failed to publish cache invalidation", map[string]interface{}{
			"scope": scope.String(),
			"error": err,
		})
	}
}

// ApplyRemote drops the entries selected by a scope received from another
// process. It never re-publishes.
func (c *Cache) ApplyRemote(scope quickbase.Scope) {
	c.invalidate(scope, "remote")
}

// Stats reports the number of cached tables and field sets.
func (c *Cache) Stats() quickbase.CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	stats := quickbase.CacheStats{Fields: len(c.fields)}

	for _, set := range c.tables {
		stats.Tables += len(set.tables)

		if set.insertedAt.After(stats.UpdatedAt) {
			stats.UpdatedAt = set.insertedAt
		}
	}

	for _, set := range c.fields {
		if set.insertedAt.After(stats.UpdatedAt) {
			stats.UpdatedAt = set.insertedAt
		}
	}

	return stats
}

func (c *Cache) invalidate(scope quickbase.Scope, origin string) {
	var keys []string

	c.mutex.Lock()

	switch {
	case scope.App == "" && scope.Table == "":
		c.generation++
		c.tables = make(map[string]*tableSet)
		c.fields = make(map[string]*fieldSet)
	case scope.Table == "":
		keys = c.dropAppLocked(c.appIDs(scope.App)[0])
	default:
		keys = c.dropTableLocked(c.appIDs(scope.App), scope.Table)
	}

	c.mutex.Unlock()

	if scope.App == "" && scope.Table == "" {
		keys = c.inflightKeys()
	}

	for _, key := range keys {
		c.group.Forget(key)
	}

	if c.metrics != nil {
		c.metrics.ObserveInvalidation(origin)
	}

	if c.logger != nil {
		c.logger.Debug("Metadata cache invalidated", map[string]interface{}{
			"scope":  scope.String(),
			"origin": origin,
		})
	}
}

// appIDs maps an app name or ID to the IDs it may refer to. An empty name
// selects every configured app.
func (c *Cache) appIDs(app string) []string {
	if app == "" {
		ids := make([]string, len(c.apps))
		for i, descriptor := range c.apps {
			ids[i] = descriptor.ID
		}

		return ids
	}

	descriptor, err := c.ResolveApp(app)
	if err != nil {
		return []string{app}
	}

	return []string{descriptor.ID}
}

func (c *Cache) dropAppLocked(appID string) []string {
	keys := []string{tablesKey(appID)}
	c.bumpLocked(tablesKey(appID))

	if set, ok := c.tables[appID]; ok {
		for _, table := range set.tables {
			keys = append(keys, fieldsKey(table.ID))
			c.bumpLocked(fieldsKey(table.ID))
			delete(c.fields, table.ID)
		}
	}

	for tableID, set := range c.fields {
		if set.table.AppID == appID {
			keys = append(keys, fieldsKey(tableID))
			c.bumpLocked(fieldsKey(tableID))
			delete(c.fields, tableID)
		}
	}

	delete(c.tables, appID)

	return keys
}

// dropTableLocked drops the table list of every app that may contain table
// and the fields of every table it names. table may be a name or an ID.
func (c *Cache) dropTableLocked(appIDs []string, table string) []string {
	tableIDs := map[string]bool{table: true}
	inScope := make(map[string]bool, len(appIDs))

	for _, appID := range appIDs {
		inScope[appID] = true

		if set, ok := c.tables[appID]; ok {
			if found, err := set.lookup(table); err == nil {
				tableIDs[found.ID] = true
			}
		}
	}

	for tableID, set := range c.fields {
		if inScope[set.table.AppID] && fold(set.table.Name) == fold(table) {
			tableIDs[tableID] = true
		}
	}

	keys := make([]string, 0, len(appIDs)+len(tableIDs))

	for _, appID := range appIDs {
		keys = append(keys, tablesKey(appID))
		c.bumpLocked(tablesKey(appID))
		delete(c.tables, appID)
	}

	for tableID := range tableIDs {
		keys = append(keys, fieldsKey(tableID))
		c.bumpLocked(fieldsKey(tableID))
		delete(c.fields, tableID)
	}

	return keys
}

func (c *Cache) bumpLocked(key string) {
	c.generations[key]++
}

func (c *Cache) stampLocked(key string) stamp {
	return stamp{global: c.generation, key: c.generations[key]}
}

// inflightKeys lists every key a fetch could be running for.
func (c *Cache) inflightKeys() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	keys := make([]string, 0, len(c.generations)+len(c.apps))
	for key := range c.generations {
		keys = append(keys, key)
	}

	for _, app := range c.apps {
		keys = append(keys, tablesKey(app.ID))
	}

	return keys
}

func (c *Cache) loadTables(ctx context.Context, appID string) (*tableSet, error) {
	key := tablesKey(appID)

	value, err := c.load(ctx, "tables", key, func() (any, bool) {
		set, ok := c.tables[appID]

		return set, ok
	}, func(fetchCtx context.Context) (any, error) {
		return c.fetchTables(fetchCtx, appID)
	})
	if err != nil {
		return nil, err
	}

	return value.(*tableSet), nil //nolint:forcetypeassert // only *tableSet is stored under tables keys
}

func (c *Cache) loadFields(ctx context.Context, table quickbase.TableDescriptor) (*fieldSet, error) {
	key := fieldsKey(table.ID)

	value, err := c.load(ctx, "fields", key, func() (any, bool) {
		set, ok := c.fields[table.ID]

		return set, ok
	}, func(fetchCtx context.Context) (any, error) {
		return c.fetchFields(fetchCtx, table)
	})
	if err != nil {
		return nil, err
	}

	return value.(*fieldSet), nil //nolint:forcetypeassert // only *fieldSet is stored under fields keys
}

// load returns the cached value for key or joins the in-flight fetch for it.
// Each caller waits on its own context. When the shared fetch failed only
// because the leader's context ended, a caller whose context is still live
// starts a new fetch.
func (c *Cache) load(
	ctx context.Context,
	kind, key string,
	cached func() (any, bool),
	fetch func(context.Context) (any, error),
) (any, error) {
	for attempt := 0; ; attempt++ {
		c.mutex.RLock()
		value, ok := cached()
		c.mutex.RUnlock()

		if ok {
			if attempt == 0 {
				c.observeLookup(kind, true)
			}

			return value, nil
		}

		if attempt == 0 {
			c.observeLookup(kind, false)
		}

		results := c.group.DoChan(key, func() (any, error) {
			return fetch(ctx)
		})

		select {
		case <-ctx.Done():
			return nil, cancelled(kind, ctx.Err())
		case result := <-results:
			if result.Err == nil {
				return result.Val, nil
			}

			if quickbase.IsCancelled(result.Err) && ctx.Err() == nil && attempt < maxCoalesceRetries {
				continue
			}

			if ctx.Err() != nil {
				return nil, cancelled(kind, ctx.Err())
			}

			return nil, result.Err
		}
	}
}

func (c *Cache) fetchTables(ctx context.Context, appID string) (*tableSet, error) {
	key := tablesKey(appID)

	c.mutex.RLock()
	started := c.stampLocked(key)
	c.mutex.RUnlock()

	tables, err := c.fetcher.FetchTables(ctx, appID)
	if err != nil {
		c.observeFetch("tables", "failed")

		return nil, err
	}

	set := newTableSet(appID, tables, c.now())

	c.mutex.Lock()
	committed := c.stampLocked(key) == started
	if committed {
		c.tables[appID] = set
	}
	c.mutex.Unlock()

	c.afterFetch("tables", appID, len(tables), committed)

	return set, nil
}

func (c *Cache) fetchFields(ctx context.Context, table quickbase.TableDescriptor) (*fieldSet, error) {
	key := fieldsKey(table.ID)

	c.mutex.RLock()
	started := c.stampLocked(key)
	c.mutex.RUnlock()

	fields, err := c.fetcher.FetchFields(ctx, table.ID)
	if err != nil {
		c.observeFetch("fields", "failed")

		return nil, err
	}

	set := newFieldSet(table, fields, c.now())

	c.mutex.Lock()
	committed := c.stampLocked(key) == started
	if committed {
		c.fields[table.ID] = set
	}
	c.mutex.Unlock()

	c.afterFetch("fields", table.ID, len(fields), committed)

	if len(set.duplicates) > 0 && c.logger != nil {
		labels := make([]string, 0, len(set.duplicates))
		for label := range set.duplicates {
			labels = append(labels, label)
		}

		sort.Strings(labels)

		c.logger.Warn("Table has duplicate field labels", map[string]interface{}{
			"table":  table.ID,
			"labels": strings.Join(labels, ", "),
		})
	}

	return set, nil
}

func (c *Cache) afterFetch(kind, id string, count int, committed bool) {
	outcome := "committed"
	if !committed {
		outcome = "discarded"
	}

	c.observeFetch(kind, outcome)

	if c.logger != nil {
		c.logger.Debug("Metadata fetched", map[string]interface{}{
			"kind":    kind,
			"id":      id,
			"count":   count,
			"outcome": outcome,
		})
	}
}

func (c *Cache) observeLookup(kind string, hit bool) {
	if c.metrics != nil {
		c.metrics.ObserveLookup(kind, hit)
	}
}

func (c *Cache) observeFetch(kind, outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveFetch(kind, outcome)
	}
}

func cancelled(kind string, err error) *quickbase.TransportError {
	return &quickbase.TransportError{
		Kind:   quickbase.KindCancelled,
		Method: http.MethodGet,
		Path:   "/" + kind,
		Err:    err,
	}
}

func tablesKey(appID string) string {
	return "tables:" + appID
}

func fieldsKey(tableID string) string {
	return "fields:" + tableID
}
