package metadata_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fivetwenty-io/qbclient/internal/metadata"
	"github.com/fivetwenty-io/qbclient/pkg/query"
	"github.com/fivetwenty-io/qbclient/pkg/quickbase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	salesAppID  = "bqsales01"
	ordersTable = "bqorders1"
)

var apps = map[string]string{"Sales": salesAppID, "Support": "bqsupport"}

// fakeFetcher serves metadata from memory. When hold is set, every fetch
// signals started and then blocks until release is closed or its context
// ends.
type fakeFetcher struct {
	mutex       sync.Mutex
	tables      map[string][]quickbase.TableDescriptor
	fields      map[string][]quickbase.FieldDescriptor
	err         error
	tableCalls  atomic.Int32
	fieldCalls  atomic.Int32
	hold        bool
	started     chan struct{}
	release     chan struct{}
	cancelFirst atomic.Bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		tables: map[string][]quickbase.TableDescriptor{
			salesAppID: {
				{ID: ordersTable, Name: "Orders", Alias: "_DBID_ORDERS"},
				{ID: "bqcust001", Name: "Customers"},
			},
		},
		fields: map[string][]quickbase.FieldDescriptor{
			ordersTable: {
				{ID: 3, Label: "Record ID#", Type: "recordid"},
				{ID: 7, Label: "Date", Type: "date"},
				{ID: 8, Label: "Amount", Type: "currency"},
			},
		},
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (f *fakeFetcher) wait(ctx context.Context, first bool) error {
	if f.cancelFirst.Load() && first {
		f.started <- struct{}{}
		<-ctx.Done()

		return &quickbase.TransportError{Kind: quickbase.KindCancelled, Method: http.MethodGet, Path: "/fields", Err: ctx.Err()}
	}

	if !f.hold {
		return nil
	}

	f.started <- struct{}{}

	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return &quickbase.TransportError{Kind: quickbase.KindCancelled, Method: http.MethodGet, Path: "/fields", Err: ctx.Err()}
	}
}

func (f *fakeFetcher) FetchTables(ctx context.Context, appID string) ([]quickbase.TableDescriptor, error) {
	f.tableCalls.Add(1)

	f.mutex.Lock()
	tables, err := append([]quickbase.TableDescriptor(nil), f.tables[appID]...), f.err
	f.mutex.Unlock()

	if err != nil {
		return nil, err
	}

	return tables, nil
}

func (f *fakeFetcher) FetchFields(ctx context.Context, tableID string) ([]quickbase.FieldDescriptor, error) {
	calls := f.fieldCalls.Add(1)

	f.mutex.Lock()
	fields, err := append([]quickbase.FieldDescriptor(nil), f.fields[tableID]...), f.err
	f.mutex.Unlock()

	waitErr := f.wait(ctx, calls == 1)
	if waitErr != nil {
		return nil, waitErr
	}

	if err != nil {
		return nil, err
	}

	return fields, nil
}

func (f *fakeFetcher) addField(tableID string, field quickbase.FieldDescriptor) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.fields[tableID] = append(f.fields[tableID], field)
}

type fakeMetrics struct {
	mutex         sync.Mutex
	lookups       map[string]int
	fetches       map[string]int
	invalidations map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{lookups: map[string]int{}, fetches: map[string]int{}, invalidations: map[string]int{}}
}

func (m *fakeMetrics) ObserveLookup(kind string, hit bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if hit {
		m.lookups[kind+"/hit"]++
	} else {
		m.lookups[kind+"/miss"]++
	}
}

func (m *fakeMetrics) ObserveFetch(kind, outcome string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.fetches[kind+"/"+outcome]++
}

func (m *fakeMetrics) ObserveInvalidation(origin string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.invalidations[origin]++
}

func (m *fakeMetrics) fetch(key string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.fetches[key]
}

type fakePublisher struct {
	mutex  sync.Mutex
	scopes []quickbase.Scope
}

func (p *fakePublisher) Publish(scope quickbase.Scope) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.scopes = append(p.scopes, scope)

	return nil
}

func orders(t *testing.T, cache *metadata.Cache) quickbase.TableDescriptor {
	t.Helper()

	table, err := cache.ResolveTable(context.Background(), "Sales", "Orders")
	require.NoError(t, err)

	return table
}

func TestCache_ResolveApp(t *testing.T) {
	t.Parallel()

	cache := metadata.New(newFakeFetcher(), apps)

	tests := []struct {
		name    string
		input   string
		wantID  string
		wantErr error
	}{
		{name: "exact name", input: "Sales", wantID: salesAppID},
		{name: "case-insensitive name", input: "sales", wantID: salesAppID},
		{name: "raw ID", input: "bqsupport", wantID: "bqsupport"},
		{name: "unknown", input: "Billing", wantErr: quickbase.ErrAppNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, err := cache.ResolveApp(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				lookupErr := &quickbase.LookupError{}
				require.ErrorAs(t, err, &lookupErr)
				assert.Equal(t, []string{"Sales", "Support"}, lookupErr.Available)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, app.ID)
		})
	}

	assert.Equal(t, []quickbase.AppDescriptor{{Name: "Sales", ID: salesAppID}, {Name: "Support", ID: "bqsupport"}}, cache.Apps())
}

func TestCache_ResolveTable(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	cache := metadata.New(fetcher, apps)
	ctx := context.Background()

	for _, name := range []string{"Orders", "orders", "_DBID_ORDERS", ordersTable} {
		table, err := cache.ResolveTable(ctx, "Sales", name)
		require.NoError(t, err, name)
		assert.Equal(t, ordersTable, table.ID)
		assert.Equal(t, salesAppID, table.AppID)
	}

	_, err := cache.ResolveTable(ctx, "Sales", "Invoices")
	require.ErrorIs(t, err, quickbase.ErrTableNotFound)
	assert.True(t, quickbase.IsNotFound(err))

	lookupErr := &quickbase.LookupError{}
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, quickbase.LookupTable, lookupErr.Kind)
	assert.Equal(t, "app Sales", lookupErr.Scope)
	assert.Equal(t, []string{"Customers", "Orders"}, lookupErr.Available)

	assert.Equal(t, int32(1), fetcher.tableCalls.Load())

	tables, err := cache.Tables(ctx, "Sales")
	require.NoError(t, err)
	assert.Len(t, tables, 2)
}

func TestCache_ResolveField(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.fields[ordersTable] = append(fetcher.fields[ordersTable],
		quickbase.FieldDescriptor{ID: 12, Label: "Notes", Type: "text"},
		quickbase.FieldDescriptor{ID: 13, Label: "Notes", Type: "text"},
	)

	cache := metadata.New(fetcher, apps)
	table := orders(t, cache)
	ctx := context.Background()

	tests := []struct {
		name    string
		label   string
		wantID  int
		wantErr error
	}{
		{name: "exact", label: "Amount", wantID: 8},
		{name: "case-insensitive", label: "amount", wantID: 8},
		{name: "numeric ID", label: "7", wantID: 7},
		{name: "duplicate label", label: "Notes", wantErr: quickbase.ErrDuplicateLabel},
		{name: "unknown", label: "Status", wantErr: quickbase.ErrFieldNotFound},
	}

	for _, tt := range tests {
		field, err := cache.ResolveField(ctx, table, tt.label)
		if tt.wantErr != nil {
			require.ErrorIs(t, err, tt.wantErr, tt.name)

			continue
		}

		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.wantID, field.ID, tt.name)
		assert.Equal(t, ordersTable, field.TableID, tt.name)
	}

	_, err := cache.ResolveField(ctx, table, "Status")

	lookupErr := &quickbase.LookupError{}
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, []string{"Amount", "Date", "Record ID#"}, lookupErr.Available)
	assert.Equal(t, "table Orders ("+ordersTable+")", lookupErr.Scope)
	assert.ErrorIs(t, err, query.ErrUnknownField)

	assert.Equal(t, int32(1), fetcher.fieldCalls.Load())
}

func TestCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.hold = true
	metrics := newFakeMetrics()
	cache := metadata.New(fetcher, apps, metadata.WithMetrics(metrics))
	table := orders(t, cache)

	const callers = 50

	var wg sync.WaitGroup

	errs := make(chan error, callers)
	ids := make(chan int, callers)

	for range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			field, err := cache.ResolveField(context.Background(), table, "Amount")
			if err != nil {
				errs <- err

				return
			}

			ids <- field.ID
		}()
	}

	<-fetcher.started
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()
	close(errs)
	close(ids)

	for err := range errs {
		require.NoError(t, err)
	}

	count := 0
	for id := range ids {
		assert.Equal(t, 8, id)
		count++
	}

	assert.Equal(t, callers, count)
	assert.Equal(t, int32(1), fetcher.fieldCalls.Load())
	assert.Equal(t, 1, metrics.fetch("fields/committed"))
}

func TestCache_InvalidateAfterSchemaChange(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	cache := metadata.New(fetcher, apps)
	table := orders(t, cache)
	ctx := context.Background()

	_, err := cache.ResolveField(ctx, table, "Status")
	require.ErrorIs(t, err, quickbase.ErrFieldNotFound)

	fetcher.addField(ordersTable, quickbase.FieldDescriptor{ID: 6, Label: "Status", Type: "text"})

	_, err = cache.ResolveField(ctx, table, "Status")
	require.ErrorIs(t, err, quickbase.ErrFieldNotFound, "cached fields are served until invalidated")

	cache.Invalidate(quickbase.Scope{Table: "Orders"})

	table = orders(t, cache)

	field, err := cache.ResolveField(ctx, table, "Status")
	require.NoError(t, err)
	assert.Equal(t, 6, field.ID)
	assert.Equal(t, int32(2), fetcher.fieldCalls.Load())
	assert.Equal(t, int32(2), fetcher.tableCalls.Load())
}

func TestCache_InvalidateScopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		scope      quickbase.Scope
		wantTables int
		wantFields int
	}{
		{name: "everything", scope: quickbase.Scope{}, wantTables: 0, wantFields: 0},
		{name: "app by name", scope: quickbase.Scope{App: "Sales"}, wantTables: 0, wantFields: 0},
		{name: "other app", scope: quickbase.Scope{App: "Support"}, wantTables: 2, wantFields: 1},
		{name: "table by ID", scope: quickbase.Scope{Table: ordersTable}, wantTables: 0, wantFields: 0},
		{name: "qualified table", scope: quickbase.Scope{App: "Sales", Table: "orders"}, wantTables: 0, wantFields: 0},
		{name: "unknown table", scope: quickbase.Scope{App: "Support", Table: "Orders"}, wantTables: 2, wantFields: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cache := metadata.New(newFakeFetcher(), apps)
			table := orders(t, cache)

			_, err := cache.Fields(context.Background(), table)
			require.NoError(t, err)

			stats := cache.Stats()
			require.Equal(t, 2, stats.Tables)
			require.Equal(t, 1, stats.Fields)
			assert.False(t, stats.UpdatedAt.IsZero())

			cache.Invalidate(tt.scope)

			stats = cache.Stats()
			assert.Equal(t, tt.wantTables, stats.Tables)
			assert.Equal(t, tt.wantFields, stats.Fields)
		})
	}
}

func TestCache_InvalidateDuringFetchDiscardsResult(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	metrics := newFakeMetrics()
	cache := metadata.New(fetcher, apps, metadata.WithMetrics(metrics))
	table := orders(t, cache)

	fetcher.hold = true

	done := make(chan error, 1)

	go func() {
		_, err := cache.ResolveField(context.Background(), table, "Amount")
		done <- err
	}()

	<-fetcher.started
	cache.Invalidate(quickbase.Scope{})
	close(fetcher.release)

	require.NoError(t, <-done)
	assert.Equal(t, 0, cache.Stats().Fields)
	assert.Equal(t, 1, metrics.fetch("fields/discarded"))

	_, err := cache.ResolveField(context.Background(), table, "Amount")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.fieldCalls.Load())
	assert.Equal(t, 1, cache.Stats().Fields)
}

func TestCache_CancelledCallerLeavesNoState(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	cache := metadata.New(fetcher, apps)
	table := orders(t, cache)

	fetcher.hold = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		_, err := cache.ResolveField(ctx, table, "Amount")
		done <- err
	}()

	<-fetcher.started
	cancel()

	err := <-done
	require.Error(t, err)
	assert.True(t, quickbase.IsCancelled(err))
	assert.Equal(t, 0, cache.Stats().Fields)
}

func TestCache_WaiterRetriesWhenLeaderCancelled(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.cancelFirst.Store(true)
	cache := metadata.New(fetcher, apps)
	table := orders(t, cache)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)

	go func() {
		_, err := cache.ResolveField(leaderCtx, table, "Amount")
		leaderDone <- err
	}()

	<-fetcher.started

	waiterDone := make(chan error, 1)

	go func() {
		field, err := cache.ResolveField(context.Background(), table, "Amount")
		if err == nil && field.ID != 8 {
			t.Errorf("unexpected field %d", field.ID)
		}
		waiterDone <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancelLeader()

	assert.True(t, quickbase.IsCancelled(<-leaderDone))
	require.NoError(t, <-waiterDone)
	assert.Equal(t, int32(2), fetcher.fieldCalls.Load())
	assert.Equal(t, 1, cache.Stats().Fields)
}

func TestCache_WaiterCancelledWhileLeaderContinues(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	cache := metadata.New(fetcher, apps)
	table := orders(t, cache)

	fetcher.hold = true

	leaderDone := make(chan error, 1)

	go func() {
		_, err := cache.ResolveField(context.Background(), table, "Amount")
		leaderDone <- err
	}()

	<-fetcher.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := cache.ResolveField(ctx, table, "Amount")
	require.Error(t, err)
	assert.True(t, quickbase.IsCancelled(err))

	close(fetcher.release)
	require.NoError(t, <-leaderDone)
	assert.Equal(t, 1, cache.Stats().Fields)
	assert.Equal(t, int32(1), fetcher.fieldCalls.Load())
}

func TestCache_FetchErrorIsNotCached(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	cache := metadata.New(fetcher, apps)
	table := orders(t, cache)

	fetcher.err = &quickbase.TransportError{Kind: quickbase.KindRetryExhausted, Method: http.MethodGet, Path: "/fields", StatusCode: 503, Attempts: 5}

	_, err := cache.ResolveField(context.Background(), table, "Amount")
	require.Error(t, err)
	assert.True(t, quickbase.IsRetryExhausted(err))

	fetcher.mutex.Lock()
	fetcher.err = nil
	fetcher.mutex.Unlock()

	field, err := cache.ResolveField(context.Background(), table, "Amount")
	require.NoError(t, err)
	assert.Equal(t, 8, field.ID)
	assert.Equal(t, int32(2), fetcher.fieldCalls.Load())
}

func TestCache_PublishesLocalInvalidationsOnly(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	metrics := newFakeMetrics()
	cache := metadata.New(newFakeFetcher(), apps, metadata.WithPublisher(publisher), metadata.WithMetrics(metrics))

	cache.Invalidate(quickbase.Scope{App: "Sales", Table: "Orders"})
	cache.ApplyRemote(quickbase.Scope{App: "Sales"})

	assert.Equal(t, []quickbase.Scope{{App: "Sales", Table: "Orders"}}, publisher.scopes)
	assert.Equal(t, map[string]int{"local": 1, "remote": 1}, metrics.invalidations)
}

func TestSnapshot_ResolvesFields(t *testing.T) {
	t.Parallel()

	loadedAt := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	cache := metadata.New(newFakeFetcher(), apps, metadata.WithClock(func() time.Time { return loadedAt }))
	table := orders(t, cache)

	snapshot, err := cache.Snapshot(context.Background(), table)
	require.NoError(t, err)

	where, err := query.Render(query.And(
		query.Equals("Record ID#", query.Int(5)),
		query.After("Date", query.DateOf(time.Date(2025, 5, 13, 0, 0, 0, 0, time.UTC))),
	), snapshot)
	require.NoError(t, err)
	assert.Equal(t, "({3.EX.5}AND{7.AF.'2025-05-13'})", where)

	assert.Equal(t, "Amount", snapshot.Label(8))
	assert.Empty(t, snapshot.Label(99))
	assert.Equal(t, ordersTable, snapshot.Table().ID)
	assert.Len(t, snapshot.Fields(), 3)
	assert.Equal(t, loadedAt, snapshot.InsertedAt())
	assert.Equal(t, loadedAt, cache.Stats().UpdatedAt)

	_, err = query.Render(query.Equals("Status", query.String("Open")), snapshot)
	require.ErrorIs(t, err, query.ErrUnknownField)
	require.ErrorIs(t, err, quickbase.ErrFieldNotFound)
}
