package resource

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/api/server"
	"grimm.is/rampart/internal/cache"
	"grimm.is/rampart/internal/client"
	"grimm.is/rampart/internal/i18n"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/session"
	"grimm.is/rampart/internal/testutil"
)

type env struct {
	srv   *server.Server
	store *session.Store
	deps  Deps
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv, ts := testutil.NewAPIServer(t)
	store := session.New(session.NewMemoryStorage(), session.WithLogger(logging.Discard()))
	apiClient := client.NewHTTPClient(ts.URL, store, client.WithLogger(logging.Discard()))

	resp, err := apiClient.Login(context.Background(), testutil.Admin.Username, testutil.Admin.Password)
	require.NoError(t, err)
	require.NoError(t, store.Login(context.Background(), resp.Token, resp.User))
	srv.ResetRequests()

	return &env{
		srv:   srv,
		store: store,
		deps: Deps{
			API:    apiClient,
			Cache:  cache.New(cache.Options{Logger: logging.Discard()}),
			Logger: logging.Discard(),
		},
	}
}

func (e *env) count(method, path string) int {
	n := 0
	for _, r := range e.srv.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func TestCreateShopSite(t *testing.T) {
	e := newEnv(t)
	sites := NewController(Sites, e.deps)

	res := sites.Save(context.Background(), api.Site{Name: "Shop", Domain: "https://shop.example"})
	require.True(t, res.OK(), "%v", res.Err)
	assert.False(t, res.KeepOpen, "dialog closes on success")
	assert.Equal(t, "Site created", res.Notice)
	assert.NotEmpty(t, res.Value.ID)

	list := sites.List(context.Background(), nil)
	require.True(t, list.OK())
	require.Len(t, list.Value, 1)
	got := list.Value[0]
	assert.Equal(t, res.Value.ID, got.ID)
	assert.Equal(t, "Shop", got.Name)
	assert.Equal(t, "https://shop.example", got.Domain)
}

func TestCreateRejectedClientSide(t *testing.T) {
	e := newEnv(t)
	sites := NewController(Sites, e.deps)

	res := sites.Create(context.Background(), api.Site{Name: "Shop", Domain: "not-a-url"})
	require.False(t, res.OK())
	assert.Equal(t, client.KindValidation, res.Err.Kind)
	assert.True(t, res.KeepOpen)
	assert.Equal(t, "Enter a valid URL", res.Fields["domain"])
	assert.NotContains(t, res.Fields, "name")
	assert.Empty(t, e.srv.Requests(), "no request may be sent")
}

func TestListReflectsServerAfterWrites(t *testing.T) {
	e := newEnv(t)
	rules := NewController(Rules, e.deps)
	ctx := context.Background()

	require.True(t, rules.List(ctx, nil).OK())
	require.True(t, rules.List(ctx, nil).OK())
	assert.Equal(t, 1, e.count(http.MethodGet, "/rules"), "second read is served from cache")

	created := rules.Create(ctx, api.Rule{Name: "r1", Action: api.ActionBlock, Status: api.RuleEnabled})
	require.True(t, created.OK(), "%v", created.Err)

	list := rules.List(ctx, nil)
	require.Len(t, list.Value, 1)
	assert.Equal(t, 2, e.count(http.MethodGet, "/rules"))

	r := created.Value
	r.Status = api.RuleDisabled
	updated := rules.Update(ctx, r)
	require.True(t, updated.OK(), "%v", updated.Err)
	assert.Equal(t, "Rule updated", updated.Notice)

	list = rules.List(ctx, nil)
	require.Len(t, list.Value, 1)
	assert.Equal(t, api.RuleDisabled, list.Value[0].Status)

	deleted := rules.Delete(ctx, r.ID)
	require.True(t, deleted.OK())
	assert.Equal(t, "Rule deleted", deleted.Notice)

	list = rules.List(ctx, nil)
	assert.Empty(t, list.Value)
	assert.Equal(t, 4, e.count(http.MethodGet, "/rules"))
}

func TestGetIsInvalidatedByWrites(t *testing.T) {
	e := newEnv(t)
	sites := NewController(Sites, e.deps)
	ctx := context.Background()

	created := sites.Create(ctx, api.Site{Name: "Shop", Domain: "https://shop.example"})
	require.True(t, created.OK())

	got := sites.Get(ctx, created.Value.ID)
	require.True(t, got.OK())
	assert.Equal(t, "Shop", got.Value.Name)

	s := created.Value
	s.Name = "Shop EU"
	require.True(t, sites.Update(ctx, s).OK())

	got = sites.Get(ctx, s.ID)
	assert.Equal(t, "Shop EU", got.Value.Name)
}

func TestUpdateFailureKeepsDialogOpen(t *testing.T) {
	e := newEnv(t)
	rules := NewController(Rules, e.deps)

	res := rules.Update(context.Background(), api.Rule{ID: "missing", Name: "r", Action: api.ActionAllow, Status: api.RuleEnabled})
	require.False(t, res.OK())
	assert.Equal(t, client.KindValidation, res.Err.Kind)
	assert.Equal(t, http.StatusNotFound, res.Err.Status)
	assert.True(t, res.KeepOpen)
	assert.Equal(t, "Could not update Rule: rule not found", res.Notice)
}

func TestServerFieldErrorsAreMapped(t *testing.T) {
	e := newEnv(t)
	sites := NewController(Sites, e.deps)

	e.srv.InjectFault(server.Fault{Method: http.MethodPost, Path: "/sites", Status: http.StatusBadRequest, Message: "domain taken"})
	res := sites.Create(context.Background(), api.Site{Name: "Shop", Domain: "https://shop.example"})
	require.False(t, res.OK())
	assert.True(t, res.KeepOpen)
	assert.Equal(t, "domain taken", res.Err.Message)
}

func TestDeleteFailureIsToastOnly(t *testing.T) {
	e := newEnv(t)
	certs := NewController(Certificates, e.deps)

	res := certs.Delete(context.Background(), "nope")
	require.False(t, res.OK())
	assert.False(t, res.KeepOpen)
	assert.Nil(t, res.Fields)
	assert.Equal(t, "Could not delete Certificate: certificate not found", res.Notice)
}

func TestSubmissionGuard(t *testing.T) {
	e := newEnv(t)
	sites := NewController(Sites, e.deps)
	site := api.Site{Name: "Shop", Domain: "https://shop.example"}

	e.srv.InjectFault(server.Fault{Method: http.MethodPost, Path: "/sites", Delay: 200 * time.Millisecond})

	var wg sync.WaitGroup
	wg.Add(1)
	var first Result[api.Site]
	go func() {
		defer wg.Done()
		first = sites.Create(context.Background(), site)
	}()

	require.Eventually(t, func() bool { return sites.Submitting("") }, time.Second, time.Millisecond)
	second := sites.Create(context.Background(), site)
	assert.True(t, IsSubmitting(second))
	assert.True(t, second.KeepOpen)

	wg.Wait()
	assert.True(t, first.OK())
	assert.False(t, sites.Submitting(""))
	assert.Equal(t, 1, e.count(http.MethodPost, "/sites"))
}

func TestUnauthorizedWriteIsSilent(t *testing.T) {
	e := newEnv(t)
	sites := NewController(Sites, e.deps)

	e.srv.Tokens.RevokeAll()
	res := sites.Create(context.Background(), api.Site{Name: "Shop", Domain: "https://shop.example"})
	require.False(t, res.OK())
	assert.True(t, res.Silent())
	assert.Empty(t, res.Notice)
	assert.False(t, e.store.Snapshot().IsAuthenticated())
}

func TestFilterIsLocal(t *testing.T) {
	items := []api.Site{
		{ID: "1", Name: "Shop", Domain: "https://shop.example"},
		{ID: "2", Name: "Blog", Domain: "https://blog.example"},
	}
	assert.Len(t, Filter(items, ""), 2)
	assert.Len(t, Filter(items, "  "), 2)
	got := Filter(items, "BLOG")
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
	assert.Empty(t, Filter(items, "nothing"))
}

func TestAttackLogsKeyedByQuery(t *testing.T) {
	e := newEnv(t)
	now := time.Now()
	e.srv.Data.AppendLog(api.AttackLog{Timestamp: now, ClientIP: "10.0.0.9", RequestURI: "/login"})
	reports := NewReports(e.deps)
	ctx := context.Background()

	today := api.Today(now)
	require.True(t, reports.AttackLogs(ctx, today).OK())
	require.True(t, reports.AttackLogs(ctx, today).OK())
	assert.Equal(t, 1, e.count(http.MethodGet, "/logs/attack"))

	q := today
	q.Search = "nothing-matches"
	res := reports.AttackLogs(ctx, q)
	require.True(t, res.OK())
	assert.Empty(t, res.Value)
	assert.Equal(t, 2, e.count(http.MethodGet, "/logs/attack"))

	assert.NotEqual(t, LogsKey(today), LogsKey(q))
}

func TestReportFailuresAreLocalized(t *testing.T) {
	e := newEnv(t)
	e.srv.InjectFault(server.Fault{Method: http.MethodGet, Path: "/dashboard", Status: http.StatusInternalServerError, Message: "boom"})
	res := NewReports(e.deps).Dashboard(context.Background())
	require.False(t, res.OK())
	assert.Equal(t, "Could not load Dashboard: boom", res.Notice)

	e.deps.Printer = i18n.ForLanguage("zh")
	e.srv.InjectFault(server.Fault{Method: http.MethodGet, Path: "/monitor", Status: http.StatusInternalServerError, Message: "boom"})
	res2 := NewReports(e.deps).Monitor(context.Background())
	require.False(t, res2.OK())
	assert.Equal(t, "实时监控加载失败：boom", res2.Notice)
}

func TestMonitorAlwaysRefetches(t *testing.T) {
	e := newEnv(t)
	reports := NewReports(e.deps)

	require.True(t, reports.Monitor(context.Background()).OK())
	require.True(t, reports.Monitor(context.Background()).OK())
	assert.Equal(t, 2, e.count(http.MethodGet, "/monitor"))

	require.True(t, reports.Dashboard(context.Background()).OK())
	require.True(t, reports.Dashboard(context.Background()).OK())
	assert.Equal(t, 1, e.count(http.MethodGet, "/dashboard"))
}

func TestPoller(t *testing.T) {
	c := cache.New(cache.Options{Logger: logging.Discard()})
	p := NewPoller[int](logging.Discard())

	var fetches atomic.Int32
	var mu sync.Mutex
	var delivered []int

	p.Start(context.Background(), 5*time.Millisecond, ObserveKey(c, MonitorKey),
		func(context.Context) Result[int] {
			return Result[int]{Value: int(fetches.Add(1))}
		},
		func(r Result[int]) {
			mu.Lock()
			delivered = append(delivered, r.Value)
			mu.Unlock()
		})

	assert.True(t, c.Observed(MonitorKey))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) >= 3
	}, time.Second, time.Millisecond)

	p.Stop()
	p.Wait()
	assert.False(t, p.Running())
	assert.False(t, c.Observed(MonitorKey))

	mu.Lock()
	n := len(delivered)
	mu.Unlock()
	stopped := fetches.Load()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, fetches.Load(), "no requests after stop")
	mu.Lock()
	assert.Equal(t, n, len(delivered))
	mu.Unlock()
}

func TestPoller_LateResultDiscarded(t *testing.T) {
	p := NewPoller[string](logging.Discard())
	inFlight := make(chan struct{})
	release := make(chan struct{})
	var delivered atomic.Int32

	p.Start(context.Background(), time.Hour, nil,
		func(context.Context) Result[string] {
			close(inFlight)
			<-release
			return Result[string]{Value: "late"}
		},
		func(Result[string]) { delivered.Add(1) })

	<-inFlight
	p.Stop()
	close(release)
	p.Wait()

	assert.Equal(t, int32(0), delivered.Load())
}
