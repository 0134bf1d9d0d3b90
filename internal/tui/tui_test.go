package tui

import (
	"context"
	"net/http"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/rampart/internal/api"
	"grimm.is/rampart/internal/api/server"
	"grimm.is/rampart/internal/authz"
	"grimm.is/rampart/internal/cache"
	"grimm.is/rampart/internal/client"
	"grimm.is/rampart/internal/logging"
	"grimm.is/rampart/internal/resource"
	"grimm.is/rampart/internal/session"
	"grimm.is/rampart/internal/testutil"
)

func newBackend(t *testing.T, loggedIn bool) (*Backend, *server.Server) {
	t.Helper()
	srv, ts := testutil.NewAPIServer(t)
	store := session.New(session.NewMemoryStorage(), session.WithLogger(logging.Discard()))
	apiClient := client.NewHTTPClient(ts.URL, store, client.WithLogger(logging.Discard()))

	if loggedIn {
		resp, err := apiClient.Login(context.Background(), testutil.Admin.Username, testutil.Admin.Password)
		require.NoError(t, err)
		require.NoError(t, store.Login(context.Background(), resp.Token, resp.User))
	}

	c := cache.New(cache.Options{Logger: logging.Discard()})
	b := NewBackend(context.Background(), store, apiClient, c, nil, nil, logging.Discard(), 20*time.Millisecond)
	return b, srv
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestChanNavigator_NeverBlocks(t *testing.T) {
	n := newChanNavigator(logging.Discard())
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(n.ch)+5; i++ {
			n.Navigate("/rules")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Navigate blocked")
	}
	assert.Len(t, n.ch, cap(n.ch))
}

func TestModel_AnonymousLandsOnLogin(t *testing.T) {
	b, _ := newBackend(t, false)
	m := NewModel(b, "/rules")

	b.Gate.Visit("/rules")
	next, _ := m.Update(navigateMsg{path: <-b.nav.ch})
	m = next.(Model)

	assert.Equal(t, authz.LoginPath, m.Active)
	assert.Equal(t, "/rules", b.Gate.ReturnTo())
	assert.Contains(t, m.View(), "Rampart")
}

func TestModel_LoginReturnsToRequestedPage(t *testing.T) {
	b, _ := newBackend(t, false)
	stop := b.Start()
	defer stop()

	m := NewModel(b, "/rules")
	b.Gate.Visit("/rules")
	next, _ := m.Update(navigateMsg{path: <-b.nav.ch})
	m = next.(Model)
	require.Equal(t, authz.LoginPath, m.Active)

	msg := b.login(testutil.Operator.Username, testutil.Operator.Password)()
	next, _ = m.Update(msg)
	m = next.(Model)

	assert.Equal(t, "/rules", b.Gate.Current())
	next, _ = m.Update(navigateMsg{})
	m = next.(Model)
	assert.Equal(t, "/rules", m.Active)
}

func TestModel_BadCredentialsStayOnLogin(t *testing.T) {
	b, _ := newBackend(t, false)
	login := NewLoginModel(b)

	msg := b.login("alice", "wrong")()
	_, _ = login.Update(msg)

	assert.NotEmpty(t, login.err)
	assert.Empty(t, login.Password)
	assert.False(t, b.Sessions.Snapshot().IsAuthenticated())
	assert.Equal(t, session.Unauthenticated, b.Sessions.Snapshot().State)
}

func TestModel_OperatorForbiddenFromSites(t *testing.T) {
	b, _ := newBackend(t, false)
	_ = b.login(testutil.Operator.Username, testutil.Operator.Password)()

	m := NewModel(b, "")
	b.Gate.Visit("/settings/site")
	next, _ := m.Update(navigateMsg{})
	m = next.(Model)

	assert.Equal(t, authz.ForbiddenPath, m.Active)
	assert.NotContains(t, m.ViewTopBar(), "Site management")
}

func TestModel_LogoutKey(t *testing.T) {
	b, _ := newBackend(t, true)
	stop := b.Start()
	defer stop()

	m := NewModel(b, "")
	b.Gate.Visit(authz.HomePath)
	next, _ := m.Update(navigateMsg{})
	m = next.(Model)

	_, cmd := m.Update(key("L"))
	require.NotNil(t, cmd)
	assert.Equal(t, session.LoggedOut, b.Sessions.Snapshot().State)
	assert.Equal(t, authz.LoginPath, b.Gate.Current())
}

func TestListModel_LoadsRows(t *testing.T) {
	b, _ := newBackend(t, true)
	r := b.Sites.Create(context.Background(), api.Site{Name: "Shop", Domain: "https://shop.example.com"})
	require.True(t, r.OK())

	m := NewSitesModel(b)
	_, _ = m.Update(m.load()())

	require.Len(t, m.shown, 1)
	assert.Equal(t, "Shop", m.shown[0].Name)
	assert.Contains(t, m.View(), "shop.example.com")
}

func TestListModel_SearchFiltersLocally(t *testing.T) {
	b, srv := newBackend(t, true)
	ctx := context.Background()
	require.True(t, b.Sites.Create(ctx, api.Site{Name: "Shop", Domain: "https://shop.example.com"}).OK())
	require.True(t, b.Sites.Create(ctx, api.Site{Name: "Blog", Domain: "https://blog.example.com"}).OK())

	m := NewSitesModel(b)
	_, _ = m.Update(m.load()())
	require.Len(t, m.shown, 2)
	srv.ResetRequests()

	_, _ = m.Update(key("/"))
	for _, r := range "blog" {
		_, _ = m.Update(key(string(r)))
	}

	require.Len(t, m.shown, 1)
	assert.Equal(t, "Blog", m.shown[0].Name)
	assert.Empty(t, srv.Requests())
}

func TestListModel_DialogKeepsDraftOnValidationError(t *testing.T) {
	b, srv := newBackend(t, true)
	m := NewSitesModel(b)
	_, _ = m.Update(key("n"))
	require.NotNil(t, m.dialog)

	draft := m.dialog.draft.(*siteDraft)
	draft.Name = "Shop"
	draft.Domain = "not-a-url"
	srv.ResetRequests()

	res := b.Sites.Save(context.Background(), m.apply(m.dialog.base, m.dialog.draft))
	_, _ = m.Update(savedMsg[api.Site]{res: res})

	require.NotNil(t, m.dialog)
	assert.Contains(t, m.dialog.fields, "domain")
	assert.Equal(t, "Shop", m.dialog.draft.(*siteDraft).Name)
	assert.Empty(t, srv.Requests())

	draft.Domain = "https://shop.example.com"
	res = b.Sites.Save(context.Background(), m.apply(m.dialog.base, m.dialog.draft))
	_, cmd := m.Update(savedMsg[api.Site]{res: res})

	assert.Nil(t, m.dialog)
	assert.NotNil(t, cmd)
}

func TestListModel_AuthFailureClosesDialogSilently(t *testing.T) {
	b, _ := newBackend(t, true)
	m := NewRulesModel(b)
	_, _ = m.Update(key("n"))
	require.NotNil(t, m.dialog)

	res := resource.Result[api.Rule]{Err: &client.Error{Kind: client.KindAuth, Status: http.StatusUnauthorized}}
	_, cmd := m.Update(savedMsg[api.Rule]{res: res})

	assert.Nil(t, m.dialog)
	assert.Nil(t, cmd)
}

func TestListModel_DeleteNeedsConfirmation(t *testing.T) {
	b, _ := newBackend(t, true)
	ctx := context.Background()
	created := b.Sites.Create(ctx, api.Site{Name: "Shop", Domain: "https://shop.example.com"})
	require.True(t, created.OK())

	m := NewSitesModel(b)
	_, _ = m.Update(m.load()())

	_, cmd := m.Update(key("d"))
	assert.Nil(t, cmd)
	assert.Equal(t, created.Value.ID, m.confirm)

	_, cmd = m.Update(key("n"))
	assert.Nil(t, cmd)
	assert.Empty(t, m.confirm)
	assert.Nil(t, m.dialog)

	_, _ = m.Update(key("d"))
	_, cmd = m.Update(key("y"))
	require.NotNil(t, cmd)
	_, _ = m.Update(cmd())

	_, _ = m.Update(m.load()())
	assert.Empty(t, m.shown)
}

func TestMonitorModel_PollsWhileShown(t *testing.T) {
	b, _ := newBackend(t, true)
	m := NewMonitorModel(b)

	cmd := m.Init()
	msg := cmd()
	_, next := m.Update(msg)
	require.NotNil(t, m.Summary)
	require.NotNil(t, next)
	assert.True(t, b.Cache.Observed(resource.MonitorKey))

	m.Close()
	assert.False(t, b.Cache.Observed(resource.MonitorKey))
	assert.Nil(t, next())

	stale := monitorMsg{gen: m.gen - 1}
	_, again := m.Update(stale)
	assert.Nil(t, again)
}

func TestLogsModel_DropsResultsForOldQuery(t *testing.T) {
	b, _ := newBackend(t, true)
	m := NewLogsModel(b)

	old := m.Query
	_ = m.shiftDay(-1)
	_, _ = m.Update(logsMsg{query: old, res: resource.Result[[]api.AttackLog]{Value: []api.AttackLog{{ClientIP: "10.0.0.1"}}}})

	assert.Empty(t, m.logs)
	assert.Equal(t, old.Start.AddDate(0, 0, -1), m.Query.Start)
}

func TestConditions(t *testing.T) {
	conds := []api.Condition{
		{Field: "uri", Operator: "contains", Value: "/admin panel"},
		{Field: "ip", Operator: "eq", Value: "10.0.0.1"},
	}
	text := FormatConditions(conds)
	assert.Equal(t, "uri contains /admin panel\nip eq 10.0.0.1", text)
	assert.Equal(t, conds, ParseConditions(text+"\n\n"))
	assert.Nil(t, ParseConditions(""))
}

func TestParseTagAndJoinFields(t *testing.T) {
	assert.Equal(t, map[string]string{"field": "name", "validate": "required"}, parseTag("field=name, validate=required"))
	assert.Equal(t, "a; b", joinFields(map[string]string{"z": "b", "a": "a"}))
}

func TestSparkline(t *testing.T) {
	points := []api.TrafficPoint{{Requests: 0}, {Requests: 5}, {Requests: 10}}
	assert.Equal(t, "▁▄█", sparkline(points, func(p api.TrafficPoint) int { return p.Requests }))
	assert.Equal(t, "▁▁▁", sparkline(points, func(p api.TrafficPoint) int { return p.Blocked }))
}

func TestBackend_StaleLogoutSnapshotKeepsCache(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend(t, true)
	user := b.Sessions.Snapshot().User

	var seen []session.Session
	unsubscribe := b.Sessions.Subscribe(func(s session.Session) { seen = append(seen, s) })
	defer unsubscribe()

	require.True(t, b.Sessions.Logout())
	require.NoError(t, b.Sessions.Login(ctx, "tok-abc", user))
	require.Len(t, seen, 2)
	require.Less(t, seen[0].Seq, seen[1].Seq)

	k := cache.NewKey("sites", nil)
	_, err := cache.Query(ctx, b.Cache, k, func(context.Context) (string, error) { return "fresh", nil })
	require.NoError(t, err)

	// The logout notification arriving after the new login is ignored.
	b.sessionChanged()
	_, ok := cache.Peek[string](b.Cache, k)
	assert.True(t, ok)

	b.Sessions.Logout()
	b.sessionChanged()
	_, ok = cache.Peek[string](b.Cache, k)
	assert.False(t, ok)
}
