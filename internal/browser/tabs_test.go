package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offlineSession registers a connection without a websocket so tab
// bookkeeping can run against the fake HTTP endpoints alone.
func offlineSession(t *testing.T, f *fakeDevTools, cm *ConnectionManager, sessionID, targetID string) {
	t.Helper()
	host, port := f.hostPort(t)
	cm.register(&Connection{
		SessionID: sessionID,
		Host:      host,
		Port:      port,
		Target:    TargetInfo{ID: targetID, Type: "page", URL: "about:blank"},
	})
}

func newTestTabs(t *testing.T, targets ...TargetInfo) (*fakeDevTools, *ConnectionManager, *TabManager) {
	t.Helper()
	f := newFakeDevTools(t, targets...)
	cm := NewConnectionManager(WithConnectionHTTPClient(f.srv.Client()))
	return f, cm, NewTabManager(cm)
}

func TestTabManager_InitializeSeedsActiveTab(t *testing.T) {
	f, cm, tm := newTestTabs(t, TargetInfo{ID: "T1", Type: "page"})
	offlineSession(t, f, cm, "s1", "T1")

	require.NoError(t, tm.Initialize(context.Background(), "s1"))
	require.NoError(t, tm.Initialize(context.Background(), "s1"), "initialize is repeatable")

	tabs, err := tm.ListTabs("s1")
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	assert.Equal(t, "T1", tm.ActiveTabID("s1"))

	active, err := tm.ActiveTab("s1")
	require.NoError(t, err)
	assert.Equal(t, "T1", active.ID)
}

func TestTabManager_CloseLastTabIsRejected(t *testing.T) {
	f, cm, tm := newTestTabs(t, TargetInfo{ID: "T1", Type: "page"})
	offlineSession(t, f, cm, "s1", "T1")
	require.NoError(t, tm.Initialize(context.Background(), "s1"))

	err := tm.CloseTab(context.Background(), "s1", "T1")
	assert.ErrorIs(t, err, ErrLastTabProtected)

	tabs, err := tm.ListTabs("s1")
	require.NoError(t, err)
	assert.Len(t, tabs, 1, "tab count unchanged")
	assert.Equal(t, "T1", tm.ActiveTabID("s1"))
	assert.Empty(t, f.closedIDs(), "no close request issued")
}

func TestTabManager_CreateSwitchClose(t *testing.T) {
	f, cm, tm := newTestTabs(t, TargetInfo{ID: "T1", Type: "page"})
	offlineSession(t, f, cm, "s1", "T1")
	ctx := context.Background()
	require.NoError(t, tm.Initialize(ctx, "s1"))

	tab, err := tm.CreateTab(ctx, "s1", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "NEW1", tab.ID)
	assert.Equal(t, "https://example.com", tab.URL)
	assert.Equal(t, "T1", tm.ActiveTabID("s1"), "new tab is not activated")

	err = tm.SwitchTab("s1", "missing")
	assert.ErrorIs(t, err, ErrTabNotFound)
	assert.Equal(t, "T1", tm.ActiveTabID("s1"))

	require.NoError(t, tm.SwitchTab("s1", tab.ID))
	assert.Equal(t, tab.ID, tm.ActiveTabID("s1"))

	require.NoError(t, tm.CloseTab(ctx, "s1", tab.ID))
	assert.Equal(t, []string{tab.ID}, f.closedIDs())
	assert.Equal(t, "T1", tm.ActiveTabID("s1"), "active pointer moves to a remaining tab")

	_, err = tm.GetTab("s1", tab.ID)
	assert.ErrorIs(t, err, ErrTabNotFound)
}

func TestTabManager_SessionsShareBrowserTabs(t *testing.T) {
	f, cm, tm := newTestTabs(t,
		TargetInfo{ID: "T1", Type: "page"},
		TargetInfo{ID: "T2", Type: "page"},
	)
	offlineSession(t, f, cm, "alice", "T1")
	offlineSession(t, f, cm, "bob", "T2")
	ctx := context.Background()
	require.NoError(t, tm.Initialize(ctx, "alice"))
	require.NoError(t, tm.Initialize(ctx, "bob"))

	aliceTabs, err := tm.ListTabs("alice")
	require.NoError(t, err)
	assert.Len(t, aliceTabs, 2, "both sessions see one browser's tabs")
	assert.Equal(t, "T1", tm.ActiveTabID("alice"))
	assert.Equal(t, "T2", tm.ActiveTabID("bob"))

	require.NoError(t, tm.SwitchTab("alice", "T2"))
	assert.Equal(t, "T2", tm.ActiveTabID("bob"))

	require.NoError(t, tm.CloseTab(ctx, "bob", "T2"))
	assert.Equal(t, "T1", tm.ActiveTabID("alice"))
	assert.Equal(t, "T1", tm.ActiveTabID("bob"))
}

func TestTabManager_ClosedTargetIsNotReseeded(t *testing.T) {
	f, cm, tm := newTestTabs(t, TargetInfo{ID: "T1", Type: "page"})
	offlineSession(t, f, cm, "s1", "T1")
	ctx := context.Background()
	require.NoError(t, tm.Initialize(ctx, "s1"))

	tab, err := tm.CreateTab(ctx, "s1", "")
	require.NoError(t, err)
	require.NoError(t, tm.CloseTab(ctx, "s1", "T1"))
	assert.Equal(t, tab.ID, tm.ActiveTabID("s1"))

	// Every tool call initializes the session again.
	require.NoError(t, tm.Initialize(ctx, "s1"))
	tabs, err := tm.ListTabs("s1")
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	assert.Equal(t, tab.ID, tabs[0].ID)

	err = tm.CloseTab(ctx, "s1", tab.ID)
	assert.ErrorIs(t, err, ErrLastTabProtected)
	assert.Equal(t, []string{"T1"}, f.closedIDs())
}

func TestTabManager_InitializeAfterTargetClosedPicksRemainingTab(t *testing.T) {
	f, cm, tm := newTestTabs(t, TargetInfo{ID: "T1", Type: "page"})
	offlineSession(t, f, cm, "s1", "T1")
	ctx := context.Background()
	require.NoError(t, tm.Initialize(ctx, "s1"))
	tab, err := tm.CreateTab(ctx, "s1", "")
	require.NoError(t, err)
	require.NoError(t, tm.CloseTab(ctx, "s1", "T1"))

	// A second session whose connection still names the closed target.
	offlineSession(t, f, cm, "s2", "T1")
	require.NoError(t, tm.Initialize(ctx, "s2"))
	assert.Equal(t, tab.ID, tm.ActiveTabID("s2"))
}

func TestTabManager_CloseAll(t *testing.T) {
	f, cm, tm := newTestTabs(t, TargetInfo{ID: "T1", Type: "page"})
	offlineSession(t, f, cm, "s1", "T1")
	ctx := context.Background()
	require.NoError(t, tm.Initialize(ctx, "s1"))
	_, err := tm.CreateTab(ctx, "s1", "")
	require.NoError(t, err)

	require.NoError(t, tm.CloseAll(ctx, "s1"))
	assert.Empty(t, f.closedIDs(), "targets stay open")
	assert.Len(t, f.targets, 2)
	assert.Empty(t, tm.ActiveTabID("s1"))

	tabs, err := tm.ListTabs("s1")
	require.NoError(t, err)
	assert.Empty(t, tabs)

	require.NoError(t, tm.Initialize(ctx, "s1"))
	assert.Equal(t, "T1", tm.ActiveTabID("s1"), "the connection target is seeded again")
}

func TestTabManager_CloseAllKeepsTabsOfOtherSessions(t *testing.T) {
	f, cm, tm := newTestTabs(t,
		TargetInfo{ID: "T1", Type: "page"},
		TargetInfo{ID: "T2", Type: "page"},
	)
	offlineSession(t, f, cm, "alice", "T1")
	offlineSession(t, f, cm, "bob", "T2")
	ctx := context.Background()
	require.NoError(t, tm.Initialize(ctx, "alice"))
	require.NoError(t, tm.Initialize(ctx, "bob"))

	require.NoError(t, tm.CloseAll(ctx, "alice"))
	assert.Empty(t, tm.ActiveTabID("alice"))
	assert.Equal(t, "T2", tm.ActiveTabID("bob"))

	tabs, err := tm.ListTabs("bob")
	require.NoError(t, err)
	assert.Len(t, tabs, 2)
	assert.Empty(t, f.closedIDs())
}

func TestTabManager_Refresh(t *testing.T) {
	f, cm, tm := newTestTabs(t, TargetInfo{ID: "T1", Type: "page", URL: "about:blank"})
	offlineSession(t, f, cm, "s1", "T1")
	ctx := context.Background()
	require.NoError(t, tm.Initialize(ctx, "s1"))

	f.mu.Lock()
	f.targets[0].URL = "https://example.com/after"
	f.targets[0].Title = "After"
	f.mu.Unlock()

	require.NoError(t, tm.Refresh(ctx, "s1"))
	tab, err := tm.ActiveTab("s1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/after", tab.URL)
	assert.Equal(t, "After", tab.Title)
}

func TestTabManager_UnknownSession(t *testing.T) {
	_, _, tm := newTestTabs(t)
	_, err := tm.ListTabs("ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, tm.Initialize(context.Background(), "ghost"), ErrSessionNotFound)
}

func TestConnectionManager_NoPageTarget(t *testing.T) {
	f := newFakeDevTools(t, TargetInfo{ID: "W", Type: "service_worker"})
	host, port := f.hostPort(t)
	cm := NewConnectionManager(
		WithConnectionHTTPClient(f.srv.Client()),
		WithConnectRetry(RetryPolicy{Attempts: 2, Interval: time.Millisecond}),
	)

	_, err := cm.Connect(context.Background(), "s1", host, port, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPageTarget)
	assert.ErrorIs(t, err, ErrConnection)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, 2, connErr.Attempts)
	assert.Equal(t, "connect", connErr.Op)
	assert.Empty(t, cm.Sessions())
}

func TestConnectionManager_DisconnectUnknown(t *testing.T) {
	cm := NewConnectionManager()
	assert.ErrorIs(t, cm.Disconnect("nobody"), ErrSessionNotFound)
}

func TestPickTarget(t *testing.T) {
	targets := []TargetInfo{
		{ID: "W", Type: "service_worker"},
		{ID: "P1", Type: "page"},
		{ID: "P2", Type: "page"},
	}

	got, err := pickTarget(targets, "")
	require.NoError(t, err)
	assert.Equal(t, "P1", got.ID)

	got, err = pickTarget(targets, "P2")
	require.NoError(t, err)
	assert.Equal(t, "P2", got.ID)

	_, err = pickTarget(targets, "P9")
	assert.ErrorIs(t, err, ErrTabNotFound)

	_, err = pickTarget(targets[:1], "")
	assert.ErrorIs(t, err, ErrNoPageTarget)
}

func TestRegistry_TeardownWithoutSessions(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	require.NoError(t, r.Teardown(context.Background()))
	host, port := r.Endpoint()
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, DefaultPort, port)
}

func TestRegistry_TeardownDetachesTabs(t *testing.T) {
	f := newFakeDevTools(t,
		TargetInfo{ID: "T1", Type: "page"},
		TargetInfo{ID: "T2", Type: "page"},
	)
	host, port := f.hostPort(t)
	r := NewRegistry(RegistryOptions{Host: host, Port: port, HTTPClient: f.srv.Client()})
	offlineSession(t, f, r.Connections(), "s1", "T1")
	offlineSession(t, f, r.Connections(), "s2", "T2")
	require.NoError(t, r.Tabs().Initialize(context.Background(), "s1"))
	require.NoError(t, r.Tabs().Initialize(context.Background(), "s2"))

	require.NoError(t, r.Teardown(context.Background()))
	assert.Empty(t, f.closedIDs(), "targets are left to the browser")
	assert.Empty(t, r.Connections().Sessions())
	assert.Empty(t, r.Tabs().Sessions())
}
