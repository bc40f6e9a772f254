package lobby_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/party-client/internal/api"
	"github.com/DoyleJ11/party-client/internal/devserver"
	"github.com/DoyleJ11/party-client/internal/engine"
	"github.com/DoyleJ11/party-client/internal/lobby"
	"github.com/DoyleJ11/party-client/internal/party"
	"github.com/DoyleJ11/party-client/internal/push"
	"github.com/DoyleJ11/party-client/internal/round"
	"github.com/DoyleJ11/party-client/internal/route"
	"github.com/DoyleJ11/party-client/pkg/types"
)

type client struct {
	srv    *devserver.Server
	api    *api.Client
	lobby  *lobby.Controller
	party  *party.Controller
	rounds *round.Store
	nav    *route.History
	errc   chan error
}

func startLobby(t *testing.T, srv *devserver.Server, base, sessionID, player string) *client {
	t.Helper()
	c := &client{
		srv:    srv,
		api:    api.New(base, api.WithToken(player)),
		party:  party.NewController(nil),
		rounds: round.NewStore(),
		nav:    route.NewHistory(nil),
		errc:   make(chan error, 1),
	}
	want := srv.Sockets(sessionID) + 1
	ch := push.New(push.Config{BaseURL: base, SessionID: sessionID, Token: player, Context: push.ContextLobby}, nil)
	c.lobby = lobby.New(lobby.Config{SessionID: sessionID, PlayerID: player, Interval: time.Hour}, lobby.Deps{
		API:     c.api,
		Push:    ch,
		Party:   c.party,
		Nav:     c.nav,
		Resumer: round.NewStarter(c.api, c.party, c.rounds, c.nav, nil),
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-c.lobby.Done()
	})
	go func() { c.errc <- c.lobby.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.Sockets(sessionID) == want }, 2*time.Second, 5*time.Millisecond, "push never connected")
	c.waitView(t, func(v lobby.View) bool { return v.Snapshot != nil && v.PushState == push.StateOpen })
	return c
}

func (c *client) waitView(t *testing.T, cond func(lobby.View) bool) lobby.View {
	t.Helper()
	var last lobby.View
	require.Eventually(t, func() bool {
		v, err := c.lobby.View(context.Background())
		if err != nil {
			return false
		}
		last = v
		return cond(v)
	}, 2*time.Second, 5*time.Millisecond, "last view: %+v", last)
	return last
}

func (c *client) waitStopped(t *testing.T) {
	t.Helper()
	select {
	case err := <-c.errc:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("lobby did not stop")
	}
}

func newServer(t *testing.T) (*devserver.Server, string) {
	t.Helper()
	srv := devserver.New()
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return srv, hs.URL
}

func TestLobby_StartMatchAddsAIThenEntersGame(t *testing.T) {
	srv, base := newServer(t)
	snap := srv.CreateSession("host", 6, 8)
	for _, id := range []string{"b", "c", "d"} {
		srv.AddPlayer(snap.SessionID, id, true)
	}

	c := startLobby(t, srv, base, snap.SessionID, "host")
	_, err := c.api.MarkReady(context.Background(), snap.SessionID)
	require.NoError(t, err)
	c.waitView(t, func(v lobby.View) bool { return v.Fill.AllHumansReady })

	require.NoError(t, c.lobby.StartMatch(context.Background()))
	assert.Equal(t, []string{"add-ai", "add-ai", "start"}, srv.CallLog("add-ai", "start"))

	// session_started triggers a refetch, which redirects and resumes the prompt round
	c.waitStopped(t)
	assert.Equal(t, route.Route("/prompt"), c.nav.Current())

	st := c.party.State()
	assert.True(t, st.IsPartyMode)
	assert.Equal(t, engine.StepPrompt, st.CurrentStep)
	active, ok := c.rounds.Current()
	require.True(t, ok)
	assert.Equal(t, types.RoundPrompt, active.Type)

	require.Eventually(t, func() bool { return srv.Sockets(snap.SessionID) == 0 }, time.Second, 5*time.Millisecond,
		"lobby push connection closed on exit")
}

func TestLobby_ProgressPushReplacesCounts(t *testing.T) {
	srv, base := newServer(t)
	snap := srv.CreateSession("host", 3, 8)
	c := startLobby(t, srv, base, snap.SessionID, "host")
	st := c.party.State()
	require.True(t, st.IsPartyMode, "joining the lobby enters party mode")
	assert.Equal(t, engine.StepLobby, st.CurrentStep)

	progress := func(n int) map[string]any {
		return map[string]any{
			"player_id":        "x",
			"progress":         types.PlayerProgress{PromptsSubmitted: n},
			"session_progress": types.SessionProgress{TotalPlayers: 3},
		}
	}
	xCount := func() int { return c.party.State().Progress.Players["x"].PromptsSubmitted }

	srv.Broadcast(snap.SessionID, push.TypeProgressUpdate, progress(1))
	require.Eventually(t, func() bool { return xCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	srv.Broadcast(snap.SessionID, push.TypeProgressUpdate, progress(2))
	require.Eventually(t, func() bool { return xCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, xCount(), "replace, not accumulate")
}

func TestLobby_UnknownPushIsTolerated(t *testing.T) {
	srv, base := newServer(t)
	snap := srv.CreateSession("host", 3, 8)
	c := startLobby(t, srv, base, snap.SessionID, "host")
	before := c.party.State()

	srv.BroadcastRaw(snap.SessionID, []byte(`{"type":"confetti_cannon","data":{"intensity":11}}`))
	srv.Broadcast(snap.SessionID, push.TypeSessionUpdate, map[string]string{"reason": "host_changed", "message": "b is now the host"})

	v := c.waitView(t, func(v lobby.View) bool { return v.LastNotice != "" })
	assert.Equal(t, "b is now the host", v.LastNotice)
	assert.Equal(t, push.StateOpen, v.PushState)
	assert.Empty(t, v.Terminal)
	assert.Equal(t, before, c.party.State())
}

func TestLobby_FatalCloseIsTerminal(t *testing.T) {
	srv, base := newServer(t)
	snap := srv.CreateSession("host", 3, 8)
	c := startLobby(t, srv, base, snap.SessionID, "host")

	srv.CloseSockets(snap.SessionID, websocket.StatusCode(4403), "")
	c.waitStopped(t)

	v, err := c.lobby.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "You no longer have access to this party.", v.Terminal)
	assert.Empty(t, v.Err)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, srv.Sockets(snap.SessionID), "no automatic reconnect")
}

func TestLobby_TransientCloseThenManualReconnect(t *testing.T) {
	srv, base := newServer(t)
	snap := srv.CreateSession("host", 3, 8)
	c := startLobby(t, srv, base, snap.SessionID, "host")

	srv.CloseSockets(snap.SessionID, websocket.StatusInternalError, "restarting")
	v := c.waitView(t, func(v lobby.View) bool { return v.PushNotice != "" })
	assert.Equal(t, "Live updates disconnected.", v.PushNotice)
	assert.Empty(t, v.Terminal)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, srv.Sockets(snap.SessionID))

	require.NoError(t, c.lobby.ReconnectPush(context.Background()))
	require.Eventually(t, func() bool { return srv.Sockets(snap.SessionID) == 1 }, 2*time.Second, 5*time.Millisecond)
	v = c.waitView(t, func(v lobby.View) bool { return v.PushState == push.StateOpen })
	assert.Empty(t, v.PushNotice)
}

func TestLobby_HostPingReachesGuests(t *testing.T) {
	srv, base := newServer(t)
	snap := srv.CreateSession("host", 3, 8)
	srv.AddPlayer(snap.SessionID, "guest", false)

	host := startLobby(t, srv, base, snap.SessionID, "host")
	guest := startLobby(t, srv, base, snap.SessionID, "guest")

	_, err := guest.lobby.Ping(context.Background())
	assert.ErrorIs(t, err, lobby.ErrNotHost)

	res, err := host.lobby.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)

	v := guest.waitView(t, func(v lobby.View) bool { return v.LastPing != nil })
	assert.Equal(t, "host", v.LastPing.HostPlayerID)
	assert.Contains(t, v.LastPing.JoinURL, snap.PartyCode)
}

func TestLobby_RemovedSessionIsTerminal(t *testing.T) {
	srv, base := newServer(t)
	snap := srv.CreateSession("host", 3, 8)
	c := startLobby(t, srv, base, snap.SessionID, "host")

	srv.Remove(snap.SessionID)
	c.lobby.Refresh()
	c.waitStopped(t)

	v, _ := c.lobby.View(context.Background())
	assert.Equal(t, "Party session not found", v.Terminal)
	assert.False(t, c.party.State().IsPartyMode, "a gone session ends party mode")
}
