package push

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsServer struct {
	*httptest.Server
	conns atomic.Int32
}

// newWSServer runs handle for every accepted connection. n is the 1-based
// connection count.
func newWSServer(t *testing.T, handle func(ctx context.Context, conn *websocket.Conn, n int32)) *wsServer {
	t.Helper()
	s := &wsServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.conns.Add(1)
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		handle(r.Context(), conn, n)
	}))
	t.Cleanup(s.Close)
	return s
}

// holdOpen blocks until the client goes away.
func holdOpen(ctx context.Context, conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func send(ctx context.Context, conn *websocket.Conn, frame string) {
	_ = conn.Write(ctx, websocket.MessageText, []byte(frame))
}

func recv[T any](t *testing.T, ch <-chan T, within time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		var zero T
		t.Fatalf("timed out waiting for %T", zero)
		return zero
	}
}

func newTestChannel(t *testing.T, srv *wsServer) *Channel {
	t.Helper()
	c := New(Config{BaseURL: srv.URL, SessionID: "sess-1", Token: "tok", Context: ContextLobby}, nil)
	t.Cleanup(c.Close)
	return c
}

func TestChannel_DisabledWithoutToken(t *testing.T) {
	c := New(Config{BaseURL: "ws://127.0.0.1:1", SessionID: "s"}, nil)
	assert.False(t, c.Enabled())
	assert.ErrorIs(t, c.Connect(context.Background()), ErrDisabled)
	assert.Equal(t, StateIdle, c.State())
}

func TestChannel_PassesSessionAndContext(t *testing.T) {
	got := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		holdOpen(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)

	c := New(Config{BaseURL: srv.URL, SessionID: "abc", Token: "tok", Context: ContextGame}, nil)
	t.Cleanup(c.Close)
	require.NoError(t, c.Connect(context.Background()))

	r := recv(t, got, time.Second)
	assert.Equal(t, "/party/abc/ws", r.URL.Path)
	assert.Equal(t, "game", r.URL.Query().Get("context"))
	assert.Equal(t, "tok", r.URL.Query().Get("token"))
}

func TestChannel_DeliversToCurrentHandlers(t *testing.T) {
	swapped := make(chan struct{})
	srv := newWSServer(t, func(ctx context.Context, conn *websocket.Conn, _ int32) {
		send(ctx, conn, `{"type":"player_joined","data":{"player_id":"a"}}`)
		<-swapped
		send(ctx, conn, `{"type":"player_joined","data":{"player_id":"b"}}`)
		holdOpen(ctx, conn)
	})

	first := make(chan Notification, 4)
	second := make(chan Notification, 4)

	c := newTestChannel(t, srv)
	c.SetHandlers(Handlers{OnNotification: func(n Notification) { first <- n }})
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Connected())

	n := recv(t, first, time.Second)
	assert.Equal(t, "a", n.(PlayerJoined).PlayerID)

	c.SetHandlers(Handlers{OnNotification: func(n Notification) { second <- n }})
	close(swapped)

	n = recv(t, second, time.Second)
	assert.Equal(t, "b", n.(PlayerJoined).PlayerID)
	assert.Empty(t, first)
}

func TestChannel_DropsUnknownAndMalformed(t *testing.T) {
	srv := newWSServer(t, func(ctx context.Context, conn *websocket.Conn, _ int32) {
		send(ctx, conn, `{"type":"brand_new_feature","data":{}}`)
		send(ctx, conn, `garbage`)
		send(ctx, conn, `{"type":"session_update","data":{"reason":"host_changed","message":"New host"}}`)
		holdOpen(ctx, conn)
	})

	got := make(chan Notification, 4)
	c := newTestChannel(t, srv)
	c.SetHandlers(Handlers{OnNotification: func(n Notification) { got <- n }})
	require.NoError(t, c.Connect(context.Background()))

	n := recv(t, got, time.Second)
	upd, ok := n.(SessionUpdate)
	require.True(t, ok, "first delivered notification should be the session update, got %T", n)
	assert.Equal(t, "host_changed", upd.Reason)
	assert.True(t, c.Connected())
}

func TestChannel_FatalCloseIsTerminal(t *testing.T) {
	srv := newWSServer(t, func(ctx context.Context, conn *websocket.Conn, _ int32) {
		_ = conn.Close(websocket.StatusCode(4403), "")
	})

	closes := make(chan *CloseError, 1)
	c := newTestChannel(t, srv)
	c.SetHandlers(Handlers{OnClose: func(e *CloseError) { closes <- e }})
	require.NoError(t, c.Connect(context.Background()))

	cerr := recv(t, closes, 2*time.Second)
	assert.Equal(t, 4403, cerr.Code)
	assert.True(t, cerr.Fatal)
	assert.Equal(t, "You no longer have access to this party.", cerr.Message())

	assert.Equal(t, StateErrored, c.State())
	assert.ErrorIs(t, c.Err(), ErrTerminal)
	assert.NotErrorIs(t, c.Err(), ErrTransport)

	assert.ErrorIs(t, c.Reconnect(context.Background()), ErrTerminal)

	// no automatic reconnection either
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), srv.conns.Load())
}

func TestChannel_TransientCloseNeedsManualReconnect(t *testing.T) {
	srv := newWSServer(t, func(ctx context.Context, conn *websocket.Conn, n int32) {
		if n == 1 {
			_ = conn.Close(websocket.StatusInternalError, "restarting")
			return
		}
		holdOpen(ctx, conn)
	})

	closes := make(chan *CloseError, 1)
	c := newTestChannel(t, srv)
	c.SetHandlers(Handlers{OnClose: func(e *CloseError) { closes <- e }})
	require.NoError(t, c.Connect(context.Background()))

	cerr := recv(t, closes, 2*time.Second)
	assert.False(t, cerr.Fatal)
	assert.Equal(t, StateClosed, c.State())
	assert.NotErrorIs(t, c.Err(), ErrTerminal)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), srv.conns.Load(), "channel must not reconnect by itself")

	require.NoError(t, c.Reconnect(context.Background()))
	assert.True(t, c.Connected())
	assert.Equal(t, int32(2), srv.conns.Load())
	assert.ErrorIs(t, c.Reconnect(context.Background()), ErrBusy)
}

func TestChannel_CloseIsSynchronous(t *testing.T) {
	srv := newWSServer(t, func(ctx context.Context, conn *websocket.Conn, _ int32) {
		holdOpen(ctx, conn)
	})

	states := make(chan State, 8)
	c := newTestChannel(t, srv)
	c.SetHandlers(Handlers{OnStateChange: func(s State) { states <- s }})
	require.NoError(t, c.Connect(context.Background()))

	c.Close()
	assert.Equal(t, StateClosed, c.State())
	assert.NoError(t, c.Err())

	assert.Equal(t, StateConnecting, recv(t, states, time.Second))
	assert.Equal(t, StateOpen, recv(t, states, time.Second))
	assert.Equal(t, StateClosed, recv(t, states, time.Second))
}

func TestChannel_ReconnectNeedsAnEarlierConnect(t *testing.T) {
	srv := newWSServer(t, func(ctx context.Context, conn *websocket.Conn, _ int32) {
		holdOpen(ctx, conn)
	})
	c := newTestChannel(t, srv)

	assert.ErrorIs(t, c.Reconnect(context.Background()), ErrIdle)
	assert.Equal(t, StateIdle, c.State())
	assert.Zero(t, srv.conns.Load())
}

func TestChannel_ConcurrentDialsOpenOneConnection(t *testing.T) {
	for i := 0; i < 20; i++ {
		srv := newWSServer(t, func(ctx context.Context, conn *websocket.Conn, _ int32) {
			holdOpen(ctx, conn)
		})
		c := newTestChannel(t, srv)

		start := make(chan struct{})
		errs := make(chan error, 3)
		for _, dial := range []func(context.Context) error{c.Connect, c.Connect, c.Reconnect} {
			go func() {
				<-start
				errs <- dial(context.Background())
			}()
		}
		close(start)

		ok := 0
		for range 3 {
			err := recv(t, errs, 2*time.Second)
			if err == nil {
				ok++
				continue
			}
			assert.True(t, errors.Is(err, ErrBusy) || errors.Is(err, ErrIdle), "unexpected error: %v", err)
		}
		require.Equal(t, 1, ok, "exactly one dial wins")
		assert.True(t, c.Connected())

		// Close reaches the one reader there is
		c.Close()
		assert.Equal(t, StateClosed, c.State())
		assert.Equal(t, int32(1), srv.conns.Load())
	}
}

func TestChannel_ConcurrentReconnectsAfterClose(t *testing.T) {
	srv := newWSServer(t, func(ctx context.Context, conn *websocket.Conn, n int32) {
		if n == 1 {
			_ = conn.Close(websocket.StatusInternalError, "restarting")
			return
		}
		holdOpen(ctx, conn)
	})
	closes := make(chan *CloseError, 1)
	c := newTestChannel(t, srv)
	c.SetHandlers(Handlers{OnClose: func(e *CloseError) { closes <- e }})
	require.NoError(t, c.Connect(context.Background()))
	recv(t, closes, 2*time.Second)

	errs := make(chan error, 2)
	for range 2 {
		go func() { errs <- c.Reconnect(context.Background()) }()
	}
	a, b := recv(t, errs, 2*time.Second), recv(t, errs, 2*time.Second)
	if a != nil {
		a, b = b, a
	}
	require.NoError(t, a)
	assert.ErrorIs(t, b, ErrBusy)
	assert.Equal(t, int32(2), srv.conns.Load())
}
