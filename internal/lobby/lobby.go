package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/party-client/internal/api"
	"github.com/DoyleJ11/party-client/internal/engine"
	"github.com/DoyleJ11/party-client/internal/party"
	"github.com/DoyleJ11/party-client/internal/poll"
	"github.com/DoyleJ11/party-client/internal/push"
	"github.com/DoyleJ11/party-client/internal/route"
	"github.com/DoyleJ11/party-client/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotHost     = errors.New("only the host can do that")
	ErrNoSnapshot  = errors.New("lobby has not loaded yet")
	ErrStopped     = errors.New("lobby stopped")
	ErrNoPush      = errors.New("live updates not configured")
	ErrCannotStart = errors.New("the lobby cannot start yet")
)

// errDone ends the errgroup when the lobby stops on its own.
var errDone = errors.New("lobby done")

// API is the REST surface the lobby uses. *api.Client satisfies it.
type API interface {
	SessionStatus(ctx context.Context, sessionID string) (types.SessionSnapshot, error)
	MarkReady(ctx context.Context, sessionID string) (types.ActionResult, error)
	LeaveSession(ctx context.Context, sessionID string) (types.ActionResult, error)
	StartSession(ctx context.Context, sessionID string) (types.ActionResult, error)
	AddAI(ctx context.Context, sessionID string) (types.ActionResult, error)
	PingSession(ctx context.Context, sessionID string) (types.ActionResult, error)
}

// Push is the live channel. *push.Channel satisfies it.
type Push interface {
	SetHandlers(push.Handlers)
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Close()
}

// Resumer opens the round for the phase the lobby redirected into.
type Resumer interface {
	Resume(ctx context.Context, snap types.SessionSnapshot) error
}

type Config struct {
	SessionID string
	PlayerID  string
	Interval  time.Duration        // poll interval, defaults to poll.LobbyInterval
	Party     *types.SessionConfig // optional, from the join or create response
}

type Deps struct {
	API     API
	Push    Push // optional
	Party   *party.Controller
	Nav     route.Navigator
	Resumer Resumer // optional; without it the lobby routes to the live-game screen
	Log     *zap.Logger
}

type Msg interface{ isLobbyMsg() }

type fetched struct {
	snap types.SessionSnapshot
	err  error
}

func (fetched) isLobbyMsg() {}

type notified struct{ n push.Notification }

func (notified) isLobbyMsg() {}

type pushState struct{ state push.State }

func (pushState) isLobbyMsg() {}

type pushClosed struct{ err *push.CloseError }

func (pushClosed) isLobbyMsg() {}

type actionFailed struct{ msg string }

func (actionFailed) isLobbyMsg() {}

// Watch registers Outbox for a view after every change, starting with the
// current one. Outbox must be buffered; a full outbox is closed and dropped.
type Watch struct {
	ID     string
	Outbox chan View
}

func (Watch) isLobbyMsg() {}

type Unwatch struct{ ID string }

func (Unwatch) isLobbyMsg() {}

type Reconnect struct {
	Reply chan error
}

func (Reconnect) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// View is what the waiting screen renders.
type View struct {
	Version    int
	Snapshot   *types.SessionSnapshot
	IsHost     bool
	Fill       engine.FillPlan
	Err        string // retryable banner
	Terminal   string // session is gone for this client
	PushState  push.State
	PushNotice string
	LastPing   *push.HostPing
	LastNotice string
	Redirect   engine.Destination
	Watchers   int
}

type Controller struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	inbox   chan Msg
	refresh chan struct{}
	done    chan struct{}
	final   View

	// owned by loop
	view     View
	watchers map[string]chan View
	route    push.Typed
}

func New(cfg Config, deps Deps) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = poll.LobbyInterval
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		cfg:      cfg,
		deps:     deps,
		log:      log.With(zap.String("session", cfg.SessionID)),
		inbox:    make(chan Msg, 64),
		refresh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		watchers: make(map[string]chan View),
	}
	c.route = push.Typed{
		ProgressUpdate: c.onProgress,
		HostPing:       c.onHostPing,
		SessionUpdate:  c.onSessionUpdate,
	}
	return c
}

func (c *Controller) SessionID() string { return c.cfg.SessionID }

// Run polls, listens and serves messages until the lobby redirects, the
// session becomes unreachable, Leave or Shutdown is called, or ctx ends.
// It returns nil when the lobby stopped on its own.
func (c *Controller) Run(ctx context.Context) error {
	c.enterParty()
	g, gctx := errgroup.WithContext(ctx)

	send := func(m Msg) {
		select {
		case c.inbox <- m:
		case <-gctx.Done():
		}
	}

	g.Go(func() error { return c.loop(gctx) })
	g.Go(func() error {
		_ = poll.Loop{Interval: c.cfg.Interval, Immediate: true, Tick: c.fetch}.Run(gctx)
		return nil
	})
	g.Go(func() error {
		c.refresher(gctx)
		return nil
	})
	if c.deps.Push != nil {
		c.deps.Push.SetHandlers(push.Handlers{
			OnNotification: func(n push.Notification) { send(notified{n}) },
			OnStateChange:  func(s push.State) { send(pushState{s}) },
			OnClose:        func(e *push.CloseError) { send(pushClosed{e}) },
		})
		g.Go(func() error {
			if err := c.deps.Push.Connect(gctx); err != nil && !errors.Is(err, push.ErrDisabled) && gctx.Err() == nil {
				c.log.Info("live updates unavailable, polling only", zap.Error(err))
			}
			return nil
		})
	}

	err := g.Wait()
	if c.deps.Push != nil {
		c.deps.Push.Close()
	}
	if errors.Is(err, errDone) {
		return nil
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (c *Controller) loop(ctx context.Context) error {
	defer c.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil

		case m := <-c.inbox:
			switch msg := m.(type) {
			case fetched:
				if c.applyFetch(ctx, msg) {
					return errDone
				}

			case notified:
				c.route.Handle(msg.n)
				c.requestRefresh()

			case pushState:
				c.view.PushState = msg.state
				if msg.state == push.StateOpen {
					c.view.PushNotice = ""
				}
				c.changed()

			case pushClosed:
				if msg.err.Fatal {
					c.view.Terminal = msg.err.Message()
					c.leaveParty()
					c.changed()
					return errDone
				}
				c.view.PushNotice = msg.err.Message()
				c.changed()

			case actionFailed:
				c.view.Err = msg.msg
				c.changed()

			case Watch:
				select {
				case msg.Outbox <- c.view:
					c.watchers[msg.ID] = msg.Outbox
				default:
					// no room for even the first view
					close(msg.Outbox)
				}
				c.view.Watchers = len(c.watchers)

			case Unwatch:
				if ch, ok := c.watchers[msg.ID]; ok {
					close(ch)
					delete(c.watchers, msg.ID)
				}
				c.view.Watchers = len(c.watchers)

			case Reconnect:
				if c.deps.Push == nil {
					msg.Reply <- ErrNoPush
					break
				}
				// dialing reports state changes back through the inbox
				go func() { msg.Reply <- c.deps.Push.Reconnect(ctx) }()

			case GetState:
				msg.Reply <- c.view

			case Shutdown:
				return errDone
			}
		}
	}
}

// applyFetch folds one status response into the view. Responses are applied in
// the order they complete and each one replaces the last. It reports whether
// the lobby is finished.
func (c *Controller) applyFetch(ctx context.Context, msg fetched) bool {
	if msg.err != nil {
		if api.IsCanceled(msg.err) {
			return false
		}
		if api.IsTerminal(msg.err) {
			c.log.Info("session unreachable", zap.Error(msg.err))
			c.view.Terminal = api.Message(msg.err)
			c.leaveParty()
			c.changed()
			return true
		}
		c.log.Warn("status fetch failed", zap.Error(msg.err))
		c.view.Err = api.Message(msg.err)
		c.changed()
		return false
	}

	snap := msg.snap
	c.view.Snapshot = &snap
	c.view.IsHost = engine.IsHost(snap, c.cfg.PlayerID)
	c.view.Fill = engine.PlanAutoFill(snap)
	c.view.Err = ""

	dest := engine.Redirect(snap)
	if dest == engine.Stay {
		c.changed()
		return false
	}
	c.view.Redirect = dest
	c.changed()
	c.redirect(ctx, dest, snap)
	return true
}

func (c *Controller) redirect(ctx context.Context, dest engine.Destination, snap types.SessionSnapshot) {
	c.log.Info("leaving lobby", zap.Stringer("to", dest), zap.String("phase", string(snap.Phase)))
	switch dest {
	case engine.Results:
		c.deps.Party.EndPartyMode()
		c.deps.Nav.Navigate(route.Results(c.cfg.SessionID), true)
	case engine.LiveGame:
		if c.deps.Resumer != nil {
			err := c.deps.Resumer.Resume(ctx, snap)
			if err == nil || api.IsCanceled(err) {
				return
			}
			c.log.Warn("resume failed, falling back to the game screen", zap.Error(err))
		}
		c.deps.Nav.Navigate(route.Game(c.cfg.SessionID), true)
	}
}

// enterParty puts the party controller into party mode for this session, so
// progress pushes merge from the moment the lobby opens. A party already
// running for this session keeps its step.
func (c *Controller) enterParty() {
	st := c.deps.Party.State()
	if st.IsPartyMode && st.SessionID == c.cfg.SessionID {
		return
	}
	if err := c.deps.Party.StartPartyMode(c.cfg.SessionID, engine.StepLobby, c.cfg.Party); err != nil {
		c.log.Warn("party mode not entered", zap.Error(err))
	}
}

// leaveParty ends party mode when the session is gone for this client.
func (c *Controller) leaveParty() {
	if c.deps.Party.State().SessionID == c.cfg.SessionID {
		c.deps.Party.EndPartyMode()
	}
}

func (c *Controller) onProgress(u push.ProgressUpdate) {
	c.deps.Party.UpdateFromPartyContext(u.PartyContext(c.cfg.SessionID, c.cfg.PlayerID))
}

func (c *Controller) onHostPing(p push.HostPing) {
	c.view.LastPing = &p
	c.changed()
}

func (c *Controller) onSessionUpdate(u push.SessionUpdate) {
	c.view.LastNotice = u.Message
	if c.view.LastNotice == "" {
		c.view.LastNotice = u.Reason
	}
	c.changed()
}

func (c *Controller) changed() {
	c.view.Version++
	c.broadcast(c.view)
}

func (c *Controller) broadcast(v View) {
	for id, ch := range c.watchers {
		select {
		case ch <- v:
		default:
			// slow watcher
			close(ch)
			delete(c.watchers, id)
		}
	}
	c.view.Watchers = len(c.watchers)
}

func (c *Controller) shutdown() {
	for id, ch := range c.watchers {
		close(ch)
		delete(c.watchers, id)
	}
	c.view.Watchers = 0
	c.final = c.view
	close(c.done)
}

func (c *Controller) fetch(ctx context.Context) {
	snap, err := c.deps.API.SessionStatus(ctx, c.cfg.SessionID)
	select {
	case c.inbox <- fetched{snap: snap, err: err}:
	case <-ctx.Done():
	}
}

// refresher runs push-triggered fetches. Triggers that arrive while a fetch
// is in flight collapse into one follow-up fetch.
func (c *Controller) refresher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.refresh:
			c.fetch(ctx)
		}
	}
}

func (c *Controller) requestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

// Refresh asks for an out-of-band status fetch.
func (c *Controller) Refresh() { c.requestRefresh() }

// Done is closed once the lobby has stopped.
func (c *Controller) Done() <-chan struct{} { return c.done }

// View returns the current view, or the final one after the lobby stopped.
func (c *Controller) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.send(ctx, GetState{Reply: reply}); err != nil {
		if errors.Is(err, ErrStopped) {
			return c.final, nil
		}
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return c.final, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (c *Controller) send(ctx context.Context, m Msg) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.inbox <- m:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inbox exposes the message queue for Watch, Unwatch and Shutdown.
func (c *Controller) Inbox() chan<- Msg { return c.inbox }

// ReconnectPush retries the live channel after a transient close.
func (c *Controller) ReconnectPush(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, Reconnect{Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
