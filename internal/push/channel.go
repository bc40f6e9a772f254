package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PageContext tells the server which screen the connection serves.
type PageContext string

const (
	ContextLobby PageContext = "lobby"
	ContextGame  PageContext = "game"
	ContextOther PageContext = "other"
)

type Config struct {
	BaseURL   string // ws:// or wss:// root of the push service
	SessionID string
	Token     string
	Context   PageContext
}

const maxFrameSize = 1 << 20

// Channel owns one connection for one session. It never reconnects on its own;
// after a close the caller decides whether to call Reconnect.
type Channel struct {
	cfg Config
	log *zap.Logger

	mu       sync.Mutex
	state    State
	err      error
	handlers Handlers
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(cfg Config, log *zap.Logger) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Context == "" {
		cfg.Context = ContextOther
	}
	return &Channel{cfg: cfg, log: log.With(zap.String("session", cfg.SessionID))}
}

// Enabled reports whether the caller is authenticated and a session is known.
func (c *Channel) Enabled() bool {
	return c.cfg.Token != "" && c.cfg.SessionID != ""
}

func (c *Channel) SetHandlers(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Connected() bool  { return c.State() == StateOpen }
func (c *Channel) Connecting() bool { return c.State() == StateConnecting }

// Err returns the error behind the last close, a *CloseError for server or
// network closes. It is nil while connected and after a local Close.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Connect dials from the idle state. ctx bounds the whole connection, not just
// the dial: cancelling it tears the connection down.
func (c *Channel) Connect(ctx context.Context) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	return c.open(ctx, func(s State, _ error) error {
		if s != StateIdle {
			return ErrBusy
		}
		return nil
	})
}

// Reconnect is the only way out of the closed and errored states. Fatal
// closes cannot be reconnected.
func (c *Channel) Reconnect(ctx context.Context) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	return c.open(ctx, func(s State, last error) error {
		switch s {
		case StateIdle:
			return ErrIdle
		case StateConnecting, StateOpen:
			return ErrBusy
		}
		if errors.Is(last, ErrTerminal) {
			return last
		}
		return nil
	})
}

// Close tears the connection down and waits for the reader to exit. It must
// not be called from inside a handler.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Channel) endpoint() (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/party/" + url.PathEscape(c.cfg.SessionID) + "/ws")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	q.Set("context", string(c.cfg.Context))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// open checks the current state with allow and moves to connecting under the
// same lock, so concurrent callers cannot both dial.
func (c *Channel) open(parent context.Context, allow func(State, error) error) error {
	target, err := c.endpoint()
	if err != nil {
		return fmt.Errorf("push endpoint: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	c.mu.Lock()
	if err := allow(c.state, c.err); err != nil {
		c.mu.Unlock()
		cancel()
		return err
	}
	if c.cancel != nil {
		// the previous reader has already failed; make sure it is gone
		c.cancel()
	}
	c.cancel, c.done = cancel, done
	c.state, c.err = StateConnecting, nil
	onState := c.handlers.OnStateChange
	c.mu.Unlock()
	if onState != nil {
		onState(StateConnecting)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		close(done)
		if ctx.Err() != nil {
			c.setState(StateClosed, nil)
			return ctx.Err()
		}
		cerr := &CloseError{Code: StatusAbnormal, Reason: err.Error()}
		c.log.Info("push dial failed", zap.Error(err))
		c.setState(StateErrored, cerr)
		c.notifyClose(cerr)
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	conn.SetReadLimit(maxFrameSize)

	c.setState(StateOpen, nil)
	c.log.Info("push connected", zap.String("context", string(c.cfg.Context)))
	go c.readLoop(ctx, conn, done)
	return nil
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer conn.CloseNow()

	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			c.readFailed(ctx, err)
			return
		}

		n, err := Decode(frame)
		if err != nil {
			c.log.Warn("dropping malformed push message", zap.Error(err))
			continue
		}
		if u, ok := n.(Unrecognized); ok {
			c.log.Warn("dropping unknown push message", zap.String("type", u.Type))
			continue
		}
		c.log.Debug("push message", zap.String("type", n.Envelope().Type))

		c.mu.Lock()
		h := c.handlers.OnNotification
		c.mu.Unlock()
		if h != nil {
			h(n)
		}
	}
}

func (c *Channel) readFailed(ctx context.Context, err error) {
	if ctx.Err() != nil {
		c.setState(StateClosed, nil)
		return
	}

	var cerr *CloseError
	if code := websocket.CloseStatus(err); code != -1 {
		var wsErr websocket.CloseError
		reason := ""
		if errors.As(err, &wsErr) {
			reason = wsErr.Reason
		}
		cerr = newCloseError(int(code), reason)
	} else {
		cerr = &CloseError{Code: StatusAbnormal, Reason: err.Error()}
	}

	if cerr.Fatal {
		c.log.Info("push closed for session", zap.Int("code", cerr.Code), zap.String("reason", cerr.Reason))
		c.setState(StateErrored, cerr)
	} else if cerr.Code == StatusAbnormal {
		c.log.Info("push connection lost", zap.Error(err))
		c.setState(StateErrored, cerr)
	} else {
		c.log.Info("push closed", zap.Int("code", cerr.Code))
		c.setState(StateClosed, cerr)
	}
	c.notifyClose(cerr)
}

func (c *Channel) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.err = err
	h := c.handlers.OnStateChange
	c.mu.Unlock()
	if h != nil {
		h(s)
	}
}

func (c *Channel) notifyClose(cerr *CloseError) {
	c.mu.Lock()
	h := c.handlers.OnClose
	c.mu.Unlock()
	if h != nil {
		h(cerr)
	}
}
