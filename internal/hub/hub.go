package hub

import (
	"context"
	"errors"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/party-client/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

// Factory builds the lobby controller for a session. It is called on the hub
// goroutine and must not block.
type Factory func(sessionID string) (*lobby.Controller, error)

type Ensured struct {
	Lobby *lobby.Controller
	Err   error
}

type EnsureLobby struct {
	SessionID string
	Reply     chan Ensured
}

type GetLobby struct {
	SessionID string
	Reply     chan *lobby.Controller
}

type RemoveLobby struct {
	SessionID string
}

type ListLobbies struct {
	Reply chan []string
}

type ShutdownHub struct {
	Reply chan error // optional; receives the combined lobby errors
}

type lobbyExited struct {
	sessionID string
	entry     *entry
}

func (EnsureLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (RemoveLobby) isHubMsg() {}
func (ListLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}
func (lobbyExited) isHubMsg() {}

type entry struct {
	c      *lobby.Controller
	cancel context.CancelFunc
	exited chan struct{}
	err    error // valid after exited is closed
}

// Hub runs one lobby controller per watched session. Lobbies that stop on
// their own are dropped from the registry.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*entry
	factory Factory
	errs    error
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, factory Factory, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*entry),
		factory: factory,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed after shutdown, once every lobby has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureLobby:
				if e := h.lobbies[msg.SessionID]; e != nil {
					msg.Reply <- Ensured{Lobby: e.c}
					break
				}
				c, err := h.factory(msg.SessionID)
				if err != nil {
					msg.Reply <- Ensured{Err: err}
					break
				}
				h.lobbies[msg.SessionID] = h.start(msg.SessionID, c)
				msg.Reply <- Ensured{Lobby: c}

			case GetLobby:
				if e := h.lobbies[msg.SessionID]; e != nil {
					msg.Reply <- e.c
				} else {
					msg.Reply <- nil
				}

			case ListLobbies:
				ids := make([]string, 0, len(h.lobbies))
				for id := range h.lobbies {
					ids = append(ids, id)
				}
				msg.Reply <- ids

			case RemoveLobby:
				if e := h.lobbies[msg.SessionID]; e != nil {
					e.cancel()
					delete(h.lobbies, msg.SessionID)
				}

			case lobbyExited:
				// a lobby removed and re-ensured under the same id keeps its new entry
				if h.lobbies[msg.sessionID] == msg.entry {
					delete(h.lobbies, msg.sessionID)
				}
				h.collect(msg.sessionID, msg.entry.err)

			case ShutdownHub:
				h.shutdown()
				if msg.Reply != nil {
					msg.Reply <- h.errs
				}
				return
			}
		}
	}
}

func (h *Hub) start(sessionID string, c *lobby.Controller) *entry {
	ctx, cancel := context.WithCancel(h.ctx)
	e := &entry{c: c, cancel: cancel, exited: make(chan struct{})}
	go func() {
		e.err = c.Run(ctx)
		close(e.exited)
		select {
		case h.inbox <- lobbyExited{sessionID: sessionID, entry: e}:
		case <-h.ctx.Done():
		}
	}()
	h.log.Info("watching session", zap.String("session", sessionID))
	return e
}

func (h *Hub) collect(sessionID string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		h.log.Info("lobby stopped", zap.String("session", sessionID))
		return
	}
	h.log.Warn("lobby failed", zap.String("session", sessionID), zap.Error(err))
	h.errs = multierr.Append(h.errs, err)
}

func (h *Hub) shutdown() {
	h.cancel()
	for id, e := range h.lobbies {
		<-e.exited
		h.collect(id, e.err)
		delete(h.lobbies, id)
	}
}

// Ensure returns the lobby for sessionID, starting one if needed.
func (h *Hub) Ensure(ctx context.Context, sessionID string) (*lobby.Controller, error) {
	reply := make(chan Ensured, 1)
	select {
	case h.inbox <- EnsureLobby{SessionID: sessionID, Reply: reply}:
	case <-h.done:
		return nil, lobby.ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.Lobby, r.Err
	case <-h.done:
		return nil, lobby.ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops every lobby and returns their combined failures.
func (h *Hub) Shutdown(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case h.inbox <- ShutdownHub{Reply: reply}:
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
