package game

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/party-client/internal/party"
	"github.com/DoyleJ11/party-client/internal/push"
)

// Push is the live channel. *push.Channel built with push.ContextGame
// satisfies it.
type Push interface {
	SetHandlers(push.Handlers)
	Connect(ctx context.Context) error
	Close()
}

type Config struct {
	SessionID string
	PlayerID  string
}

// Tracker keeps the in-game screen live. Progress pushes merge into the party
// controller; phase and completion pushes become wake-ups for the status poll.
type Tracker struct {
	cfg   Config
	push  Push
	party *party.Controller
	log   *zap.Logger

	wake  chan struct{}
	route push.Typed
}

func New(cfg Config, p Push, pc *party.Controller, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tracker{
		cfg:   cfg,
		push:  p,
		party: pc,
		log:   log.With(zap.String("session", cfg.SessionID)),
		wake:  make(chan struct{}, 1),
	}
	t.route = push.Typed{
		ProgressUpdate:   t.onProgress,
		PhaseTransition:  func(push.PhaseTransition) { t.nudge() },
		SessionStarted:   func(push.SessionStarted) { t.nudge() },
		SessionCompleted: func(push.SessionCompleted) { t.nudge() },
	}
	return t
}

// Wake fires after a push that may have moved the session on. Wake-ups that
// arrive before the last one is read collapse into one.
func (t *Tracker) Wake() <-chan struct{} { return t.wake }

// Run holds the game connection until ctx ends. Without a connection the game
// still works from polling, so dial failures are only logged.
func (t *Tracker) Run(ctx context.Context) error {
	if t.push == nil {
		<-ctx.Done()
		return nil
	}
	t.push.SetHandlers(push.Handlers{
		OnNotification: t.route.Handle,
		OnClose: func(e *push.CloseError) {
			t.log.Info("game push closed, polling only", zap.Int("code", e.Code), zap.Bool("fatal", e.Fatal))
			t.nudge()
		},
	})
	if err := t.push.Connect(ctx); err != nil && !errors.Is(err, push.ErrDisabled) && ctx.Err() == nil {
		t.log.Info("game push unavailable, polling only", zap.Error(err))
	}
	<-ctx.Done()
	t.push.Close()
	return nil
}

func (t *Tracker) onProgress(u push.ProgressUpdate) {
	t.party.UpdateFromPartyContext(u.PartyContext(t.cfg.SessionID, t.cfg.PlayerID))
}

func (t *Tracker) nudge() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}
