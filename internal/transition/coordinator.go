package transition

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/DoyleJ11/party-client/internal/api"
	"github.com/DoyleJ11/party-client/internal/engine"
	"github.com/DoyleJ11/party-client/internal/party"
	"github.com/DoyleJ11/party-client/internal/round"
	"github.com/DoyleJ11/party-client/pkg/types"
	"go.uber.org/zap"
)

// Starter is satisfied by *round.Starter.
type Starter interface {
	StartRoundForPhase(ctx context.Context, step engine.Step, opts round.StartOptions) error
	EndSessionAndShowResults(sessionID string)
}

// Coordinator moves a party from a finished round to the next one. At most one
// transition runs at a time; extra calls are dropped with a warning.
type Coordinator struct {
	party   *party.Controller
	starter Starter
	log     *zap.Logger

	busy atomic.Bool

	mu  sync.Mutex
	err string
}

func New(pc *party.Controller, starter Starter, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{party: pc, starter: starter, log: log}
}

// TransitionToNextRound is called after a round of type done was submitted.
// Guard misses return nil. Start failures are stored for Err and returned.
func (c *Coordinator) TransitionToNextRound(ctx context.Context, done types.RoundType) error {
	st := c.party.State()
	if !st.IsPartyMode || st.SessionID == "" {
		c.log.Warn("transition outside party mode", zap.String("completed", string(done)))
		return nil
	}
	if !c.busy.CompareAndSwap(false, true) {
		c.log.Warn("transition already in progress", zap.String("completed", string(done)))
		return nil
	}
	defer c.busy.Store(false)

	next, err := engine.Next(done)
	if err != nil {
		c.setErr(api.Message(err))
		return err
	}
	log := c.log.With(zap.String("session", st.SessionID), zap.String("from", string(done)), zap.String("to", string(next)))

	if next == engine.StepResults {
		log.Info("party complete")
		c.starter.EndSessionAndShowResults(st.SessionID)
		c.setErr("")
		return nil
	}

	if err := c.starter.StartRoundForPhase(ctx, next, round.StartOptions{SessionID: st.SessionID}); err != nil {
		if api.IsCanceled(err) {
			return err
		}
		log.Warn("next round failed", zap.Error(err))
		c.setErr(api.Message(err))
		return err
	}
	log.Info("next round started")
	c.setErr("")
	return nil
}

func (c *Coordinator) IsTransitioning() bool { return c.busy.Load() }

// Err is the message from the last failed transition, or "".
func (c *Coordinator) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Coordinator) ClearError() { c.setErr("") }

func (c *Coordinator) setErr(msg string) {
	c.mu.Lock()
	c.err = msg
	c.mu.Unlock()
}
