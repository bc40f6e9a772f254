package lobby

import (
	"context"
	"fmt"

	"github.com/DoyleJ11/party-client/internal/api"
	"github.com/DoyleJ11/party-client/internal/engine"
	"github.com/DoyleJ11/party-client/internal/route"
	"github.com/DoyleJ11/party-client/pkg/types"
	"go.uber.org/zap"
)

// StartMatch is the host's start button. It fetches a fresh snapshot, tops the
// roster up with AI players when every human is ready, then starts the session.
// A roster that cannot start is refused with ErrCannotStart before any call.
func (c *Controller) StartMatch(ctx context.Context) error {
	snap, err := c.deps.API.SessionStatus(ctx, c.cfg.SessionID)
	_ = c.send(ctx, fetched{snap: snap, err: err})
	if err != nil {
		return err
	}
	if !engine.IsHost(snap, c.cfg.PlayerID) {
		return ErrNotHost
	}

	plan := engine.PlanAutoFill(snap)
	if !plan.CanStart() {
		msg := cannotStartMessage(plan)
		c.log.Info("start refused", zap.String("reason", msg))
		_ = c.send(ctx, actionFailed{msg: msg})
		return ErrCannotStart
	}
	for i := 0; i < plan.AIToAdd; i++ {
		if _, err := c.deps.API.AddAI(ctx, c.cfg.SessionID); err != nil {
			return c.failed(ctx, "add ai", err)
		}
	}
	if plan.AIToAdd > 0 {
		c.log.Info("filled lobby with AI", zap.Int("added", plan.AIToAdd), zap.Int("min", plan.MinPlayers))
	}

	if _, err := c.deps.API.StartSession(ctx, c.cfg.SessionID); err != nil {
		return c.failed(ctx, "start", err)
	}
	c.log.Info("match started")
	c.requestRefresh()
	return nil
}

func cannotStartMessage(p engine.FillPlan) string {
	switch {
	case !p.AllHumansReady:
		return fmt.Sprintf("Waiting for players to ready up (%d of %d ready).", p.HumansReady, p.HumansTotal)
	case p.MaxPlayers > 0 && p.Total+p.AIToAdd > p.MaxPlayers:
		return fmt.Sprintf("Too many players to start (max %d).", p.MaxPlayers)
	default:
		return fmt.Sprintf("Need at least %d players to start.", p.MinPlayers)
	}
}

func (c *Controller) AddAI(ctx context.Context) error {
	if err := c.requireHost(ctx); err != nil {
		return err
	}
	if _, err := c.deps.API.AddAI(ctx, c.cfg.SessionID); err != nil {
		return c.failed(ctx, "add ai", err)
	}
	c.requestRefresh()
	return nil
}

// Ping nudges idle participants.
func (c *Controller) Ping(ctx context.Context) (types.ActionResult, error) {
	if err := c.requireHost(ctx); err != nil {
		return types.ActionResult{}, err
	}
	res, err := c.deps.API.PingSession(ctx, c.cfg.SessionID)
	if err != nil {
		return types.ActionResult{}, c.failed(ctx, "ping", err)
	}
	return res, nil
}

func (c *Controller) MarkReady(ctx context.Context) error {
	if _, err := c.deps.API.MarkReady(ctx, c.cfg.SessionID); err != nil {
		return c.failed(ctx, "ready", err)
	}
	c.requestRefresh()
	return nil
}

// Leave exits the session and returns to the party hub. A session that is
// already gone counts as left.
func (c *Controller) Leave(ctx context.Context) error {
	if _, err := c.deps.API.LeaveSession(ctx, c.cfg.SessionID); err != nil && !api.IsTerminal(err) {
		return c.failed(ctx, "leave", err)
	}
	c.deps.Party.EndPartyMode()
	c.deps.Nav.Navigate(route.Hub, true)
	_ = c.send(ctx, Shutdown{})
	return nil
}

func (c *Controller) requireHost(ctx context.Context) error {
	v, err := c.View(ctx)
	if err != nil {
		return err
	}
	if v.Snapshot == nil {
		return ErrNoSnapshot
	}
	if !v.IsHost {
		return ErrNotHost
	}
	return nil
}

// failed shows a banner for a rejected action and hands the error back.
func (c *Controller) failed(ctx context.Context, action string, err error) error {
	if api.IsCanceled(err) {
		return err
	}
	c.log.Warn("lobby action failed", zap.String("action", action), zap.Error(err))
	_ = c.send(ctx, actionFailed{msg: api.Message(err)})
	return err
}
