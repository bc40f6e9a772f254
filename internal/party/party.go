package party

import (
	"errors"
	"maps"
	"sync"

	"github.com/DoyleJ11/party-client/internal/engine"
	"github.com/DoyleJ11/party-client/pkg/types"
	"go.uber.org/zap"
)

var ErrOtherSession = errors.New("already in party mode for another session")
var ErrNoSession = errors.New("session id required")

// Progress is the merged "how far along are we" summary sent by the server.
type Progress struct {
	Phase   types.Phase
	You     *types.PlayerProgress
	Session *types.SessionProgress
	Players map[string]types.PlayerProgress
}

// State is a copy of the controller's record. CurrentStep is only meaningful
// while IsPartyMode is true; use Step to read it safely.
type State struct {
	IsPartyMode bool
	SessionID   string
	CurrentStep engine.Step
	Config      types.SessionConfig
	Progress    Progress
}

func (s State) Step() (engine.Step, bool) {
	if !s.IsPartyMode {
		return "", false
	}
	return s.CurrentStep, true
}

// Controller owns party phase state for one client. Every mutation goes through
// its methods; readers get copies.
type Controller struct {
	mu   sync.RWMutex
	st   State
	subs []func(State)
	log  *zap.Logger
}

func NewController(log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{log: log}
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st.clone()
}

// Subscribe registers fn to receive a copy of the state after each change.
// Callbacks run synchronously on the mutating goroutine.
func (c *Controller) Subscribe(fn func(State)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// StartPartyMode enters party mode. Calling it again for the same session only
// updates the step and config. A different active session is rejected; end it
// first to switch.
func (c *Controller) StartPartyMode(sessionID string, step engine.Step, cfg *types.SessionConfig) error {
	if sessionID == "" {
		return ErrNoSession
	}
	c.mu.Lock()
	if c.st.IsPartyMode && c.st.SessionID != sessionID {
		current := c.st.SessionID
		c.mu.Unlock()
		c.log.Warn("start party mode rejected", zap.String("session", sessionID), zap.String("active", current))
		return ErrOtherSession
	}
	if !c.st.IsPartyMode {
		c.st = State{IsPartyMode: true, SessionID: sessionID}
	}
	c.st.CurrentStep = step
	if cfg != nil {
		c.st.Config = *cfg
	}
	c.mu.Unlock()

	c.log.Info("party mode", zap.String("session", sessionID), zap.String("step", string(step)))
	c.notify()
	return nil
}

// SetCurrentStep assigns the step. The server is trusted; nothing is validated.
func (c *Controller) SetCurrentStep(step engine.Step) {
	c.mu.Lock()
	if c.st.CurrentStep == step {
		c.mu.Unlock()
		return
	}
	c.st.CurrentStep = step
	c.mu.Unlock()
	c.notify()
}

// UpdateFromPartyContext shallow-merges a server progress summary. Present
// fields replace what is stored; absent ones are kept. Counts are never added.
func (c *Controller) UpdateFromPartyContext(pc types.PartyContext) {
	c.mu.Lock()
	if !c.st.IsPartyMode || (pc.SessionID != "" && pc.SessionID != c.st.SessionID) {
		c.mu.Unlock()
		c.log.Debug("ignoring party context", zap.String("session", pc.SessionID))
		return
	}
	p := &c.st.Progress
	if pc.CurrentPhase != "" {
		p.Phase = pc.CurrentPhase
	}
	if pc.YourProgress != nil {
		you := *pc.YourProgress
		p.You = &you
	}
	if pc.SessionProgress != nil {
		sp := *pc.SessionProgress
		p.Session = &sp
	}
	if len(pc.Players) > 0 {
		if p.Players == nil {
			p.Players = make(map[string]types.PlayerProgress, len(pc.Players))
		}
		maps.Copy(p.Players, pc.Players)
	}
	c.mu.Unlock()
	c.notify()
}

// EndPartyMode clears the session. Active round state has its own owner and is
// left alone.
func (c *Controller) EndPartyMode() {
	c.mu.Lock()
	if !c.st.IsPartyMode && c.st.SessionID == "" {
		c.mu.Unlock()
		return
	}
	ended := c.st.SessionID
	c.st = State{}
	c.mu.Unlock()

	c.log.Info("party mode ended", zap.String("session", ended))
	c.notify()
}

func (c *Controller) notify() {
	c.mu.RLock()
	subs := c.subs
	st := c.st.clone()
	c.mu.RUnlock()
	for _, fn := range subs {
		fn(st)
	}
}

func (s State) clone() State {
	out := s
	if s.Progress.You != nil {
		you := *s.Progress.You
		out.Progress.You = &you
	}
	if s.Progress.Session != nil {
		sp := *s.Progress.Session
		out.Progress.Session = &sp
	}
	out.Progress.Players = maps.Clone(s.Progress.Players)
	return out
}
