package round

import (
	"context"
	"errors"
	"fmt"

	"github.com/DoyleJ11/party-client/internal/engine"
	"github.com/DoyleJ11/party-client/internal/party"
	"github.com/DoyleJ11/party-client/internal/route"
	"github.com/DoyleJ11/party-client/pkg/types"
	"go.uber.org/zap"
)

var (
	ErrNoSession        = errors.New("no party session to start a round in")
	ErrInvalidStep      = errors.New("step has no round")
	ErrNoActiveRound    = errors.New("no active round")
	ErrAlreadySubmitted = errors.New("submission already in progress")
)

// API is the subset of the REST client the starter needs.
type API interface {
	StartPromptRound(ctx context.Context, sessionID string) (types.PromptRound, error)
	StartCopyRound(ctx context.Context, sessionID string) (types.CopyRound, error)
	StartVoteRound(ctx context.Context, sessionID string) (types.VoteRound, error)
	SubmitRound(ctx context.Context, sessionID, roundID string, req types.SubmitRequest) (types.SubmitResult, error)
}

type StartOptions struct {
	SessionID   string               // overrides the current party session
	Config      *types.SessionConfig // captured into party state when set
	KeepHistory bool                 // push instead of replacing the history entry
}

// Starter starts rounds and commits the result into party and round state.
// Nothing is written until the start endpoint has succeeded.
type Starter struct {
	api    API
	party  *party.Controller
	rounds *Store
	nav    route.Navigator
	log    *zap.Logger
}

func NewStarter(api API, pc *party.Controller, rounds *Store, nav route.Navigator, log *zap.Logger) *Starter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Starter{api: api, party: pc, rounds: rounds, nav: nav, log: log}
}

func (s *Starter) StartRoundForPhase(ctx context.Context, step engine.Step, opts StartOptions) error {
	if step == engine.StepResults {
		s.EndSessionAndShowResults(opts.SessionID)
		return nil
	}
	rt, ok := step.RoundType()
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStep, step)
	}

	st := s.party.State()
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = st.SessionID
	}
	if sessionID == "" {
		return ErrNoSession
	}

	active, pc, err := s.start(ctx, rt, sessionID)
	if err != nil {
		return err
	}

	if st.IsPartyMode && st.SessionID != sessionID {
		s.log.Info("switching party session", zap.String("from", st.SessionID), zap.String("to", sessionID))
		s.party.EndPartyMode()
	}
	if err := s.party.StartPartyMode(sessionID, step, opts.Config); err != nil {
		return err
	}
	if pc != nil {
		s.party.UpdateFromPartyContext(*pc)
	}
	s.rounds.Set(active)

	s.log.Info("round started", zap.String("session", sessionID), zap.String("round", active.RoundID), zap.String("type", string(rt)))
	s.nav.Navigate(route.Round(step, sessionID), !opts.KeepHistory)
	return nil
}

func (s *Starter) start(ctx context.Context, rt types.RoundType, sessionID string) (Active, *types.PartyContext, error) {
	switch rt {
	case types.RoundPrompt:
		r, err := s.api.StartPromptRound(ctx, sessionID)
		if err != nil {
			return Active{}, nil, err
		}
		return Active{
			RoundID:   r.RoundID,
			Type:      rt,
			SessionID: sessionID,
			ExpiresAt: r.ExpiresAt,
			Prompt:    &PromptPayload{Text: r.PromptText, Cost: r.Cost},
		}, r.PartyContext, nil

	case types.RoundCopy:
		r, err := s.api.StartCopyRound(ctx, sessionID)
		if err != nil {
			return Active{}, nil, err
		}
		return Active{
			RoundID:   r.RoundID,
			Type:      rt,
			SessionID: sessionID,
			ExpiresAt: r.ExpiresAt,
			Copy:      &CopyPayload{OriginalPhrase: r.OriginalPhrase, Cost: r.Cost, DiscountActive: r.DiscountActive},
		}, r.PartyContext, nil

	case types.RoundVote:
		r, err := s.api.StartVoteRound(ctx, sessionID)
		if err != nil {
			return Active{}, nil, err
		}
		return Active{
			RoundID:   r.RoundID,
			Type:      rt,
			SessionID: sessionID,
			ExpiresAt: r.ExpiresAt,
			Vote:      &VotePayload{PhrasesetID: r.PhrasesetID, PromptText: r.PromptText, Phrases: r.Phrases},
		}, r.PartyContext, nil

	default:
		return Active{}, nil, fmt.Errorf("%w: %q", ErrInvalidStep, rt)
	}
}

// EndSessionAndShowResults leaves party mode and routes to the session's
// results, or to the party hub when no session is known.
func (s *Starter) EndSessionAndShowResults(sessionID string) {
	if sessionID == "" {
		sessionID = s.party.State().SessionID
	}
	s.party.EndPartyMode()
	s.rounds.Clear()
	if sessionID == "" {
		s.nav.Navigate(route.Hub, true)
		return
	}
	s.nav.Navigate(route.Results(sessionID), true)
}

// Resume is what the live-game route does on arrival: look at the server phase
// and open the matching round.
func (s *Starter) Resume(ctx context.Context, snap types.SessionSnapshot) error {
	if snap.Status == types.StatusCompleted {
		s.EndSessionAndShowResults(snap.SessionID)
		return nil
	}
	step, ok := engine.StepForPhase(snap.Phase)
	if !ok {
		s.nav.Navigate(route.Lobby(snap.SessionID), true)
		return nil
	}
	return s.StartRoundForPhase(ctx, step, StartOptions{SessionID: snap.SessionID})
}

// Submit posts the active round's answer. On success the round is cleared and
// any party context in the response is merged.
func (s *Starter) Submit(ctx context.Context, req types.SubmitRequest) (types.SubmitResult, error) {
	a, ok := s.rounds.Current()
	if !ok {
		return types.SubmitResult{}, ErrNoActiveRound
	}
	if !s.rounds.claim(a.RoundID) {
		return types.SubmitResult{}, ErrAlreadySubmitted
	}
	if a.Type == types.RoundVote && req.PhrasesetID == "" && a.Vote != nil {
		req.PhrasesetID = a.Vote.PhrasesetID
	}

	res, err := s.api.SubmitRound(ctx, a.SessionID, a.RoundID, req)
	s.rounds.settle(a.RoundID, err == nil)
	if err != nil {
		return types.SubmitResult{}, err
	}
	if res.PartyContext != nil {
		s.party.UpdateFromPartyContext(*res.PartyContext)
	}
	return res, nil
}
