package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/party-client/internal/api"
	"github.com/DoyleJ11/party-client/internal/game"
	"github.com/DoyleJ11/party-client/internal/poll"
	"github.com/DoyleJ11/party-client/internal/push"
	"github.com/DoyleJ11/party-client/internal/round"
	"github.com/DoyleJ11/party-client/internal/route"
	"github.com/DoyleJ11/party-client/pkg/types"
)

var placeholderPhrases = []string{"WOBBLY HAT", "QUIET THUNDER", "PAPER MOON", "LOUD LIBRARY"}

// play answers rounds until the party ends, then prints the standings.
func (a *app) play(ctx context.Context, s *session, pr *printer) error {
	if s == nil {
		return nil
	}
	if _, ok := s.rounds.Current(); !ok {
		switch {
		case s.nav.Current() == route.Results(s.id):
			return a.showResults(ctx, s, pr)
		case !s.party.State().IsPartyMode || s.nav.Current() == route.Lobby(s.id):
			// the lobby closed without the game starting
			return nil
		}
	}
	log := a.log.With(zap.String("session", s.id))
	turn := 0

	gctx, stop := context.WithCancel(ctx)
	tracker := game.New(game.Config{SessionID: s.id, PlayerID: a.cfg.PlayerID}, push.New(push.Config{
		BaseURL:   a.cfg.PushURL(),
		SessionID: s.id,
		Token:     a.cfg.Token,
		Context:   push.ContextGame,
	}, log.Named("push")), s.party, log.Named("game"))
	tracked := make(chan struct{})
	go func() {
		defer close(tracked)
		_ = tracker.Run(gctx)
	}()
	defer func() {
		stop()
		<-tracked
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		active, ok := s.rounds.Current()
		if !ok {
			if !s.party.State().IsPartyMode {
				return a.showResults(ctx, s, pr)
			}
			if err := a.waitForRound(ctx, s, tracker.Wake()); err != nil {
				return err
			}
			continue
		}

		req := answer(active, turn)
		turn++
		if _, err := s.starter.Submit(ctx, req); err != nil {
			if errors.Is(err, round.ErrAlreadySubmitted) {
				continue
			}
			return fmt.Errorf("submit %s round: %w", active.Type, err)
		}
		pr.line(s.id, "submitted %s round", active.Type)

		if err := s.coord.TransitionToNextRound(ctx, active.Type); err != nil {
			// other players are still on this phase
			log.Debug("next round not open yet", zap.String("reason", s.coord.Err()))
			s.coord.ClearError()
		}
	}
}

// waitForRound polls the session until the phase has a round for us to open,
// or the party has finished. A receive on wake polls right away.
func (a *app) waitForRound(ctx context.Context, s *session, wake <-chan struct{}) error {
	wctx, stop := context.WithCancel(ctx)
	defer stop()
	var failure error

	err := poll.Loop{
		Interval:  a.cfg.GamePoll,
		Immediate: true,
		Wake:      wake,
		Tick: func(ctx context.Context) {
			snap, err := a.api.SessionStatus(ctx, s.id)
			switch {
			case api.IsCanceled(err):
				return
			case api.IsTerminal(err):
				failure = err
				stop()
				return
			case err != nil:
				a.log.Warn("session status", zap.String("session", s.id), zap.Error(err))
				return
			}
			if err := s.starter.Resume(ctx, snap); err != nil {
				if !api.IsCanceled(err) {
					a.log.Debug("round not available", zap.String("session", s.id), zap.String("reason", api.Message(err)))
				}
				return
			}
			if _, ok := s.rounds.Current(); ok || !s.party.State().IsPartyMode {
				stop()
			}
		},
	}.Run(wctx)

	if failure != nil {
		return failure
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func answer(active round.Active, turn int) types.SubmitRequest {
	switch active.Type {
	case types.RoundCopy:
		if active.Copy != nil && active.Copy.OriginalPhrase != "" {
			return types.SubmitRequest{Phrase: "NOT " + active.Copy.OriginalPhrase}
		}
	case types.RoundVote:
		if active.Vote != nil && len(active.Vote.Phrases) > 0 {
			return types.SubmitRequest{Vote: active.Vote.Phrases[turn%len(active.Vote.Phrases)]}
		}
	}
	return types.SubmitRequest{Phrase: placeholderPhrases[turn%len(placeholderPhrases)]}
}

func (a *app) showResults(ctx context.Context, s *session, pr *printer) error {
	res, err := a.api.SessionResults(ctx, s.id)
	if err != nil {
		return fmt.Errorf("results: %w", err)
	}
	pr.line(s.id, "final standings for party %s", res.PartyCode)
	for _, r := range res.Rankings {
		who := r.Username
		if r.IsAI {
			who += " (AI)"
		}
		pr.line(s.id, "  #%d %-16s %d", r.Rank, who, r.Score)
	}
	return nil
}
