package engine

import (
	"errors"
	"slices"

	"github.com/DoyleJ11/party-client/pkg/types"
)

var ErrUnknownRound = errors.New("unknown round type")
var ErrNoNextRound = errors.New("results is the last step")

// Step is the client's mirror of the server phase, used to route round pages.
// StepLobby is the step of a joined party before its first round; it is not
// part of RoundOrder.
type Step string

const (
	StepLobby   Step = "lobby"
	StepPrompt  Step = "prompt"
	StepCopy    Step = "copy"
	StepVote    Step = "vote"
	StepResults Step = "results"
)

func (s Step) Valid() bool {
	return slices.Contains(RoundOrder, s)
}

// RoundType is the round started when entering s. Results has none.
func (s Step) RoundType() (types.RoundType, bool) {
	switch s {
	case StepPrompt:
		return types.RoundPrompt, true
	case StepCopy:
		return types.RoundCopy, true
	case StepVote:
		return types.RoundVote, true
	default:
		return "", false
	}
}

func StepForRound(rt types.RoundType) (Step, bool) {
	switch rt {
	case types.RoundPrompt:
		return StepPrompt, true
	case types.RoundCopy:
		return StepCopy, true
	case types.RoundVote:
		return StepVote, true
	default:
		return "", false
	}
}

// StepForPhase maps a server phase onto a step. LOBBY has no step.
func StepForPhase(p types.Phase) (Step, bool) {
	switch p {
	case types.PhasePrompt:
		return StepPrompt, true
	case types.PhaseCopy:
		return StepCopy, true
	case types.PhaseVote:
		return StepVote, true
	case types.PhaseResults:
		return StepResults, true
	default:
		return "", false
	}
}

// Next returns the step that follows a finished round.
func Next(completed types.RoundType) (Step, error) {
	cur, ok := StepForRound(completed)
	if !ok {
		return "", ErrUnknownRound
	}
	i := slices.Index(RoundOrder, cur)
	if i+1 >= len(RoundOrder) {
		return "", ErrNoNextRound
	}
	return RoundOrder[i+1], nil
}

type Destination int

const (
	Stay Destination = iota
	LiveGame
	Results
)

func (d Destination) String() string {
	switch d {
	case LiveGame:
		return "game"
	case Results:
		return "results"
	default:
		return "stay"
	}
}

// Redirect decides where a lobby screen should go for a snapshot. Results wins
// over the live game when both apply.
func Redirect(s types.SessionSnapshot) Destination {
	if s.Phase == types.PhaseResults || s.Status == types.StatusCompleted {
		return Results
	}
	if s.Status == types.StatusInProgress || (s.Phase != "" && s.Phase != types.PhaseLobby) {
		return LiveGame
	}
	return Stay
}
