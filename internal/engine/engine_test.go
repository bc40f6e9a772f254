package engine

import (
	"errors"
	"testing"

	"github.com/DoyleJ11/party-client/pkg/types"
)

func roster(humansReady, humansWaiting, ai int) []types.Participant {
	var out []types.Participant
	for i := 0; i < humansReady; i++ {
		out = append(out, types.Participant{ID: "r" + string(rune('a'+i)), Status: types.Ready})
	}
	for i := 0; i < humansWaiting; i++ {
		out = append(out, types.Participant{ID: "w" + string(rune('a'+i)), Status: types.NotReady})
	}
	for i := 0; i < ai; i++ {
		out = append(out, types.Participant{ID: "ai" + string(rune('a'+i)), IsAI: true, Status: types.Ready})
	}
	return out
}

func TestNext(t *testing.T) {
	cases := []struct {
		name    string
		done    types.RoundType
		want    Step
		wantErr error
	}{
		{name: "prompt leads to copy", done: types.RoundPrompt, want: StepCopy},
		{name: "copy leads to vote", done: types.RoundCopy, want: StepVote},
		{name: "vote leads to results", done: types.RoundVote, want: StepResults},
		{name: "unknown round", done: "lightning", wantErr: ErrUnknownRound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Next(tc.done)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want err %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tc.want {
				t.Fatalf("want %s, got %s", tc.want, got)
			}
		})
	}
}

func TestStepMappings(t *testing.T) {
	if _, ok := StepForPhase(types.PhaseLobby); ok {
		t.Fatalf("lobby must not map to a step")
	}
	if s, _ := StepForPhase(types.PhaseVote); s != StepVote {
		t.Fatalf("VOTE should map to vote, got %q", s)
	}
	if _, ok := StepResults.RoundType(); ok {
		t.Fatalf("results has no round to start")
	}
	if rt, _ := StepCopy.RoundType(); rt != types.RoundCopy {
		t.Fatalf("copy step should start a copy round, got %q", rt)
	}
	if Step("lobby").Valid() {
		t.Fatalf("lobby is not a valid step")
	}
}

func TestRedirect(t *testing.T) {
	cases := []struct {
		name string
		snap types.SessionSnapshot
		want Destination
	}{
		{name: "open lobby stays", snap: types.SessionSnapshot{Phase: types.PhaseLobby, Status: types.StatusOpen}, want: Stay},
		{name: "in progress goes to game", snap: types.SessionSnapshot{Phase: types.PhaseLobby, Status: types.StatusInProgress}, want: LiveGame},
		{name: "prompt phase goes to game", snap: types.SessionSnapshot{Phase: types.PhasePrompt, Status: types.StatusOpen}, want: LiveGame},
		{name: "results phase goes to results", snap: types.SessionSnapshot{Phase: types.PhaseResults, Status: types.StatusInProgress}, want: Results},
		{name: "completed goes to results", snap: types.SessionSnapshot{Phase: types.PhaseVote, Status: types.StatusCompleted}, want: Results},
		{name: "missing phase stays", snap: types.SessionSnapshot{Status: types.StatusOpen}, want: Stay},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Redirect(tc.snap); got != tc.want {
				t.Fatalf("want %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIsHost(t *testing.T) {
	snap := types.SessionSnapshot{Participants: []types.Participant{
		{ID: "part-1", PlayerID: "player-1", IsHost: true},
		{ID: "part-2", PlayerID: "player-2"},
	}}

	if !IsHost(snap, "player-1") {
		t.Fatalf("player-1 holds the host flag")
	}
	if IsHost(snap, "player-2") {
		t.Fatalf("player-2 is not host")
	}
	if IsHost(snap, "") {
		t.Fatalf("empty id is never host")
	}
}

func TestPlanAutoFill(t *testing.T) {
	cases := []struct {
		name      string
		snap      types.SessionSnapshot
		wantAdd   int
		wantStart bool
	}{
		{
			name:      "four ready humans, min six",
			snap:      types.SessionSnapshot{Participants: roster(4, 0, 0), MinPlayers: 6, MaxPlayers: 8},
			wantAdd:   2,
			wantStart: true,
		},
		{
			name:      "existing AI counts toward minimum",
			snap:      types.SessionSnapshot{Participants: roster(3, 0, 2), MinPlayers: 6, MaxPlayers: 8},
			wantAdd:   1,
			wantStart: true,
		},
		{
			name:      "not everyone ready, no filler",
			snap:      types.SessionSnapshot{Participants: roster(3, 1, 0), MinPlayers: 6, MaxPlayers: 8},
			wantAdd:   0,
			wantStart: false,
		},
		{
			name:      "already at minimum",
			snap:      types.SessionSnapshot{Participants: roster(6, 0, 0), MinPlayers: 6, MaxPlayers: 8},
			wantAdd:   0,
			wantStart: true,
		},
		{
			name:      "filler capped by maximum",
			snap:      types.SessionSnapshot{Participants: roster(3, 0, 0), MinPlayers: 6, MaxPlayers: 4},
			wantAdd:   1,
			wantStart: false,
		},
		{
			name:      "empty lobby",
			snap:      types.SessionSnapshot{MinPlayers: 3},
			wantAdd:   0,
			wantStart: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := PlanAutoFill(tc.snap)
			if plan.AIToAdd != tc.wantAdd {
				t.Fatalf("want %d AI to add, got %d (%+v)", tc.wantAdd, plan.AIToAdd, plan)
			}
			if plan.CanStart() != tc.wantStart {
				t.Fatalf("want CanStart=%v, got %v (%+v)", tc.wantStart, plan.CanStart(), plan)
			}
		})
	}
}
