package types

import "time"

// RoundType names one of the three timed rounds of a party.
type RoundType string

const (
	RoundPrompt RoundType = "prompt"
	RoundCopy   RoundType = "copy"
	RoundVote   RoundType = "vote"
)

// PlayerProgress counts one player's submissions across round types.
type PlayerProgress struct {
	PromptsSubmitted int `json:"prompts_submitted"`
	CopiesSubmitted  int `json:"copies_submitted"`
	VotesSubmitted   int `json:"votes_submitted"`
	PromptsRequired  int `json:"prompts_required,omitempty"`
	CopiesRequired   int `json:"copies_required,omitempty"`
	VotesRequired    int `json:"votes_required,omitempty"`
}

// SessionProgress counts how many players finished the current phase.
type SessionProgress struct {
	PlayersDoneWithPhase int `json:"players_done_with_phase"`
	TotalPlayers         int `json:"total_players"`
}

// PartyContext is the progress summary the server embeds in round and
// submission responses. Nil fields were not sent and must not overwrite.
type PartyContext struct {
	SessionID       string                    `json:"session_id,omitempty"`
	CurrentPhase    Phase                     `json:"current_phase,omitempty"`
	YourProgress    *PlayerProgress           `json:"your_progress,omitempty"`
	SessionProgress *SessionProgress          `json:"session_progress,omitempty"`
	Players         map[string]PlayerProgress `json:"players_progress,omitempty"`
}

type PromptRound struct {
	RoundID      string        `json:"round_id"`
	PromptText   string        `json:"prompt_text"`
	Cost         int           `json:"cost"`
	ExpiresAt    time.Time     `json:"expires_at"`
	PartyContext *PartyContext `json:"party_context,omitempty"`
}

type CopyRound struct {
	RoundID        string        `json:"round_id"`
	OriginalPhrase string        `json:"original_phrase"`
	Cost           int           `json:"cost"`
	DiscountActive bool          `json:"discount_active"`
	ExpiresAt      time.Time     `json:"expires_at"`
	PartyContext   *PartyContext `json:"party_context,omitempty"`
}

type VoteRound struct {
	RoundID      string        `json:"round_id"`
	PhrasesetID  string        `json:"phraseset_id"`
	PromptText   string        `json:"prompt_text,omitempty"`
	Phrases      []string      `json:"phrases"`
	ExpiresAt    time.Time     `json:"expires_at"`
	PartyContext *PartyContext `json:"party_context,omitempty"`
}

// SubmitRequest carries a phrase for prompt/copy rounds or a vote for vote rounds.
type SubmitRequest struct {
	Phrase      string `json:"phrase,omitempty"`
	PhrasesetID string `json:"phraseset_id,omitempty"`
	Vote        string `json:"vote,omitempty"`
}

type SubmitResult struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message,omitempty"`
	PartyContext *PartyContext `json:"party_context,omitempty"`
}

// JoinResult is returned by create, join and join-by-id.
type JoinResult struct {
	SessionID string           `json:"session_id"`
	PartyCode string           `json:"party_code"`
	Session   *SessionSnapshot `json:"session,omitempty"`
	Config    *SessionConfig   `json:"config,omitempty"`
}

// ActionResult is the small confirmation returned by host and participant actions.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type Ranking struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Rank     int    `json:"rank"`
	Score    int    `json:"score"`
	IsAI     bool   `json:"is_ai"`
}

type Award struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Metric   int    `json:"metric_value"`
}

type PhrasesetSummary struct {
	PhrasesetID    string `json:"phraseset_id"`
	PromptText     string `json:"prompt_text"`
	OriginalPhrase string `json:"original_phrase"`
	VoteCount      int    `json:"vote_count"`
}

type Results struct {
	SessionID  string             `json:"session_id"`
	PartyCode  string             `json:"party_code"`
	Rankings   []Ranking          `json:"rankings"`
	Awards     map[string]Award   `json:"awards"`
	Phrasesets []PhrasesetSummary `json:"phrasesets_summary"`
}
