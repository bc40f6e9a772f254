package types

import "time"

// Phase is the server-authoritative stage of a party session.
type Phase string

const (
	PhaseLobby   Phase = "LOBBY"
	PhasePrompt  Phase = "PROMPT"
	PhaseCopy    Phase = "COPY"
	PhaseVote    Phase = "VOTE"
	PhaseResults Phase = "RESULTS"
)

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

type Readiness string

const (
	Ready    Readiness = "READY"
	NotReady Readiness = "NOT_READY"
)

type Participant struct {
	ID       string    `json:"participant_id"`
	PlayerID string    `json:"player_id,omitempty"`
	Username string    `json:"username"`
	IsHost   bool      `json:"is_host"`
	IsAI     bool      `json:"is_ai"`
	Status   Readiness `json:"status"`
	JoinedAt time.Time `json:"joined_at,omitzero"`
}

// Identity returns the id used to match a participant against the local player.
// Servers that separate participant rows from player accounts send both.
func (p Participant) Identity() string {
	if p.PlayerID != "" {
		return p.PlayerID
	}
	return p.ID
}

// SessionSnapshot is replaced wholesale on every successful status fetch.
// Nothing on the client mutates one in place.
type SessionSnapshot struct {
	SessionID    string        `json:"session_id"`
	PartyCode    string        `json:"party_code"`
	Phase        Phase         `json:"current_phase"`
	Status       Status        `json:"status"`
	Participants []Participant `json:"participants"`
	MinPlayers   int           `json:"min_players"`
	MaxPlayers   int           `json:"max_players"`
	HostPlayerID string        `json:"host_player_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at,omitzero"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
}

// SessionConfig holds the cost and scoring parameters captured when a party starts.
type SessionConfig struct {
	PromptCost       int `json:"prompt_cost"`
	CopyCost         int `json:"copy_cost"`
	VoteCost         int `json:"vote_cost"`
	VotePayout       int `json:"vote_payout_correct"`
	PromptsPerPlayer int `json:"prompts_per_player"`
	CopiesPerPlayer  int `json:"copies_per_player"`
	VotesPerPlayer   int `json:"votes_per_player"`
}
