package push

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DoyleJ11/party-client/pkg/types"
)

// Notification is one decoded push message. The set of implementations is
// closed; anything the decoder does not know becomes Unrecognized.
type Notification interface {
	Envelope() Meta
	isNotification()
}

// Meta is the envelope shared by every message.
type Meta struct {
	Type      string    `json:"-"`
	SessionID string    `json:"-"`
	Timestamp time.Time `json:"-"`
}

func (m Meta) Envelope() Meta { return m }

type PhaseTransition struct {
	Meta
	OldPhase types.Phase `json:"old_phase"`
	NewPhase types.Phase `json:"new_phase"`
	Message  string      `json:"message"`
}

type PlayerJoined struct {
	Meta
	PlayerID         string `json:"player_id"`
	Username         string `json:"username"`
	ParticipantCount int    `json:"participant_count"`
}

type PlayerLeft struct {
	Meta
	PlayerID         string `json:"player_id"`
	Username         string `json:"username"`
	ParticipantCount int    `json:"participant_count"`
}

type PlayerReady struct {
	Meta
	PlayerID   string `json:"player_id"`
	Username   string `json:"username"`
	ReadyCount int    `json:"ready_count"`
	TotalCount int    `json:"total_count"`
}

// ProgressUpdate carries absolute counts for one player. Consumers replace the
// stored counts, they never add to them.
type ProgressUpdate struct {
	Meta
	PlayerID        string                `json:"player_id"`
	Username        string                `json:"username"`
	Action          string                `json:"action"`
	Progress        types.PlayerProgress  `json:"progress"`
	SessionProgress types.SessionProgress `json:"session_progress"`
}

// PartyContext turns the update into the shape round responses carry, so both
// merge through the party controller. sessionID is used when the envelope has
// none; me fills YourProgress when the update is about the local player.
func (u ProgressUpdate) PartyContext(sessionID, me string) types.PartyContext {
	if u.SessionID != "" {
		sessionID = u.SessionID
	}
	sp := u.SessionProgress
	pc := types.PartyContext{
		SessionID:       sessionID,
		SessionProgress: &sp,
		Players:         map[string]types.PlayerProgress{u.PlayerID: u.Progress},
	}
	if me != "" && u.PlayerID == me {
		p := u.Progress
		pc.YourProgress = &p
	}
	return pc
}

type SessionStarted struct {
	Meta
	CurrentPhase     types.Phase `json:"current_phase"`
	ParticipantCount int         `json:"participant_count"`
}

type SessionCompleted struct {
	Meta
	CompletedAt time.Time `json:"completed_at"`
	Message     string    `json:"message"`
}

// SessionUpdate is a free-form notice: host changes, inactivity removals.
type SessionUpdate struct {
	Meta
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type HostPing struct {
	Meta
	HostPlayerID string `json:"host_player_id"`
	HostUsername string `json:"host_username"`
	JoinURL      string `json:"join_url"`
}

// Unrecognized keeps the raw payload of a message type this client predates.
type Unrecognized struct {
	Meta
	Data json.RawMessage
}

func (PhaseTransition) isNotification()  {}
func (PlayerJoined) isNotification()     {}
func (PlayerLeft) isNotification()       {}
func (PlayerReady) isNotification()      {}
func (ProgressUpdate) isNotification()   {}
func (SessionStarted) isNotification()   {}
func (SessionCompleted) isNotification() {}
func (SessionUpdate) isNotification()    {}
func (HostPing) isNotification()         {}
func (Unrecognized) isNotification()     {}

const (
	TypePhaseTransition  = "phase_transition"
	TypePlayerJoined     = "player_joined"
	TypePlayerLeft       = "player_left"
	TypePlayerReady      = "player_ready"
	TypeProgressUpdate   = "progress_update"
	TypeSessionStarted   = "session_started"
	TypeSessionCompleted = "session_completed"
	TypeSessionUpdate    = "session_update"
	TypeHostPing         = "host_ping"
)

type envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Decode parses one envelope. An error means the frame was not a usable
// envelope at all; an unknown type is not an error.
func Decode(frame []byte) (Notification, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	meta := Meta{Type: env.Type, SessionID: env.SessionID}
	if env.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, env.Timestamp); err == nil {
			meta.Timestamp = ts
		}
	}

	switch env.Type {
	case TypePhaseTransition:
		return decodeAs(env, PhaseTransition{Meta: meta})
	case TypePlayerJoined:
		return decodeAs(env, PlayerJoined{Meta: meta})
	case TypePlayerLeft:
		return decodeAs(env, PlayerLeft{Meta: meta})
	case TypePlayerReady:
		return decodeAs(env, PlayerReady{Meta: meta})
	case TypeProgressUpdate:
		return decodeAs(env, ProgressUpdate{Meta: meta})
	case TypeSessionStarted:
		return decodeAs(env, SessionStarted{Meta: meta})
	case TypeSessionCompleted:
		return decodeAs(env, SessionCompleted{Meta: meta})
	case TypeSessionUpdate:
		return decodeAs(env, SessionUpdate{Meta: meta})
	case TypeHostPing:
		return decodeAs(env, HostPing{Meta: meta})
	default:
		return Unrecognized{Meta: meta, Data: env.Data}, nil
	}
}

func decodeAs[T Notification](env envelope, n T) (Notification, error) {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return n, nil
	}
	if err := json.Unmarshal(env.Data, &n); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return n, nil
}
