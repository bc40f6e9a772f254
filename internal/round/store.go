package round

import (
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/party-client/pkg/types"
)

type SubmissionStatus string

const (
	Pending    SubmissionStatus = "pending"
	Submitting SubmissionStatus = "submitting"
)

type PromptPayload struct {
	Text string
	Cost int
}

type CopyPayload struct {
	OriginalPhrase string
	Cost           int
	DiscountActive bool
}

type VotePayload struct {
	PhrasesetID string
	PromptText  string
	Phrases     []string
}

// Active is the round the gameplay screen is showing. Exactly one of Prompt,
// Copy or Vote is set, matching Type.
type Active struct {
	RoundID   string
	Type      types.RoundType
	SessionID string
	ExpiresAt time.Time
	Status    SubmissionStatus

	Prompt *PromptPayload
	Copy   *CopyPayload
	Vote   *VotePayload
}

func (a Active) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// Store holds the active round. It is shared with solo play, so party code only
// ever replaces or clears it.
type Store struct {
	mu  sync.Mutex
	cur *Active
}

func NewStore() *Store { return &Store{} }

func (s *Store) Set(a Active) {
	if a.Status == "" {
		a.Status = Pending
	}
	s.mu.Lock()
	s.cur = &a
	s.mu.Unlock()
}

func (s *Store) Current() (Active, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Active{}, false
	}
	out := *s.cur
	if out.Vote != nil {
		v := *out.Vote
		v.Phrases = slices.Clone(v.Phrases)
		out.Vote = &v
	}
	return out, true
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.cur = nil
	s.mu.Unlock()
}

// claim moves the round to Submitting. It fails if the round changed or a
// submission is already in flight.
func (s *Store) claim(roundID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.RoundID != roundID || s.cur.Status != Pending {
		return false
	}
	s.cur.Status = Submitting
	return true
}

// settle finishes a claim: cleared on success, back to Pending on failure.
func (s *Store) settle(roundID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.RoundID != roundID {
		return
	}
	if ok {
		s.cur = nil
		return
	}
	s.cur.Status = Pending
}
