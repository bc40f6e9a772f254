package route

import (
	"net/url"
	"sync"

	"github.com/DoyleJ11/party-client/internal/engine"
	"go.uber.org/zap"
)

// Route is an application path understood by the UI layer.
type Route string

const Hub Route = "/party"

func Lobby(sessionID string) Route {
	return Route("/party/" + url.PathEscape(sessionID))
}

// Game is the live-game route; it resumes whichever round the server phase names.
func Game(sessionID string) Route {
	return Route("/party/game/" + url.PathEscape(sessionID))
}

func Results(sessionID string) Route {
	return Route("/party/results/" + url.PathEscape(sessionID))
}

// Round is the gameplay screen for a step. Results routes through the session.
func Round(step engine.Step, sessionID string) Route {
	switch step {
	case engine.StepPrompt:
		return "/prompt"
	case engine.StepCopy:
		return "/copy"
	case engine.StepVote:
		return "/vote"
	default:
		return Results(sessionID)
	}
}

// Navigator is implemented by the UI layer. Replace swaps the current history
// entry so "back" cannot land on a stale screen.
type Navigator interface {
	Navigate(to Route, replace bool)
}

type Entry struct {
	To      Route
	Replace bool
}

// History records navigations in memory. The headless client and tests use it
// in place of a browser history.
type History struct {
	mu      sync.Mutex
	entries []Entry
	log     *zap.Logger
}

func NewHistory(log *zap.Logger) *History {
	if log == nil {
		log = zap.NewNop()
	}
	return &History{log: log}
}

func (h *History) Navigate(to Route, replace bool) {
	h.mu.Lock()
	if replace && len(h.entries) > 0 {
		h.entries[len(h.entries)-1] = Entry{To: to, Replace: true}
	} else {
		h.entries = append(h.entries, Entry{To: to, Replace: replace})
	}
	h.mu.Unlock()
	h.log.Info("navigate", zap.String("to", string(to)), zap.Bool("replace", replace))
}

// Current is the top of the stack, or "" before any navigation.
func (h *History) Current() Route {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return ""
	}
	return h.entries[len(h.entries)-1].To
}

func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Entry(nil), h.entries...)
}
