package push

import (
	"errors"
	"fmt"
)

var (
	ErrDisabled  = errors.New("push channel disabled: missing token or session id")
	ErrBusy      = errors.New("push channel already connecting or open")
	ErrIdle      = errors.New("push channel never connected; use Connect")
	ErrTerminal  = errors.New("push channel closed for this session")
	ErrTransport = errors.New("push transport failure")
)

// StatusAbnormal is reported when the connection dropped without a close frame.
const StatusAbnormal = 1006

// Close codes the server uses when the participant is removed or the session
// ended. Any other code is transient.
var fatalCodes = map[int]string{
	4000: "This party has ended.",
	4001: "You were removed from this party.",
	4002: "This party could not be found.",
	4003: "You are not a participant in this party.",
	4401: "Your login has expired. Sign in again to rejoin.",
	4403: "You no longer have access to this party.",
}

func IsFatalCode(code int) bool {
	_, ok := fatalCodes[code]
	return ok
}

// CloseError describes how the server (or the network) ended a connection.
type CloseError struct {
	Code   int
	Reason string
	Fatal  bool
}

func newCloseError(code int, reason string) *CloseError {
	return &CloseError{Code: code, Reason: reason, Fatal: IsFatalCode(code)}
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("push channel closed (%d): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("push channel closed (%d)", e.Code)
}

// Is lets errors.Is(err, ErrTerminal) pick out fatal closes.
func (e *CloseError) Is(target error) bool {
	return target == ErrTerminal && e.Fatal
}

// Message is the user-facing text for the close.
func (e *CloseError) Message() string {
	if !e.Fatal {
		return "Live updates disconnected."
	}
	if e.Reason != "" {
		return e.Reason
	}
	return fatalCodes[e.Code]
}
