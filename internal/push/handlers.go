package push

// Handlers is the callback set a Channel delivers to. Replace it with
// Channel.SetHandlers; the reader always uses the set current at delivery time.
type Handlers struct {
	OnNotification func(Notification)
	OnStateChange  func(State)
	OnClose        func(*CloseError)
}

// Typed fans a Notification out to per-type callbacks. Nil callbacks are skipped.
type Typed struct {
	PhaseTransition  func(PhaseTransition)
	PlayerJoined     func(PlayerJoined)
	PlayerLeft       func(PlayerLeft)
	PlayerReady      func(PlayerReady)
	ProgressUpdate   func(ProgressUpdate)
	SessionStarted   func(SessionStarted)
	SessionCompleted func(SessionCompleted)
	SessionUpdate    func(SessionUpdate)
	HostPing         func(HostPing)
	Unrecognized     func(Unrecognized)
}

func (t Typed) Handle(n Notification) {
	switch m := n.(type) {
	case PhaseTransition:
		call(t.PhaseTransition, m)
	case PlayerJoined:
		call(t.PlayerJoined, m)
	case PlayerLeft:
		call(t.PlayerLeft, m)
	case PlayerReady:
		call(t.PlayerReady, m)
	case ProgressUpdate:
		call(t.ProgressUpdate, m)
	case SessionStarted:
		call(t.SessionStarted, m)
	case SessionCompleted:
		call(t.SessionCompleted, m)
	case SessionUpdate:
		call(t.SessionUpdate, m)
	case HostPing:
		call(t.HostPing, m)
	case Unrecognized:
		call(t.Unrecognized, m)
	}
}

func call[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}
