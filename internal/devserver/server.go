package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/party-client/pkg/types"
)

// Server is an in-memory party backend. It speaks the same REST and push
// protocol as the real service, closely enough to drive the client end to end.
// Bearer tokens are taken as player ids.
type Server struct {
	mu       sync.Mutex
	sessions map[string]*session
	codes    map[string]string // party code -> session id
	calls    []Call
	sockets  map[string]map[string]socket // session id -> conn id -> socket

	cfg   types.SessionConfig
	round time.Duration
	log   *zap.Logger
}

type socket struct {
	conn    *websocket.Conn
	context string // page context the client declared
}

// Call is one handled request, recorded for tests.
type Call struct {
	Action    string
	SessionID string
	PlayerID  string
}

type session struct {
	snap       types.SessionSnapshot
	cfg        types.SessionConfig
	progress   map[string]*types.PlayerProgress // by player id
	rounds     map[string]openRound            // by round id
	phrasesets []*phraseset
	nextCopy   int
	nextVote   int
}

type openRound struct {
	kind      types.RoundType
	playerID  string
	phraseset *phraseset
	prompt    string
}

type phraseset struct {
	id       string
	prompt   string
	original string
	author   string
	copies   []string
	votes    int
}

type Option func(*Server)

func WithLogger(log *zap.Logger) Option { return func(s *Server) { s.log = log } }

// WithConfig sets the per-session economics and round quotas.
func WithConfig(cfg types.SessionConfig) Option { return func(s *Server) { s.cfg = cfg } }

func WithRoundDuration(d time.Duration) Option { return func(s *Server) { s.round = d } }

func New(opts ...Option) *Server {
	s := &Server{
		sessions: make(map[string]*session),
		codes:    make(map[string]string),
		sockets:  make(map[string]map[string]socket),
		cfg: types.SessionConfig{
			PromptCost:       100,
			CopyCost:         50,
			VoteCost:         10,
			VotePayout:       20,
			PromptsPerPlayer: 1,
			CopiesPerPlayer:  1,
			VotesPerPlayer:   1,
		},
		round: 3 * time.Minute,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) record(action, sessionID, playerID string) {
	s.calls = append(s.calls, Call{Action: action, SessionID: sessionID, PlayerID: playerID})
}

// Calls counts handled requests for action, e.g. "add-ai" or "start".
func (s *Server) Calls(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Action == action {
			n++
		}
	}
	return n
}

// CallLog lists handled requests in order, optionally filtered to actions.
func (s *Server) CallLog(actions ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if len(actions) == 0 || slices.Contains(actions, c.Action) {
			out = append(out, c.Action)
		}
	}
	return out
}

// CreateSession makes a lobby hosted by hostID, as POST /party/create would.
func (s *Server) CreateSession(hostID string, minPlayers, maxPlayers int) types.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(hostID, minPlayers, maxPlayers).snap
}

func (s *Server) createLocked(hostID string, minPlayers, maxPlayers int) *session {
	if minPlayers <= 0 {
		minPlayers = 3
	}
	if maxPlayers < minPlayers {
		maxPlayers = max(8, minPlayers)
	}
	code := s.uniqueCodeLocked()
	sess := &session{
		snap: types.SessionSnapshot{
			SessionID:    uuid.NewString(),
			PartyCode:    code,
			Phase:        types.PhaseLobby,
			Status:       types.StatusOpen,
			MinPlayers:   minPlayers,
			MaxPlayers:   maxPlayers,
			HostPlayerID: hostID,
			CreatedAt:    time.Now().UTC(),
		},
		cfg:      s.cfg,
		progress: make(map[string]*types.PlayerProgress),
		rounds:   make(map[string]openRound),
	}
	sess.addParticipant(hostID, hostID, true, false)
	s.sessions[sess.snap.SessionID] = sess
	s.codes[code] = sess.snap.SessionID
	return sess
}

func (s *Server) uniqueCodeLocked() string {
	for {
		code, err := GenerateCode()
		if err != nil {
			code = uuid.NewString()[:6]
		}
		if _, taken := s.codes[code]; !taken {
			return code
		}
		s.log.Debug("collision on code, regenerating")
	}
}

// AddPlayer seats a human participant directly.
func (s *Server) AddPlayer(sessionID, playerID string, ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	p := sess.addParticipant(playerID, playerID, false, false)
	if ready {
		p.Status = types.Ready
	}
}

// Session returns a copy of the authoritative snapshot.
func (s *Server) Session(sessionID string) (types.SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return types.SessionSnapshot{}, false
	}
	return sess.copySnap(), true
}

// SetPhase forces the session into phase and status without any broadcast.
func (s *Server) SetPhase(sessionID string, phase types.Phase, status types.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.snap.Phase = phase
		sess.snap.Status = status
	}
}

// Remove deletes the session; later requests get 404.
func (s *Server) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		delete(s.codes, sess.snap.PartyCode)
		delete(s.sessions, sessionID)
	}
}

// Kick removes a participant; their later requests get 403.
func (s *Server) Kick(sessionID, playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.removeParticipant(playerID)
	}
}

// Sockets counts open push connections for a session.
func (s *Server) Sockets(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets[sessionID])
}

// SocketContexts lists the page context of each open push connection.
func (s *Server) SocketContexts(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sockets[sessionID]))
	for _, sk := range s.sockets[sessionID] {
		out = append(out, sk.context)
	}
	slices.Sort(out)
	return out
}

type envelope struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Broadcast pushes one message to every socket on the session.
func (s *Server) Broadcast(sessionID, typ string, data any) {
	frame, err := json.Marshal(envelope{Type: typ, SessionID: sessionID, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		s.log.Error("encode push", zap.Error(err))
		return
	}
	s.BroadcastRaw(sessionID, frame)
}

// BroadcastRaw writes frame as-is, for malformed-input tests.
func (s *Server) BroadcastRaw(sessionID string, frame []byte) {
	for _, conn := range s.conns(sessionID) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = conn.Write(ctx, websocket.MessageText, frame)
		cancel()
	}
}

// CloseSockets closes every push connection on the session with code.
func (s *Server) CloseSockets(sessionID string, code websocket.StatusCode, reason string) {
	for _, conn := range s.conns(sessionID) {
		_ = conn.Close(code, reason)
	}
}

func (s *Server) conns(sessionID string) []*websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*websocket.Conn, 0, len(s.sockets[sessionID]))
	for _, sk := range s.sockets[sessionID] {
		out = append(out, sk.conn)
	}
	return out
}

func (s *Server) addSocket(sessionID string, conn *websocket.Conn, pageContext string) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sockets[sessionID] == nil {
		s.sockets[sessionID] = make(map[string]socket)
	}
	s.sockets[sessionID][id] = socket{conn: conn, context: pageContext}
	return id
}

func (s *Server) dropSocket(sessionID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets[sessionID], id)
	if len(s.sockets[sessionID]) == 0 {
		delete(s.sockets, sessionID)
	}
}

// Handler is the HTTP surface. See SetupRoutes.
func (s *Server) Handler() http.Handler { return SetupRoutes(s) }

func (sess *session) find(playerID string) *types.Participant {
	for i := range sess.snap.Participants {
		if sess.snap.Participants[i].PlayerID == playerID {
			return &sess.snap.Participants[i]
		}
	}
	return nil
}

func (sess *session) addParticipant(playerID, username string, host, ai bool) *types.Participant {
	if p := sess.find(playerID); p != nil {
		return p
	}
	status := types.NotReady
	if ai {
		status = types.Ready
	}
	sess.snap.Participants = append(sess.snap.Participants, types.Participant{
		ID:       uuid.NewString(),
		PlayerID: playerID,
		Username: username,
		IsHost:   host,
		IsAI:     ai,
		Status:   status,
		JoinedAt: time.Now().UTC(),
	})
	sess.progress[playerID] = &types.PlayerProgress{
		PromptsRequired: sess.cfg.PromptsPerPlayer,
		CopiesRequired:  sess.cfg.CopiesPerPlayer,
		VotesRequired:   sess.cfg.VotesPerPlayer,
	}
	return &sess.snap.Participants[len(sess.snap.Participants)-1]
}

// removeParticipant drops playerID and hands the host role to the next human.
// It reports the new host id when the host changed.
func (sess *session) removeParticipant(playerID string) (newHost string) {
	wasHost := false
	sess.snap.Participants = slices.DeleteFunc(sess.snap.Participants, func(p types.Participant) bool {
		if p.PlayerID == playerID {
			wasHost = p.IsHost
			return true
		}
		return false
	})
	delete(sess.progress, playerID)
	if !wasHost {
		return ""
	}
	for i := range sess.snap.Participants {
		if !sess.snap.Participants[i].IsAI {
			sess.snap.Participants[i].IsHost = true
			sess.snap.HostPlayerID = sess.snap.Participants[i].PlayerID
			return sess.snap.HostPlayerID
		}
	}
	sess.snap.HostPlayerID = ""
	return ""
}

func (sess *session) copySnap() types.SessionSnapshot {
	out := sess.snap
	out.Participants = slices.Clone(sess.snap.Participants)
	return out
}

func (sess *session) humans() []types.Participant {
	var out []types.Participant
	for _, p := range sess.snap.Participants {
		if !p.IsAI {
			out = append(out, p)
		}
	}
	return out
}
