package devserver

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/DoyleJ11/party-client/pkg/types"
)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

var prompts = []string{
	"a terrible name for a boat",
	"the worst thing to say at a wedding",
	"a rejected ice cream flavor",
	"what the cat is really thinking",
	"a slogan for a haunted hotel",
}

// push is a broadcast queued while the server lock is held.
type push struct {
	typ  string
	data any
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeValidation mimics a framework validation error: a list of {msg}.
func writeValidation(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]string{{"msg": msg}},
	})
}

func playerID(r *http.Request) string {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return r.URL.Query().Get("token")
}

// withSession resolves the path session and the calling participant. It
// writes the error response itself and returns nil on failure. The server
// lock is held on success; call s.flush to release it.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, action string) (*session, string) {
	id := chi.URLParam(r, "id")
	player := playerID(r)
	if player == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "message": "Sign in to play."})
		return nil, ""
	}
	s.mu.Lock()
	s.record(action, id, player)
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Party session not found")
		return nil, ""
	}
	if sess.find(player) == nil && action != "join" {
		s.mu.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden", "message": "You are not a participant in this party."})
		return nil, ""
	}
	return sess, player
}

// flush releases the lock taken by withSession and sends queued pushes.
func (s *Server) flush(sessionID string, out []push) {
	s.mu.Unlock()
	for _, p := range out {
		s.Broadcast(sessionID, p.typ, p.data)
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func createSession(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player := playerID(r)
		if player == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized", "message": "Sign in to play."})
			return
		}
		var req struct {
			MinPlayers int `json:"min_players"`
			MaxPlayers int `json:"max_players"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeValidation(w, "invalid request body")
				return
			}
		}

		s.mu.Lock()
		s.record("create", "", player)
		sess := s.createLocked(player, req.MinPlayers, req.MaxPlayers)
		res := joinResult(sess)
		s.mu.Unlock()

		writeJSON(w, http.StatusCreated, res)
	}
}

func joinByCode(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PartyCode string `json:"party_code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PartyCode == "" {
			writeValidation(w, "party_code is required")
			return
		}
		s.mu.Lock()
		id, ok := s.codes[strings.ToUpper(req.PartyCode)]
		s.mu.Unlock()
		if !ok {
			writeDetail(w, http.StatusNotFound, "No party with that code")
			return
		}
		rctx := chi.RouteContext(r.Context())
		rctx.URLParams.Add("id", id)
		joinByID(s)(w, r)
	}
}

func joinByID(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, player := s.withSession(w, r, "join")
		if sess == nil {
			return
		}
		var out []push
		if sess.find(player) == nil {
			if sess.snap.Status != types.StatusOpen {
				s.mu.Unlock()
				writeDetail(w, http.StatusBadRequest, "This party has already started")
				return
			}
			if len(sess.snap.Participants) >= sess.snap.MaxPlayers {
				s.mu.Unlock()
				writeDetail(w, http.StatusBadRequest, "This party is full")
				return
			}
			sess.addParticipant(player, player, false, false)
			out = append(out, push{"player_joined", map[string]any{
				"player_id": player, "username": player, "participant_count": len(sess.snap.Participants),
			}})
		}
		res := joinResult(sess)
		s.flush(sess.snap.SessionID, out)
		writeJSON(w, http.StatusOK, res)
	}
}

func joinResult(sess *session) types.JoinResult {
	snap := sess.copySnap()
	cfg := sess.cfg
	return types.JoinResult{SessionID: snap.SessionID, PartyCode: snap.PartyCode, Session: &snap, Config: &cfg}
}

func status(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := s.withSession(w, r, "status")
		if sess == nil {
			return
		}
		snap := sess.copySnap()
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, snap)
	}
}

func markReady(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, player := s.withSession(w, r, "ready")
		if sess == nil {
			return
		}
		sess.find(player).Status = types.Ready
		ready := 0
		for _, p := range sess.snap.Participants {
			if p.Status == types.Ready {
				ready++
			}
		}
		out := []push{{"player_ready", map[string]any{
			"player_id": player, "username": player, "ready_count": ready, "total_count": len(sess.snap.Participants),
		}}}
		s.flush(sess.snap.SessionID, out)
		writeJSON(w, http.StatusOK, types.ActionResult{Success: true})
	}
}

func leave(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, player := s.withSession(w, r, "leave")
		if sess == nil {
			return
		}
		newHost := sess.removeParticipant(player)
		out := []push{{"player_left", map[string]any{
			"player_id": player, "username": player, "participant_count": len(sess.snap.Participants),
		}}}
		if newHost != "" {
			out = append(out, push{"session_update", map[string]any{
				"reason": "host_changed", "message": newHost + " is now the host",
			}})
		}
		s.flush(sess.snap.SessionID, out)
		writeJSON(w, http.StatusOK, types.ActionResult{Success: true, Message: "Left the party"})
	}
}

func requireHost(w http.ResponseWriter, sess *session, player string) bool {
	if sess.snap.HostPlayerID == player {
		return true
	}
	writeDetail(w, http.StatusForbidden, "Only the host can do that")
	return false
}

func startSession(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, player := s.withSession(w, r, "start")
		if sess == nil {
			return
		}
		if !requireHost(w, sess, player) {
			s.mu.Unlock()
			return
		}
		if sess.snap.Status != types.StatusOpen {
			s.mu.Unlock()
			writeDetail(w, http.StatusBadRequest, "This party has already started")
			return
		}
		if n := len(sess.snap.Participants); n < sess.snap.MinPlayers {
			s.mu.Unlock()
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Need at least %d players to start (have %d)", sess.snap.MinPlayers, n))
			return
		}
		now := time.Now().UTC()
		sess.snap.Status = types.StatusInProgress
		sess.snap.Phase = types.PhasePrompt
		sess.snap.StartedAt = &now
		out := []push{
			{"session_started", map[string]any{"current_phase": types.PhasePrompt, "participant_count": len(sess.snap.Participants)}},
			{"phase_transition", map[string]any{"old_phase": types.PhaseLobby, "new_phase": types.PhasePrompt, "message": "Write your prompts!"}},
		}
		s.flush(sess.snap.SessionID, out)
		writeJSON(w, http.StatusOK, types.ActionResult{Success: true, Message: "Party started"})
	}
}

func addAI(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, player := s.withSession(w, r, "add-ai")
		if sess == nil {
			return
		}
		if !requireHost(w, sess, player) {
			s.mu.Unlock()
			return
		}
		if len(sess.snap.Participants) >= sess.snap.MaxPlayers {
			s.mu.Unlock()
			writeDetail(w, http.StatusBadRequest, "This party is full")
			return
		}
		id := "ai-" + uuid.NewString()[:8]
		sess.addParticipant(id, "Bot "+id[3:7], false, true)
		out := []push{{"player_joined", map[string]any{
			"player_id": id, "username": "Bot " + id[3:7], "participant_count": len(sess.snap.Participants),
		}}}
		s.flush(sess.snap.SessionID, out)
		writeJSON(w, http.StatusOK, types.ActionResult{Success: true})
	}
}

func ping(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, player := s.withSession(w, r, "ping")
		if sess == nil {
			return
		}
		if !requireHost(w, sess, player) {
			s.mu.Unlock()
			return
		}
		out := []push{{"host_ping", map[string]any{
			"host_player_id": player, "host_username": player, "join_url": "/party/join/" + sess.snap.PartyCode,
		}}}
		s.flush(sess.snap.SessionID, out)
		writeJSON(w, http.StatusOK, types.ActionResult{Success: true, Message: "Ping sent"})
	}
}

var phaseRound = map[types.Phase]types.RoundType{
	types.PhasePrompt: types.RoundPrompt,
	types.PhaseCopy:   types.RoundCopy,
	types.PhaseVote:   types.RoundVote,
}

var nextPhase = map[types.Phase]types.Phase{
	types.PhasePrompt: types.PhaseCopy,
	types.PhaseCopy:   types.PhaseVote,
	types.PhaseVote:   types.PhaseResults,
}

func counts(p *types.PlayerProgress, kind types.RoundType) (done, required int) {
	switch kind {
	case types.RoundPrompt:
		return p.PromptsSubmitted, p.PromptsRequired
	case types.RoundCopy:
		return p.CopiesSubmitted, p.CopiesRequired
	default:
		return p.VotesSubmitted, p.VotesRequired
	}
}

func (sess *session) doneWithPhase() (done, total int) {
	kind := phaseRound[sess.snap.Phase]
	for _, p := range sess.humans() {
		total++
		if n, req := counts(sess.progress[p.PlayerID], kind); n >= req {
			done++
		}
	}
	return done, total
}

func (sess *session) partyContext(player string) *types.PartyContext {
	done, total := sess.doneWithPhase()
	players := make(map[string]types.PlayerProgress, len(sess.progress))
	for id, p := range sess.progress {
		players[id] = *p
	}
	you := *sess.progress[player]
	return &types.PartyContext{
		SessionID:       sess.snap.SessionID,
		CurrentPhase:    sess.snap.Phase,
		YourProgress:    &you,
		SessionProgress: &types.SessionProgress{PlayersDoneWithPhase: done, TotalPlayers: total},
		Players:         players,
	}
}

func startRound(s *Server, kind types.RoundType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, player := s.withSession(w, r, "round:"+string(kind))
		if sess == nil {
			return
		}
		defer s.mu.Unlock()

		if phaseRound[sess.snap.Phase] != kind {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("The party is not in the %s phase", kind))
			return
		}
		if n, req := counts(sess.progress[player], kind); n >= req {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("You have already finished your %s rounds", kind))
			return
		}

		roundID := uuid.NewString()
		expires := time.Now().UTC().Add(s.round)
		switch kind {
		case types.RoundPrompt:
			text := prompts[len(sess.rounds)%len(prompts)]
			sess.rounds[roundID] = openRound{kind: kind, playerID: player, prompt: text}
			writeJSON(w, http.StatusOK, types.PromptRound{
				RoundID: roundID, PromptText: text, Cost: sess.cfg.PromptCost, ExpiresAt: expires,
				PartyContext: sess.partyContext(player),
			})

		case types.RoundCopy:
			ps := sess.pick(&sess.nextCopy, player)
			if ps == nil {
				writeDetail(w, http.StatusBadRequest, "No phrases are available to copy yet")
				return
			}
			sess.rounds[roundID] = openRound{kind: kind, playerID: player, phraseset: ps}
			writeJSON(w, http.StatusOK, types.CopyRound{
				RoundID: roundID, OriginalPhrase: ps.original, Cost: sess.cfg.CopyCost, ExpiresAt: expires,
				PartyContext: sess.partyContext(player),
			})

		case types.RoundVote:
			ps := sess.pick(&sess.nextVote, player)
			if ps == nil {
				writeDetail(w, http.StatusBadRequest, "No phrasesets are ready for voting")
				return
			}
			sess.rounds[roundID] = openRound{kind: kind, playerID: player, phraseset: ps}
			phrases := append([]string{ps.original}, ps.copies...)
			slices.Sort(phrases)
			writeJSON(w, http.StatusOK, types.VoteRound{
				RoundID: roundID, PhrasesetID: ps.id, PromptText: ps.prompt, Phrases: phrases, ExpiresAt: expires,
				PartyContext: sess.partyContext(player),
			})
		}
	}
}

// pick rotates through phrasesets, preferring ones the player did not write.
func (sess *session) pick(cursor *int, player string) *phraseset {
	n := len(sess.phrasesets)
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		ps := sess.phrasesets[(*cursor+i)%n]
		if ps.author != player {
			*cursor = (*cursor + i + 1) % n
			return ps
		}
	}
	ps := sess.phrasesets[*cursor%n]
	*cursor = (*cursor + 1) % n
	return ps
}

func submitRound(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, player := s.withSession(w, r, "submit")
		if sess == nil {
			return
		}
		rnd, ok := sess.rounds[chi.URLParam(r, "roundID")]
		if !ok || rnd.playerID != player {
			s.mu.Unlock()
			writeDetail(w, http.StatusNotFound, "Round not found")
			return
		}
		var req types.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.mu.Unlock()
			writeValidation(w, "invalid request body")
			return
		}
		phrase := strings.ToUpper(strings.TrimSpace(req.Phrase))
		if rnd.kind != types.RoundVote && phrase == "" {
			s.mu.Unlock()
			writeValidation(w, "phrase must not be empty")
			return
		}
		if rnd.kind == types.RoundVote && req.Vote == "" {
			s.mu.Unlock()
			writeValidation(w, "vote must not be empty")
			return
		}

		p := sess.progress[player]
		switch rnd.kind {
		case types.RoundPrompt:
			p.PromptsSubmitted++
			sess.phrasesets = append(sess.phrasesets, &phraseset{id: uuid.NewString(), prompt: rnd.prompt, original: phrase, author: player})
		case types.RoundCopy:
			p.CopiesSubmitted++
			rnd.phraseset.copies = append(rnd.phraseset.copies, phrase)
		case types.RoundVote:
			p.VotesSubmitted++
			if strings.EqualFold(req.Vote, rnd.phraseset.original) {
				rnd.phraseset.votes++
			}
		}
		delete(sess.rounds, chi.URLParam(r, "roundID"))

		done, total := sess.doneWithPhase()
		out := []push{{"progress_update", map[string]any{
			"player_id": player, "username": player, "action": "submitted_" + string(rnd.kind),
			"progress":         *p,
			"session_progress": types.SessionProgress{PlayersDoneWithPhase: done, TotalPlayers: total},
		}}}
		if done == total {
			out = append(out, sess.advance()...)
		}
		res := types.SubmitResult{Success: true, PartyContext: sess.partyContext(player)}
		s.flush(sess.snap.SessionID, out)
		writeJSON(w, http.StatusOK, res)
	}
}

// advance moves to the next phase once every human finished the current one.
func (sess *session) advance() []push {
	old := sess.snap.Phase
	next, ok := nextPhase[old]
	if !ok {
		return nil
	}
	sess.snap.Phase = next
	out := []push{{"phase_transition", map[string]any{"old_phase": old, "new_phase": next, "message": "On to " + strings.ToLower(string(next))}}}
	if next == types.PhaseResults {
		sess.snap.Status = types.StatusCompleted
		out = append(out, push{"session_completed", map[string]any{"completed_at": time.Now().UTC(), "message": "Party complete"}})
	}
	return out
}

func results(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, _ := s.withSession(w, r, "results")
		if sess == nil {
			return
		}
		defer s.mu.Unlock()
		if sess.snap.Status != types.StatusCompleted {
			writeDetail(w, http.StatusBadRequest, "Results are not available yet")
			return
		}

		scores := make(map[string]int)
		for _, ps := range sess.phrasesets {
			scores[ps.author] += ps.votes * sess.cfg.VotePayout
		}
		var out types.Results
		out.SessionID, out.PartyCode = sess.snap.SessionID, sess.snap.PartyCode
		for _, p := range sess.snap.Participants {
			out.Rankings = append(out.Rankings, types.Ranking{PlayerID: p.PlayerID, Username: p.Username, Score: scores[p.PlayerID], IsAI: p.IsAI})
		}
		slices.SortStableFunc(out.Rankings, func(a, b types.Ranking) int { return cmp.Compare(b.Score, a.Score) })
		for i := range out.Rankings {
			out.Rankings[i].Rank = i + 1
		}
		if len(out.Rankings) > 0 {
			top := out.Rankings[0]
			out.Awards = map[string]types.Award{"top_scorer": {PlayerID: top.PlayerID, Username: top.Username, Metric: top.Score}}
		}
		for _, ps := range sess.phrasesets {
			out.Phrasesets = append(out.Phrasesets, types.PhrasesetSummary{PhrasesetID: ps.id, PromptText: ps.prompt, OriginalPhrase: ps.original, VoteCount: ps.votes})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
