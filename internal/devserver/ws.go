package devserver

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// closeNotParticipant matches the production close code for removed players.
const closeNotParticipant websocket.StatusCode = 4403

func wsHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		player := playerID(r)

		s.mu.Lock()
		sess, ok := s.sessions[id]
		member := ok && sess.find(player) != nil
		s.mu.Unlock()
		if !ok {
			http.Error(w, "party not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		if !member {
			_ = conn.Close(closeNotParticipant, "You are not a participant in this party.")
			return
		}
		defer conn.CloseNow()

		pageContext := r.URL.Query().Get("context")
		connID := s.addSocket(id, conn, pageContext)
		defer s.dropSocket(id, connID)
		s.log.Debug("push client connected", zap.String("session", id), zap.String("player", player),
			zap.String("context", pageContext))

		// Clients never send; reading only watches for the close.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					s.log.Debug("push client gone", zap.String("session", id), zap.Error(err))
				}
				return
			}
		}
	}
}
