package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/AS-Aurora/FullStackSocial/internal/auth"
	"github.com/AS-Aurora/FullStackSocial/internal/server"
	"github.com/gorilla/websocket"
)

const closeWriteWait = 5 * time.Second

func (s *SocialApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *SocialApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *SocialApp) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}

	return upgrader.Upgrade(w, r, nil)
}

// closeWithCode rejects an already-upgraded connection with an application
// close code. Rejected connections never reach the hub registry.
func (s *SocialApp) closeWithCode(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait)); err != nil {
		s.log.Printf("write close frame: %v", err)
	}
	conn.Close()
}

// startSession registers the session, joins it to its room, and starts the
// connection pumps.
func (s *SocialApp) startSession(conn *websocket.Conn, identity auth.Identity, roomKey string) {
	sess := server.NewSession(identity, roomKey, conn, s.rt, s.log, s.stats)

	s.rt.RegisterSession(sess)
	if err := s.rt.Join(roomKey, sess); err != nil {
		s.log.Printf("join %q: %v", roomKey, err)
		s.closeWithCode(conn, websocket.CloseInternalServerErr, "")
		return
	}

	go sess.Write()
	go sess.Read()
}

func (s *SocialApp) servePostWs(w http.ResponseWriter, r *http.Request) {
	postId := r.PathValue("id")
	identity := s.resolver.Resolve(r)

	conn, err := s.upgrade(w, r)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	if identity.IsAnonymous() {
		s.closeWithCode(conn, server.CloseUnauthenticated, "authentication required")
		return
	}

	post, err := s.db.GetPostById(postId)
	if err != nil || !post.IsActive {
		s.closeWithCode(conn, server.CloseNotFound, "post not found")
		return
	}

	s.startSession(conn, identity, server.PostRoomKey(post.Id))
}

func (s *SocialApp) serveChatWs(w http.ResponseWriter, r *http.Request) {
	conversationId := r.PathValue("id")
	identity := s.resolver.Resolve(r)

	conn, err := s.upgrade(w, r)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	if identity.IsAnonymous() {
		s.closeWithCode(conn, server.CloseUnauthenticated, "authentication required")
		return
	}

	conv, err := s.db.GetConversationById(conversationId)
	if err != nil {
		s.closeWithCode(conn, server.CloseNotFound, "conversation not found")
		return
	}

	if !conv.HasParticipant(identity.UserId) {
		s.closeWithCode(conn, server.CloseForbidden, "not a participant")
		return
	}

	s.startSession(conn, identity, server.ChatRoomKey(conv.Id))
}

func (s *SocialApp) serveNotificationsWs(w http.ResponseWriter, r *http.Request) {
	identity := s.resolver.Resolve(r)

	conn, err := s.upgrade(w, r)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	if identity.IsAnonymous() {
		s.closeWithCode(conn, server.CloseUnauthenticated, "authentication required")
		return
	}

	s.startSession(conn, identity, server.NotifyRoomKey(identity.UserId))
}
