package server

import (
	"log"
	"sync"
	"time"

	"github.com/AS-Aurora/FullStackSocial/internal/auth"
	"github.com/AS-Aurora/FullStackSocial/internal/stats"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Session is one live connection: a resolved identity, the room key the
// connection is bound to, and a buffered outbound queue. Delivery is
// fire-and-forget; a session that falls behind misses events until it
// reconnects and re-fetches state over REST.
type Session struct {
	conn      *websocket.Conn
	rs        *RealtimeServer
	log       *log.Logger
	identity  auth.Identity
	roomKey   string
	send      chan ServerEvent
	rooms     map[string]*Room
	roomsLock sync.RWMutex
	stop      chan struct{}
	stats     stats.StatsProvider
}

func NewSession(identity auth.Identity, roomKey string, conn *websocket.Conn, rs *RealtimeServer, l *log.Logger, su stats.StatsProvider) *Session {
	return &Session{
		conn:     conn,
		rs:       rs,
		log:      l,
		identity: identity,
		roomKey:  roomKey,
		send:     make(chan ServerEvent, 256),
		rooms:    make(map[string]*Room),
		stop:     make(chan struct{}),
		stats:    su,
	}
}

func (s *Session) Identity() auth.Identity {
	return s.identity
}

func (s *Session) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-s.send:
			if !ok {
				return
			}

			bytes, err := serializeEvent(ev)
			if err != nil {
				s.log.Println("failed to serialize event:", err)
				continue
			}

			if !s.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-s.stop:
			return
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !s.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (s *Session) Read() {
	defer func() {
		s.conn.Close()
		s.cleanup()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(appData string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("ws: read: %v", err)
			}
			break
		}

		act, err := parseClientAction(raw)
		if err != nil {
			// malformed frame: dropped, connection stays open
			s.log.Println("error parsing action:", err)
			continue
		}

		s.dispatch(act)
	}
}

// dispatch routes an inbound action to the session's bound room, one
// action at a time in arrival order.
func (s *Session) dispatch(act *ClientAction) {
	act.session = s

	r, ok := s.getRoom(s.roomKey)
	if !ok {
		s.log.Printf("no room %q for inbound action %q", s.roomKey, act.Action)
		return
	}

	select {
	case r.actionChan <- act:
	default:
		s.queueEvent(ErrServiceUnavailable())
		s.log.Printf("actionChan full for room %q", r.key)
	}
}

func (s *Session) queueEvent(ev ServerEvent) bool {
	select {
	case s.send <- ev:
	default:
		s.log.Println("failed to queue event, channel is full")
		return false
	}

	return true
}

func (s *Session) sendMessage(msgType int, msg []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := s.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			s.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (s *Session) stopSession() {
	close(s.stop)
}

func (s *Session) cleanup() {
	s.rs.deRegisterChan <- s
	s.leaveAllRooms()
	s.stopSession()
}

func (s *Session) leaveAllRooms() {
	s.roomsLock.RLock()
	defer s.roomsLock.RUnlock()

	for _, room := range s.rooms {
		room.leaveChan <- s
	}
}

func (s *Session) delRoom(key string) {
	s.roomsLock.Lock()
	defer s.roomsLock.Unlock()

	delete(s.rooms, key)
}

func (s *Session) addRoom(r *Room) {
	s.roomsLock.Lock()
	defer s.roomsLock.Unlock()

	s.rooms[r.key] = r
}

func (s *Session) getRoom(key string) (*Room, bool) {
	s.roomsLock.RLock()
	defer s.roomsLock.RUnlock()

	room, ok := s.rooms[key]
	return room, ok
}
