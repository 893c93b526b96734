package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/AS-Aurora/FullStackSocial/internal/database"
	"github.com/AS-Aurora/FullStackSocial/internal/stats"
)

// Application close codes sent before a rejected connection is closed.
const (
	CloseUnauthenticated = 4001
	CloseForbidden       = 4003
	CloseNotFound        = 4004
)

type joinReq struct {
	roomKey string
	kind    RoomKind
	session *Session
}

type publishReq struct {
	roomKey    string
	event      ServerEvent
	skipUserId string
}

// RealtimeServer is the hub: it owns the room registry and the session
// registry. Rooms are created on first join and torn down when their last
// member leaves; all registry mutation happens on the Run goroutine.
type RealtimeServer struct {
	log           *log.Logger
	db            database.SocialRepository
	stats         stats.StatsProvider
	presenceGrace time.Duration

	rooms    map[string]*Room
	roomLock sync.RWMutex
	sessions map[*Session]struct{}

	joinChan       chan *joinReq
	RegisterChan   chan *Session
	deRegisterChan chan *Session
	unloadRoomChan chan string
	publishChan    chan *publishReq
	stop           chan struct{}
	done           chan struct{}
}

func NewRealtimeServer(logger *log.Logger, db database.SocialRepository, su stats.StatsProvider, presenceGrace time.Duration) *RealtimeServer {
	su.RegisterMetric("ActiveSessions")
	su.RegisterMetric("ActiveRooms")
	su.RegisterMetric("MessagesSent")
	su.RegisterMetric("EventsDelivered")

	return &RealtimeServer{
		log:            logger,
		db:             db,
		stats:          su,
		presenceGrace:  presenceGrace,
		rooms:          make(map[string]*Room),
		sessions:       make(map[*Session]struct{}),
		joinChan:       make(chan *joinReq, 256),
		RegisterChan:   make(chan *Session, 256),
		deRegisterChan: make(chan *Session, 256),
		unloadRoomChan: make(chan string),
		publishChan:    make(chan *publishReq, 256),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (rs *RealtimeServer) Run() {
	defer close(rs.done)

	for {
		select {
		case req := <-rs.joinChan:
			rs.handleJoinReq(req)
		case sess := <-rs.RegisterChan:
			rs.sessions[sess] = struct{}{}
			rs.stats.Incr("ActiveSessions")
		case sess := <-rs.deRegisterChan:
			if _, ok := rs.sessions[sess]; ok {
				delete(rs.sessions, sess)
				rs.stats.Decr("ActiveSessions")
			}
		case key := <-rs.unloadRoomChan:
			rs.unloadRoom(key)
		case req := <-rs.publishChan:
			rs.handlePublish(req)
		case <-rs.stop:
			rs.stopAllRooms()
			return
		}
	}
}

// Join binds a session to a room, creating the room if needed.
func (rs *RealtimeServer) Join(roomKey string, sess *Session) error {
	kind, _, err := parseRoomKey(roomKey)
	if err != nil {
		return err
	}

	rs.joinChan <- &joinReq{roomKey: roomKey, kind: kind, session: sess}
	return nil
}

// Publish fans an event out to a room by key. Publishing to a room nobody
// is in is a silent no-op.
func (rs *RealtimeServer) Publish(roomKey string, ev ServerEvent, skipUserId string) {
	select {
	case rs.publishChan <- &publishReq{roomKey: roomKey, event: ev, skipUserId: skipUserId}:
	case <-rs.done:
	}
}

func (rs *RealtimeServer) RegisterSession(sess *Session) {
	rs.RegisterChan <- sess
}

func (rs *RealtimeServer) handleJoinReq(req *joinReq) {
	room, ok := rs.getRoom(req.roomKey)
	if !ok {
		_, entityId, err := parseRoomKey(req.roomKey)
		if err != nil {
			rs.log.Println("join:", err)
			return
		}

		room = newRoom(req.roomKey, req.kind, entityId, rs)
		rs.addRoom(room)
		rs.stats.Incr("ActiveRooms")
		go room.start()
	}

	room.joinChan <- req.session
}

func (rs *RealtimeServer) handlePublish(req *publishReq) {
	room, ok := rs.getRoom(req.roomKey)
	if !ok {
		return
	}

	select {
	case room.broadcastChan <- &roomBroadcast{event: req.event, skipUserId: req.skipUserId}:
	case <-room.done:
	default:
		rs.log.Printf("broadcastChan full for room %q, dropping publish", room.key)
	}
}

// unloadRoom discards an empty room. A join that raced the unload request
// keeps the room alive.
func (rs *RealtimeServer) unloadRoom(key string) {
	room, ok := rs.getRoom(key)
	if !ok {
		return
	}

	if room.memberCount() > 0 || len(room.joinChan) > 0 {
		return
	}

	doneChan := make(chan bool)
	room.exit <- exitReq{done: doneChan}
	<-doneChan

	rs.delRoom(key)
	rs.stats.Decr("ActiveRooms")
}

func (rs *RealtimeServer) stopAllRooms() {
	rs.roomLock.Lock()
	defer rs.roomLock.Unlock()

	for key, room := range rs.rooms {
		doneChan := make(chan bool)
		for sent := false; !sent; {
			select {
			case room.exit <- exitReq{done: doneChan}:
				sent = true
			case <-rs.unloadRoomChan:
				// a room draining out mid-shutdown; it exits below anyway
			case <-rs.publishChan:
				// keep Publish from wedging a room that is mid-handler
			}
		}
		<-doneChan
		delete(rs.rooms, key)
	}
}

// Shutdown stops the hub and waits for the Run loop to drain, or for ctx.
func (rs *RealtimeServer) Shutdown(ctx context.Context) error {
	close(rs.stop)

	select {
	case <-rs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rs *RealtimeServer) getRoom(key string) (*Room, bool) {
	rs.roomLock.RLock()
	defer rs.roomLock.RUnlock()

	room, ok := rs.rooms[key]
	return room, ok
}

func (rs *RealtimeServer) addRoom(room *Room) {
	rs.roomLock.Lock()
	defer rs.roomLock.Unlock()

	rs.rooms[room.key] = room
}

func (rs *RealtimeServer) delRoom(key string) {
	rs.roomLock.Lock()
	defer rs.roomLock.Unlock()

	delete(rs.rooms, key)
}

// NumRooms reports the current room count.
func (rs *RealtimeServer) NumRooms() int {
	rs.roomLock.RLock()
	defer rs.roomLock.RUnlock()

	return len(rs.rooms)
}
