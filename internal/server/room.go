package server

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/AS-Aurora/FullStackSocial/internal/database"
	"github.com/AS-Aurora/FullStackSocial/internal/types"
)

type RoomKind int

const (
	RoomKindPost RoomKind = iota
	RoomKindChat
	RoomKindNotify
)

func PostRoomKey(postId string) string { return "post:" + postId }

func ChatRoomKey(conversationId string) string { return "chat:" + conversationId }

func NotifyRoomKey(userId string) string { return "notify:" + userId }

func parseRoomKey(key string) (RoomKind, string, error) {
	prefix, entityId, ok := strings.Cut(key, ":")
	if !ok || entityId == "" {
		return 0, "", fmt.Errorf("malformed room key %q", key)
	}

	switch prefix {
	case "post":
		return RoomKindPost, entityId, nil
	case "chat":
		return RoomKindChat, entityId, nil
	case "notify":
		return RoomKindNotify, entityId, nil
	default:
		return 0, "", fmt.Errorf("unknown room kind %q", prefix)
	}
}

type exitReq struct {
	done chan bool
}

type roomBroadcast struct {
	event      ServerEvent
	skipUserId string
}

// Room is a broadcast scope for one target entity. It exists while it has
// members; the hub discards it once the last session leaves. All membership
// mutation and broadcast snapshotting happen on the room's goroutine, so a
// broadcast never observes a torn member set.
type Room struct {
	key      string
	kind     RoomKind
	entityId string
	rs       *RealtimeServer

	joinChan      chan *Session
	leaveChan     chan *Session
	actionChan    chan *ClientAction
	broadcastChan chan *roomBroadcast
	presenceChan  chan presenceCheck

	sessions    map[*Session]struct{}
	userMap     map[string]map[*Session]struct{}
	sessionLock sync.RWMutex

	log *log.Logger
	// exit is used to signal the room to exit
	exit chan exitReq
	done chan struct{}
}

type presenceCheck struct {
	userId   string
	username string
}

func newRoom(key string, kind RoomKind, entityId string, rs *RealtimeServer) *Room {
	return &Room{
		key:           key,
		kind:          kind,
		entityId:      entityId,
		rs:            rs,
		joinChan:      make(chan *Session, 256),
		leaveChan:     make(chan *Session, 256),
		actionChan:    make(chan *ClientAction, 256),
		broadcastChan: make(chan *roomBroadcast, 256),
		presenceChan:  make(chan presenceCheck, 16),
		sessions:      make(map[*Session]struct{}),
		userMap:       make(map[string]map[*Session]struct{}),
		log:           rs.log,
		exit:          make(chan exitReq),
		done:          make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.key)

	for {
		select {
		case sess := <-r.joinChan:
			r.handleJoin(sess)
		case sess := <-r.leaveChan:
			r.handleLeave(sess)
		case act := <-r.actionChan:
			r.handleAction(act)
		case bc := <-r.broadcastChan:
			r.broadcast(bc.event, bc.skipUserId)
		case pc := <-r.presenceChan:
			r.handlePresenceCheck(pc)
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

// handleJoin adds a session to the member set. Joining a room the session
// is already a member of is a no-op.
func (r *Room) handleJoin(sess *Session) {
	if r.isMember(sess) {
		return
	}

	r.addSession(sess)

	switch r.kind {
	case RoomKindPost:
		r.sendInitialData(sess)
	case RoomKindChat:
		r.broadcast(NewUserStatusEvent(sess.identity.UserId, sess.identity.Username, StatusOnline), "")
	case RoomKindNotify:
		sess.queueEvent(NewConnectionEstablishedEvent())
	}
}

func (r *Room) handleLeave(sess *Session) {
	if !r.isMember(sess) {
		return
	}

	r.removeSession(sess)

	if r.kind == RoomKindChat && !r.userPresent(sess.identity.UserId) {
		// delay the offline broadcast so a tab refresh does not flap
		// presence
		r.schedulePresenceCheck(sess.identity.UserId, sess.identity.Username)
	}

	if r.memberCount() == 0 {
		r.rs.unloadRoomChan <- r.key
	}
}

// handlePresenceCheck fires after the grace delay. The user may have
// reconnected in the meantime, in which case no offline status goes out.
func (r *Room) handlePresenceCheck(pc presenceCheck) {
	if r.userPresent(pc.userId) {
		return
	}

	r.broadcast(NewUserStatusEvent(pc.userId, pc.username, StatusOffline), "")
}

func (r *Room) schedulePresenceCheck(userId, username string) {
	grace := r.rs.presenceGrace
	time.AfterFunc(grace, func() {
		select {
		case r.presenceChan <- presenceCheck{userId: userId, username: username}:
		case <-r.done:
		}
	})
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.key)

	r.sessionLock.Lock()
	for sess := range r.sessions {
		sess.delRoom(r.key)
	}
	r.sessionLock.Unlock()

	close(r.done)

	if e.done != nil {
		e.done <- true
	}
}

// handleAction is the router's dispatch table: a closed match over the
// action tag, gated by room kind. Unknown tags and tags foreign to the
// room kind are dropped.
func (r *Room) handleAction(act *ClientAction) {
	if act.session == nil || act.session.identity.IsAnonymous() {
		// every room kind requires authentication at connect time, so an
		// anonymous action here is a protocol violation
		return
	}

	switch r.kind {
	case RoomKindPost:
		r.dispatchPostAction(act)
	case RoomKindChat:
		r.dispatchChatAction(act)
	case RoomKindNotify:
		r.dispatchNotifyAction(act)
	}
}

func (r *Room) dispatchPostAction(act *ClientAction) {
	switch act.Action {
	case ActionComment:
		r.handleComment(act)
	case ActionLike:
		r.handleLikeToggle(act, true)
	case ActionUnlike:
		r.handleLikeToggle(act, false)
	default:
		r.log.Printf("dropping action %q in post room %q", act.Action, r.key)
	}
}

func (r *Room) dispatchChatAction(act *ClientAction) {
	switch act.Action {
	case ActionMessage:
		r.handleMessage(act)
	case ActionTyping:
		r.handleTyping(act)
	case ActionMarkRead:
		r.handleMarkMessagesRead(act)
	case ActionRequestStatus:
		r.handleStatusRequest(act)
	case ActionCallInitiate:
		r.handleCallInitiate(act)
	case ActionCallAccept:
		r.handleCallAccept(act)
	case ActionCallReject:
		r.handleCallReject(act)
	case ActionCallEnd:
		r.handleCallEnd(act)
	case ActionWebRTCOffer:
		r.handleWebRTCOffer(act)
	case ActionWebRTCAnswer:
		r.handleWebRTCAnswer(act)
	case ActionWebRTCIceCandidate:
		r.handleWebRTCIceCandidate(act)
	default:
		r.log.Printf("dropping action %q in chat room %q", act.Action, r.key)
	}
}

func (r *Room) dispatchNotifyAction(act *ClientAction) {
	switch act.Action {
	case ActionMarkRead:
		r.handleMarkNotificationRead(act)
	default:
		r.log.Printf("dropping action %q in notification room %q", act.Action, r.key)
	}
}

func (r *Room) sendInitialData(sess *Session) {
	likes, err := r.rs.db.CountLikes(r.entityId)
	if err != nil {
		r.log.Println("CountLikes:", err)
		sess.queueEvent(ErrInternalError())
		return
	}

	isLiked, err := r.rs.db.IsPostLikedBy(r.entityId, sess.identity.UserId)
	if err != nil {
		r.log.Println("IsPostLikedBy:", err)
		sess.queueEvent(ErrInternalError())
		return
	}

	dbComments, err := r.rs.db.ListActiveComments(r.entityId)
	if err != nil {
		r.log.Println("ListActiveComments:", err)
		sess.queueEvent(ErrInternalError())
		return
	}

	comments := make([]types.Comment, len(dbComments))
	for i, c := range dbComments {
		comments[i] = wireComment(c)
	}

	sess.queueEvent(NewInitialDataEvent(likes, isLiked, comments))
}

func (r *Room) handleComment(act *ClientAction) {
	content := strings.TrimSpace(act.Content)
	if content == "" {
		return
	}

	post, err := r.rs.db.GetPostById(r.entityId)
	if err != nil {
		r.log.Println("GetPostById:", err)
		act.session.queueEvent(ErrNotFound("post"))
		return
	}

	comment, err := r.rs.db.CreateComment(database.CreateCommentParams{
		PostId:   r.entityId,
		AuthorId: act.session.identity.UserId,
		Content:  content,
	})
	if err != nil {
		r.log.Println("CreateComment:", err)
		act.session.queueEvent(ErrInternalError())
		return
	}

	count, err := r.rs.db.CountComments(r.entityId)
	if err != nil {
		r.log.Println("CountComments:", err)
	}

	r.broadcast(NewCommentEvent(wireComment(comment), count), "")

	commentId := comment.Id
	r.createAndPublishNotification(database.CreateNotificationParams{
		RecipientId:      post.AuthorId,
		SenderId:         act.session.identity.UserId,
		NotificationType: types.NotificationTypeComment,
		PostId:           &post.Id,
		CommentId:        &commentId,
		Message:          fmt.Sprintf("%s commented on your post.", act.session.identity.Username),
	})
}

func (r *Room) handleLikeToggle(act *ClientAction, like bool) {
	post, err := r.rs.db.GetPostById(r.entityId)
	if err != nil {
		r.log.Println("GetPostById:", err)
		act.session.queueEvent(ErrNotFound("post"))
		return
	}

	var changed bool
	if like {
		changed, err = r.rs.db.AddLike(r.entityId, act.session.identity.UserId)
	} else {
		_, err = r.rs.db.RemoveLike(r.entityId, act.session.identity.UserId)
	}
	if err != nil {
		r.log.Println("toggle like:", err)
		act.session.queueEvent(ErrInternalError())
		return
	}

	count, err := r.rs.db.CountLikes(r.entityId)
	if err != nil {
		r.log.Println("CountLikes:", err)
	}

	r.broadcast(NewLikeEvent(count, act.session.identity.UserId, like), "")

	// only a like that newly crossed into the liked state notifies the
	// post author
	if like && changed {
		r.createAndPublishNotification(database.CreateNotificationParams{
			RecipientId:      post.AuthorId,
			SenderId:         act.session.identity.UserId,
			NotificationType: types.NotificationTypeLike,
			PostId:           &post.Id,
			Message:          fmt.Sprintf("%s liked your post.", act.session.identity.Username),
		})
	}
}

func (r *Room) handleMessage(act *ClientAction) {
	content := strings.TrimSpace(act.Message)
	if content == "" {
		return
	}

	msg, err := r.rs.db.CreateMessage(database.CreateMessageParams{
		ConversationId: r.entityId,
		SenderId:       act.session.identity.UserId,
		Content:        content,
	})
	if err != nil {
		r.log.Println("CreateMessage:", err)
		act.session.queueEvent(ErrInternalError())
		return
	}

	r.rs.stats.Incr("MessagesSent")

	r.broadcast(&MessageEvent{
		baseEvent:            baseEvent{Type: EventMessage},
		MessageId:            msg.Id,
		Message:              msg.Content,
		SenderId:             act.session.identity.UserId,
		SenderUsername:       act.session.identity.Username,
		SenderProfilePicture: act.session.identity.ProfilePicture,
		Timestamp:            msg.CreatedAt.Format(time.RFC3339Nano),
		IsRead:               msg.IsRead,
	}, "")
}

func (r *Room) handleTyping(act *ClientAction) {
	r.broadcast(&TypingEvent{
		baseEvent: baseEvent{Type: EventTyping},
		UserId:    act.session.identity.UserId,
		Username:  act.session.identity.Username,
		IsTyping:  act.IsTyping,
	}, act.session.identity.UserId)
}

func (r *Room) handleMarkMessagesRead(act *ClientAction) {
	if len(act.MessageIds) == 0 {
		return
	}

	if err := r.rs.db.MarkMessagesRead(r.entityId, act.session.identity.UserId, act.MessageIds); err != nil {
		r.log.Println("MarkMessagesRead:", err)
		act.session.queueEvent(ErrInternalError())
		return
	}

	r.broadcast(&MessagesReadEvent{
		baseEvent:  baseEvent{Type: EventMessagesRead},
		MessageIds: act.MessageIds,
		ReaderId:   act.session.identity.UserId,
	}, "")
}

// handleStatusRequest re-announces the online status of every user with a
// live session in the room.
func (r *Room) handleStatusRequest(_ *ClientAction) {
	r.sessionLock.RLock()
	present := make(map[string]string, len(r.userMap))
	for userId, sessions := range r.userMap {
		for sess := range sessions {
			present[userId] = sess.identity.Username
			break
		}
	}
	r.sessionLock.RUnlock()

	for userId, username := range present {
		r.broadcast(NewUserStatusEvent(userId, username, StatusOnline), "")
	}
}

func (r *Room) handleWebRTCOffer(act *ClientAction) {
	if len(act.Offer) == 0 {
		return
	}

	r.broadcast(&WebRTCOfferEvent{
		baseEvent: baseEvent{Type: EventWebRTCOffer},
		Offer:     act.Offer,
		SenderId:  act.session.identity.UserId,
	}, act.session.identity.UserId)
}

func (r *Room) handleWebRTCAnswer(act *ClientAction) {
	if len(act.Answer) == 0 {
		return
	}

	r.broadcast(&WebRTCAnswerEvent{
		baseEvent: baseEvent{Type: EventWebRTCAnswer},
		Answer:    act.Answer,
		SenderId:  act.session.identity.UserId,
	}, act.session.identity.UserId)
}

func (r *Room) handleWebRTCIceCandidate(act *ClientAction) {
	if len(act.Candidate) == 0 {
		return
	}

	r.broadcast(&WebRTCIceCandidateEvent{
		baseEvent: baseEvent{Type: EventWebRTCIceCandidate},
		Candidate: act.Candidate,
		SenderId:  act.session.identity.UserId,
	}, act.session.identity.UserId)
}

func (r *Room) handleMarkNotificationRead(act *ClientAction) {
	if act.NotificationId == "" {
		return
	}

	if err := r.rs.db.MarkNotificationRead(act.NotificationId, act.session.identity.UserId); err != nil {
		r.log.Println("MarkNotificationRead:", err)
		act.session.queueEvent(ErrInternalError())
	}
}

// createAndPublishNotification writes the durable notification row and
// fans the event out into the recipient's own notification room. Actors
// are never notified of their own activity.
func (r *Room) createAndPublishNotification(params database.CreateNotificationParams) {
	if params.RecipientId == params.SenderId {
		return
	}

	n, err := r.rs.db.CreateNotification(params)
	if err != nil {
		r.log.Println("CreateNotification:", err)
		return
	}

	r.rs.Publish(NotifyRoomKey(n.RecipientId), NewNotificationEvent(wireNotification(n)), "")
}

func (r *Room) addSession(sess *Session) {
	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()

	r.sessions[sess] = struct{}{}
	if r.userMap[sess.identity.UserId] == nil {
		r.userMap[sess.identity.UserId] = make(map[*Session]struct{})
	}
	r.userMap[sess.identity.UserId][sess] = struct{}{}

	sess.addRoom(r)
}

func (r *Room) removeSession(sess *Session) {
	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()

	delete(r.sessions, sess)
	sess.delRoom(r.key)

	if userSessions, ok := r.userMap[sess.identity.UserId]; ok {
		delete(userSessions, sess)
		if len(userSessions) == 0 {
			delete(r.userMap, sess.identity.UserId)
		}
	}
}

func (r *Room) isMember(sess *Session) bool {
	r.sessionLock.RLock()
	defer r.sessionLock.RUnlock()

	_, ok := r.sessions[sess]
	return ok
}

func (r *Room) memberCount() int {
	r.sessionLock.RLock()
	defer r.sessionLock.RUnlock()

	return len(r.sessions)
}

func (r *Room) userPresent(userId string) bool {
	r.sessionLock.RLock()
	defer r.sessionLock.RUnlock()

	return len(r.userMap[userId]) > 0
}

// broadcast delivers an event to every member session, excluding every
// session of skipUserId so a user with multiple tabs never hears their
// own typing, ringing or signaling. Broadcasting to an empty room is a
// silent no-op.
func (r *Room) broadcast(ev ServerEvent, skipUserId string) {
	r.sessionLock.RLock()
	defer r.sessionLock.RUnlock()

	for sess := range r.sessions {
		if skipUserId != "" && sess.identity.UserId == skipUserId {
			continue
		}

		if sess.queueEvent(ev) {
			r.rs.stats.Incr("EventsDelivered")
		}
	}
}

func wireComment(c database.Comment) types.Comment {
	return types.Comment{
		Id: c.Id,
		Author: types.User{
			Id:             c.AuthorId,
			Username:       c.AuthorUsername,
			ProfilePicture: c.AuthorProfilePicture,
		},
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}
}

func wireNotification(n database.Notification) types.Notification {
	return types.Notification{
		Id: n.Id,
		Sender: types.User{
			Id:             n.SenderId,
			Username:       n.SenderUsername,
			ProfilePicture: n.SenderProfilePicture,
		},
		NotificationType: n.NotificationType,
		Message:          n.Message,
		PostId:           n.PostId,
		CommentId:        n.CommentId,
		IsRead:           n.IsRead,
		CreatedAt:        n.CreatedAt,
		ReadAt:           n.ReadAt,
		TimeAgo:          timeAgo(n.CreatedAt),
	}
}
