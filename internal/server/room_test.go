package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/AS-Aurora/FullStackSocial/internal/database"
	"github.com/AS-Aurora/FullStackSocial/internal/stats"
	"github.com/AS-Aurora/FullStackSocial/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestRoom(t *testing.T, rs *RealtimeServer, key string) *Room {
	kind, entityId, err := parseRoomKey(key)
	require.NoError(t, err)
	return newRoom(key, kind, entityId, rs)
}

func Test_addSession_removeSession(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, &database.MockSocialRepository{}, su)
	room := newTestRoom(t, rs, ChatRoomKey("c1"))

	s1 := newTestSession(t, "u1", "alice")
	s2 := newTestSession(t, "u1", "alice")

	room.addSession(s1)
	room.addSession(s2)
	assert.Equal(t, 2, room.memberCount())
	assert.True(t, room.userPresent("u1"))
	assert.True(t, room.isMember(s1))

	_, bound := s1.getRoom(room.key)
	assert.True(t, bound, "expected session to be bound to room")

	room.removeSession(s1)
	assert.Equal(t, 1, room.memberCount())
	assert.True(t, room.userPresent("u1"), "user still present through second session")

	room.removeSession(s2)
	assert.Equal(t, 0, room.memberCount())
	assert.False(t, room.userPresent("u1"))
}

func Test_handleJoin_idempotent(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, &database.MockSocialRepository{}, su)
	room := newTestRoom(t, rs, NotifyRoomKey("u1"))

	sess := newTestSession(t, "u1", "alice")
	room.handleJoin(sess)
	room.handleJoin(sess)

	assert.Equal(t, 1, room.memberCount(), "joining twice must not duplicate membership")

	ev := recvEvent(t, sess)
	assert.Equal(t, EventConnectionEstablished, ev.eventType())
	assertNoEvent(t, sess, "second join must not replay the welcome event")
}

func Test_handleJoin_postSendsInitialData(t *testing.T) {
	db := &database.MockSocialRepository{}
	defer db.AssertExpectations(t)
	db.On("CountLikes", "p1").Return(3, nil)
	db.On("IsPostLikedBy", "p1", "u1").Return(true, nil)
	db.On("ListActiveComments", "p1").Return([]database.Comment{
		{Id: "cm1", PostId: "p1", AuthorId: "u2", AuthorUsername: "bob", Content: "hi"},
	}, nil)

	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, db, su)
	room := newTestRoom(t, rs, PostRoomKey("p1"))

	sess := newTestSession(t, "u1", "alice")
	room.handleJoin(sess)

	ev := recvEvent(t, sess)
	initial, ok := ev.(*InitialDataEvent)
	require.True(t, ok, "expected initial_data, got %q", ev.eventType())
	assert.Equal(t, 3, initial.LikesCount)
	assert.True(t, initial.IsLiked)
	require.Len(t, initial.Comments, 1)
	assert.Equal(t, "bob", initial.Comments[0].Author.Username)
}

func Test_handleJoin_chatBroadcastsOnlineStatus(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, &database.MockSocialRepository{}, su)
	room := newTestRoom(t, rs, ChatRoomKey("c1"))

	peer := newTestSession(t, "u2", "bob")
	room.handleJoin(peer)
	recvEvent(t, peer) // bob's own join status

	joiner := newTestSession(t, "u1", "alice")
	room.handleJoin(joiner)

	for _, sess := range []*Session{peer, joiner} {
		ev := recvEvent(t, sess)
		status, ok := ev.(*UserStatusEvent)
		require.True(t, ok, "expected user_status, got %q", ev.eventType())
		assert.Equal(t, "u1", status.UserId)
		assert.Equal(t, StatusOnline, status.Status)
	}
}

func Test_broadcast(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, &database.MockSocialRepository{}, su)

	t.Run("empty room is a no-op", func(t *testing.T) {
		room := newTestRoom(t, rs, ChatRoomKey("c1"))
		room.broadcast(NewConnectionEstablishedEvent(), "")
	})

	t.Run("skip excludes every session of the user", func(t *testing.T) {
		room := newTestRoom(t, rs, ChatRoomKey("c1"))

		origin := newTestSession(t, "u1", "alice")
		sibling := newTestSession(t, "u1", "alice")
		peer := newTestSession(t, "u2", "bob")
		room.addSession(origin)
		room.addSession(sibling)
		room.addSession(peer)

		room.broadcast(NewUserStatusEvent("u1", "alice", StatusOnline), "u1")

		assertNoEvent(t, origin)
		assertNoEvent(t, sibling, "a second tab of the acting user must be excluded too")
		recvEvent(t, peer)
	})

	t.Run("no skip delivers to all sessions of the same user", func(t *testing.T) {
		room := newTestRoom(t, rs, ChatRoomKey("c1"))

		s1 := newTestSession(t, "u1", "alice")
		s2 := newTestSession(t, "u1", "alice")
		room.addSession(s1)
		room.addSession(s2)

		room.broadcast(NewConnectionEstablishedEvent(), "")
		recvEvent(t, s1)
		recvEvent(t, s2)
	})
}

func Test_handleComment(t *testing.T) {
	t.Run("persists, broadcasts and notifies the author", func(t *testing.T) {
		db := &database.MockSocialRepository{}
		defer db.AssertExpectations(t)
		db.On("GetPostById", "p1").Return(database.Post{Id: "p1", AuthorId: "author", IsActive: true}, nil)
		db.On("CreateComment", database.CreateCommentParams{PostId: "p1", AuthorId: "u1", Content: "nice post"}).
			Return(database.Comment{Id: "cm1", PostId: "p1", AuthorId: "u1", AuthorUsername: "alice", Content: "nice post"}, nil)
		db.On("CountComments", "p1").Return(5, nil)
		db.On("CreateNotification", mock.MatchedBy(func(p database.CreateNotificationParams) bool {
			return p.RecipientId == "author" && p.SenderId == "u1" && p.NotificationType == types.NotificationTypeComment
		})).Return(database.Notification{Id: "n1", RecipientId: "author", SenderId: "u1", SenderUsername: "alice", CreatedAt: Now()}, nil)

		su := &stats.MockStatsUpdater{}
		rs := newTestRealtimeServer(t, db, su)
		go rs.Run()
		defer rs.Shutdown(context.Background())

		room := newTestRoom(t, rs, PostRoomKey("p1"))
		origin := newTestSession(t, "u1", "alice")
		peer := newTestSession(t, "u2", "bob")
		room.addSession(origin)
		room.addSession(peer)

		room.handleAction(&ClientAction{Action: ActionComment, Content: "nice post", session: origin})

		// comment events echo to the origin session too
		for _, sess := range []*Session{origin, peer} {
			ev := recvEvent(t, sess)
			ce, ok := ev.(*CommentEvent)
			require.True(t, ok, "expected comment, got %q", ev.eventType())
			assert.Equal(t, "cm1", ce.Comment.Id)
			assert.Equal(t, 5, ce.CommentCount)
		}
	})

	t.Run("blank content is dropped", func(t *testing.T) {
		db := &database.MockSocialRepository{}
		defer db.AssertExpectations(t)

		su := &stats.MockStatsUpdater{}
		rs := newTestRealtimeServer(t, db, su)
		room := newTestRoom(t, rs, PostRoomKey("p1"))
		origin := newTestSession(t, "u1", "alice")
		room.addSession(origin)

		room.handleAction(&ClientAction{Action: ActionComment, Content: "   ", session: origin})
		assertNoEvent(t, origin)
	})

	t.Run("missing post replies not found", func(t *testing.T) {
		db := &database.MockSocialRepository{}
		defer db.AssertExpectations(t)
		db.On("GetPostById", "p1").Return(database.Post{}, sql.ErrNoRows)

		su := &stats.MockStatsUpdater{}
		rs := newTestRealtimeServer(t, db, su)
		room := newTestRoom(t, rs, PostRoomKey("p1"))
		origin := newTestSession(t, "u1", "alice")
		room.addSession(origin)

		room.handleAction(&ClientAction{Action: ActionComment, Content: "hello", session: origin})

		ev := recvEvent(t, origin)
		errEv, ok := ev.(*ErrorEvent)
		require.True(t, ok)
		assert.Equal(t, 404, errEv.Code)
	})

	t.Run("commenting on your own post creates no notification", func(t *testing.T) {
		db := &database.MockSocialRepository{}
		defer db.AssertExpectations(t)
		db.On("GetPostById", "p1").Return(database.Post{Id: "p1", AuthorId: "u1", IsActive: true}, nil)
		db.On("CreateComment", mock.Anything).Return(database.Comment{Id: "cm1", AuthorId: "u1"}, nil)
		db.On("CountComments", "p1").Return(1, nil)
		// no CreateNotification expectation: calling it would fail the mock

		su := &stats.MockStatsUpdater{}
		rs := newTestRealtimeServer(t, db, su)
		room := newTestRoom(t, rs, PostRoomKey("p1"))
		origin := newTestSession(t, "u1", "alice")
		room.addSession(origin)

		room.handleAction(&ClientAction{Action: ActionComment, Content: "self reply", session: origin})
		recvEvent(t, origin)
	})
}

func Test_handleLikeToggle(t *testing.T) {
	t.Run("new like broadcasts and notifies", func(t *testing.T) {
		db := &database.MockSocialRepository{}
		defer db.AssertExpectations(t)
		db.On("GetPostById", "p1").Return(database.Post{Id: "p1", AuthorId: "author", IsActive: true}, nil)
		db.On("AddLike", "p1", "u1").Return(true, nil)
		db.On("CountLikes", "p1").Return(1, nil)
		db.On("CreateNotification", mock.MatchedBy(func(p database.CreateNotificationParams) bool {
			return p.RecipientId == "author" && p.NotificationType == types.NotificationTypeLike
		})).Return(database.Notification{Id: "n1", RecipientId: "author", SenderId: "u1", CreatedAt: Now()}, nil)

		su := &stats.MockStatsUpdater{}
		rs := newTestRealtimeServer(t, db, su)
		go rs.Run()
		defer rs.Shutdown(context.Background())

		room := newTestRoom(t, rs, PostRoomKey("p1"))
		origin := newTestSession(t, "u1", "alice")
		room.addSession(origin)

		room.handleAction(&ClientAction{Action: ActionLike, session: origin})

		ev := recvEvent(t, origin)
		like, ok := ev.(*LikeEvent)
		require.True(t, ok)
		assert.Equal(t, 1, like.LikesCount)
		assert.True(t, like.IsLiked)
		assert.Equal(t, "u1", like.UserId)
	})

	t.Run("repeated like still broadcasts but does not notify", func(t *testing.T) {
		db := &database.MockSocialRepository{}
		defer db.AssertExpectations(t)
		db.On("GetPostById", "p1").Return(database.Post{Id: "p1", AuthorId: "author", IsActive: true}, nil)
		db.On("AddLike", "p1", "u1").Return(false, nil)
		db.On("CountLikes", "p1").Return(1, nil)

		su := &stats.MockStatsUpdater{}
		rs := newTestRealtimeServer(t, db, su)
		room := newTestRoom(t, rs, PostRoomKey("p1"))
		origin := newTestSession(t, "u1", "alice")
		room.addSession(origin)

		room.handleAction(&ClientAction{Action: ActionLike, session: origin})
		recvEvent(t, origin)
	})

	t.Run("unlike broadcasts with is_liked false", func(t *testing.T) {
		db := &database.MockSocialRepository{}
		defer db.AssertExpectations(t)
		db.On("GetPostById", "p1").Return(database.Post{Id: "p1", AuthorId: "author", IsActive: true}, nil)
		db.On("RemoveLike", "p1", "u1").Return(true, nil)
		db.On("CountLikes", "p1").Return(0, nil)

		su := &stats.MockStatsUpdater{}
		rs := newTestRealtimeServer(t, db, su)
		room := newTestRoom(t, rs, PostRoomKey("p1"))
		origin := newTestSession(t, "u1", "alice")
		room.addSession(origin)

		room.handleAction(&ClientAction{Action: ActionUnlike, session: origin})

		ev := recvEvent(t, origin)
		like, ok := ev.(*LikeEvent)
		require.True(t, ok)
		assert.False(t, like.IsLiked)
		assert.Equal(t, 0, like.LikesCount)
	})
}

func Test_handleMessage(t *testing.T) {
	db := &database.MockSocialRepository{}
	defer db.AssertExpectations(t)
	sent := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	db.On("CreateMessage", database.CreateMessageParams{ConversationId: "c1", SenderId: "u1", Content: "hello"}).
		Return(database.Message{Id: "m1", ConversationId: "c1", SenderId: "u1", Content: "hello", CreatedAt: sent}, nil)

	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, db, su)
	room := newTestRoom(t, rs, ChatRoomKey("c1"))

	origin := newTestSession(t, "u1", "alice")
	peer := newTestSession(t, "u2", "bob")
	room.addSession(origin)
	room.addSession(peer)

	room.handleAction(&ClientAction{Action: ActionMessage, Message: "hello", session: origin})

	// messages echo to the sender so all tabs converge
	for _, sess := range []*Session{origin, peer} {
		ev := recvEvent(t, sess)
		msg, ok := ev.(*MessageEvent)
		require.True(t, ok, "expected message, got %q", ev.eventType())
		assert.Equal(t, "m1", msg.MessageId)
		assert.Equal(t, "hello", msg.Message)
		assert.Equal(t, "u1", msg.SenderId)
		assert.Equal(t, "alice", msg.SenderUsername)
		assert.False(t, msg.IsRead)
	}
}

func Test_handleTyping_notEchoed(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, &database.MockSocialRepository{}, su)
	room := newTestRoom(t, rs, ChatRoomKey("c1"))

	origin := newTestSession(t, "u1", "alice")
	secondTab := newTestSession(t, "u1", "alice")
	peer := newTestSession(t, "u2", "bob")
	room.addSession(origin)
	room.addSession(secondTab)
	room.addSession(peer)

	room.handleAction(&ClientAction{Action: ActionTyping, IsTyping: true, session: origin})

	ev := recvEvent(t, peer)
	typing, ok := ev.(*TypingEvent)
	require.True(t, ok)
	assert.True(t, typing.IsTyping)
	assert.Equal(t, "u1", typing.UserId)

	assertNoEvent(t, origin, "typing must not echo to its origin")
	assertNoEvent(t, secondTab, "typing must not echo to the typist's other tabs")
}

func Test_handleMarkMessagesRead(t *testing.T) {
	db := &database.MockSocialRepository{}
	defer db.AssertExpectations(t)
	db.On("MarkMessagesRead", "c1", "u2", []string{"m1", "m2"}).Return(nil)

	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, db, su)
	room := newTestRoom(t, rs, ChatRoomKey("c1"))

	reader := newTestSession(t, "u2", "bob")
	sender := newTestSession(t, "u1", "alice")
	room.addSession(reader)
	room.addSession(sender)

	room.handleAction(&ClientAction{Action: ActionMarkRead, MessageIds: []string{"m1", "m2"}, session: reader})

	for _, sess := range []*Session{reader, sender} {
		ev := recvEvent(t, sess)
		read, ok := ev.(*MessagesReadEvent)
		require.True(t, ok)
		assert.Equal(t, []string{"m1", "m2"}, read.MessageIds)
		assert.Equal(t, "u2", read.ReaderId)
	}
}

func Test_handleStatusRequest(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, &database.MockSocialRepository{}, su)
	room := newTestRoom(t, rs, ChatRoomKey("c1"))

	alice := newTestSession(t, "u1", "alice")
	bob := newTestSession(t, "u2", "bob")
	room.addSession(alice)
	room.addSession(bob)

	room.handleAction(&ClientAction{Action: ActionRequestStatus, session: alice})

	seen := make(map[string]bool)
	for i := 0; i < 2; i++ {
		ev := recvEvent(t, alice)
		status, ok := ev.(*UserStatusEvent)
		require.True(t, ok)
		assert.Equal(t, StatusOnline, status.Status)
		seen[status.UserId] = true
	}
	assert.True(t, seen["u1"] && seen["u2"], "expected status for both present users")
}

func Test_webRTCRelay(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, &database.MockSocialRepository{}, su)
	room := newTestRoom(t, rs, ChatRoomKey("c1"))

	origin := newTestSession(t, "u1", "alice")
	secondTab := newTestSession(t, "u1", "alice")
	peer := newTestSession(t, "u2", "bob")
	room.addSession(origin)
	room.addSession(secondTab)
	room.addSession(peer)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0..."}`)
	room.handleAction(&ClientAction{Action: ActionWebRTCOffer, Offer: offer, session: origin})

	ev := recvEvent(t, peer)
	fwd, ok := ev.(*WebRTCOfferEvent)
	require.True(t, ok)
	assert.JSONEq(t, string(offer), string(fwd.Offer), "payload must be forwarded verbatim")
	assert.Equal(t, "u1", fwd.SenderId)

	assertNoEvent(t, origin, "signaling never returns to its sender")
	assertNoEvent(t, secondTab, "signaling never returns to the sender's other tabs")

	t.Run("empty payload dropped", func(t *testing.T) {
		room.handleAction(&ClientAction{Action: ActionWebRTCAnswer, session: origin})
		assertNoEvent(t, peer)
	})
}

func Test_handleMarkNotificationRead(t *testing.T) {
	db := &database.MockSocialRepository{}
	defer db.AssertExpectations(t)
	db.On("MarkNotificationRead", "n1", "u1").Return(nil)

	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, db, su)
	room := newTestRoom(t, rs, NotifyRoomKey("u1"))

	sess := newTestSession(t, "u1", "alice")
	room.addSession(sess)

	room.handleAction(&ClientAction{Action: ActionMarkRead, NotificationId: "n1", session: sess})
	assertNoEvent(t, sess, "mark_read acks nothing on success")
}

func Test_handleAction_kindGating(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, &database.MockSocialRepository{}, su)

	t.Run("chat action in post room is dropped", func(t *testing.T) {
		room := newTestRoom(t, rs, PostRoomKey("p1"))
		sess := newTestSession(t, "u1", "alice")
		room.addSession(sess)

		room.handleAction(&ClientAction{Action: ActionMessage, Message: "hi", session: sess})
		assertNoEvent(t, sess)
	})

	t.Run("unknown action is dropped", func(t *testing.T) {
		room := newTestRoom(t, rs, ChatRoomKey("c1"))
		sess := newTestSession(t, "u1", "alice")
		room.addSession(sess)

		room.handleAction(&ClientAction{Action: "subscribe", session: sess})
		assertNoEvent(t, sess)
	})
}

func Test_presence(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, &database.MockSocialRepository{}, su)

	t.Run("offline broadcast after last session leaves", func(t *testing.T) {
		room := newTestRoom(t, rs, ChatRoomKey("c1"))
		leaver := newTestSession(t, "u1", "alice")
		peer := newTestSession(t, "u2", "bob")
		room.addSession(leaver)
		room.addSession(peer)

		room.removeSession(leaver)
		room.handlePresenceCheck(presenceCheck{userId: "u1", username: "alice"})

		ev := recvEvent(t, peer)
		status, ok := ev.(*UserStatusEvent)
		require.True(t, ok)
		assert.Equal(t, StatusOffline, status.Status)
		assert.Equal(t, "u1", status.UserId)
	})

	t.Run("reconnect within grace suppresses offline", func(t *testing.T) {
		room := newTestRoom(t, rs, ChatRoomKey("c1"))
		stillHere := newTestSession(t, "u1", "alice")
		peer := newTestSession(t, "u2", "bob")
		room.addSession(stillHere)
		room.addSession(peer)

		// user reconnected before the check fired
		room.handlePresenceCheck(presenceCheck{userId: "u1", username: "alice"})
		assertNoEvent(t, peer)
	})

	t.Run("second session keeps user online", func(t *testing.T) {
		room := newTestRoom(t, rs, ChatRoomKey("c1"))
		s1 := newTestSession(t, "u1", "alice")
		s2 := newTestSession(t, "u1", "alice")
		room.addSession(s1)
		room.addSession(s2)

		room.removeSession(s1)
		assert.True(t, room.userPresent("u1"))
	})
}

func Test_handleRoomExit(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	rs := newTestRealtimeServer(t, &database.MockSocialRepository{}, su)
	room := newTestRoom(t, rs, ChatRoomKey("c1"))

	sess := newTestSession(t, "u1", "alice")
	room.addSession(sess)

	done := make(chan bool)
	go room.handleRoomExit(exitReq{done: done})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout: handleRoomExit did not complete")
	}

	_, bound := sess.getRoom(room.key)
	assert.False(t, bound, "expected session unbound from exited room")

	select {
	case <-room.done:
	default:
		t.Error("expected room done channel to be closed")
	}
}

func Test_wireNotification(t *testing.T) {
	created := time.Now().Add(-2 * time.Hour)
	pic := "avatar.png"
	n := database.Notification{
		Id:                   "n1",
		RecipientId:          "u2",
		SenderId:             "u1",
		SenderUsername:       "alice",
		SenderProfilePicture: &pic,
		NotificationType:     types.NotificationTypeLike,
		Message:              "alice liked your post.",
		CreatedAt:            created,
	}

	wire := wireNotification(n)
	assert.Equal(t, "n1", wire.Id)
	assert.Equal(t, "alice", wire.Sender.Username)
	assert.Equal(t, types.NotificationTypeLike, wire.NotificationType)
	assert.Equal(t, "2h ago", wire.TimeAgo)
}
