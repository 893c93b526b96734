package server

import (
	"fmt"
	"time"

	"github.com/AS-Aurora/FullStackSocial/internal/database"
	"github.com/AS-Aurora/FullStackSocial/internal/types"
)

// Call lifecycle inside a conversation. Transitions are guarded by role:
// only the receiver answers (accept or reject a ringing call), either
// participant hangs up. A call in a terminal state admits no further
// transitions and attempts get a conflict reply.

func canAccept(call database.Call, userId string) error {
	if call.Status != types.CallStatusInitiated {
		return fmt.Errorf("call is %s", call.Status)
	}
	if call.ReceiverId != userId {
		return errNotReceiver
	}
	return nil
}

func canReject(call database.Call, userId string) error {
	if call.Status != types.CallStatusInitiated {
		return fmt.Errorf("call is %s", call.Status)
	}
	if call.ReceiverId != userId {
		return errNotReceiver
	}
	return nil
}

func canEnd(call database.Call, userId string) error {
	if call.Status != types.CallStatusInitiated && call.Status != types.CallStatusAccepted {
		return fmt.Errorf("call is %s", call.Status)
	}
	if call.CallerId != userId && call.ReceiverId != userId {
		return errNotParticipant
	}
	return nil
}

var (
	errNotReceiver    = fmt.Errorf("only the receiver can answer")
	errNotParticipant = fmt.Errorf("not a call participant")
)

// callDuration is seconds of connected talk time. An unanswered call has
// no duration.
func callDuration(answeredAt *time.Time, endedAt time.Time) int {
	if answeredAt == nil {
		return 0
	}

	d := int(endedAt.Sub(*answeredAt).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

func (r *Room) handleCallInitiate(act *ClientAction) {
	callType := act.CallType
	if callType == "" {
		callType = types.CallTypeVideo
	}
	if callType != types.CallTypeVideo && callType != types.CallTypeAudio {
		act.session.queueEvent(ErrConflict(fmt.Sprintf("unknown call type %q", callType)))
		return
	}

	conv, err := r.rs.db.GetConversationById(r.entityId)
	if err != nil {
		r.log.Println("GetConversationById:", err)
		act.session.queueEvent(ErrNotFound("conversation"))
		return
	}

	call, err := r.rs.db.CreateCall(database.CreateCallParams{
		ConversationId: r.entityId,
		CallerId:       act.session.identity.UserId,
		ReceiverId:     conv.OtherParticipant(act.session.identity.UserId),
		CallType:       callType,
	})
	if err != nil {
		r.log.Println("CreateCall:", err)
		act.session.queueEvent(ErrInternalError())
		return
	}

	r.broadcast(&CallIncomingEvent{
		baseEvent:            baseEvent{Type: EventCallIncoming},
		CallId:               call.Id,
		CallType:             call.CallType,
		CallerId:             act.session.identity.UserId,
		CallerUsername:       act.session.identity.Username,
		CallerProfilePicture: act.session.identity.ProfilePicture,
	}, act.session.identity.UserId)
}

func (r *Room) handleCallAccept(act *ClientAction) {
	call, ok := r.loadCall(act)
	if !ok {
		return
	}

	if err := canAccept(call, act.session.identity.UserId); err != nil {
		r.replyCallDenied(act, err)
		return
	}

	now := Now()
	if _, err := r.rs.db.UpdateCall(database.UpdateCallParams{
		CallId:     call.Id,
		Status:     types.CallStatusAccepted,
		AnsweredAt: &now,
	}); err != nil {
		r.log.Println("UpdateCall:", err)
		act.session.queueEvent(ErrInternalError())
		return
	}

	r.broadcast(&CallAcceptedEvent{
		baseEvent:        baseEvent{Type: EventCallAccepted},
		CallId:           call.Id,
		AcceptorId:       act.session.identity.UserId,
		AcceptorUsername: act.session.identity.Username,
	}, "")

	r.createAndPublishNotification(database.CreateNotificationParams{
		RecipientId:      call.CallerId,
		SenderId:         act.session.identity.UserId,
		NotificationType: types.NotificationTypeCall,
		Message:          fmt.Sprintf("%s accepted your call.", act.session.identity.Username),
	})
}

func (r *Room) handleCallReject(act *ClientAction) {
	call, ok := r.loadCall(act)
	if !ok {
		return
	}

	if err := canReject(call, act.session.identity.UserId); err != nil {
		r.replyCallDenied(act, err)
		return
	}

	now := Now()
	if _, err := r.rs.db.UpdateCall(database.UpdateCallParams{
		CallId:  call.Id,
		Status:  types.CallStatusRejected,
		EndedAt: &now,
	}); err != nil {
		r.log.Println("UpdateCall:", err)
		act.session.queueEvent(ErrInternalError())
		return
	}

	r.broadcast(&CallRejectedEvent{
		baseEvent:  baseEvent{Type: EventCallRejected},
		CallId:     call.Id,
		RejectorId: act.session.identity.UserId,
	}, "")

	r.createAndPublishNotification(database.CreateNotificationParams{
		RecipientId:      call.CallerId,
		SenderId:         act.session.identity.UserId,
		NotificationType: types.NotificationTypeCall,
		Message:          fmt.Sprintf("%s declined your call.", act.session.identity.Username),
	})
}

func (r *Room) handleCallEnd(act *ClientAction) {
	call, ok := r.loadCall(act)
	if !ok {
		return
	}

	if err := canEnd(call, act.session.identity.UserId); err != nil {
		r.replyCallDenied(act, err)
		return
	}

	now := Now()
	if _, err := r.rs.db.UpdateCall(database.UpdateCallParams{
		CallId:   call.Id,
		Status:   types.CallStatusEnded,
		EndedAt:  &now,
		Duration: callDuration(call.AnsweredAt, now),
	}); err != nil {
		r.log.Println("UpdateCall:", err)
		act.session.queueEvent(ErrInternalError())
		return
	}

	r.broadcast(&CallEndedEvent{
		baseEvent: baseEvent{Type: EventCallEnded},
		CallId:    call.Id,
		EndedBy:   act.session.identity.UserId,
	}, "")

	recipient := call.CallerId
	if act.session.identity.UserId == call.CallerId {
		recipient = call.ReceiverId
	}
	r.createAndPublishNotification(database.CreateNotificationParams{
		RecipientId:      recipient,
		SenderId:         act.session.identity.UserId,
		NotificationType: types.NotificationTypeCall,
		Message:          fmt.Sprintf("%s ended the call.", act.session.identity.Username),
	})
}

func (r *Room) loadCall(act *ClientAction) (database.Call, bool) {
	if act.CallId == "" {
		act.session.queueEvent(ErrNotFound("call"))
		return database.Call{}, false
	}

	call, err := r.rs.db.GetCallById(act.CallId)
	if err != nil {
		r.log.Println("GetCallById:", err)
		act.session.queueEvent(ErrNotFound("call"))
		return database.Call{}, false
	}

	// a call only exists inside its own conversation's room
	if call.ConversationId != r.entityId {
		act.session.queueEvent(ErrNotFound("call"))
		return database.Call{}, false
	}

	return call, true
}

func (r *Room) replyCallDenied(act *ClientAction, err error) {
	switch err {
	case errNotReceiver, errNotParticipant:
		act.session.queueEvent(ErrForbidden(err.Error()))
	default:
		act.session.queueEvent(ErrConflict(fmt.Sprintf("cannot %s: %s", act.Action, err)))
	}
}
