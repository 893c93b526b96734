package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/AS-Aurora/FullStackSocial/internal/types"
)

// Outbound frame tags. One JSON object per frame, discriminated by "type".
const (
	EventInitialData           = "initial_data"
	EventComment               = "comment"
	EventLike                  = "like"
	EventMessage               = "message"
	EventUserStatus            = "user_status"
	EventTyping                = "typing"
	EventMessagesRead          = "messages_read"
	EventCallIncoming          = "call_incoming"
	EventCallAccepted          = "call_accepted"
	EventCallRejected          = "call_rejected"
	EventCallEnded             = "call_ended"
	EventWebRTCOffer           = "webrtc_offer"
	EventWebRTCAnswer          = "webrtc_answer"
	EventWebRTCIceCandidate    = "webrtc_ice_candidate"
	EventNotification          = "notification"
	EventConnectionEstablished = "connection_established"
	EventError                 = "error"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ServerEvent is one outbound frame. Events are ephemeral: durable side
// effects are written to the store before the event is constructed.
type ServerEvent interface {
	eventType() string
}

type baseEvent struct {
	Type string `json:"type"`
}

func (b baseEvent) eventType() string { return b.Type }

type InitialDataEvent struct {
	baseEvent
	LikesCount int             `json:"likes_count"`
	IsLiked    bool            `json:"is_liked"`
	Comments   []types.Comment `json:"comments"`
}

func NewInitialDataEvent(likesCount int, isLiked bool, comments []types.Comment) *InitialDataEvent {
	return &InitialDataEvent{
		baseEvent:  baseEvent{Type: EventInitialData},
		LikesCount: likesCount,
		IsLiked:    isLiked,
		Comments:   comments,
	}
}

type CommentEvent struct {
	baseEvent
	Comment      types.Comment `json:"comment"`
	CommentCount int           `json:"comment_count"`
}

func NewCommentEvent(comment types.Comment, commentCount int) *CommentEvent {
	return &CommentEvent{
		baseEvent:    baseEvent{Type: EventComment},
		Comment:      comment,
		CommentCount: commentCount,
	}
}

type LikeEvent struct {
	baseEvent
	LikesCount int    `json:"likes_count"`
	UserId     string `json:"user_id"`
	IsLiked    bool   `json:"is_liked"`
}

func NewLikeEvent(likesCount int, userId string, isLiked bool) *LikeEvent {
	return &LikeEvent{
		baseEvent:  baseEvent{Type: EventLike},
		LikesCount: likesCount,
		UserId:     userId,
		IsLiked:    isLiked,
	}
}

type MessageEvent struct {
	baseEvent
	MessageId            string  `json:"message_id"`
	Message              string  `json:"message"`
	SenderId             string  `json:"sender_id"`
	SenderUsername       string  `json:"sender_username"`
	SenderProfilePicture *string `json:"sender_profile_picture"`
	Timestamp            string  `json:"timestamp"`
	IsRead               bool    `json:"is_read"`
}

type UserStatusEvent struct {
	baseEvent
	UserId   string `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

func NewUserStatusEvent(userId, username, status string) *UserStatusEvent {
	return &UserStatusEvent{
		baseEvent: baseEvent{Type: EventUserStatus},
		UserId:    userId,
		Username:  username,
		Status:    status,
	}
}

type TypingEvent struct {
	baseEvent
	UserId   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type MessagesReadEvent struct {
	baseEvent
	MessageIds []string `json:"message_ids"`
	ReaderId   string   `json:"reader_id"`
}

type CallIncomingEvent struct {
	baseEvent
	CallId               string  `json:"call_id"`
	CallType             string  `json:"call_type"`
	CallerId             string  `json:"caller_id"`
	CallerUsername       string  `json:"caller_username"`
	CallerProfilePicture *string `json:"caller_profile_picture"`
}

type CallAcceptedEvent struct {
	baseEvent
	CallId           string `json:"call_id"`
	AcceptorId       string `json:"acceptor_id"`
	AcceptorUsername string `json:"acceptor_username"`
}

type CallRejectedEvent struct {
	baseEvent
	CallId     string `json:"call_id"`
	RejectorId string `json:"rejector_id"`
}

type CallEndedEvent struct {
	baseEvent
	CallId  string `json:"call_id"`
	EndedBy string `json:"ended_by"`
}

type WebRTCOfferEvent struct {
	baseEvent
	Offer    json.RawMessage `json:"offer"`
	SenderId string          `json:"sender_id"`
}

type WebRTCAnswerEvent struct {
	baseEvent
	Answer   json.RawMessage `json:"answer"`
	SenderId string          `json:"sender_id"`
}

type WebRTCIceCandidateEvent struct {
	baseEvent
	Candidate json.RawMessage `json:"candidate"`
	SenderId  string          `json:"sender_id"`
}

type NotificationEvent struct {
	baseEvent
	Notification types.Notification `json:"notification"`
}

func NewNotificationEvent(n types.Notification) *NotificationEvent {
	return &NotificationEvent{
		baseEvent:    baseEvent{Type: EventNotification},
		Notification: n,
	}
}

type ConnectionEstablishedEvent struct {
	baseEvent
	Message string `json:"message"`
}

func NewConnectionEstablishedEvent() *ConnectionEstablishedEvent {
	return &ConnectionEstablishedEvent{
		baseEvent: baseEvent{Type: EventConnectionEstablished},
		Message:   "Connected to notifications",
	}
}

// ErrorEvent is a targeted reply to the originating session only. Business
// errors never close the connection and are never broadcast.
type ErrorEvent struct {
	baseEvent
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newErrorEvent(code int, message string) *ErrorEvent {
	return &ErrorEvent{
		baseEvent: baseEvent{Type: EventError},
		Code:      code,
		Message:   message,
	}
}

func ErrInternalError() *ErrorEvent {
	return newErrorEvent(http.StatusInternalServerError, "internal server error")
}

func ErrNotFound(what string) *ErrorEvent {
	return newErrorEvent(http.StatusNotFound, what+" not found")
}

func ErrForbidden(message string) *ErrorEvent {
	return newErrorEvent(http.StatusForbidden, message)
}

func ErrConflict(message string) *ErrorEvent {
	return newErrorEvent(http.StatusConflict, message)
}

func ErrServiceUnavailable() *ErrorEvent {
	return newErrorEvent(http.StatusServiceUnavailable, "service unavailable")
}

func serializeEvent(ev ServerEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

// timeAgo renders a coarse human-readable age for notification payloads.
func timeAgo(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 02, 2006")
	}
}
