package types

import (
	"time"
)

type User struct {
	Id             string  `json:"id"`
	Username       string  `json:"username"`
	ProfilePicture *string `json:"profile_picture"`
}

type Comment struct {
	Id        string    `json:"id"`
	Author    User      `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	CallTypeVideo = "video"
	CallTypeAudio = "audio"
)

// Call statuses. Missed and failed are reachable only through out-of-band
// timeout handling, which no inbound action drives.
const (
	CallStatusInitiated = "initiated"
	CallStatusAccepted  = "accepted"
	CallStatusRejected  = "rejected"
	CallStatusEnded     = "ended"
	CallStatusMissed    = "missed"
	CallStatusFailed    = "failed"
)

const (
	NotificationTypeLike    = "like"
	NotificationTypeComment = "comment"
	NotificationTypeFollow  = "follow"
	NotificationTypePost    = "post"
	NotificationTypeCall    = "call"
)

type Notification struct {
	Id               string     `json:"id"`
	Sender           User       `json:"sender"`
	NotificationType string     `json:"notification_type"`
	Message          string     `json:"message"`
	PostId           *string    `json:"post_id"`
	CommentId        *string    `json:"comment_id"`
	IsRead           bool       `json:"is_read"`
	CreatedAt        time.Time  `json:"created_at"`
	ReadAt           *time.Time `json:"read_at,omitempty"`
	TimeAgo          string     `json:"time_ago"`
}
