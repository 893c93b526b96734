package database

import "time"

type User struct {
	Id             string
	Username       string
	EmailAddress   string
	ProfilePicture *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Post struct {
	Id        string
	AuthorId  string
	Content   string
	Privacy   string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Comment struct {
	Id                   string
	PostId               string
	AuthorId             string
	AuthorUsername       string
	AuthorProfilePicture *string
	Content              string
	IsActive             bool
	CreatedAt            time.Time
}

type Conversation struct {
	Id             string
	Participant1Id string
	Participant2Id string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OtherParticipant returns the participant id opposite userId. The caller
// is expected to have verified membership first.
func (c Conversation) OtherParticipant(userId string) string {
	if c.Participant1Id == userId {
		return c.Participant2Id
	}
	return c.Participant1Id
}

func (c Conversation) HasParticipant(userId string) bool {
	return c.Participant1Id == userId || c.Participant2Id == userId
}

type Message struct {
	Id             string
	ConversationId string
	SenderId       string
	SenderUsername string
	Content        string
	IsRead         bool
	CreatedAt      time.Time
}

type Call struct {
	Id             string
	ConversationId string
	CallerId       string
	ReceiverId     string
	CallType       string
	Status         string
	StartedAt      time.Time
	AnsweredAt     *time.Time
	EndedAt        *time.Time
	Duration       int
}

type Notification struct {
	Id                   string
	RecipientId          string
	SenderId             string
	SenderUsername       string
	SenderProfilePicture *string
	NotificationType     string
	PostId               *string
	CommentId            *string
	Message              string
	IsRead               bool
	CreatedAt            time.Time
	ReadAt               *time.Time
}

type CreateCommentParams struct {
	PostId   string
	AuthorId string
	Content  string
}

type CreateMessageParams struct {
	ConversationId string
	SenderId       string
	Content        string
}

type CreateCallParams struct {
	ConversationId string
	CallerId       string
	ReceiverId     string
	CallType       string
}

type UpdateCallParams struct {
	CallId     string
	Status     string
	AnsweredAt *time.Time
	EndedAt    *time.Time
	Duration   int
}

type CreateNotificationParams struct {
	RecipientId      string
	SenderId         string
	NotificationType string
	PostId           *string
	CommentId        *string
	Message          string
}
