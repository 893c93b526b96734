package database

type SocialRepository interface {
	Ping() error
	GetAccountById(accountId string) (User, error)
	GetPostById(postId string) (Post, error)
	ListActiveComments(postId string) ([]Comment, error)
	CreateComment(params CreateCommentParams) (Comment, error)
	CountComments(postId string) (int, error)
	AddLike(postId, accountId string) (bool, error)
	RemoveLike(postId, accountId string) (bool, error)
	CountLikes(postId string) (int, error)
	IsPostLikedBy(postId, accountId string) (bool, error)
	GetConversationById(conversationId string) (Conversation, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	MarkMessagesRead(conversationId, readerId string, messageIds []string) error
	CreateCall(params CreateCallParams) (Call, error)
	GetCallById(callId string) (Call, error)
	UpdateCall(params UpdateCallParams) (Call, error)
	CreateNotification(params CreateNotificationParams) (Notification, error)
	MarkNotificationRead(notificationId, recipientId string) error
}
