package database

import (
	"github.com/stretchr/testify/mock"
)

type MockSocialRepository struct {
	mock.Mock
}

func (m *MockSocialRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockSocialRepository) GetAccountById(accountId string) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockSocialRepository) GetPostById(postId string) (Post, error) {
	args := m.Called(postId)
	return args.Get(0).(Post), args.Error(1)
}
func (m *MockSocialRepository) ListActiveComments(postId string) ([]Comment, error) {
	args := m.Called(postId)
	return args.Get(0).([]Comment), args.Error(1)
}
func (m *MockSocialRepository) CreateComment(params CreateCommentParams) (Comment, error) {
	args := m.Called(params)
	return args.Get(0).(Comment), args.Error(1)
}
func (m *MockSocialRepository) CountComments(postId string) (int, error) {
	args := m.Called(postId)
	return args.Int(0), args.Error(1)
}
func (m *MockSocialRepository) AddLike(postId, accountId string) (bool, error) {
	args := m.Called(postId, accountId)
	return args.Bool(0), args.Error(1)
}
func (m *MockSocialRepository) RemoveLike(postId, accountId string) (bool, error) {
	args := m.Called(postId, accountId)
	return args.Bool(0), args.Error(1)
}
func (m *MockSocialRepository) CountLikes(postId string) (int, error) {
	args := m.Called(postId)
	return args.Int(0), args.Error(1)
}
func (m *MockSocialRepository) IsPostLikedBy(postId, accountId string) (bool, error) {
	args := m.Called(postId, accountId)
	return args.Bool(0), args.Error(1)
}
func (m *MockSocialRepository) GetConversationById(conversationId string) (Conversation, error) {
	args := m.Called(conversationId)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockSocialRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockSocialRepository) MarkMessagesRead(conversationId, readerId string, messageIds []string) error {
	args := m.Called(conversationId, readerId, messageIds)
	return args.Error(0)
}
func (m *MockSocialRepository) CreateCall(params CreateCallParams) (Call, error) {
	args := m.Called(params)
	return args.Get(0).(Call), args.Error(1)
}
func (m *MockSocialRepository) GetCallById(callId string) (Call, error) {
	args := m.Called(callId)
	return args.Get(0).(Call), args.Error(1)
}
func (m *MockSocialRepository) UpdateCall(params UpdateCallParams) (Call, error) {
	args := m.Called(params)
	return args.Get(0).(Call), args.Error(1)
}
func (m *MockSocialRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	args := m.Called(params)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockSocialRepository) MarkNotificationRead(notificationId, recipientId string) error {
	args := m.Called(notificationId, recipientId)
	return args.Error(0)
}
