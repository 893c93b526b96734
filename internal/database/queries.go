package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

func (db *PgSocialRepository) GetAccountById(accountId string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, profile_picture FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	var picture sql.NullString
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&picture,
	)
	if picture.Valid {
		user.ProfilePicture = &picture.String
	}

	return user, err
}

func (db *PgSocialRepository) GetPostById(postId string) (Post, error) {
	row := db.conn.QueryRow(
		"SELECT id, author_id, content, privacy, is_active, created_at, updated_at FROM posts "+
			"WHERE id = $1 LIMIT 1",
		postId,
	)

	var post Post
	err := row.Scan(
		&post.Id,
		&post.AuthorId,
		&post.Content,
		&post.Privacy,
		&post.IsActive,
		&post.CreatedAt,
		&post.UpdatedAt,
	)

	return post, err
}

func (db *PgSocialRepository) ListActiveComments(postId string) ([]Comment, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.post_id, c.author_id, a.username, a.profile_picture, c.content, c.created_at "+
			"FROM comments c JOIN accounts a ON c.author_id = a.id "+
			"WHERE c.post_id = $1 AND c.is_active = TRUE ORDER BY c.created_at",
		postId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments = make([]Comment, 0)
	for rows.Next() {
		var c Comment
		var picture sql.NullString
		if err = rows.Scan(&c.Id, &c.PostId, &c.AuthorId, &c.AuthorUsername, &picture, &c.Content, &c.CreatedAt); err != nil {
			break
		}
		if picture.Valid {
			c.AuthorProfilePicture = &picture.String
		}
		c.IsActive = true

		comments = append(comments, c)
	}

	return comments, err
}

func (db *PgSocialRepository) CreateComment(params CreateCommentParams) (Comment, error) {
	res := db.conn.QueryRow(
		"INSERT INTO comments (id, post_id, author_id, content, is_active, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, TRUE, $5, $5) RETURNING id, post_id, author_id, content, created_at",
		uuid.NewString(),
		params.PostId,
		params.AuthorId,
		params.Content,
		time.Now().UTC(),
	)

	var c Comment
	err := res.Scan(
		&c.Id,
		&c.PostId,
		&c.AuthorId,
		&c.Content,
		&c.CreatedAt,
	)
	if err != nil {
		return Comment{}, err
	}
	c.IsActive = true

	author, err := db.GetAccountById(c.AuthorId)
	if err != nil {
		return Comment{}, fmt.Errorf("fetch comment author: %w", err)
	}
	c.AuthorUsername = author.Username
	c.AuthorProfilePicture = author.ProfilePicture

	return c, nil
}

func (db *PgSocialRepository) CountComments(postId string) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM comments WHERE post_id = $1 AND is_active = TRUE",
		postId,
	).Scan(&count)

	return count, err
}

// AddLike records a like membership and reports whether the row was newly
// created. A repeated like from the same account is a no-op.
func (db *PgSocialRepository) AddLike(postId, accountId string) (bool, error) {
	res, err := db.conn.Exec(
		"INSERT INTO post_likes (post_id, account_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (post_id, account_id) DO NOTHING",
		postId,
		accountId,
		time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *PgSocialRepository) RemoveLike(postId, accountId string) (bool, error) {
	res, err := db.conn.Exec(
		"DELETE FROM post_likes WHERE post_id = $1 AND account_id = $2",
		postId,
		accountId,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *PgSocialRepository) CountLikes(postId string) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM post_likes WHERE post_id = $1",
		postId,
	).Scan(&count)

	return count, err
}

func (db *PgSocialRepository) IsPostLikedBy(postId, accountId string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM post_likes WHERE post_id = $1 AND account_id = $2)",
		postId,
		accountId,
	).Scan(&exists)

	return exists, err
}

func (db *PgSocialRepository) GetConversationById(conversationId string) (Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT id, participant1_id, participant2_id, created_at, updated_at FROM conversations "+
			"WHERE id = $1 LIMIT 1",
		conversationId,
	)

	var conv Conversation
	err := row.Scan(
		&conv.Id,
		&conv.Participant1Id,
		&conv.Participant2Id,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	return conv, err
}

func (db *PgSocialRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (id, conversation_id, sender_id, content, is_read, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, FALSE, $5, $5) RETURNING id, conversation_id, sender_id, content, is_read, created_at",
		uuid.NewString(),
		params.ConversationId,
		params.SenderId,
		params.Content,
		time.Now().UTC(),
	)

	var msg Message
	err := res.Scan(
		&msg.Id,
		&msg.ConversationId,
		&msg.SenderId,
		&msg.Content,
		&msg.IsRead,
		&msg.CreatedAt,
	)

	return msg, err
}

// MarkMessagesRead flags the given messages read, excluding any the reader
// sent themselves.
func (db *PgSocialRepository) MarkMessagesRead(conversationId, readerId string, messageIds []string) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET is_read = TRUE, updated_at = $4 "+
			"WHERE conversation_id = $1 AND id = ANY($2) AND sender_id <> $3",
		conversationId,
		pq.Array(messageIds),
		readerId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgSocialRepository) CreateCall(params CreateCallParams) (Call, error) {
	res := db.conn.QueryRow(
		"INSERT INTO calls (id, conversation_id, caller_id, receiver_id, call_type, status, started_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, conversation_id, caller_id, receiver_id, call_type, status, started_at",
		uuid.NewString(),
		params.ConversationId,
		params.CallerId,
		params.ReceiverId,
		params.CallType,
		"initiated",
		time.Now().UTC(),
	)

	var call Call
	err := res.Scan(
		&call.Id,
		&call.ConversationId,
		&call.CallerId,
		&call.ReceiverId,
		&call.CallType,
		&call.Status,
		&call.StartedAt,
	)

	return call, err
}

func (db *PgSocialRepository) GetCallById(callId string) (Call, error) {
	row := db.conn.QueryRow(
		"SELECT id, conversation_id, caller_id, receiver_id, call_type, status, started_at, answered_at, ended_at, duration_seconds "+
			"FROM calls WHERE id = $1 LIMIT 1",
		callId,
	)

	var call Call
	var answeredAt, endedAt sql.NullTime
	err := row.Scan(
		&call.Id,
		&call.ConversationId,
		&call.CallerId,
		&call.ReceiverId,
		&call.CallType,
		&call.Status,
		&call.StartedAt,
		&answeredAt,
		&endedAt,
		&call.Duration,
	)
	if answeredAt.Valid {
		call.AnsweredAt = &answeredAt.Time
	}
	if endedAt.Valid {
		call.EndedAt = &endedAt.Time
	}

	return call, err
}

func (db *PgSocialRepository) UpdateCall(params UpdateCallParams) (Call, error) {
	_, err := db.conn.Exec(
		"UPDATE calls SET status = $2, answered_at = COALESCE($3, answered_at), "+
			"ended_at = COALESCE($4, ended_at), duration_seconds = $5 WHERE id = $1",
		params.CallId,
		params.Status,
		params.AnsweredAt,
		params.EndedAt,
		params.Duration,
	)
	if err != nil {
		return Call{}, err
	}

	return db.GetCallById(params.CallId)
}

func (db *PgSocialRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	res := db.conn.QueryRow(
		"INSERT INTO notifications (id, recipient_id, sender_id, notification_type, post_id, comment_id, message, is_read, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8) "+
			"RETURNING id, recipient_id, sender_id, notification_type, message, is_read, created_at",
		uuid.NewString(),
		params.RecipientId,
		params.SenderId,
		params.NotificationType,
		params.PostId,
		params.CommentId,
		params.Message,
		time.Now().UTC(),
	)

	var n Notification
	err := res.Scan(
		&n.Id,
		&n.RecipientId,
		&n.SenderId,
		&n.NotificationType,
		&n.Message,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		return Notification{}, err
	}
	n.PostId = params.PostId
	n.CommentId = params.CommentId

	sender, err := db.GetAccountById(n.SenderId)
	if err != nil {
		return Notification{}, fmt.Errorf("fetch notification sender: %w", err)
	}
	n.SenderUsername = sender.Username
	n.SenderProfilePicture = sender.ProfilePicture

	return n, nil
}

func (db *PgSocialRepository) MarkNotificationRead(notificationId, recipientId string) error {
	_, err := db.conn.Exec(
		"UPDATE notifications SET is_read = TRUE, read_at = $3 "+
			"WHERE id = $1 AND recipient_id = $2 AND is_read = FALSE",
		notificationId,
		recipientId,
		time.Now().UTC(),
	)

	return err
}
