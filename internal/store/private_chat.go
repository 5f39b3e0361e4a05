package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// markReadSQL is the only statement that flips a message to read. Callers
// append further AND conditions; the is_read guard keeps read_at set once.
const markReadSQL = "UPDATE private_messages SET is_read = 1, read_at = ? WHERE is_read = 0"

const sessionColumns = "id, user_a_id, user_b_id, created_at, updated_at, is_active"

func scanSession(row interface{ Scan(...any) error }) (*ChatSession, error) {
	var session ChatSession
	err := row.Scan(&session.ID, &session.UserAID, &session.UserBID,
		&session.CreatedAt, &session.UpdatedAt, &session.IsActive)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessionByPair looks up the session for an already canonical pair
// (userAID < userBID). Returns nil, nil when there is none.
func (s *SQLiteStore) GetSessionByPair(ctx context.Context, userAID, userBID int64) (*ChatSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions WHERE user_a_id = ? AND user_b_id = ?",
		userAID, userBID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Session not found
		}
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStore) GetSessionByID(ctx context.Context, id int64) (*ChatSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Session not found
		}
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}
	return session, nil
}

// InsertSession creates an active session for a canonical pair. It returns
// ErrDuplicate when another writer created the pair first.
func (s *SQLiteStore) InsertSession(ctx context.Context, userAID, userBID int64) (*ChatSession, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_sessions (user_a_id, user_b_id, created_at, updated_at, is_active) VALUES (?, ?, ?, ?, 1)",
		userAID, userBID, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to insert chat session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read chat session id: %w", err)
	}
	return &ChatSession{ID: id, UserAID: userAID, UserBID: userBID, CreatedAt: now, UpdatedAt: now, IsActive: true}, nil
}

// SetSessionActive toggles the soft-deactivation flag.
func (s *SQLiteStore) SetSessionActive(ctx context.Context, sessionID int64, active bool) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE chat_sessions SET is_active = ?, updated_at = ? WHERE id = ?",
		active, s.now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update chat session %d: %w", sessionID, err)
	}
	return nil
}

// InsertMessage stores a message and bumps the session's updated_at in one
// transaction. The timestamp is taken while the transaction holds the
// connection and never precedes the session's previous message, so
// created_at order agrees with id order.
func (s *SQLiteStore) InsertMessage(ctx context.Context, sessionID, senderID, receiverID int64, content string) (*PrivateMessage, error) {
	msg := &PrivateMessage{
		SessionID:  sessionID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		msg.CreatedAt = s.now()
		var last time.Time
		err := tx.QueryRowContext(ctx,
			"SELECT created_at FROM private_messages WHERE session_id = ? ORDER BY id DESC LIMIT 1", sessionID).
			Scan(&last)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to read latest message time: %w", err)
		case msg.CreatedAt.Before(last):
			msg.CreatedAt = last
		}

		res, err := tx.ExecContext(ctx,
			"INSERT INTO private_messages (session_id, sender_id, receiver_id, content, is_read, created_at) VALUES (?, ?, ?, ?, 0, ?)",
			sessionID, senderID, receiverID, content, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		if msg.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read message id: %w", err)
		}
		// Times are stored as UTC text whose lexical order is chronological.
		if _, err = tx.ExecContext(ctx,
			"UPDATE chat_sessions SET updated_at = MAX(updated_at, ?) WHERE id = ?", msg.CreatedAt, sessionID); err != nil {
			return fmt.Errorf("failed to touch chat session: %w", err)
		}
		return tx.QueryRowContext(ctx, "SELECT username FROM users WHERE id = ?", senderID).
			Scan(&msg.SenderUsername)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns a session's messages ordered by created_at then id.
// A non-nil afterID restricts the result to ids strictly greater than it.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID int64, afterID *int64) ([]PrivateMessage, error) {
	return listMessages(ctx, s.db, sessionID, afterID)
}

func listMessages(ctx context.Context, q querier, sessionID int64, afterID *int64) ([]PrivateMessage, error) {
	query := `
        SELECT m.id, m.session_id, m.sender_id, u.username, m.receiver_id, m.content, m.is_read, m.read_at, m.created_at
        FROM private_messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.session_id = ?`
	args := []any{sessionID}
	if afterID != nil {
		query += " AND m.id > ?"
		args = append(args, *afterID)
	}
	query += " ORDER BY m.created_at ASC, m.id ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []PrivateMessage
	for rows.Next() {
		var msg PrivateMessage
		var readAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.SenderID, &msg.SenderUsername, &msg.ReceiverID,
			&msg.Content, &msg.IsRead, &readAt, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if readAt.Valid {
			msg.ReadAt = &readAt.Time
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*PrivateMessage, error) {
	var msg PrivateMessage
	var readAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
        SELECT m.id, m.session_id, m.sender_id, u.username, m.receiver_id, m.content, m.is_read, m.read_at, m.created_at
        FROM private_messages m JOIN users u ON u.id = m.sender_id
        WHERE m.id = ?`, id).
		Scan(&msg.ID, &msg.SessionID, &msg.SenderID, &msg.SenderUsername, &msg.ReceiverID,
			&msg.Content, &msg.IsRead, &readAt, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Message not found
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if readAt.Valid {
		msg.ReadAt = &readAt.Time
	}
	return &msg, nil
}

// MarkMessageRead marks a message read on behalf of its receiver and
// reports whether it transitioned. Messages addressed to someone else are
// left untouched.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID, receiverID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, markReadSQL+" AND id = ? AND receiver_id = ?", s.now(), messageID, receiverID)
	if err != nil {
		return false, fmt.Errorf("failed to mark message %d read: %w", messageID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkAllReadForReceiver marks every unread message received by userID.
func (s *SQLiteStore) MarkAllReadForReceiver(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, markReadSQL+" AND receiver_id = ?", s.now(), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read for user %d: %w", userID, err)
	}
	return res.RowsAffected()
}

// ListMessagesAndMarkRead lists like ListMessages and, in the same
// transaction, marks the viewer's unread received messages among the
// returned rows. The returned slice reflects the new read state.
func (s *SQLiteStore) ListMessagesAndMarkRead(ctx context.Context, sessionID, viewerID int64, afterID *int64) ([]PrivateMessage, int64, error) {
	var messages []PrivateMessage
	var marked int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		messages, err = listMessages(ctx, tx, sessionID, afterID)
		if err != nil || len(messages) == 0 {
			return err
		}

		minID, maxID := messages[0].ID, messages[0].ID
		for _, m := range messages {
			minID = min(minID, m.ID)
			maxID = max(maxID, m.ID)
		}

		readAt := s.now()
		res, err := tx.ExecContext(ctx,
			markReadSQL+" AND session_id = ? AND receiver_id = ? AND id BETWEEN ? AND ?",
			readAt, sessionID, viewerID, minID, maxID)
		if err != nil {
			return fmt.Errorf("failed to mark conversation read: %w", err)
		}
		marked, _ = res.RowsAffected()

		for i := range messages {
			if messages[i].ReceiverID == viewerID && !messages[i].IsRead {
				messages[i].IsRead = true
				messages[i].ReadAt = &readAt
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return messages, marked, nil
}

func (s *SQLiteStore) CountUnreadForUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM private_messages WHERE receiver_id = ? AND is_read = 0", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) CountUnreadInSession(ctx context.Context, sessionID, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM private_messages WHERE session_id = ? AND receiver_id = ? AND is_read = 0",
		sessionID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages in session: %w", err)
	}
	return count, nil
}

// ListSessionSummaries returns up to limit (-1 for no limit) of the user's
// active sessions, most recent message first and sessions without messages
// last. LastMessagePreview holds the full last message; callers shorten it.
func (s *SQLiteStore) ListSessionSummaries(ctx context.Context, userID int64, limit int) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT s.id, u.id, u.username,
            (SELECT COUNT(*) FROM private_messages um
             WHERE um.session_id = s.id AND um.receiver_id = ? AND um.is_read = 0),
            m.content, m.created_at
        FROM chat_sessions s
        JOIN users u ON u.id = CASE WHEN s.user_a_id = ? THEN s.user_b_id ELSE s.user_a_id END
        LEFT JOIN private_messages m ON m.id = (
            SELECT lm.id FROM private_messages lm
            WHERE lm.session_id = s.id
            ORDER BY lm.created_at DESC, lm.id DESC
            LIMIT 1)
        WHERE (s.user_a_id = ? OR s.user_b_id = ?) AND s.is_active = 1
        ORDER BY (m.id IS NULL), m.created_at DESC, m.id DESC, s.updated_at DESC
        LIMIT ?`,
		userID, userID, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session summaries: %w", err)
	}
	defer rows.Close()

	var summaries []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var content sql.NullString
		var lastAt sql.NullTime
		if err := rows.Scan(&sum.SessionID, &sum.OtherUserID, &sum.OtherUserName, &sum.UnreadCount,
			&content, &lastAt); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		sum.LastMessagePreview = content.String
		if lastAt.Valid {
			t := lastAt.Time
			sum.LastMessageTime = &t
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// ListSessionsForUser returns every session the user participates in,
// newest activity first.
func (s *SQLiteStore) ListSessionsForUser(ctx context.Context, userID int64) ([]ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM chat_sessions WHERE user_a_id = ? OR user_b_id = ? ORDER BY updated_at DESC, id DESC",
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// SetClock replaces the clock used for created_at, updated_at and read_at.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}
