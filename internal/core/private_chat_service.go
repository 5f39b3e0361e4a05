package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gwi.com/myblog/internal/logging"
	"gwi.com/myblog/internal/metrics"
	"gwi.com/myblog/internal/store"
	"gwi.com/myblog/internal/utils"
)

const (
	MaxMessageLength     = 1000
	DefaultSummaryLimit  = 5
	summaryPreviewLength = 50
)

// PrivateChatService owns one-to-one conversations: resolving the session
// for a pair of users, the message ledger and unread bookkeeping.
type PrivateChatService struct {
	dbStore *store.SQLiteStore
}

func NewPrivateChatService(db *store.SQLiteStore) *PrivateChatService {
	return &PrivateChatService{dbStore: db}
}

func canonicalPair(u, v int64) (int64, int64) {
	if u < v {
		return u, v
	}
	return v, u
}

// ResolveSession returns the session between currentUserID and otherUserID,
// creating it on first contact. created reports whether this call inserted
// the row. An inactive session is reactivated.
func (s *PrivateChatService) ResolveSession(ctx context.Context, currentUserID, otherUserID int64) (*store.ChatSession, bool, error) {
	if currentUserID == otherUserID {
		return nil, false, NewInvalidParticipantsError("cannot start a conversation with yourself")
	}

	other, err := s.dbStore.GetUserByID(ctx, otherUserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up user %d: %w", otherUserID, err)
	}
	if other == nil {
		return nil, false, NewNotFoundError("user not found")
	}

	a, b := canonicalPair(currentUserID, otherUserID)
	session, err := s.dbStore.GetSessionByPair(ctx, a, b)
	if err != nil {
		return nil, false, err
	}

	created := false
	if session == nil {
		session, created, err = s.insertOrLoad(ctx, a, b)
		if err != nil {
			return nil, false, err
		}
	}

	if !session.IsActive {
		if err := s.dbStore.SetSessionActive(ctx, session.ID, true); err != nil {
			return nil, false, err
		}
		session.IsActive = true
		logging.Ctx(ctx).Info().Int64("session_id", session.ID).Msg("Reactivated chat session")
	}
	return session, created, nil
}

// insertOrLoad inserts the canonical pair; if a concurrent writer won the
// race it re-reads once and returns that row.
func (s *PrivateChatService) insertOrLoad(ctx context.Context, a, b int64) (*store.ChatSession, bool, error) {
	session, err := s.dbStore.InsertSession(ctx, a, b)
	if err == nil {
		metrics.ChatSessionsCreated.Inc()
		logging.Ctx(ctx).Info().Int64("session_id", session.ID).Int64("user_a", a).Int64("user_b", b).
			Msg("Created chat session")
		return session, true, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return nil, false, err
	}

	session, err = s.dbStore.GetSessionByPair(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	if session == nil {
		return nil, false, fmt.Errorf("chat session for users %d and %d vanished after duplicate insert", a, b)
	}
	return session, false, nil
}

// FindSession looks up the session for a pair without creating it. A user
// never has a conversation with themselves, so that pair is not found either.
func (s *PrivateChatService) FindSession(ctx context.Context, u, v int64) (*store.ChatSession, error) {
	if u == v {
		return nil, NewNotFoundError("conversation not found")
	}
	a, b := canonicalPair(u, v)
	session, err := s.dbStore.GetSessionByPair(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, NewNotFoundError("conversation not found")
	}
	return session, nil
}

// ValidateMessageContent trims content and checks it is 1 to
// MaxMessageLength characters long.
func ValidateMessageContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if err := validateVar("content", content, fmt.Sprintf("required,max=%d", MaxMessageLength)); err != nil {
		return "", err
	}
	return content, nil
}

// Send appends a message to the session. Content is trimmed and must be
// 1 to 1000 characters.
func (s *PrivateChatService) Send(ctx context.Context, session *store.ChatSession, senderID, receiverID int64, content string) (*store.PrivateMessage, error) {
	content, err := ValidateMessageContent(content)
	if err != nil {
		return nil, err
	}
	if senderID == receiverID || !session.HasParticipant(senderID) || !session.HasParticipant(receiverID) {
		return nil, NewInvalidParticipantsError("sender and receiver must be the two participants of the conversation")
	}

	msg, err := s.dbStore.InsertMessage(ctx, session.ID, senderID, receiverID, content)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	session.UpdatedAt = msg.CreatedAt
	metrics.PrivateMessagesSent.Inc()
	return msg, nil
}

// ListAll returns every message of the session in conversation order.
func (s *PrivateChatService) ListAll(ctx context.Context, session *store.ChatSession) ([]store.PrivateMessage, error) {
	return s.dbStore.ListMessages(ctx, session.ID, nil)
}

// ListSince returns messages with id greater than lastSeenID; nil means all.
func (s *PrivateChatService) ListSince(ctx context.Context, session *store.ChatSession, lastSeenID *int64) ([]store.PrivateMessage, error) {
	return s.dbStore.ListMessages(ctx, session.ID, lastSeenID)
}

// MarkRead marks one message read on behalf of readerID, who must be its
// receiver. Calling it again is a no-op.
func (s *PrivateChatService) MarkRead(ctx context.Context, messageID, readerID int64) error {
	changed, err := s.dbStore.MarkMessageRead(ctx, messageID, readerID)
	if err != nil {
		return err
	}
	if changed {
		metrics.PrivateMessagesRead.Inc()
		return nil
	}
	msg, err := s.dbStore.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return NewNotFoundError("message not found")
	}
	if msg.ReceiverID != readerID {
		return NewForbiddenError("only the receiver can mark a message as read")
	}
	return nil
}

// MarkAllReadForReceivingUser marks every unread message addressed to
// userID and returns how many changed.
func (s *PrivateChatService) MarkAllReadForReceivingUser(ctx context.Context, userID int64) (int64, error) {
	n, err := s.dbStore.MarkAllReadForReceiver(ctx, userID)
	if err != nil {
		return 0, err
	}
	metrics.PrivateMessagesRead.Add(float64(n))
	return n, nil
}

// ViewConversation lists the session (all, or after lastSeenID) and marks
// the viewer's received messages among them as read.
func (s *PrivateChatService) ViewConversation(ctx context.Context, session *store.ChatSession, viewerID int64, lastSeenID *int64) ([]store.PrivateMessage, error) {
	if !session.HasParticipant(viewerID) {
		return nil, NewInvalidParticipantsError("viewer is not part of this conversation")
	}
	messages, marked, err := s.dbStore.ListMessagesAndMarkRead(ctx, session.ID, viewerID, lastSeenID)
	if err != nil {
		return nil, err
	}
	metrics.PrivateMessagesRead.Add(float64(marked))
	return messages, nil
}

// TotalUnreadFor counts unread messages addressed to userID across sessions.
func (s *PrivateChatService) TotalUnreadFor(ctx context.Context, userID int64) (int, error) {
	return s.dbStore.CountUnreadForUser(ctx, userID)
}

// SessionUnreadCount counts unread messages addressed to userID in session.
func (s *PrivateChatService) SessionUnreadCount(ctx context.Context, session *store.ChatSession, userID int64) (int, error) {
	return s.dbStore.CountUnreadInSession(ctx, session.ID, userID)
}

// RecentSessionsSummary lists the user's active conversations, most recent
// first, with a shortened last message. limit <= 0 uses DefaultSummaryLimit.
func (s *PrivateChatService) RecentSessionsSummary(ctx context.Context, userID int64, limit int) ([]store.SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	return s.summaries(ctx, userID, limit)
}

// ListSessions returns all of the user's active conversations for the list page.
func (s *PrivateChatService) ListSessions(ctx context.Context, userID int64) ([]store.SessionSummary, error) {
	return s.summaries(ctx, userID, -1)
}

func (s *PrivateChatService) summaries(ctx context.Context, userID int64, limit int) ([]store.SessionSummary, error) {
	summaries, err := s.dbStore.ListSessionSummaries(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].LastMessagePreview = utils.Truncate(summaries[i].LastMessagePreview, summaryPreviewLength)
	}
	return summaries, nil
}
