package api

import (
	"net/http"
	"strconv"
	"time"

	"gwi.com/myblog/internal/core"
	"gwi.com/myblog/internal/store"
)

type SendPrivateMessageRequest struct {
	Content string `json:"content"`
}

type privateMessageJSON struct {
	ID             int64     `json:"id"`
	SenderID       int64     `json:"sender_id"`
	SenderUsername string    `json:"sender_username"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	IsOwn          bool      `json:"is_own"`
}

// pathUserID parses the {userID} URL parameter.
func pathUserID(r *http.Request) (int64, bool) {
	return pathID(r, "userID")
}

// parseLastID reads ?last_id=. Missing or malformed values mean "from the start".
func parseLastID(r *http.Request) *int64 {
	raw := r.URL.Query().Get("last_id")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func (h *APIHandler) PrivateChatSummaryHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUser(r).ID

	total, err := h.chatService.TotalUnreadFor(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sessions, err := h.chatService.RecentSessionsSummary(ctx, userID, core.DefaultSummaryLimit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []store.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_unread":    total,
		"recent_sessions": sessions,
	})
}

// PrivateMessagesHandler is the polling endpoint. Fetching marks the
// caller's received messages as read.
func (h *APIHandler) PrivateMessagesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := currentUser(r)
	otherID, ok := pathUserID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if _, err := h.userService.GetUser(ctx, otherID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	session, err := h.chatService.FindSession(ctx, me.ID, otherID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	messages, err := h.chatService.ViewConversation(ctx, session, me.ID, parseLastID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	total, err := h.chatService.TotalUnreadFor(ctx, me.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]privateMessageJSON, 0, len(messages))
	for _, m := range messages {
		out = append(out, privateMessageJSON{
			ID:             m.ID,
			SenderID:       m.SenderID,
			SenderUsername: m.SenderUsername,
			Content:        m.Content,
			CreatedAt:      m.CreatedAt,
			IsOwn:          m.SenderID == me.ID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":     out,
		"total_unread": total,
		"session_id":   session.ID,
	})
}

func (h *APIHandler) SendPrivateMessageHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := currentUser(r)
	otherID, ok := pathUserID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	var req SendPrivateMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Reject bad content before a session is created for it.
	if _, err := core.ValidateMessageContent(req.Content); err != nil {
		writeServiceError(w, r, err)
		return
	}
	session, _, err := h.chatService.ResolveSession(ctx, me.ID, otherID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	msg, err := h.chatService.Send(ctx, session, me.ID, otherID, req.Content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message_id": msg.ID,
		"created_at": msg.CreatedAt,
	})
}

func (h *APIHandler) MarkAllReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := h.chatService.MarkAllReadForReceivingUser(r.Context(), currentUser(r).ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"updated_count": n,
	})
}
