package api

import (
	"errors"
	"net/http"

	"gwi.com/myblog/internal/room"
)

type RoomMessageRequest struct {
	Message string `json:"message"`
}

func (h *APIHandler) RoomMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, count, err := h.chatRoom.Recent(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if messages == nil {
		messages = []room.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages, "count": count})
}

func (h *APIHandler) RoomSendHandler(w http.ResponseWriter, r *http.Request) {
	var req RoomMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	me := currentUser(r)
	msg, err := h.chatRoom.Post(r.Context(), me.ID, me.Username, req.Message)
	switch {
	case errors.Is(err, room.ErrEmptyMessage), errors.Is(err, room.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}
