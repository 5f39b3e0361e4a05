package api

import (
	"net/http"
	"time"

	"gwi.com/myblog/internal/auth"
	"gwi.com/myblog/internal/config"
	"gwi.com/myblog/internal/core"
	"gwi.com/myblog/internal/logging"
	"gwi.com/myblog/internal/store"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   !config.AppConfig.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(config.AppConfig.SessionTTL),
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// startSession issues a token for user and sets it as the session cookie.
func (h *APIHandler) startSession(w http.ResponseWriter, r *http.Request, user *store.User) (string, bool) {
	token, err := auth.GenerateJWT(user.ID, user.Username, user.IsStaff)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Int64("user_id", user.ID).Msg("Error generating JWT")
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return "", false
	}
	h.setSessionCookie(w, token)
	return token, true
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req core.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.userService.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, ok := h.startSession(w, r, user); !ok {
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	token, ok := h.startSession(w, r, user)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := h.userService.Profile(r.Context(), currentUser(r).ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req core.ProfileInput
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.userService.UpdateProfile(r.Context(), currentUser(r).ID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// SearchUsersHandler backs the private chat "find someone" box.
func (h *APIHandler) SearchUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.SearchUsers(r.Context(), r.URL.Query().Get("username"), currentUser(r).ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}
