package api

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"gwi.com/myblog/internal/core"
	"gwi.com/myblog/internal/logging"
	"gwi.com/myblog/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

func parsePages() map[string]*template.Template {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"login.html", "private_chat_list.html", "private_chat_detail.html"} {
		pages[name] = template.Must(template.ParseFS(templateFS, "templates/base.html", "templates/"+name))
	}
	return pages
}

func (h *APIHandler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.pages[name].ExecuteTemplate(w, "base", data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("Failed to render page")
	}
}

// safeNext only allows local redirect targets.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/private-chat/"
	}
	return next
}

type loginPage struct {
	User     *store.User
	Next     string
	Username string
	Error    string
}

func (h *APIHandler) LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login.html", loginPage{Next: safeNext(r.URL.Query().Get("next"))})
}

func (h *APIHandler) LoginFormHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	next := safeNext(r.PostFormValue("next"))
	username := r.PostFormValue("username")

	user, err := h.userService.Authenticate(r.Context(), username, r.PostFormValue("password"))
	if err != nil {
		status := http.StatusInternalServerError
		message := "Something went wrong, please try again."
		if errors.Is(err, core.ErrUnauthorized) {
			status, message = http.StatusUnauthorized, "Invalid username or password."
		}
		h.render(w, r, status, "login.html", loginPage{Next: next, Username: username, Error: message})
		return
	}
	if _, ok := h.startSession(w, r, user); !ok {
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *APIHandler) LogoutFormHandler(w http.ResponseWriter, r *http.Request) {
	clearSessionCookie(w)
	http.Redirect(w, r, "/login/", http.StatusSeeOther)
}

type privateChatListPage struct {
	User          *store.User
	Sessions      []store.SessionSummary
	Query         string
	SearchResults []store.User
}

func (h *APIHandler) PrivateChatListPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := currentUser(r)

	sessions, err := h.chatService.ListSessions(ctx, me.ID)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	data := privateChatListPage{User: me, Sessions: sessions, Query: strings.TrimSpace(r.URL.Query().Get("username"))}
	if data.Query != "" {
		if data.SearchResults, err = h.userService.SearchUsers(ctx, data.Query, me.ID); err != nil {
			h.pageError(w, r, err)
			return
		}
	}
	h.render(w, r, http.StatusOK, "private_chat_list.html", data)
}

type privateChatDetailPage struct {
	User     *store.User
	Other    *store.User
	Session  *store.ChatSession
	Messages []store.PrivateMessage
	Error    string
	Draft    string
}

// PrivateChatDetailPage shows (creating if needed) the conversation with
// {userID}. Viewing marks received messages as read; POST sends the form
// content and redirects back.
func (h *APIHandler) PrivateChatDetailPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := currentUser(r)
	otherID, ok := pathUserID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if otherID == me.ID {
		http.Redirect(w, r, "/private-chat/", http.StatusFound)
		return
	}
	other, err := h.userService.GetUser(ctx, otherID)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	session, _, err := h.chatService.ResolveSession(ctx, me.ID, otherID)
	if err != nil {
		h.pageError(w, r, err)
		return
	}

	var formErr, draft string
	if r.Method == http.MethodPost {
		draft = r.PostFormValue("content")
		_, err := h.chatService.Send(ctx, session, me.ID, otherID, draft)
		if err == nil {
			http.Redirect(w, r, "/private-chat/"+strconv.FormatInt(otherID, 10)+"/", http.StatusSeeOther)
			return
		}
		var svcErr *core.Error
		if !errors.As(err, &svcErr) {
			h.pageError(w, r, err)
			return
		}
		formErr = svcErr.Message
	}

	messages, err := h.chatService.ViewConversation(ctx, session, me.ID, nil)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	status := http.StatusOK
	if formErr != "" {
		status = http.StatusBadRequest
	}
	h.render(w, r, status, "private_chat_detail.html", privateChatDetailPage{
		User: me, Other: other, Session: session, Messages: messages, Error: formErr, Draft: draft,
	})
}

// StartPrivateChatPage redirects to the conversation, or back to the list
// when targeting yourself.
func (h *APIHandler) StartPrivateChatPage(w http.ResponseWriter, r *http.Request) {
	otherID, ok := pathUserID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if _, err := h.userService.GetUser(r.Context(), otherID); err != nil {
		h.pageError(w, r, err)
		return
	}
	if otherID == currentUser(r).ID {
		http.Redirect(w, r, "/private-chat/", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/private-chat/"+strconv.FormatInt(otherID, 10)+"/", http.StatusFound)
}

func (h *APIHandler) pageError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *core.Error
	if errors.As(err, &svcErr) {
		http.Error(w, svcErr.Message, statusForCode(svcErr.Code))
		return
	}
	logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Page request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
