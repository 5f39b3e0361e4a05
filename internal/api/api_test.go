package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/myblog/internal/auth"
	"gwi.com/myblog/internal/config"
	"gwi.com/myblog/internal/core"
	"gwi.com/myblog/internal/room"
	"gwi.com/myblog/internal/store"
)

type testServer struct {
	handler http.Handler
	db      *store.SQLiteStore
	users   *core.UserService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig = config.Config{
		Env:         "development",
		JWTSecret:   "test-secret",
		SessionTTL:  time.Hour,
		CORSOrigins: []string{"*"},
	}
	t.Cleanup(func() { config.AppConfig = prev })

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := core.NewUserService(db)
	h := NewAPIHandler(Services{
		Users:  users,
		Chat:   core.NewPrivateChatService(db),
		Blog:   core.NewBlogService(db, nil),
		Stats:  core.NewStatsService(db),
		Room:   room.New(room.NewMemoryBuffer()),
		Health: map[string]Pinger{"database": db},
	})
	return &testServer{handler: NewRouter(h), db: db, users: users}
}

func (s *testServer) user(t *testing.T, username string, staff bool) *store.User {
	t.Helper()
	u := &store.User{Username: username, Email: username + "@example.com", PasswordHash: "x", IsStaff: staff}
	require.NoError(t, s.db.CreateUser(context.Background(), u))
	return u
}

// do sends a request, authenticated as user when non-nil.
func (s *testServer) do(t *testing.T, user *store.User, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		token, err := auth.GenerateJWT(user.ID, user.Username, user.IsStaff)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func id(u *store.User) string { return strconv.FormatInt(u.ID, 10) }

func TestAnonymousRequests(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, nil, http.MethodGet, "/api/private-chat/summary/", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decode(t, rec), "error")

	rec = s.do(t, nil, http.MethodGet, "/private-chat/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/login/?next="))
}

func TestInvalidTokenIsAnonymous(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "garbage"})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPrivateChatFlow(t *testing.T) {
	s := newTestServer(t)
	alice, bob := s.user(t, "alice", false), s.user(t, "bob", false)

	rec := s.do(t, alice, http.MethodGet, "/api/private-chat/messages/"+id(bob)+"/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no session yet")

	rec = s.do(t, alice, http.MethodGet, "/api/private-chat/messages/"+id(alice)+"/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "nobody has a conversation with themselves")
	assert.Contains(t, decode(t, rec), "error")

	rec = s.do(t, alice, http.MethodPost, "/api/private-chat/send/"+id(bob)+"/", `{"content":"hi bob"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sent := decode(t, rec)
	assert.Equal(t, true, sent["success"])
	firstID := int64(sent["message_id"].(float64))

	rec = s.do(t, alice, http.MethodPost, "/api/private-chat/send/"+id(bob)+"/", `{"content":"still there?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, bob, http.MethodGet, "/api/private-chat/summary/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)
	assert.EqualValues(t, 2, summary["total_unread"])
	sessions := summary["recent_sessions"].([]any)
	require.Len(t, sessions, 1)
	first := sessions[0].(map[string]any)
	assert.Equal(t, "alice", first["username"])
	assert.EqualValues(t, alice.ID, first["user_id"])
	assert.EqualValues(t, 2, first["unread_count"])
	assert.Equal(t, "still there?", first["last_message"])

	rec = s.do(t, bob, http.MethodGet, "/api/private-chat/messages/"+id(alice)+"/?last_id="+strconv.FormatInt(firstID, 10), "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "still there?", msg["content"])
	assert.Equal(t, false, msg["is_own"])
	assert.Equal(t, "alice", msg["sender_username"])
	assert.EqualValues(t, 1, body["total_unread"], "only fetched messages are marked read")

	// Malformed last_id returns the whole conversation.
	rec = s.do(t, alice, http.MethodGet, "/api/private-chat/messages/"+id(bob)+"/?last_id=abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	messages = decode(t, rec)["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, true, messages[0].(map[string]any)["is_own"])
}

func TestSendPrivateMessageErrors(t *testing.T) {
	s := newTestServer(t)
	alice, bob := s.user(t, "alice", false), s.user(t, "bob", false)

	tests := []struct {
		name   string
		target string
		body   string
		status int
	}{
		{"empty content", "/api/private-chat/send/" + id(bob), `{"content":"   "}`, http.StatusBadRequest},
		{"too long", "/api/private-chat/send/" + id(bob), `{"content":"` + strings.Repeat("x", 1001) + `"}`, http.StatusBadRequest},
		{"malformed json", "/api/private-chat/send/" + id(bob), `{"content":`, http.StatusBadRequest},
		{"self", "/api/private-chat/send/" + id(alice), `{"content":"me"}`, http.StatusBadRequest},
		{"unknown user", "/api/private-chat/send/9999", `{"content":"hello"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, alice, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, decode(t, rec), "error")
		})
	}

	sessions, err := s.db.ListSessionsForUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions, "rejected sends must not open a session")
}

func TestMarkAllRead(t *testing.T) {
	s := newTestServer(t)
	alice, bob := s.user(t, "alice", false), s.user(t, "bob", false)

	for _, content := range []string{"one", "two", "three"} {
		rec := s.do(t, alice, http.MethodPost, "/api/private-chat/send/"+id(bob), `{"content":"`+content+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := s.do(t, bob, http.MethodPost, "/api/private-chat/mark-all-read/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode(t, rec)["updated_count"])

	rec = s.do(t, bob, http.MethodPost, "/api/private-chat/mark-all-read/", "")
	assert.EqualValues(t, 0, decode(t, rec)["updated_count"])
}

func TestPrivateChatPages(t *testing.T) {
	s := newTestServer(t)
	alice, bob := s.user(t, "alice", false), s.user(t, "bob", false)

	rec := s.do(t, alice, http.MethodGet, "/private-chat/start/"+id(alice)+"/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/private-chat/", rec.Header().Get("Location"))

	rec = s.do(t, alice, http.MethodGet, "/private-chat/start/"+id(bob)+"/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/private-chat/"+id(bob)+"/", rec.Header().Get("Location"))

	rec = s.do(t, alice, http.MethodGet, "/private-chat/9999/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	form := url.Values{"content": {"hello from the form"}}
	req := httptest.NewRequest(http.MethodPost, "/private-chat/"+id(bob)+"/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	token, err := auth.GenerateJWT(alice.ID, alice.Username, false)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	post := httptest.NewRecorder()
	s.handler.ServeHTTP(post, req)
	assert.Equal(t, http.StatusSeeOther, post.Code)

	// Bob viewing the page marks the message read.
	rec = s.do(t, bob, http.MethodGet, "/private-chat/"+id(alice)+"/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello from the form")
	unread, err := s.db.CountUnreadForUser(context.Background(), bob.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	rec = s.do(t, alice, http.MethodGet, "/private-chat/?username=bo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/private-chat/start/"+id(bob)+"/")
}

func TestLoginForm(t *testing.T) {
	s := newTestServer(t)
	_, err := s.users.Register(context.Background(), core.RegisterInput{
		Username: "carol", Email: "carol@example.com", Password: "correct-horse",
	})
	require.NoError(t, err)

	post := func(password, next string) *httptest.ResponseRecorder {
		form := url.Values{"username": {"carol"}, "password": {password}, "next": {next}}
		req := httptest.NewRequest(http.MethodPost, "/login/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post("wrong-password", "/private-chat/")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid username or password.")

	rec = post("correct-horse", "//evil.example.com/")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/private-chat/", rec.Header().Get("Location"))
	require.NotEmpty(t, rec.Result().Cookies())
	assert.Equal(t, auth.CookieName, rec.Result().Cookies()[0].Name)
}

func TestRoom(t *testing.T) {
	s := newTestServer(t)
	alice := s.user(t, "alice", false)

	rec := s.do(t, nil, http.MethodPost, "/api/chat/send", `{"message":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, alice, http.MethodPost, "/api/chat/send", `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, alice, http.MethodPost, "/api/chat/send", `{"message":"hello room"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = s.do(t, nil, http.MethodGet, "/api/chat/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["count"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "alice", messages[0].(map[string]any)["username"])
}

func TestBlogEndpoints(t *testing.T) {
	s := newTestServer(t)
	author, other, staff := s.user(t, "author", false), s.user(t, "other", false), s.user(t, "staff", true)

	rec := s.do(t, author, http.MethodPost, "/api/categories", `{"name":"Go"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, staff, http.MethodPost, "/api/categories", `{"name":"Go"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, author, http.MethodPost, "/api/posts", `{"title":"Hello","content":"A first post","status":"published"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	postID := strconv.FormatInt(int64(decode(t, rec)["id"].(float64)), 10)

	rec = s.do(t, other, http.MethodPut, "/api/posts/"+postID, `{"title":"Hijack","content":"x","status":"published"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, other, http.MethodPost, "/api/posts/"+postID+"/comments", `{"content":"Nice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, nil, http.MethodGet, "/api/posts/"+postID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode(t, rec)
	assert.EqualValues(t, 1, detail["view_count"])
	assert.Len(t, detail["comments"].([]any), 1)

	rec = s.do(t, nil, http.MethodGet, "/api/posts?page=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = s.do(t, author, http.MethodDelete, "/api/posts/"+postID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, nil, http.MethodGet, "/api/posts/"+postID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVisitStatistics(t *testing.T) {
	s := newTestServer(t)
	staff := s.user(t, "staff", true)
	ctx := context.Background()

	s.do(t, nil, http.MethodGet, "/api/health", "")
	s.do(t, nil, http.MethodGet, "/metrics", "")
	n, err := s.db.CountVisitsSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n, "API and metrics requests are not tracked")

	s.do(t, nil, http.MethodGet, "/login/", "")
	s.do(t, nil, http.MethodGet, "/does-not-exist", "")
	n, err = s.db.CountVisitsSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec := s.do(t, s.user(t, "visitor", false), http.MethodGet, "/api/visit-stats", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, staff, http.MethodGet, "/api/visit-stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)
	assert.EqualValues(t, 2, stats["total_visits"])
	assert.Len(t, stats["dates"].([]any), 31)

	rec = s.do(t, staff, http.MethodGet, "/api/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["total_users"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, nil, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"database": "ok"}, body["checks"])
}

func TestRegisterAndProfile(t *testing.T) {
	s := newTestServer(t)

	payload, err := json.Marshal(core.RegisterInput{Username: "dave", Email: "dave@example.com", Password: "long-enough"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	req = httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dave", decode(t, rec)["username"])

	req = httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewReader(payload))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
