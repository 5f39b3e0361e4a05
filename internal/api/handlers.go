package api

import (
	"context"
	"html/template"
	"net/http"

	"gwi.com/myblog/internal/core"
	"gwi.com/myblog/internal/room"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type APIHandler struct {
	userService  *core.UserService
	chatService  *core.PrivateChatService
	blogService  *core.BlogService
	statsService *core.StatsService
	chatRoom     *room.Room
	pages        map[string]*template.Template
	health       map[string]Pinger
}

// Services groups the dependencies of an APIHandler.
type Services struct {
	Users  *core.UserService
	Chat   *core.PrivateChatService
	Blog   *core.BlogService
	Stats  *core.StatsService
	Room   *room.Room
	Health map[string]Pinger
}

func NewAPIHandler(s Services) *APIHandler {
	return &APIHandler{
		userService:  s.Users,
		chatService:  s.Chat,
		blogService:  s.Blog,
		statsService: s.Stats,
		chatRoom:     s.Room,
		pages:        parsePages(),
		health:       s.Health,
	}
}

// HealthHandler pings each registered dependency and reports 503 if any fails.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.health))
	for name, p := range h.health {
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}
