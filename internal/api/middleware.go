package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gwi.com/myblog/internal/auth"
	"gwi.com/myblog/internal/core"
	"gwi.com/myblog/internal/logging"
	"gwi.com/myblog/internal/metrics"
	"gwi.com/myblog/internal/store"
	"gwi.com/myblog/internal/utils"
)

type contextKey string

const userContextKey contextKey = "user"

// Paths not recorded in visit statistics.
var untrackedPrefixes = []string{"/admin/", "/static/", "/api/", "/metrics"}

func statusOf(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

// requestLogger logs one line per request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			logging.Ctx(r.Context()).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", statusOf(ww)).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// metricsMiddleware records request counts and latency per route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(statusOf(ww))).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// visitStats records page visits. A panicking handler is recorded with
// status 500 and the panic is passed on to the recoverer.
func (h *APIHandler) visitStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range untrackedPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			if rec := recover(); rec != nil {
				h.recordVisit(r, http.StatusInternalServerError)
				panic(rec)
			}
		}()
		next.ServeHTTP(ww, r)
		h.recordVisit(r, statusOf(ww))
	})
}

func (h *APIHandler) recordVisit(r *http.Request, status int) {
	h.statsService.RecordVisit(context.WithoutCancel(r.Context()), store.Visit{
		IPAddress:  utils.ClientIP(r),
		UserAgent:  r.UserAgent(),
		Path:       r.URL.Path,
		Method:     r.Method,
		StatusCode: status,
	})
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(auth.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// identify attaches the logged-in user to the request context when a valid
// token is present. It never rejects a request.
func (h *APIHandler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := tokenFromRequest(r)
		if tokenString == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := auth.ValidateJWT(tokenString)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Ignoring invalid session token")
			next.ServeHTTP(w, r)
			return
		}
		userID, _ := claims.UserID()
		user, err := h.userService.GetUser(r.Context(), userID)
		if err != nil || !user.IsActive {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) *store.User {
	user, _ := r.Context().Value(userContextKey).(*store.User)
	return user
}

// viewerFrom returns nil for anonymous requests.
func viewerFrom(r *http.Request) *core.Viewer {
	user := currentUser(r)
	if user == nil {
		return nil
	}
	return &core.Viewer{ID: user.ID, IsStaff: user.IsStaff}
}

// requireAPIUser rejects anonymous API calls with a JSON 401.
func requireAPIUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r) == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePageUser redirects anonymous page requests to the login page.
func requirePageUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r) == nil {
			http.Redirect(w, r, "/login/?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := currentUser(r); user == nil || !user.IsStaff {
			writeError(w, http.StatusForbidden, "Staff access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
