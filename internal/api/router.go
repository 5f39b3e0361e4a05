package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gwi.com/myblog/internal/config"
)

// writeLimiter throttles state-changing requests per client IP. A
// non-positive limit disables it.
func writeLimiter(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(perMinute, time.Minute)
}

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(apiHandler.visitStats)   // Inside the recoverer so panics are still recorded
	r.Use(middleware.StripSlashes) // Routes are declared without trailing slashes
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.AppConfig.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(apiHandler.identify)

	limited := writeLimiter(config.AppConfig.RateLimitPerMinute)

	r.Handle("/metrics", promhttp.Handler())

	// Server-rendered pages
	r.Get("/login", apiHandler.LoginPageHandler)
	r.With(limited).Post("/login", apiHandler.LoginFormHandler)
	r.Post("/logout", apiHandler.LogoutFormHandler)
	r.Group(func(r chi.Router) {
		r.Use(requirePageUser)

		r.Get("/private-chat", apiHandler.PrivateChatListPage)
		r.Get("/private-chat/start/{userID}", apiHandler.StartPrivateChatPage)
		r.Get("/private-chat/{userID}", apiHandler.PrivateChatDetailPage)
		r.With(limited).Post("/private-chat/{userID}", apiHandler.PrivateChatDetailPage)
	})

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", apiHandler.HealthHandler)
		r.With(limited).Post("/register", apiHandler.RegisterHandler)
		r.With(limited).Post("/login", apiHandler.LoginHandler)
		r.Post("/logout", apiHandler.LogoutHandler)

		r.Get("/posts", apiHandler.ListPostsHandler)
		r.Get("/posts/popular", apiHandler.PopularPostsHandler)
		r.Get("/posts/{postID}", apiHandler.GetPostHandler)
		r.Get("/categories", apiHandler.ListCategoriesHandler)
		r.Get("/categories/{categoryID}/posts", apiHandler.CategoryPostsHandler)
		r.Get("/tags", apiHandler.ListTagsHandler)
		r.Get("/tags/{tagID}/posts", apiHandler.TagPostsHandler)

		r.Get("/chat/messages", apiHandler.RoomMessagesHandler)

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(requireAPIUser)

			r.Get("/profile", apiHandler.GetProfileHandler)
			r.Get("/users", apiHandler.SearchUsersHandler)
			r.Get("/my-posts", apiHandler.MyPostsHandler)

			r.Get("/private-chat/summary", apiHandler.PrivateChatSummaryHandler)
			r.Get("/private-chat/messages/{userID}", apiHandler.PrivateMessagesHandler)

			r.Group(func(r chi.Router) {
				r.Use(limited)

				r.Put("/profile", apiHandler.UpdateProfileHandler)

				r.Post("/posts", apiHandler.CreatePostHandler)
				r.Put("/posts/{postID}", apiHandler.UpdatePostHandler)
				r.Delete("/posts/{postID}", apiHandler.DeletePostHandler)
				r.Post("/posts/{postID}/comments", apiHandler.AddCommentHandler)

				r.Post("/private-chat/send/{userID}", apiHandler.SendPrivateMessageHandler)
				r.Post("/private-chat/mark-all-read", apiHandler.MarkAllReadHandler)

				r.Post("/chat/send", apiHandler.RoomSendHandler)
			})

			// Staff routes
			r.Group(func(r chi.Router) {
				r.Use(requireStaff)

				r.With(limited).Post("/categories", apiHandler.CreateCategoryHandler)
				r.With(limited).Post("/tags", apiHandler.CreateTagHandler)
				r.Get("/statistics", apiHandler.SiteStatisticsHandler)
				r.Get("/visit-stats", apiHandler.VisitStatsHandler)
			})
		})
	})

	return r
}
