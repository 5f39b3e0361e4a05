package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myblog_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "myblog_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Private chat
	ChatSessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myblog_chat_sessions_created_total",
			Help: "Private chat sessions created",
		},
	)

	PrivateMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myblog_private_messages_sent_total",
			Help: "Private messages sent",
		},
	)

	PrivateMessagesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myblog_private_messages_read_total",
			Help: "Private messages transitioned to read",
		},
	)

	// Public room
	RoomMessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myblog_room_messages_posted_total",
			Help: "Messages posted to the public chat room",
		},
	)

	// Blog
	PostSummaries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myblog_post_summaries_total",
			Help: "Generated post summaries by outcome",
		},
		[]string{"outcome"}, // "ok" or "failed"
	)

	VisitRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myblog_visit_record_failures_total",
			Help: "Visit statistics rows that could not be stored",
		},
	)
)
