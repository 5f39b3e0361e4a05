package core

import (
	"context"
	"time"

	"gwi.com/myblog/internal/logging"
	"gwi.com/myblog/internal/metrics"
	"gwi.com/myblog/internal/store"
	"gwi.com/myblog/internal/utils"
)

const (
	maxVisitFieldChars = 500
	topPagesLimit      = 10
	topPostsLimit      = 10
	visitStatsDays     = 30
	visitStatsPaths    = 15
	browserSampleSize  = 1000
)

type SiteStatistics struct {
	TotalVisits  int               `json:"total_visits"`
	TodayVisits  int               `json:"today_visits"`
	WeekVisits   int               `json:"week_visits"`
	MonthVisits  int               `json:"month_visits"`
	PopularPages []store.PathCount `json:"popular_pages"`
	PostCounts   map[string]int    `json:"post_counts"`
	TotalPosts   int               `json:"total_posts"`
	TopPosts     []PostView        `json:"top_posts"`
	TotalUsers   int               `json:"total_users"`
	ActiveUsers  int               `json:"active_users"`
	StaffUsers   int               `json:"staff_users"`
	Comments     int               `json:"total_comments"`
}

// VisitStats is the chart data for the last 30 days. Dates and Counts are
// parallel and include days without visits.
type VisitStats struct {
	Dates        []string          `json:"dates"`
	Counts       []int             `json:"counts"`
	PopularPaths []store.PathCount `json:"popular_paths"`
	Browsers     map[string]int    `json:"browsers"`
	TotalVisits  int               `json:"total_visits"`
	UniqueIPs    int               `json:"unique_ips"`
}

type StatsService struct {
	dbStore *store.SQLiteStore
	now     func() time.Time
}

func NewStatsService(db *store.SQLiteStore) *StatsService {
	return &StatsService{dbStore: db, now: func() time.Time { return time.Now().UTC() }}
}

// RecordVisit stores one visit. Failures are logged and counted, never
// returned, so a broken stats table cannot fail a page request.
func (s *StatsService) RecordVisit(ctx context.Context, v store.Visit) {
	v.UserAgent = truncateRunes(v.UserAgent, maxVisitFieldChars)
	v.Path = truncateRunes(v.Path, maxVisitFieldChars)
	if err := s.dbStore.RecordVisit(ctx, &v); err != nil {
		metrics.VisitRecordFailures.Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("path", v.Path).Msg("Failed to record visit")
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *StatsService) SiteStatistics(ctx context.Context) (*SiteStatistics, error) {
	today := startOfDay(s.now())
	stats := &SiteStatistics{}

	var err error
	if stats.TotalVisits, err = s.dbStore.CountVisitsSince(ctx, time.Time{}); err != nil {
		return nil, err
	}
	if stats.TodayVisits, err = s.dbStore.CountVisitsSince(ctx, today); err != nil {
		return nil, err
	}
	if stats.WeekVisits, err = s.dbStore.CountVisitsSince(ctx, today.AddDate(0, 0, -7)); err != nil {
		return nil, err
	}
	if stats.MonthVisits, err = s.dbStore.CountVisitsSince(ctx, today.AddDate(0, 0, -30)); err != nil {
		return nil, err
	}
	if stats.PopularPages, err = s.dbStore.TopPaths(ctx, time.Time{}, topPagesLimit); err != nil {
		return nil, err
	}
	if stats.PostCounts, err = s.dbStore.PostCountsByStatus(ctx, 0); err != nil {
		return nil, err
	}
	for _, n := range stats.PostCounts {
		stats.TotalPosts += n
	}
	top, err := s.dbStore.ListPopularPosts(ctx, topPostsLimit)
	if err != nil {
		return nil, err
	}
	stats.TopPosts = newPostViews(top)
	if stats.TotalUsers, stats.ActiveUsers, stats.StaffUsers, err = s.dbStore.UserCounts(ctx); err != nil {
		return nil, err
	}
	if stats.Comments, err = s.dbStore.CountComments(ctx); err != nil {
		return nil, err
	}
	if stats.PopularPages == nil {
		stats.PopularPages = []store.PathCount{}
	}
	return stats, nil
}

func (s *StatsService) VisitStats(ctx context.Context) (*VisitStats, error) {
	today := startOfDay(s.now())
	start := today.AddDate(0, 0, -visitStatsDays)

	daily, err := s.dbStore.DailyVisitCounts(ctx, start)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]int, len(daily))
	for _, dc := range daily {
		byDay[dc.Date] = dc.Count
	}

	stats := &VisitStats{Browsers: map[string]int{}}
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		stats.Dates = append(stats.Dates, key)
		stats.Counts = append(stats.Counts, byDay[key])
	}

	if stats.PopularPaths, err = s.dbStore.TopPaths(ctx, start, visitStatsPaths); err != nil {
		return nil, err
	}
	if stats.PopularPaths == nil {
		stats.PopularPaths = []store.PathCount{}
	}

	agents, err := s.dbStore.RecentUserAgents(ctx, browserSampleSize)
	if err != nil {
		return nil, err
	}
	for _, ua := range agents {
		stats.Browsers[utils.BrowserFamily(ua)]++
	}

	if stats.TotalVisits, err = s.dbStore.CountVisitsSince(ctx, time.Time{}); err != nil {
		return nil, err
	}
	if stats.UniqueIPs, err = s.dbStore.CountUniqueVisitorIPs(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}
