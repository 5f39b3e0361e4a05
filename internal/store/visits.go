package store

import (
	"context"
	"fmt"
	"time"
)

func (s *SQLiteStore) RecordVisit(ctx context.Context, v *Visit) error {
	if v.VisitTime.IsZero() {
		v.VisitTime = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO visit_statistics (ip_address, user_agent, path, method, status_code, visit_time) VALUES (?, ?, ?, ?, ?, ?)",
		v.IPAddress, v.UserAgent, v.Path, v.Method, v.StatusCode, v.VisitTime.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert visit: %w", err)
	}
	v.ID, _ = res.LastInsertId()
	return nil
}

// CountVisitsSince counts visits at or after since. A zero since counts all.
func (s *SQLiteStore) CountVisitsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM visit_statistics WHERE visit_time >= ?", since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountUniqueVisitorIPs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT ip_address) FROM visit_statistics").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unique visitors: %w", err)
	}
	return n, nil
}

// TopPaths returns the most visited paths since the given time.
func (s *SQLiteStore) TopPaths(ctx context.Context, since time.Time, limit int) ([]PathCount, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT path, COUNT(*) AS n FROM visit_statistics
        WHERE visit_time >= ?
        GROUP BY path ORDER BY n DESC, path ASC LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top paths: %w", err)
	}
	defer rows.Close()

	var out []PathCount
	for rows.Next() {
		var pc PathCount
		if err := rows.Scan(&pc.Path, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan path count: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// DailyVisitCounts groups visits since the given time by UTC calendar day,
// oldest day first. Days without visits are omitted.
func (s *SQLiteStore) DailyVisitCounts(ctx context.Context, since time.Time) ([]DateCount, error) {
	// visit_time is stored as a UTC "YYYY-MM-DD HH:MM:SS..." string.
	rows, err := s.db.QueryContext(ctx, `
        SELECT substr(visit_time, 1, 10) AS day, COUNT(*) FROM visit_statistics
        WHERE visit_time >= ?
        GROUP BY day ORDER BY day`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query daily visits: %w", err)
	}
	defer rows.Close()

	var out []DateCount
	for rows.Next() {
		var dc DateCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily visit count: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// RecentUserAgents returns the user agents of the latest limit visits.
func (s *SQLiteStore) RecentUserAgents(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_agent FROM visit_statistics ORDER BY visit_time DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query user agents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ua string
		if err := rows.Scan(&ua); err != nil {
			return nil, fmt.Errorf("failed to scan user agent: %w", err)
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}
