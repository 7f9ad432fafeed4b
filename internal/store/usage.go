// Package store holds the persistence collaborators of trackerd: the SQLite
// usage database written by the activity sampler, and the filesystem layout
// for recordings, screenshots, transcripts, and workflow documents.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// UsageRecord is one observed foreground interval. Immutable once written.
type UsageRecord struct {
	AppName    string    `json:"app"`
	Seconds    float64   `json:"seconds"`
	CapturedAt time.Time `json:"captured_at"`
}

// AppUsage is the per-app aggregate returned by usage queries.
type AppUsage struct {
	App     string  `json:"app"`
	Seconds float64 `json:"seconds"`
	Minutes float64 `json:"minutes"`
}

// ChartData is the shape consumed by the client's usage chart.
type ChartData struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
	Colors []string  `json:"colors"`
}

var chartColors = []string{"#6478ff", "#7c88ff", "#9498ff", "#aca8ff", "#c4b8ff"}

// UsageStore manages usage-record persistence backed by SQLite.
type UsageStore struct {
	db   *sql.DB
	path string
}

// OpenUsage initializes or connects to the usage database under root and
// applies the schema.
func OpenUsage(root string) (*UsageStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data root: %w", err)
	}

	dbPath := filepath.Join(root, "usage.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	schema := `CREATE TABLE IF NOT EXISTS usage_records (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        app TEXT NOT NULL,
        seconds REAL NOT NULL,
        captured_at TEXT NOT NULL
    )`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &UsageStore{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *UsageStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append writes one usage record.
func (s *UsageStore) Append(ctx context.Context, rec UsageRecord) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO usage_records (app, seconds, captured_at) VALUES (?, ?, ?)`,
		rec.AppName,
		rec.Seconds,
		rec.CapturedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// UsageForDay aggregates seconds per app for the given day (UTC). A zero day
// means today.
func (s *UsageStore) UsageForDay(ctx context.Context, day time.Time) ([]AppUsage, error) {
	if day.IsZero() {
		day = time.Now().UTC()
	}
	prefix := day.UTC().Format("2006-01-02")

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT app, SUM(seconds) AS total
         FROM usage_records
         WHERE captured_at LIKE ? || '%'
         GROUP BY app
         ORDER BY total DESC`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []AppUsage
	for rows.Next() {
		var u AppUsage
		if err := rows.Scan(&u.App, &u.Seconds); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		u.Minutes = roundHundredth(u.Seconds / 60)
		out = append(out, u)
	}
	return out, rows.Err()
}

// Chart formats today's usage for the client chart.
func (s *UsageStore) Chart(ctx context.Context) (ChartData, error) {
	usage, err := s.UsageForDay(ctx, time.Time{})
	if err != nil {
		return ChartData{}, err
	}

	chart := ChartData{
		Labels: make([]string, 0, len(usage)),
		Data:   make([]float64, 0, len(usage)),
		Colors: chartColors,
	}
	for _, u := range usage {
		chart.Labels = append(chart.Labels, u.App)
		chart.Data = append(chart.Data, u.Minutes)
	}
	return chart, nil
}

// UsageToday satisfies the bus snapshot source, giving late subscribers the
// accumulated records without an extra round trip.
func (s *UsageStore) UsageToday() (any, error) {
	usage, err := s.UsageForDay(context.Background(), time.Time{})
	if err != nil {
		return nil, err
	}
	return usage, nil
}

func roundHundredth(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
