package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	_ "modernc.org/sqlite"

	"github.com/getgoodtape/videoproc/internal/config"
	"github.com/getgoodtape/videoproc/internal/proxy"
)

// ErrUsageDisabled is returned by reports when no usage database is configured.
var ErrUsageDisabled = errors.New("usage log disabled")

const gib = 1 << 30

// NewUsageRepository opens the SQLite usage log, or returns a no-op
// repository when cfg.DBPath is empty.
func NewUsageRepository(cfg config.UsageConfig, logger *slog.Logger) (UsageRepository, error) {
	if cfg.DBPath == "" {
		return NopUsageRepository{}, nil
	}
	repo, err := OpenSQLiteUsage(cfg.DBPath, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("usage log enabled", "path", cfg.DBPath)
	return repo, nil
}

// SQLiteUsageRepository stores usage records in a single SQLite table.
type SQLiteUsageRepository struct {
	db      *sql.DB
	pricing config.UsageConfig
}

// OpenSQLiteUsage opens (creating if needed) the usage database at path.
func OpenSQLiteUsage(path string, pricing config.UsageConfig) (*SQLiteUsageRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create usage dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS usage (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			endpoint_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			provider TEXT,
			operation TEXT NOT NULL,
			url TEXT,
			success INTEGER NOT NULL,
			bytes INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_usage_ts ON usage(ts);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteUsageRepository{db: db, pricing: pricing}, nil
}

// Enabled implements UsageRepository.
func (r *SQLiteUsageRepository) Enabled() bool { return true }

// Close closes the database.
func (r *SQLiteUsageRepository) Close() error {
	return r.db.Close()
}

// Append implements UsageRepository.
func (r *SQLiteUsageRepository) Append(ctx context.Context, rec UsageRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO usage (ts, endpoint_id, kind, provider, operation, url, success, bytes, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UnixMilli(), rec.EndpointID, rec.Kind, rec.Provider, rec.Operation,
		rec.URL, rec.Success, rec.Bytes, rec.DurationMS, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

func (r *SQLiteUsageRepository) between(ctx context.Context, from, to time.Time) ([]UsageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, endpoint_id, kind, operation, success, bytes, duration_ms
		FROM usage WHERE ts >= ? AND ts < ? ORDER BY ts`,
		from.UnixMilli(), to.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		var ts int64
		if err := rows.Scan(&ts, &rec.EndpointID, &rec.Kind, &rec.Operation, &rec.Success, &rec.Bytes, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DailyStats implements UsageRepository.
func (r *SQLiteUsageRepository) DailyStats(ctx context.Context, day time.Time) (*DailyStats, error) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	recs, err := r.between(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	stats := &DailyStats{
		Date:       start.Format("2006-01-02"),
		Operations: make(map[string]Breakdown),
		Kinds:      make(map[string]Breakdown),
	}
	var totalMS int64
	for _, rec := range recs {
		stats.TotalRequests++
		stats.TotalBytes += rec.Bytes
		totalMS += rec.DurationMS
		if rec.Success {
			stats.SuccessfulRequests++
		}
		op := stats.Operations[rec.Operation]
		op.add(rec)
		stats.Operations[rec.Operation] = op
		k := stats.Kinds[rec.Kind]
		k.add(rec)
		stats.Kinds[rec.Kind] = k
	}
	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests) * 100
		stats.AvgDurationMS = float64(totalMS) / float64(stats.TotalRequests)
	}
	return stats, nil
}

// MonthlyStats implements UsageRepository.
func (r *SQLiteUsageRepository) MonthlyStats(ctx context.Context, month time.Time) (*MonthlyStats, error) {
	month = month.UTC()
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	recs, err := r.between(ctx, start, start.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}

	stats := &MonthlyStats{
		Month: start.Format("2006-01"),
		Daily: make(map[string]Breakdown),
	}
	for _, rec := range recs {
		stats.TotalRequests++
		stats.TotalBytes += rec.Bytes
		if rec.Kind != string(proxy.KindDirect) {
			stats.ProxyBytes += rec.Bytes
		}
		day := rec.Timestamp.Format("2006-01-02")
		b := stats.Daily[day]
		b.add(rec)
		stats.Daily[day] = b
	}

	stats.ProxyGB = float64(stats.ProxyBytes) / gib
	stats.PlanCostUSD = r.pricing.PlanPriceUSD
	stats.PlanExceeded = stats.ProxyGB > r.pricing.PlanGB
	stats.PayAsYouGoUSD = stats.ProxyGB * r.pricing.PerGBUSD
	stats.Recommendation = RecommendPlan(stats.ProxyGB, r.pricing.PerGBUSD)
	return stats, nil
}

type plan struct {
	name     string
	limitGB  float64
	priceUSD float64
}

var plans = []plan{
	{"2GB plan", 2, 6},
	{"8GB plan", 8, 22},
	{"25GB plan", 25, 65},
}

// RecommendPlan picks the cheapest residential plan that covers gb per month,
// falling back to pay-as-you-go.
func RecommendPlan(gb, perGBUSD float64) string {
	for _, p := range plans {
		if gb <= p.limitGB {
			return fmt.Sprintf("%s ($%.0f/month)", p.name, p.priceUSD)
		}
	}
	return fmt.Sprintf("pay as you go ($%.2f/month)", gb*perGBUSD)
}

// NopUsageRepository discards records.
type NopUsageRepository struct{}

func (NopUsageRepository) Append(context.Context, UsageRecord) error { return nil }
func (NopUsageRepository) Enabled() bool { return false }
func (NopUsageRepository) Close() error { return nil }

func (NopUsageRepository) DailyStats(context.Context, time.Time) (*DailyStats, error) {
	return nil, ErrUsageDisabled
}

func (NopUsageRepository) MonthlyStats(context.Context, time.Time) (*MonthlyStats, error) {
	return nil, ErrUsageDisabled
}

const maxErrorLen = 500

// UsageObserver appends every path attempt to a UsageRepository.
type UsageObserver struct {
	repo   UsageRepository
	clock  clock.Clock
	logger *slog.Logger
}

// NewUsageObserver creates an attempt observer. clk may be nil.
func NewUsageObserver(repo UsageRepository, clk clock.Clock, logger *slog.Logger) *UsageObserver {
	if clk == nil {
		clk = clock.New()
	}
	return &UsageObserver{repo: repo, clock: clk, logger: logger.With("component", "usage")}
}

// ObserveAttempt implements proxy.AttemptObserver.
func (o *UsageObserver) ObserveAttempt(ctx context.Context, ev proxy.AttemptEvent) {
	if !o.repo.Enabled() {
		return
	}
	rec := UsageRecord{
		Timestamp:  o.clock.Now(),
		EndpointID: ev.Attempt.EndpointID,
		Kind:       string(ev.Attempt.Kind),
		Provider:   ev.Attempt.Provider,
		Operation:  ev.Operation,
		URL:        ev.URL,
		Success:    ev.Success,
		Bytes:      ev.Bytes,
		DurationMS: ev.Duration.Milliseconds(),
	}
	if ev.Err != nil {
		rec.Error = truncateUTF8(ev.Err.Error(), maxErrorLen)
	}
	if err := o.repo.Append(ctx, rec); err != nil {
		o.logger.Warn("failed to record usage", "endpoint", rec.EndpointID, "error", err)
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
