package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getgoodtape/videoproc/internal/config"
	"github.com/getgoodtape/videoproc/internal/proxy"
)

var testPricing = config.UsageConfig{PlanPriceUSD: 22, PlanGB: 8, PerGBUSD: 3.5}

func openTestRepo(t *testing.T) *SQLiteUsageRepository {
	t.Helper()
	repo, err := OpenSQLiteUsage(filepath.Join(t.TempDir(), "usage", "usage.db"), testPricing)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func at(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestNewUsageRepository_Disabled(t *testing.T) {
	repo, err := NewUsageRepository(config.UsageConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.False(t, repo.Enabled())
	assert.NoError(t, repo.Append(context.Background(), UsageRecord{}))

	_, err = repo.DailyStats(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrUsageDisabled)
	_, err = repo.MonthlyStats(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrUsageDisabled)
}

func TestSQLiteUsage_DailyStats(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	recs := []UsageRecord{
		{Timestamp: at("2026-03-14T08:00:00Z"), EndpointID: "direct", Kind: "direct", Operation: "validate", Success: false, DurationMS: 100},
		{Timestamp: at("2026-03-14T08:00:01Z"), EndpointID: "gate.decodo.com:10001", Kind: "residential", Operation: "validate", Success: true, Bytes: 2048, DurationMS: 300},
		{Timestamp: at("2026-03-14T09:00:00Z"), EndpointID: "gate.decodo.com:10002", Kind: "residential", Operation: "convert", Success: true, Bytes: 4096, DurationMS: 800},
		{Timestamp: at("2026-03-15T00:00:00Z"), EndpointID: "direct", Kind: "direct", Operation: "convert", Success: true, Bytes: 1},
	}
	for _, r := range recs {
		require.NoError(t, repo.Append(ctx, r))
	}

	stats, err := repo.DailyStats(ctx, at("2026-03-14T23:59:00Z"))
	require.NoError(t, err)

	assert.Equal(t, "2026-03-14", stats.Date)
	assert.Equal(t, 3, stats.TotalRequests)
	assert.Equal(t, 2, stats.SuccessfulRequests)
	assert.InDelta(t, 66.67, stats.SuccessRate, 0.01)
	assert.Equal(t, int64(6144), stats.TotalBytes)
	assert.InDelta(t, 400, stats.AvgDurationMS, 0.01)
	assert.Equal(t, Breakdown{Count: 2, SuccessCount: 1, Bytes: 2048}, stats.Operations["validate"])
	assert.Equal(t, Breakdown{Count: 2, SuccessCount: 2, Bytes: 6144}, stats.Kinds["residential"])
	assert.Equal(t, Breakdown{Count: 1}, stats.Kinds["direct"])
}

func TestSQLiteUsage_DailyStatsEmpty(t *testing.T) {
	repo := openTestRepo(t)

	stats, err := repo.DailyStats(context.Background(), at("2026-01-01T12:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRequests)
	assert.Zero(t, stats.SuccessRate)
	assert.Empty(t, stats.Operations)
}

func TestSQLiteUsage_MonthlyStats(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, UsageRecord{Timestamp: at("2026-03-01T00:00:00Z"), EndpointID: "a", Kind: "residential", Operation: "convert", Success: true, Bytes: 3 * gib}))
	require.NoError(t, repo.Append(ctx, UsageRecord{Timestamp: at("2026-03-20T00:00:00Z"), EndpointID: "b", Kind: "residential", Operation: "convert", Success: true, Bytes: 6 * gib}))
	require.NoError(t, repo.Append(ctx, UsageRecord{Timestamp: at("2026-03-20T01:00:00Z"), EndpointID: "direct", Kind: "direct", Operation: "convert", Success: true, Bytes: 5 * gib}))
	require.NoError(t, repo.Append(ctx, UsageRecord{Timestamp: at("2026-04-01T00:00:00Z"), EndpointID: "a", Kind: "residential", Operation: "convert", Success: true, Bytes: gib}))

	stats, err := repo.MonthlyStats(ctx, at("2026-03-10T00:00:00Z"))
	require.NoError(t, err)

	assert.Equal(t, "2026-03", stats.Month)
	assert.Equal(t, 3, stats.TotalRequests)
	assert.Equal(t, int64(14*gib), stats.TotalBytes)
	assert.InDelta(t, 9.0, stats.ProxyGB, 0.001)
	assert.True(t, stats.PlanExceeded)
	assert.InDelta(t, 22.0, stats.PlanCostUSD, 0.001)
	assert.InDelta(t, 31.5, stats.PayAsYouGoUSD, 0.001)
	assert.Equal(t, "25GB plan ($65/month)", stats.Recommendation)
	assert.Len(t, stats.Daily, 2)
	assert.Equal(t, 2, stats.Daily["2026-03-20"].Count)
}

func TestRecommendPlan(t *testing.T) {
	tests := []struct {
		gb   float64
		want string
	}{
		{0, "2GB plan ($6/month)"},
		{2, "2GB plan ($6/month)"},
		{2.1, "8GB plan ($22/month)"},
		{25, "25GB plan ($65/month)"},
		{30, "pay as you go ($105.00/month)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RecommendPlan(tt.gb, 3.5))
	}
}

func TestUsageObserver(t *testing.T) {
	repo := openTestRepo(t)
	clk := clock.NewMock()
	clk.Set(at("2026-05-02T10:00:00Z"))
	obs := NewUsageObserver(repo, clk, slog.New(slog.NewTextHandler(io.Discard, nil)))

	attempt := proxy.PathAttempt{EndpointID: "pr.oxylabs.io:7777", Kind: proxy.KindResidential, Provider: proxy.ProviderOxylabs}
	obs.ObserveAttempt(context.Background(), proxy.AttemptEvent{
		Operation: "convert",
		URL:       "https://youtu.be/x",
		Attempt:   attempt,
		Success:   true,
		Duration:  1500 * time.Millisecond,
		Bytes:     1024,
	})
	obs.ObserveAttempt(context.Background(), proxy.AttemptEvent{
		Operation: "convert",
		URL:       "https://youtu.be/x",
		Attempt:   attempt,
		Err:       errors.New(strings.Repeat("x", 2000)),
	})

	recs, err := repo.between(context.Background(), at("2026-05-02T00:00:00Z"), at("2026-05-03T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "pr.oxylabs.io:7777", recs[0].EndpointID)
	assert.Equal(t, "residential", recs[0].Kind)
	assert.Equal(t, int64(1500), recs[0].DurationMS)
	assert.True(t, recs[0].Success)
	assert.False(t, recs[1].Success)
	assert.Len(t, recs[1].Error, maxErrorLen)

	stats, err := repo.DailyStats(context.Background(), clk.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1024), stats.TotalBytes)
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc"},
		{"ab€", 3, "ab"},
		{"ab€", 4, "ab"},
		{"ab€", 5, "ab€"},
		{"€", 1, ""},
	}
	for _, tt := range tests {
		got := truncateUTF8(tt.in, tt.n)
		assert.Equal(t, tt.want, got)
		assert.True(t, utf8.ValidString(got))
	}

	long := strings.Repeat("é", 400)
	got := truncateUTF8(long, maxErrorLen)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxErrorLen)
}

func TestUsageObserver_Disabled(t *testing.T) {
	obs := NewUsageObserver(NopUsageRepository{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	obs.ObserveAttempt(context.Background(), proxy.AttemptEvent{Operation: "validate"})
}
