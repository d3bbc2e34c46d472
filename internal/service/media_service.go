package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/getgoodtape/videoproc/internal/config"
	"github.com/getgoodtape/videoproc/internal/conflict"
	"github.com/getgoodtape/videoproc/internal/domain"
	"github.com/getgoodtape/videoproc/internal/downloader"
	"github.com/getgoodtape/videoproc/internal/platform"
	"github.com/getgoodtape/videoproc/internal/proxy"
)

// Executor runs blocking work off the request goroutine.
type Executor interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// MediaServiceConfig holds the per-operation risk profiles.
type MediaServiceConfig struct {
	Extract       config.ExtractConfig
	Transcode     config.TranscodeConfig
	AllowDirect   bool
	Country       string
	PublicBaseURL string
}

// MediaService answers validate and convert requests by trying network paths
// in the order the selector gives them.
type MediaService struct {
	net        *proxy.Network
	extractor  downloader.Extractor
	transcoder downloader.Transcoder
	executor   Executor
	fallback   downloader.MetadataFallback
	cache      *expirable.LRU[string, *domain.Metadata]
	cfg        MediaServiceConfig
	logger     *slog.Logger
}

// NewMediaService creates a new media service.
func NewMediaService(
	net *proxy.Network,
	extractor downloader.Extractor,
	transcoder downloader.Transcoder,
	executor Executor,
	cfg MediaServiceConfig,
	logger *slog.Logger,
) *MediaService {
	size := cfg.Extract.CacheSize
	if size <= 0 {
		size = 256
	}
	return &MediaService{
		net:        net,
		extractor:  extractor,
		transcoder: transcoder,
		executor:   executor,
		cache:      expirable.NewLRU[string, *domain.Metadata](size, nil, cfg.Extract.CacheTTL),
		cfg:        cfg,
		logger:     logger.With("component", "media_service"),
	}
}

// WithMetadataFallback sets the lookup Validate uses for YouTube URLs once
// every network path failed.
func (s *MediaService) WithMetadataFallback(fb downloader.MetadataFallback) *MediaService {
	s.fallback = fb
	return s
}

// SourceYouTubeAPI marks metadata that came from the YouTube Data API.
const SourceYouTubeAPI = "youtube_data_api"

// AttemptSummary is one tried path as reported to the caller.
type AttemptSummary struct {
	EndpointID string `json:"endpoint_id"`
	Kind       string `json:"kind"`
	Class      string `json:"class"`
}

// ValidateResult is the response to a metadata lookup.
type ValidateResult struct {
	Valid          bool               `json:"valid"`
	Metadata       *domain.Metadata   `json:"metadata,omitempty"`
	Platform       platform.Platform  `json:"platform,omitempty"`
	Endpoint       string             `json:"endpoint,omitempty"`
	Cached         bool               `json:"cached,omitempty"`
	Source         string             `json:"source,omitempty"`
	Error          string             `json:"error,omitempty"`
	ErrorType      platform.ErrorType `json:"error_type,omitempty"`
	Suggestion     string             `json:"suggestion,omitempty"`
	AttemptedPaths []AttemptSummary   `json:"attempted_paths,omitempty"`
}

// ConvertRequest asks for a source URL to be converted.
type ConvertRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Quality string `json:"quality"`
}

// ConvertOutput describes a finished conversion.
type ConvertOutput struct {
	Filename        string `json:"filename"`
	FileSizeBytes   int64  `json:"file_size_bytes"`
	DurationSeconds int    `json:"duration_seconds"`
	DownloadURL     string `json:"download_url"`
	Format          string `json:"format"`
	Quality         string `json:"quality"`
	Endpoint        string `json:"endpoint"`
}

// ConvertResult is the response to a convert call.
type ConvertResult struct {
	Success        bool               `json:"success"`
	Result         *ConvertOutput     `json:"result,omitempty"`
	Error          string             `json:"error,omitempty"`
	ErrorType      platform.ErrorType `json:"error_type,omitempty"`
	Suggestion     string             `json:"suggestion,omitempty"`
	AttemptedPaths []AttemptSummary   `json:"attempted_paths,omitempty"`
}

// failure is a user-facing description of why a request did not succeed.
type failure struct {
	message    string
	errorType  platform.ErrorType
	suggestion string
	attempts   []AttemptSummary
}

// Validate looks up metadata for rawURL. Malformed URLs are rejected before
// any network path is selected.
func (s *MediaService) Validate(ctx context.Context, rawURL string) ValidateResult {
	u, err := domain.ParseSourceURL(rawURL)
	if err != nil {
		return ValidateResult{Error: invalidURLMessage(err), Suggestion: invalidURLHint}
	}
	rawURL = u.String()
	plat := platform.Detect(rawURL)

	if md, ok := s.cache.Get(rawURL); ok {
		return ValidateResult{Valid: true, Metadata: md, Platform: plat, Cached: true}
	}

	logger := s.logger.With("request_id", requestID(), "operation", "validate", "url", rawURL)

	attempts, err := s.net.Selector.Select(ctx, s.requestContext(u.Hostname(), s.cfg.Extract.MaxAttempts))
	if err != nil {
		f := s.describe(rawURL, err)
		logger.Error("no candidates", "error", domain.NewOpError("validate", rawURL, err))
		return ValidateResult{Platform: plat, Error: f.message, ErrorType: f.errorType, Suggestion: f.suggestion}
	}

	runner := s.net.Runner.With("validate", rawURL)
	md, used, err := proxy.Run(ctx, runner, attempts, s.cfg.Extract.Timeout,
		func(ctx context.Context, a proxy.PathAttempt) (*domain.Metadata, error) {
			return s.extractor.FetchMetadata(ctx, rawURL, a)
		})
	if err != nil {
		f := s.describe(rawURL, err)
		if md, ok := s.fallbackMetadata(ctx, rawURL, plat, err, logger); ok {
			s.cache.Add(rawURL, md)
			return ValidateResult{Valid: true, Metadata: md, Platform: plat, Source: SourceYouTubeAPI, AttemptedPaths: f.attempts}
		}
		logger.Warn("validate failed", "error", domain.NewOpError("validate", rawURL, err), "attempts", len(f.attempts))
		return ValidateResult{
			Platform:       plat,
			Error:          f.message,
			ErrorType:      f.errorType,
			Suggestion:     f.suggestion,
			AttemptedPaths: f.attempts,
		}
	}

	s.cache.Add(rawURL, md)
	logger.Info("validated", "title", md.Title, "endpoint", used.EndpointID)
	return ValidateResult{Valid: true, Metadata: md, Platform: plat, Endpoint: used.EndpointID}
}

// fallbackMetadata consults the Data API for YouTube URLs after every path
// was tried. A cancelled request or an unconfigured fallback is skipped.
func (s *MediaService) fallbackMetadata(ctx context.Context, rawURL string, plat platform.Platform, runErr error, logger *slog.Logger) (*domain.Metadata, bool) {
	if s.fallback == nil || !s.fallback.Enabled() || plat != platform.YouTube || ctx.Err() != nil {
		return nil, false
	}
	var ex *proxy.ExhaustedError
	if !errors.As(runErr, &ex) || ex.Cause != nil {
		return nil, false
	}
	md, err := s.fallback.FetchMetadata(ctx, rawURL)
	if err != nil {
		logger.Warn("data api fallback failed", "error", err)
		return nil, false
	}
	logger.Info("validated via data api", "title", md.Title, "paths_failed", len(ex.Attempts))
	return md, true
}

// Convert downloads and converts req.URL on the executor.
func (s *MediaService) Convert(ctx context.Context, req ConvertRequest) ConvertResult {
	u, err := domain.ParseSourceURL(req.URL)
	if err != nil {
		return ConvertResult{Error: invalidURLMessage(err), Suggestion: invalidURLHint}
	}
	rawURL := u.String()

	format, err := domain.ParseFormat(req.Format)
	if err != nil {
		return ConvertResult{
			Error:      fmt.Sprintf("Unsupported format %q", req.Format),
			Suggestion: "Use mp3 for audio or mp4 for video.",
		}
	}

	quality := strings.TrimSpace(req.Quality)
	if quality == "" {
		quality = s.defaultQuality(format)
	}
	if !config.ValidQuality(format.String(), quality) {
		return ConvertResult{
			Error:      fmt.Sprintf("Invalid quality %q for %s", quality, format),
			Suggestion: qualityHint(format),
		}
	}

	logger := s.logger.With("request_id", requestID(), "operation", "convert", "url", rawURL, "format", format, "quality", quality)

	var (
		out  *domain.TranscodeOutput
		used proxy.PathAttempt
	)
	err = s.executor.Do(ctx, func(ctx context.Context) error {
		attempts, err := s.net.Selector.Select(ctx, s.requestContext(u.Hostname(), s.cfg.Transcode.MaxAttempts))
		if err != nil {
			return err
		}
		runner := s.net.Runner.With("convert", rawURL)
		out, used, err = proxy.Run(ctx, runner, attempts, s.cfg.Transcode.Timeout,
			func(ctx context.Context, a proxy.PathAttempt) (*domain.TranscodeOutput, error) {
				return s.transcoder.Transcode(ctx, rawURL, a, format, quality)
			})
		return err
	})
	if err != nil {
		f := s.describe(rawURL, err)
		logger.Warn("convert failed", "error", domain.NewOpError("convert", rawURL, err), "attempts", len(f.attempts))
		return ConvertResult{
			Error:          f.message,
			ErrorType:      f.errorType,
			Suggestion:     f.suggestion,
			AttemptedPaths: f.attempts,
		}
	}

	logger.Info("converted", "filename", out.Filename, "size_bytes", out.SizeBytes, "endpoint", used.EndpointID)
	return ConvertResult{
		Success: true,
		Result: &ConvertOutput{
			Filename:        out.Filename,
			FileSizeBytes:   out.SizeBytes,
			DurationSeconds: out.DurationSeconds,
			DownloadURL:     s.downloadURL(out.Filename),
			Format:          format.String(),
			Quality:         quality,
			Endpoint:        used.EndpointID,
		},
	}
}

// EndpointInfo is the public view of a configured endpoint.
type EndpointInfo struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Provider        string `json:"provider"`
	Family          string `json:"family"`
	SupportsSession bool   `json:"supports_session"`
	SupportsCountry bool   `json:"supports_country"`
}

// Diagnostics is the operational view of path selection.
type Diagnostics struct {
	Conflict  conflict.State        `json:"conflict"`
	Outcomes  []proxy.EndpointStats `json:"outcomes"`
	Endpoints []EndpointInfo        `json:"endpoints"`
	Families  []string              `json:"families"`
}

// Diagnostics reports the cached conflict state, outcome counters and pool.
// It never triggers a probe.
func (s *MediaService) Diagnostics(ctx context.Context) Diagnostics {
	eps := s.net.Pool.Endpoints()
	infos := make([]EndpointInfo, len(eps))
	for i, ep := range eps {
		infos[i] = EndpointInfo{
			ID:              ep.ID,
			Kind:            string(ep.Kind),
			Provider:        ep.Provider,
			Family:          ep.Family(),
			SupportsSession: ep.SupportsSession,
			SupportsCountry: ep.SupportsCountry,
		}
	}
	return Diagnostics{
		Conflict:  s.net.Detector.Snapshot(),
		Outcomes:  s.net.Tracker.Snapshot(),
		Endpoints: infos,
		Families:  s.net.Pool.Families(),
	}
}

// ReprobeConflict forces a fresh conflict probe.
func (s *MediaService) ReprobeConflict(ctx context.Context) conflict.State {
	return s.net.Detector.Refresh(ctx)
}

func (s *MediaService) requestContext(host string, maxAttempts int) proxy.RequestContext {
	return proxy.RequestContext{
		TargetHost:  host,
		AllowDirect: s.cfg.AllowDirect,
		MaxAttempts: maxAttempts,
		Country:     s.cfg.Country,
	}
}

func (s *MediaService) defaultQuality(f domain.Format) string {
	if f == domain.FormatMP3 {
		return s.cfg.Transcode.DefaultMP3
	}
	return s.cfg.Transcode.DefaultMP4
}

func (s *MediaService) downloadURL(filename string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/api/v1/files/" + filename
}

const invalidURLHint = "Please provide a full http(s) link to a video page."

func invalidURLMessage(err error) string {
	detail := strings.TrimPrefix(err.Error(), domain.ErrInvalidURL.Error()+": ")
	return "Invalid URL: " + detail
}

func qualityHint(f domain.Format) string {
	if f == domain.FormatMP3 {
		return "Choose an audio bitrate of 64, 128, 192, 256 or 320."
	}
	return "Choose a video height of 360, 480, 720 or 1080."
}

// describe turns a selection or attempt error into a user-facing failure.
func (s *MediaService) describe(rawURL string, err error) failure {
	if errors.Is(err, domain.ErrNoNetworkPath) {
		return failure{
			message:    "No network path available: no proxy is configured and direct connection is disabled.",
			errorType:  platform.NetworkError,
			suggestion: "Configure proxy credentials or enable direct connection.",
		}
	}

	var ex *proxy.ExhaustedError
	if !errors.As(err, &ex) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return failure{
				message:    "The request was cancelled before it could start.",
				errorType:  platform.ServerError,
				suggestion: "The server is busy. Please try again in a moment.",
			}
		}
		c := platform.Classify(err.Error(), rawURL)
		return failure{message: c.Message(), errorType: c.Type, suggestion: c.Suggestion}
	}

	attempts := make([]AttemptSummary, len(ex.Attempts))
	ids := make([]string, len(ex.Attempts))
	for i, a := range ex.Attempts {
		attempts[i] = AttemptSummary{EndpointID: a.EndpointID, Kind: string(a.Kind), Class: string(a.Class)}
		ids[i] = a.EndpointID
	}

	if ex.Cause != nil {
		return failure{
			message:    fmt.Sprintf("Request stopped after %d network paths: %v", len(ex.Attempts), ex.Cause),
			errorType:  platform.ServerError,
			suggestion: "Please try again.",
			attempts:   attempts,
		}
	}

	msgs := make([]string, len(ex.Attempts))
	for i, a := range ex.Attempts {
		msgs[i] = a.Err.Error()
	}
	c := platform.Classify(strings.Join(msgs, "\n"), rawURL)
	return failure{
		message: fmt.Sprintf("All %d network paths failed (%s). %s",
			len(ex.Attempts), strings.Join(ids, ", "), c.Message()),
		errorType:  c.Type,
		suggestion: c.Suggestion,
		attempts:   attempts,
	}
}

func requestID() string {
	return uuid.NewString()[:8]
}
