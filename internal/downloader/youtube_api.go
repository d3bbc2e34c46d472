package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/getgoodtape/videoproc/internal/domain"
)

// DefaultYouTubeAPIBaseURL is the YouTube Data API v3 root.
const DefaultYouTubeAPIBaseURL = "https://www.googleapis.com/youtube/v3"

// ErrVideoUnavailable is returned when the Data API does not list the video
// or reports it as private.
var ErrVideoUnavailable = errors.New("video not found or private")

// YouTubeAPIExtractor reads YouTube metadata from the Data API. It talks to
// Google directly, not through a proxy path, and serves as a last resort
// after every path failed.
type YouTubeAPIExtractor struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewYouTubeAPIExtractor creates a Data API client. An empty baseURL uses
// DefaultYouTubeAPIBaseURL.
func NewYouTubeAPIExtractor(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *YouTubeAPIExtractor {
	if baseURL == "" {
		baseURL = DefaultYouTubeAPIBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &YouTubeAPIExtractor{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "youtube_api"),
	}
}

// Enabled reports whether an API key is configured.
func (y *YouTubeAPIExtractor) Enabled() bool {
	return y != nil && y.apiKey != ""
}

// FetchMetadata looks up rawURL's video by ID.
func (y *YouTubeAPIExtractor) FetchMetadata(ctx context.Context, rawURL string) (*domain.Metadata, error) {
	if !y.Enabled() {
		return nil, errors.New("youtube api: no API key configured")
	}
	id, ok := YouTubeVideoID(rawURL)
	if !ok {
		return nil, fmt.Errorf("youtube api: %w: no video ID in %s", domain.ErrInvalidURL, rawURL)
	}

	q := url.Values{}
	q.Set("part", "snippet,contentDetails,status")
	q.Set("id", id)
	q.Set("key", y.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+"/videos?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("youtube api: build request: %w", err)
	}
	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("youtube api: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error.message").String()
		return nil, fmt.Errorf("youtube api: HTTP %d %s", resp.StatusCode, msg)
	}

	item := gjson.GetBytes(body, "items.0")
	if !item.Exists() || item.Get("status.privacyStatus").String() == "private" {
		return nil, fmt.Errorf("youtube api: %s: %w", id, ErrVideoUnavailable)
	}

	snippet := item.Get("snippet")
	md := &domain.Metadata{
		Title:           snippet.Get("title").String(),
		DurationSeconds: ParseISODuration(item.Get("contentDetails.duration").String()),
		UploaderName:    snippet.Get("channelTitle").String(),
		ThumbnailURL: firstNonEmpty(
			snippet.Get("thumbnails.high.url").String(),
			snippet.Get("thumbnails.medium.url").String(),
			snippet.Get("thumbnails.default.url").String(),
		),
	}
	y.logger.Debug("metadata from data api", "video_id", id, "title", md.Title)
	return md, nil
}

// YouTubeVideoID extracts the video ID from watch, short-link, embed, v and
// shorts URLs.
func YouTubeVideoID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Split(strings.Trim(u.Path, "/"), "/")[0]
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 2 {
			switch parts[0] {
			case "embed", "v", "shorts", "live":
				id = parts[1]
			}
		}
	}
	if !videoIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration converts an ISO 8601 duration such as PT4M13S to seconds.
// Unparseable input yields 0.
func ParseISODuration(s string) int {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	units := []int{86400, 3600, 60, 1}
	total := 0
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		total += n * unit
	}
	return total
}
