package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"github.com/tidwall/gjson"

	"github.com/getgoodtape/videoproc/internal/domain"
	"github.com/getgoodtape/videoproc/internal/proxy"
)

// YtDlp drives the yt-dlp binary for metadata and source downloads.
type YtDlp struct {
	binary string
	logger *slog.Logger
}

// NewYtDlp creates a yt-dlp wrapper. binary may be a bare name resolved via PATH.
func NewYtDlp(binary string, logger *slog.Logger) *YtDlp {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YtDlp{
		binary: binary,
		logger: logger.With("component", "ytdlp"),
	}
}

// Available reports whether the yt-dlp binary resolves.
func (y *YtDlp) Available() bool {
	_, err := exec.LookPath(y.binary)
	return err == nil
}

// Binary returns the configured executable.
func (y *YtDlp) Binary() string {
	return y.binary
}

// Version returns the output of `yt-dlp --version`.
func (y *YtDlp) Version(ctx context.Context) (string, error) {
	if !y.Available() {
		return "", fmt.Errorf("%w: %s", domain.ErrToolMissing, y.binary)
	}
	out, err := exec.CommandContext(ctx, y.binary, "--version").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (y *YtDlp) command(path proxy.PathAttempt) *ytdlp.Command {
	dl := ytdlp.New().SetExecutable(y.binary).NoPlaylist()
	if !path.IsDirect() {
		dl = dl.Proxy(path.ProxyURL)
	}
	return dl
}

// FetchMetadata runs yt-dlp without downloading and parses its JSON dump.
func (y *YtDlp) FetchMetadata(ctx context.Context, url string, path proxy.PathAttempt) (*domain.Metadata, error) {
	if !y.Available() {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolMissing, y.binary)
	}

	res, err := y.command(path).SkipDownload().PrintJSON().Run(ctx, url)
	if err != nil {
		return nil, toolError("extract metadata", res, err)
	}
	return ParseMetadata(res.Stdout)
}

// FormatSelector returns the yt-dlp -f expression for format and quality.
func FormatSelector(format domain.Format, quality string) string {
	if format == domain.FormatMP3 {
		return "bestaudio/best"
	}
	if quality == "" {
		return "bestvideo+bestaudio/best"
	}
	return fmt.Sprintf("bestvideo[height<=%[1]s]+bestaudio/best[height<=%[1]s]/best", quality)
}

// FetchSource downloads the best matching source into dir.
func (y *YtDlp) FetchSource(ctx context.Context, url string, path proxy.PathAttempt, format domain.Format, quality string, dir string) (string, error) {
	if !y.Available() {
		return "", fmt.Errorf("%w: %s", domain.ErrToolMissing, y.binary)
	}

	res, err := y.command(path).
		Format(FormatSelector(format, quality)).
		Output(filepath.Join(dir, "source.%(ext)s")).
		Run(ctx, url)
	if err != nil {
		return "", toolError("download source", res, err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "source.*"))
	for _, m := range matches {
		if !strings.HasSuffix(m, ".part") && !strings.HasSuffix(m, ".ytdl") {
			return m, nil
		}
	}
	return "", fmt.Errorf("download source: yt-dlp produced no file in %s", dir)
}

// ParseMetadata reads the last JSON object printed by yt-dlp.
func ParseMetadata(stdout string) (*domain.Metadata, error) {
	var doc gjson.Result
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && gjson.Valid(line) && gjson.Parse(line).IsObject() {
			doc = gjson.Parse(line)
			break
		}
	}
	if !doc.Exists() {
		return nil, errors.New("extract metadata: no JSON in yt-dlp output")
	}

	md := &domain.Metadata{
		Title:           doc.Get("title").String(),
		DurationSeconds: int(doc.Get("duration").Float()),
		UploaderName:    firstNonEmpty(doc.Get("uploader").String(), doc.Get("channel").String(), doc.Get("uploader_id").String()),
		ThumbnailURL:    doc.Get("thumbnail").String(),
	}

	doc.Get("formats").ForEach(func(_, f gjson.Result) bool {
		size := f.Get("filesize").Int()
		if size == 0 {
			size = f.Get("filesize_approx").Int()
		}
		md.Formats = append(md.Formats, domain.MediaFormat{
			FormatID:   f.Get("format_id").String(),
			Ext:        f.Get("ext").String(),
			Height:     int(f.Get("height").Int()),
			ABR:        f.Get("abr").Float(),
			VCodec:     f.Get("vcodec").String(),
			ACodec:     f.Get("acodec").String(),
			Filesize:   size,
			FormatNote: f.Get("format_note").String(),
		})
		return true
	})
	return md, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// toolError folds yt-dlp's last stderr error line into err so path
// classification can see proxy and bot-check signatures.
func toolError(op string, res *ytdlp.Result, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrToolMissing, err)
	}
	var detail string
	if res != nil {
		detail = stderrSummary(res.Stderr)
	}
	if detail == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %s", op, err, detail)
}

func stderrSummary(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); strings.HasPrefix(l, "ERROR:") {
			return l
		}
	}
	if len(lines) > 0 {
		return strings.TrimSpace(lines[len(lines)-1])
	}
	return ""
}
