package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/getgoodtape/videoproc/internal/domain"
	"github.com/getgoodtape/videoproc/internal/proxy"
	"github.com/getgoodtape/videoproc/pkg/ffmpeg"
)

// Pipeline downloads a source through a network path and converts it locally.
type Pipeline struct {
	fetcher   SourceFetcher
	converter MediaConverter
	outputDir string
	tempDir   string
	logger    *slog.Logger
}

// NewPipeline creates a download+convert pipeline writing into outputDir.
func NewPipeline(fetcher SourceFetcher, converter MediaConverter, outputDir, tempDir string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		converter: converter,
		outputDir: outputDir,
		tempDir:   tempDir,
		logger:    logger.With("component", "pipeline"),
	}
}

// Transcode implements Transcoder. The source is fetched into a private work
// directory which is always removed; only the converted file survives.
func (p *Pipeline) Transcode(ctx context.Context, url string, path proxy.PathAttempt, format domain.Format, quality string) (*domain.TranscodeOutput, error) {
	if p.converter == nil {
		return nil, fmt.Errorf("transcode: %w: ffmpeg", domain.ErrToolMissing)
	}
	q, err := strconv.Atoi(quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidQuality, quality)
	}

	if err := os.MkdirAll(p.tempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	work, err := os.MkdirTemp(p.tempDir, "job-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	src, err := p.fetcher.FetchSource(ctx, url, path, format, quality, work)
	if err != nil {
		return nil, err
	}
	var sourceBytes int64
	if st, err := os.Stat(src); err == nil {
		sourceBytes = st.Size()
	}

	filename := uuid.NewString() + "." + format.String()
	outPath := filepath.Join(p.outputDir, filename)

	var info *ffmpeg.MediaInfo
	switch format {
	case domain.FormatMP3:
		info, err = p.converter.ToMP3(ctx, src, ffmpeg.AudioConfig{OutputPath: outPath, BitrateKbps: q})
	case domain.FormatMP4:
		info, err = p.converter.ToMP4(ctx, src, ffmpeg.VideoConfig{OutputPath: outPath, MaxHeight: q})
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", format, err)
	}

	p.logger.Info("conversion finished",
		"filename", filename,
		"format", format,
		"quality", quality,
		"size_bytes", info.FileSize,
		"source_bytes", sourceBytes,
		"endpoint", path.EndpointID,
	)

	return &domain.TranscodeOutput{
		Filename:        filename,
		Path:            outPath,
		SizeBytes:       info.FileSize,
		DurationSeconds: int(math.Round(info.Duration)),
		SourceBytes:     sourceBytes,
	}, nil
}
