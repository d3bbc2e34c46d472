package downloader

import (
	"context"

	"github.com/getgoodtape/videoproc/internal/domain"
	"github.com/getgoodtape/videoproc/internal/proxy"
	"github.com/getgoodtape/videoproc/pkg/ffmpeg"
)

// Extractor reads metadata for a source URL through one network path.
type Extractor interface {
	FetchMetadata(ctx context.Context, url string, path proxy.PathAttempt) (*domain.Metadata, error)
}

// MetadataFallback looks up metadata without a proxy path.
type MetadataFallback interface {
	Enabled() bool
	FetchMetadata(ctx context.Context, url string) (*domain.Metadata, error)
}

// Transcoder downloads a source URL through one network path and converts it.
type Transcoder interface {
	Transcode(ctx context.Context, url string, path proxy.PathAttempt, format domain.Format, quality string) (*domain.TranscodeOutput, error)
}

// SourceFetcher downloads the raw media for url into dir and returns the file path.
type SourceFetcher interface {
	FetchSource(ctx context.Context, url string, path proxy.PathAttempt, format domain.Format, quality string, dir string) (string, error)
}

// MediaConverter converts a local media file.
type MediaConverter interface {
	ToMP3(ctx context.Context, input string, cfg ffmpeg.AudioConfig) (*ffmpeg.MediaInfo, error)
	ToMP4(ctx context.Context, input string, cfg ffmpeg.VideoConfig) (*ffmpeg.MediaInfo, error)
}
