package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotFound is returned when ffmpeg or ffprobe cannot be located.
var ErrNotFound = errors.New("ffmpeg not found")

// Processor converts media files with ffmpeg and inspects them with ffprobe.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
}

// NewProcessor resolves ffmpeg and ffprobe. Bare names are looked up in PATH.
func NewProcessor(ffmpegPath, ffprobePath string) (*Processor, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	resolvedFFmpeg, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, ffmpegPath, err)
	}
	resolvedFFprobe, err := exec.LookPath(ffprobePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, ffprobePath, err)
	}

	return &Processor{
		ffmpegPath:  resolvedFFmpeg,
		ffprobePath: resolvedFFprobe,
	}, nil
}

// MediaInfo contains metadata about a media file.
type MediaInfo struct {
	Duration   float64 // seconds
	Width      int
	Height     int
	HasAudio   bool
	HasVideo   bool
	AudioCodec string
	VideoCodec string
	Bitrate    int64
	FileSize   int64
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Inspect runs ffprobe on path.
func (p *Processor) Inspect(ctx context.Context, path string) (*MediaInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat media: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(output, stat.Size())
}

func parseProbe(output []byte, size int64) (*MediaInfo, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{FileSize: size}
	if dur, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		info.Duration = dur
	}
	if br, err := strconv.ParseInt(parsed.Format.BitRate, 10, 64); err == nil {
		info.Bitrate = br
	}

	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "audio":
			info.HasAudio = true
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		case "video":
			// Cover art in audio files shows up as an mjpeg/png video stream.
			if s.CodecName == "mjpeg" || s.CodecName == "png" {
				continue
			}
			info.HasVideo = true
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
			}
			if info.Width == 0 {
				info.Width = s.Width
			}
			if info.Height == 0 {
				info.Height = s.Height
			}
		}
	}
	return info, nil
}

// AudioConfig configures MP3 conversion.
type AudioConfig struct {
	OutputPath  string
	BitrateKbps int // default 192
	SampleRate  int // default 44100
}

// VideoConfig configures MP4 conversion.
type VideoConfig struct {
	OutputPath string
	MaxHeight  int    // default 720
	Preset     string // x264 preset, default "veryfast"
	CRF        int    // default 23
}

// MP3Args builds the ffmpeg arguments for an MP3 conversion.
func MP3Args(input string, cfg AudioConfig) []string {
	if cfg.BitrateKbps <= 0 {
		cfg.BitrateKbps = 192
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	return []string{
		"-hide_banner", "-nostdin",
		"-i", input,
		"-vn",
		"-acodec", "libmp3lame",
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-b:a", strconv.Itoa(cfg.BitrateKbps) + "k",
		"-y", cfg.OutputPath,
	}
}

// MP4Args builds the ffmpeg arguments for an H.264/AAC MP4 capped at MaxHeight.
func MP4Args(input string, cfg VideoConfig) []string {
	if cfg.MaxHeight <= 0 {
		cfg.MaxHeight = 720
	}
	if cfg.Preset == "" {
		cfg.Preset = "veryfast"
	}
	if cfg.CRF <= 0 {
		cfg.CRF = 23
	}
	// Scale down only; keep even width for libx264.
	scale := fmt.Sprintf("scale=-2:'min(%d,ih)'", cfg.MaxHeight)
	return []string{
		"-hide_banner", "-nostdin",
		"-i", input,
		"-vf", scale,
		"-c:v", "libx264",
		"-preset", cfg.Preset,
		"-crf", strconv.Itoa(cfg.CRF),
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-y", cfg.OutputPath,
	}
}

// ToMP3 converts input to an MP3 file.
func (p *Processor) ToMP3(ctx context.Context, input string, cfg AudioConfig) (*MediaInfo, error) {
	return p.convert(ctx, cfg.OutputPath, MP3Args(input, cfg))
}

// ToMP4 converts input to an MP4 file.
func (p *Processor) ToMP4(ctx context.Context, input string, cfg VideoConfig) (*MediaInfo, error) {
	return p.convert(ctx, cfg.OutputPath, MP4Args(input, cfg))
}

func (p *Processor) convert(ctx context.Context, output string, args []string) (*MediaInfo, error) {
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(output)
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}

	info, err := p.Inspect(ctx, output)
	if err != nil {
		return nil, fmt.Errorf("inspect output: %w", err)
	}
	return info, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// Version returns the first line of `ffmpeg -version`.
func (p *Processor) Version(ctx context.Context) (string, error) {
	return Version(ctx, p.ffmpegPath)
}

// Version runs `<binary> -version` and returns its first line.
func Version(ctx context.Context, binary string) (string, error) {
	output, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(output), "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		return strings.TrimSpace(lines[0]), nil
	}
	return "unknown", nil
}

// IsAvailable checks if binary resolves in PATH.
func IsAvailable(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}
