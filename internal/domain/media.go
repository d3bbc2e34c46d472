package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// Format is an output container requested by the caller.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatMP4 Format = "mp4"
)

// ParseFormat normalizes a user supplied format token.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMP3, FormatMP4:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// String returns the string representation of the Format.
func (f Format) String() string {
	return string(f)
}

// MediaFormat describes one entry of the extractor's format list.
type MediaFormat struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Height     int     `json:"height,omitempty"`
	ABR        float64 `json:"abr,omitempty"`
	VCodec     string  `json:"vcodec,omitempty"`
	ACodec     string  `json:"acodec,omitempty"`
	Filesize   int64   `json:"filesize,omitempty"`
	FormatNote string  `json:"format_note,omitempty"`
}

// Metadata is what the extractor reports about a source URL.
type Metadata struct {
	Title           string        `json:"title"`
	DurationSeconds int           `json:"duration"`
	UploaderName    string        `json:"uploader"`
	ThumbnailURL    string        `json:"thumbnail"`
	Formats         []MediaFormat `json:"formats,omitempty"`
}

// TranscodeOutput describes a finished conversion on disk.
type TranscodeOutput struct {
	Filename        string
	Path            string
	SizeBytes       int64
	DurationSeconds int
	// SourceBytes is the size of the source pulled over the network path.
	SourceBytes int64
}

// TransferredBytes reports the bytes fetched through the network path,
// falling back to the output size when the source size is unknown.
func (o *TranscodeOutput) TransferredBytes() int64 {
	if o.SourceBytes > 0 {
		return o.SourceBytes
	}
	return o.SizeBytes
}

// ParseSourceURL checks that raw is an absolute http(s) URL with a host and
// returns it with the host lower-cased and the fragment dropped.
func ParseSourceURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}
