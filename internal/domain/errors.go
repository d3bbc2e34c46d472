package domain

import "errors"

// Domain errors.
var (
	// ErrNoNetworkPath is returned when configuration leaves neither a proxy
	// nor a direct connection to try.
	ErrNoNetworkPath = errors.New("no network path configured")

	// ErrBlocked is returned when the target responded with a bot-check or
	// sign-in wall.
	ErrBlocked = errors.New("blocked by target")

	// ErrProxyAuth is returned when a proxy rejected credentials or failed
	// to establish a tunnel.
	ErrProxyAuth = errors.New("proxy authentication failed")

	// ErrAttemptTimeout is returned when a single path attempt exceeded its budget.
	ErrAttemptTimeout = errors.New("attempt timed out")

	// ErrAllPathsFailed is returned when every candidate path failed.
	ErrAllPathsFailed = errors.New("all network paths failed")

	// ErrInvalidURL is returned for malformed source URLs.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrUnsupportedFormat is returned for output formats other than mp3/mp4.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrInvalidQuality is returned when a quality token does not fit the format.
	ErrInvalidQuality = errors.New("invalid quality")

	// ErrToolMissing is returned when yt-dlp or ffmpeg is not installed.
	ErrToolMissing = errors.New("external tool not found")
)

// OpError wraps an error with the operation and source URL it failed on.
type OpError struct {
	Op  string
	URL string
	Err error
}

func (e *OpError) Error() string {
	if e.URL != "" {
		return e.Op + " [" + e.URL + "]: " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError creates a new OpError.
func NewOpError(op, url string, err error) *OpError {
	return &OpError{
		Op:  op,
		URL: url,
		Err: err,
	}
}
