package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		url  string
		want Platform
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", YouTube},
		{"https://youtu.be/dQw4w9WgXcQ", YouTube},
		{"https://music.youtube.com/watch?v=x", YouTube},
		{"https://x.com/user/status/1", Twitter},
		{"https://twitter.com/user/status/1", Twitter},
		{"https://box.com/file", Generic},
		{"https://www.tiktok.com/@a/video/1", TikTok},
		{"https://www.instagram.com/reel/abc/", Instagram},
		{"https://fb.watch/abc", Facebook},
		{"https://vimeo.com/123", Vimeo},
		{"https://example.com/v.mp4", Generic},
		{"not a url", Generic},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.url))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		url  string
		want ErrorType
	}{
		{"youtube bot check", "ERROR: [youtube] x: Sign in to confirm you're not a bot", "https://youtu.be/x", AccessDenied},
		{"youtube rate limit", "HTTP Error 429: Too Many Requests", "https://youtu.be/x", AccessDenied},
		{"youtube too long", "video too long", "https://youtu.be/x", VideoTooLong},
		{"twitter missing", "Tweet not found", "https://x.com/a/status/1", VideoNotFound},
		{"twitter rate limit", "Too Many Requests", "https://x.com/a/status/1", RateLimitExceeded},
		{"tiktok private", "private account", "https://tiktok.com/@a/video/1", VideoNotFound},
		{"instagram login", "login required", "https://instagram.com/p/1", AccessDenied},
		{"rule scoped to platform", "tweet not found", "https://vimeo.com/1", ServerError},
		{"generic network", "connection refused", "https://vimeo.com/1", NetworkError},
		{"attempt timeout", "attempt timed out after 45s: context deadline exceeded", "https://vimeo.com/1", NetworkError},
		{"generic conversion", "convert mp3: exit status 1", "https://vimeo.com/1", ConversionFailed},
		{"unknown", "something odd", "https://vimeo.com/1", ServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.msg, tt.url)
			assert.Equal(t, tt.want, c.Type)
			assert.Equal(t, Detect(tt.url), c.Platform)
			assert.NotEmpty(t, c.UserMessage)
		})
	}
}

func TestClassifyDoesNotMutateRules(t *testing.T) {
	a := Classify("connection refused", "https://vimeo.com/1")
	b := Classify("connection refused", "https://youtu.be/1")
	assert.Equal(t, Vimeo, a.Platform)
	assert.Equal(t, YouTube, b.Platform)
}

func TestMessage(t *testing.T) {
	c := Classification{UserMessage: "Busy.", RecoveryTime: 5 * time.Minute}
	assert.Equal(t, "Busy. (Estimated recovery time: 5 minutes)", c.Message())

	c.RecoveryTime = 30 * time.Second
	assert.Equal(t, "Busy. (Estimated recovery time: 1 minute)", c.Message())
	assert.Equal(t, 30, c.RecoverySeconds())

	c.RecoveryTime = 0
	assert.Equal(t, "Busy.", c.Message())
}

func TestRecoverySuggestions(t *testing.T) {
	assert.Len(t, RecoverySuggestions(YouTube, AccessDenied), 3)
	assert.Nil(t, RecoverySuggestions(YouTube, NetworkError))
	assert.NotEmpty(t, RecoverySuggestions(Generic, ServerError))
}

func TestReliability(t *testing.T) {
	assert.Equal(t, 45, Reliability(YouTube))
	assert.Equal(t, 70, Reliability(Generic))
	assert.True(t, Degraded(YouTube))
	assert.False(t, Degraded(Vimeo))
}
