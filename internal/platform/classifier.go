// Package platform maps raw extractor and converter failures to messages
// a user can act on.
package platform

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Platform names a source site family.
type Platform string

const (
	YouTube     Platform = "youtube"
	Twitter     Platform = "twitter"
	TikTok      Platform = "tiktok"
	Instagram   Platform = "instagram"
	Facebook    Platform = "facebook"
	Vimeo       Platform = "vimeo"
	Dailymotion Platform = "dailymotion"
	Generic     Platform = "generic"
)

// ErrorType is the user-facing failure category.
type ErrorType string

const (
	AccessDenied      ErrorType = "access_denied"
	VideoNotFound     ErrorType = "video_not_found"
	VideoTooLong      ErrorType = "video_too_long"
	NetworkError      ErrorType = "network_error"
	ConversionFailed  ErrorType = "conversion_failed"
	RateLimitExceeded ErrorType = "rate_limit_exceeded"
	ServerError       ErrorType = "server_error"
)

// Severity ranks how bad a failure is for the operator.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Classification describes a failure for API responses.
type Classification struct {
	Type         ErrorType     `json:"type"`
	Platform     Platform      `json:"platform"`
	Severity     Severity      `json:"severity"`
	Retryable    bool          `json:"retryable"`
	UserMessage  string        `json:"user_message"`
	Suggestion   string        `json:"suggestion,omitempty"`
	RecoveryTime time.Duration `json:"-"`
}

// RecoverySeconds is the estimated recovery time in whole seconds, 0 if unknown.
func (c Classification) RecoverySeconds() int {
	return int(c.RecoveryTime / time.Second)
}

type rule struct {
	platform Platform
	patterns []*regexp.Regexp
	class    Classification
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// Rules are evaluated in order; a platform rule only applies to its own
// platform, generic rules apply everywhere.
var rules = []rule{
	{
		platform: YouTube,
		patterns: patterns(`sign in to confirm`, `this video is not available`, `video unavailable`, `private video`, `members-only content`),
		class: Classification{
			Type:        AccessDenied,
			Severity:    SeverityHigh,
			UserMessage: "This YouTube video requires sign-in or is private. Please use a public video.",
			Suggestion:  "Try using a different public YouTube video, or use videos from other platforms like Twitter/X or TikTok.",
		},
	},
	{
		platform: YouTube,
		patterns: patterns(`anti-bot`, `bot detection`, `too many requests`, `rate limit`, `temporarily restricted`, `access from your location`),
		class: Classification{
			Type:         AccessDenied,
			Severity:     SeverityMedium,
			Retryable:    true,
			UserMessage:  "YouTube has temporarily restricted access.",
			Suggestion:   "This is a temporary YouTube restriction. Try again in a few minutes, or use videos from other platforms.",
			RecoveryTime: 5 * time.Minute,
		},
	},
	{
		platform: YouTube,
		patterns: patterns(`video too long`, `duration exceeds`, `maximum length`),
		class: Classification{
			Type:        VideoTooLong,
			Severity:    SeverityMedium,
			UserMessage: "This video is too long for conversion. Please use a shorter video.",
			Suggestion:  "Try using videos shorter than 10 minutes, or use audio-only format (MP3) for longer videos.",
		},
	},
	{
		platform: Twitter,
		patterns: patterns(`tweet not found`, `this tweet is unavailable`, `protected tweets`, `account suspended`),
		class: Classification{
			Type:        VideoNotFound,
			Severity:    SeverityHigh,
			UserMessage: "This tweet is not available or has been deleted.",
			Suggestion:  "Please check if the tweet exists and is public. Try using a different tweet.",
		},
	},
	{
		platform: Twitter,
		patterns: patterns(`rate limit exceeded`, `too many requests`, `api limit`),
		class: Classification{
			Type:         RateLimitExceeded,
			Severity:     SeverityLow,
			Retryable:    true,
			UserMessage:  "Twitter rate limit reached.",
			Suggestion:   "Please wait a moment and try again. Twitter limits how many requests we can make.",
			RecoveryTime: 15 * time.Minute,
		},
	},
	{
		platform: TikTok,
		patterns: patterns(`video not available`, `content not found`, `private account`, `region blocked`),
		class: Classification{
			Type:        VideoNotFound,
			Severity:    SeverityMedium,
			Retryable:   true,
			UserMessage: "This TikTok video is not available.",
			Suggestion:  "The video might be region-restricted or from a private account. Try using a different TikTok video.",
		},
	},
	{
		platform: Instagram,
		patterns: patterns(`login required`, `private account`, `content not available`, `post not found`),
		class: Classification{
			Type:        AccessDenied,
			Severity:    SeverityMedium,
			Retryable:   true,
			UserMessage: "This Instagram content requires login or is private.",
			Suggestion:  "Make sure the Instagram post is public. Private posts cannot be converted.",
		},
	},
	{
		platform: Generic,
		patterns: patterns(`network error`, `connection timeout`, `connection refused`, `dns resolution failed`, `ssl error`, `certificate error`, `timed out`),
		class: Classification{
			Type:         NetworkError,
			Severity:     SeverityMedium,
			Retryable:    true,
			UserMessage:  "Network connection issue.",
			Suggestion:   "This appears to be a temporary network issue. Please try again in a moment.",
			RecoveryTime: time.Minute,
		},
	},
	{
		platform: Generic,
		patterns: patterns(`conversion failed`, `encoding error`, `ffmpeg error`, `format not supported`, `convert mp[34]`),
		class: Classification{
			Type:        ConversionFailed,
			Severity:    SeverityMedium,
			Retryable:   true,
			UserMessage: "Conversion failed.",
			Suggestion:  "Try selecting a different quality or format option.",
		},
	},
}

var hostPlatforms = []struct {
	suffix   string
	platform Platform
}{
	{"youtube.com", YouTube},
	{"youtu.be", YouTube},
	{"twitter.com", Twitter},
	{"x.com", Twitter},
	{"tiktok.com", TikTok},
	{"instagram.com", Instagram},
	{"facebook.com", Facebook},
	{"fb.watch", Facebook},
	{"vimeo.com", Vimeo},
	{"dailymotion.com", Dailymotion},
}

// Detect returns the platform a source URL belongs to.
func Detect(rawURL string) Platform {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, hp := range hostPlatforms {
		if host == hp.suffix || strings.HasSuffix(host, "."+hp.suffix) {
			return hp.platform
		}
	}
	return Generic
}

// Classify matches msg against the rules for the URL's platform.
func Classify(msg, rawURL string) Classification {
	p := Detect(rawURL)
	for _, r := range rules {
		if r.platform != p && r.platform != Generic {
			continue
		}
		for _, re := range r.patterns {
			if re.MatchString(msg) {
				c := r.class
				c.Platform = p
				return c
			}
		}
	}
	return Classification{
		Type:        ServerError,
		Platform:    p,
		Severity:    SeverityMedium,
		Retryable:   true,
		UserMessage: "An unexpected error occurred.",
		Suggestion:  "Please try again. If the problem persists, try using a different video.",
	}
}

// Message renders the user message with the recovery estimate, rounded up
// to whole minutes.
func (c Classification) Message() string {
	if c.RecoveryTime <= 0 {
		return c.UserMessage
	}
	minutes := int((c.RecoveryTime + time.Minute - 1) / time.Minute)
	unit := "minute"
	if minutes > 1 {
		unit = "minutes"
	}
	return fmt.Sprintf("%s (Estimated recovery time: %d %s)", c.UserMessage, minutes, unit)
}

// RecoverySuggestions lists follow-up actions for a platform and failure type.
func RecoverySuggestions(p Platform, t ErrorType) []string {
	switch p {
	case YouTube:
		switch t {
		case AccessDenied:
			return []string{
				"Try using a different YouTube video that is publicly accessible",
				"Use videos from other platforms like Twitter/X, TikTok, or Instagram",
				"Wait a few minutes and try again, YouTube restrictions are often temporary",
			}
		case VideoTooLong:
			return []string{
				"Use videos shorter than 10 minutes",
				"Try converting to MP3 format for longer videos",
			}
		}
		return nil
	case Twitter:
		return []string{
			"Make sure the tweet is public and not from a protected account",
			"Check if the tweet contains video content",
		}
	case TikTok:
		return []string{
			"Ensure the TikTok video is from a public account",
			"Check if the video is available in your region",
		}
	case Instagram:
		return []string{
			"Make sure the Instagram post is public",
			"Verify the post contains video content",
		}
	}
	return []string{
		"Try again in a few minutes",
		"Use a different video URL",
	}
}

var reliability = map[Platform]int{
	YouTube:   45,
	Twitter:   85,
	TikTok:    80,
	Instagram: 75,
	Facebook:  60,
	Vimeo:     90,
}

// Reliability is a 0-100 score of how often a platform converts cleanly.
func Reliability(p Platform) int {
	if s, ok := reliability[p]; ok {
		return s
	}
	return 70
}

// Degraded reports platforms with known ongoing restrictions.
func Degraded(p Platform) bool {
	return p == YouTube
}
