package proxy

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/getgoodtape/videoproc/internal/domain"
)

// Class is the failure category of one attempt.
type Class string

const (
	ClassBlocking Class = "blocking"
	ClassAuth     Class = "auth"
	ClassTimeout  Class = "timeout"
	ClassOther    Class = "other"
)

// proxyStatus407 matches a standalone 407 status code, not digits inside a
// video ID, port or session seed.
var proxyStatus407 = regexp.MustCompile(`\b407\b`)

var authSignatures = []string{
	"proxy authentication required",
	"tunnel connection failed",
	"unable to connect to proxy",
	"proxyconnect",
}

var blockingSignatures = []string{
	"sign in to confirm",
	"not a bot",
	"http error 429",
	"too many requests",
	"captcha",
	"http error 403",
	"unusual traffic",
}

var timeoutSignatures = []string{
	"timed out",
	"timeout",
	"deadline exceeded",
}

// Classify maps an attempt error to a Class. Typed errors win over message
// signatures, and auth signatures are checked before blocking ones.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassOther
	case errors.Is(err, domain.ErrProxyAuth):
		return ClassAuth
	case errors.Is(err, domain.ErrBlocked):
		return ClassBlocking
	case errors.Is(err, domain.ErrAttemptTimeout), errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, authSignatures), isProxy407(msg):
		return ClassAuth
	case containsAny(msg, blockingSignatures):
		return ClassBlocking
	case containsAny(msg, timeoutSignatures):
		return ClassTimeout
	default:
		return ClassOther
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// isProxy407 reports a 407 status reported by a proxy.
func isProxy407(msg string) bool {
	return strings.Contains(msg, "proxy") && proxyStatus407.MatchString(msg)
}
