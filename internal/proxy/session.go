package proxy

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

// UsernameStrategy derives the sticky-session username for a provider.
type UsernameStrategy func(user, session, country string) string

var usernameStrategies = map[string]UsernameStrategy{
	ProviderDecodo:     sessionCountryStyle,
	ProviderSmartproxy: sessionCountryStyle,
	ProviderBrightData: sessionCountryStyle,
	ProviderOxylabs:    oxylabsStyle,
}

func sessionCountryStyle(user, session, country string) string {
	if country != "" {
		user += "-country-" + strings.ToLower(country)
	}
	if session != "" {
		user += "-session-" + session
	}
	return user
}

func oxylabsStyle(user, session, country string) string {
	if country != "" {
		user += "-cc-" + strings.ToUpper(country)
	}
	if session != "" {
		user += "-sessid-" + session
	}
	return user
}

// NewSessionSeed returns a random 5-digit session token.
func NewSessionSeed() string {
	return strconv.Itoa(10000 + rand.IntN(90000))
}

// Materialize turns an endpoint into a concrete attempt. Session and country
// are only applied when the endpoint supports them.
func Materialize(ep Endpoint, sessionSeed, country string) PathAttempt {
	attempt := PathAttempt{
		EndpointID: ep.ID,
		Kind:       ep.Kind,
		Provider:   ep.Provider,
	}
	if ep.IsDirect() {
		return attempt
	}

	if !ep.SupportsSession {
		sessionSeed = ""
	}
	if !ep.SupportsCountry {
		country = ""
	}

	user := ""
	if ep.Credentials != nil {
		user = ep.Credentials.User
		if strategy, ok := usernameStrategies[ep.Provider]; ok {
			user = strategy(user, sessionSeed, country)
		} else {
			sessionSeed, country = "", ""
		}
	} else {
		sessionSeed, country = "", ""
	}

	attempt.SessionSuffix = sessionSeed
	attempt.Country = country
	attempt.ProxyURL = ep.URL(user)
	return attempt
}
