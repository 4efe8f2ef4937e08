package session

import (
	"net/url"
	"strings"
)

// OAuthTokens is a token pair recovered from an OAuth callback URL.
type OAuthTokens struct {
	Access  string
	Refresh string
}

// ParseOAuthCallback extracts the token pair from an OAuth callback deep
// link. Providers deliver the tokens in the URL fragment; some put them in
// the query string instead, so both are tried. A URL carrying only one of
// the two tokens is not a completion event.
func ParseOAuthCallback(raw string) (OAuthTokens, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return OAuthTokens{}, false
	}

	// The escaped forms keep %26/%3D inside token values intact until
	// after the split; u.Fragment would already have decoded them.
	for _, part := range []string{u.EscapedFragment(), u.RawQuery} {
		if tokens, ok := parsePairs(part); ok {
			return tokens, true
		}
	}
	return OAuthTokens{}, false
}

func parsePairs(part string) (OAuthTokens, bool) {
	var tokens OAuthTokens
	for _, pair := range strings.Split(part, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			decoded = value
		}
		switch key {
		case "access_token":
			tokens.Access = decoded
		case "refresh_token":
			tokens.Refresh = decoded
		}
	}
	return tokens, tokens.Access != "" && tokens.Refresh != ""
}
