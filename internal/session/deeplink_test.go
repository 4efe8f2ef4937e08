package session

import "testing"

func TestParseOAuthCallback(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want OAuthTokens
		ok   bool
	}{
		{
			name: "tokens in fragment",
			raw:  "app://auth/callback#access_token=AT&refresh_token=RT",
			want: OAuthTokens{Access: "AT", Refresh: "RT"},
			ok:   true,
		},
		{
			name: "tokens in query",
			raw:  "app://auth/callback?access_token=AT&refresh_token=RT",
			want: OAuthTokens{Access: "AT", Refresh: "RT"},
			ok:   true,
		},
		{
			name: "fragment wins over query",
			raw:  "app://auth/callback?access_token=QA&refresh_token=QR#access_token=FA&refresh_token=FR",
			want: OAuthTokens{Access: "FA", Refresh: "FR"},
			ok:   true,
		},
		{
			name: "percent-encoded values decode",
			raw:  "app://auth/callback#access_token=a%2Fb&refresh_token=c%3Dd",
			want: OAuthTokens{Access: "a/b", Refresh: "c=d"},
			ok:   true,
		},
		{
			name: "encoded separators stay inside values",
			raw:  "app://auth/callback#access_token=a%26b%3Dc&refresh_token=RT",
			want: OAuthTokens{Access: "a&b=c", Refresh: "RT"},
			ok:   true,
		},
		{
			name: "extra parameters ignored",
			raw:  "app://auth/callback#state=xyz&access_token=AT&token_type=bearer&refresh_token=RT",
			want: OAuthTokens{Access: "AT", Refresh: "RT"},
			ok:   true,
		},
		{
			name: "missing refresh token",
			raw:  "app://auth/callback#access_token=AT",
			ok:   false,
		},
		{
			name: "missing access token",
			raw:  "app://auth/callback#refresh_token=RT",
			ok:   false,
		},
		{
			name: "empty token values",
			raw:  "app://auth/callback#access_token=&refresh_token=",
			ok:   false,
		},
		{
			name: "plain navigation link",
			raw:  "app://notes/42",
			ok:   false,
		},
		{
			name: "unparseable url",
			raw:  "://not a url",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseOAuthCallback(tt.raw)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("tokens = %+v, want %+v", got, tt.want)
			}
		})
	}
}
