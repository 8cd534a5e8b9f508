package transport

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
)

// NewOAuthHTTPClient returns an HTTP client that attaches client-credentials
// bearer tokens to every engine request. Empty credentials yield a plain client.
func NewOAuthHTTPClient(ctx context.Context, clientID, clientSecret, tokenURL string, scopes ...string) *http.Client {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(tokenURL) == "" {
		return &http.Client{}
	}
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return cfg.Client(ctx)
}
