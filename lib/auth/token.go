package auth

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/lib/xdg"
)

// tokenCache stores the last refresh token handed out by the server of an
// account
type tokenCache string

func newTokenCache(account, mech string) tokenCache {
	return tokenCache(xdg.CachePath("mlsync", account+"-"+mech+".token"))
}

func (c tokenCache) load() string {
	buf, err := os.ReadFile(string(c))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(buf))
}

func (c tokenCache) store(token string) error {
	if err := os.MkdirAll(filepath.Dir(string(c)), 0o700); err != nil {
		return err
	}
	return os.WriteFile(string(c), []byte(token), 0o600)
}

// accessToken exchanges a refresh token for an access token. The cached
// refresh token takes precedence over the configured one. Without a token
// endpoint, the secret is the access token.
func accessToken(
	ctx context.Context, o *oauth2.Config, cache tokenCache, secret string,
) (string, error) {
	if o.Endpoint.TokenURL == "" {
		return secret, nil
	}
	refresh := secret
	cached := cache.load()
	if cached != "" {
		refresh = cached
	}
	src := o.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refresh,
		TokenType:    "Bearer",
	})
	token, err := src.Token()
	if err != nil {
		if cached != "" {
			return "", errors.Wrapf(err, "stale refresh token? try deleting %s", cache)
		}
		return "", errors.Wrap(err, "token refresh")
	}
	if token.RefreshToken != "" && token.RefreshToken != refresh {
		if err := cache.store(token.RefreshToken); err != nil {
			log.Warnf("could not cache refresh token: %v", err)
		}
	}
	return token.AccessToken, nil
}
