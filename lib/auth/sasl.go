// Package auth builds SASL clients from account source URLs.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
)

// ParseScheme splits imaps+insecure+oauthbearer into the protocol with its
// insecure marker (imaps+insecure) and the authentication mechanism
// (oauthbearer). The mechanism defaults to plain.
func ParseScheme(uri *url.URL) (protocol string, mech string, err error) {
	mech = "plain"
	if uri.Scheme == "" {
		return "", mech, nil
	}
	parts := strings.Split(uri.Scheme, "+")
	protocol = parts[0]
	if protocol == "" {
		return "", "", fmt.Errorf("Unknown scheme %s", uri.Scheme)
	}
	var rest []string
	for _, p := range parts[1:] {
		if p == "insecure" {
			protocol += "+insecure"
			continue
		}
		rest = append(rest, p)
	}
	if len(rest) > 0 {
		mech = strings.Join(rest, "+")
	}
	return protocol, mech, nil
}

// NewSaslClient builds the client of mech with the URL credentials. Access
// tokens of the oauth mechanisms are refreshed when the URL carries a
// token_endpoint. The none mechanism has no client.
func NewSaslClient(mech string, uri *url.URL, acct string) (sasl.Client, error) {
	var saslClient sasl.Client

	user := uri.User.Username()
	password, _ := uri.User.Password()

	switch mech {
	case "", "none":
		saslClient = nil
	case "login":
		saslClient = sasl.NewLoginClient(user, password)
	case "plain":
		saslClient = sasl.NewPlainClient("", user, password)
	case "oauthbearer", "xoauth2":
		token, err := accessToken(context.Background(), oauthConfig(uri.Query()),
			newTokenCache(acct, mech), password)
		if err != nil {
			return nil, err
		}
		if mech == "xoauth2" {
			saslClient = NewXoauth2Client(user, token)
		} else {
			saslClient = sasl.NewOAuthBearerClient(
				&sasl.OAuthBearerOptions{
					Username: user,
					Token:    token,
				},
			)
		}
	default:
		return nil, fmt.Errorf("Unsupported auth mechanism %q", mech)
	}
	return saslClient, nil
}

// oauthConfig reads the client settings from the source URL query
func oauthConfig(q url.Values) *oauth2.Config {
	var scopes []string
	if scope := q.Get("scope"); scope != "" {
		scopes = strings.Fields(scope)
	}
	return &oauth2.Config{
		ClientID:     q.Get("client_id"),
		ClientSecret: q.Get("client_secret"),
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  q.Get("token_endpoint"),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// An XOAUTH2 error.
type Xoauth2Error struct {
	Status  string `json:"status"`
	Schemes string `json:"schemes"`
	Scope   string `json:"scope"`
}

func (err *Xoauth2Error) Error() string {
	return fmt.Sprintf("XOAUTH2 authentication error (%v)", err.Status)
}

type xoauth2Client struct {
	Username string
	Token    string
}

func (a *xoauth2Client) Start() (mech string, ir []byte, err error) {
	mech = "XOAUTH2"
	ir = []byte("user=" + a.Username + "\x01auth=Bearer " + a.Token + "\x01\x01")
	return
}

// Next only gets called when the server rejected the token
func (a *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	xoauth2Err := &Xoauth2Error{}
	if err := json.Unmarshal(challenge, xoauth2Err); err != nil {
		return nil, err
	}
	return nil, xoauth2Err
}

// NewXoauth2Client implements the GMail flavour of bearer token auth
func NewXoauth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username, token}
}
