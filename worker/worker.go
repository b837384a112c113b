package worker

import (
	"net/url"
	"strings"

	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/worker/handlers"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

// NewEngine guesses the appropriate engine based on the account source URL.
// Scheme suffixes ("imaps+oauthbearer") are left for the engine to parse.
func NewEngine(acct *config.AccountConfig) (types.Engine, error) {
	u, err := url.Parse(acct.Source)
	if err != nil {
		return nil, err
	}
	scheme := u.Scheme
	if i := strings.IndexRune(scheme, '+'); i >= 0 {
		scheme = scheme[:i]
	}
	log.Debugf("account %s: using %s engine", acct.Name, scheme)
	return handlers.GetEngineForScheme(scheme, acct)
}
