package config

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"reflect"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/go-ini/ini"
	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/models"
)

type RemoteConfig struct {
	Value       string
	PasswordCmd string
}

// ConnectionString returns the source URL with the password obtained from
// the credential command if the URL has none.
func (c *RemoteConfig) ConnectionString() (string, error) {
	if c.Value == "" || c.PasswordCmd == "" {
		return c.Value, nil
	}

	u, err := url.Parse(c.Value)
	if err != nil {
		return "", err
	}

	// ignore the command if a password is specified
	if _, exists := u.User.Password(); exists {
		return c.Value, nil
	}

	// don't attempt to parse the command if the url is a path
	if !u.IsAbs() {
		return c.Value, nil
	}

	cmd := exec.Command("sh", "-c", c.PasswordCmd)
	cmd.Stdin = os.Stdin
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	pw := strings.TrimSpace(string(output))
	u.User = url.UserPassword(u.User.Username(), pw)

	return u.String(), nil
}

type AccountConfig struct {
	Name    string          `ini:"-"`
	Source  string          `ini:"-"`
	From    *mail.Address   `ini:"from"`
	Aliases []*mail.Address `ini:"aliases"`
	// Default is the mailbox opened when none is requested
	Default      string            `ini:"default" default:"INBOX"`
	Spam         string            `ini:"spam" default:"Junk"`
	Trash        string            `ini:"trash" default:"Trash"`
	PollInterval time.Duration     `ini:"poll-interval" default:"1m"`
	CacheHeaders bool              `ini:"cache-headers" default:"true"`
	Params       map[string]string `ini:"-"`

	// copied from [general]
	CacheDir    string        `ini:"-"`
	CacheMaxAge time.Duration `ini:"-"`
	CacheClean  string        `ini:"-"`
}

var reservedSections = map[string]bool{
	ini.DefaultSection: true,
	"general":          true,
	"view":             true,
}

// keys handled explicitly or through struct tags
func knownKey(key string) bool {
	switch key {
	case "source", "source-cred-cmd":
		return true
	}
	typ := reflect.TypeOf(AccountConfig{})
	for i := 0; i < typ.NumField(); i++ {
		if typ.Field(i).Tag.Get("ini") == key {
			return true
		}
	}
	return false
}

func parseAccounts(file *ini.File, accts []string) ([]*AccountConfig, error) {
	var accounts []*AccountConfig
	for _, name := range file.SectionStrings() {
		if reservedSections[name] {
			continue
		}
		if len(accts) > 0 && !contains(accts, name) {
			continue
		}
		account, err := parseAccount(file.Section(name))
		if err != nil {
			return nil, errors.Wrapf(err, "[%s]", name)
		}
		log.Debugf("mlsync.conf: [%s] source = %s", account.Name, account.Source)
		accounts = append(accounts, account)
	}
	if len(accts) > 0 && len(accounts) != len(accts) {
		return nil, errors.New("account(s) not found")
	}
	return accounts, nil
}

func parseAccount(sec *ini.Section) (*AccountConfig, error) {
	source := RemoteConfig{}
	account := &AccountConfig{
		Name:   sec.Name(),
		Params: make(map[string]string),
	}
	for key, val := range sec.KeysHash() {
		switch key {
		case "source":
			source.Value = val
		case "source-cred-cmd":
			source.PasswordCmd = val
		default:
			if !knownKey(key) {
				account.Params[key] = val
			}
		}
	}
	if err := mapSection(sec, account); err != nil {
		return nil, err
	}
	var err error
	account.Source, err = source.ConnectionString()
	if err != nil {
		return nil, fmt.Errorf("invalid source credentials: %w", err)
	}
	if account.Source == "" {
		return nil, errors.New("expected source")
	}
	return account, nil
}

// IsMe tells whether the address belongs to the account
func (acct *AccountConfig) IsMe(addr *models.Address) bool {
	a := addr.Address()
	if acct.From != nil && strings.EqualFold(acct.From.Address, a) {
		return true
	}
	for _, alias := range acct.Aliases {
		if strings.EqualFold(alias.Address, a) {
			return true
		}
	}
	return false
}

// ToMe tells whether one of the addresses belongs to the account
func (acct *AccountConfig) ToMe(addrs []*models.Address) bool {
	for _, addr := range addrs {
		if acct.IsMe(addr) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
