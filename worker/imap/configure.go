package imap

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/lib/auth"
)

type imapProvider uint32

const (
	Unknown imapProvider = iota
	GMail
	Proton
	Office365
	Zoho
	FastMail
	iCloud
)

type imapConfig struct {
	name     string
	url      *url.URL
	scheme   string
	insecure bool
	addr     string
	mech     string
	provider imapProvider

	connection_timeout time.Duration
	keepalive_period   time.Duration
	keepalive_probes   int
	keepalive_interval int
	idle_timeout       time.Duration
	idle_debounce      time.Duration
	reconnect_maxwait  time.Duration
	check_mail         time.Duration

	expungePolicy expungePolicy
	serverSort    bool
}

func parseConfig(acct *config.AccountConfig) (*imapConfig, error) {
	u, err := url.Parse(acct.Source)
	if err != nil {
		return nil, err
	}
	protocol, mech, err := auth.ParseScheme(u)
	if err != nil {
		return nil, err
	}
	cfg := &imapConfig{
		name:     acct.Name,
		url:      u,
		mech:     mech,
		provider: providerFromURL(u.Host),

		connection_timeout: 30 * time.Second,
		keepalive_probes:   3,
		keepalive_interval: 3,
		idle_timeout:       10 * time.Second,
		idle_debounce:      10 * time.Millisecond,
		reconnect_maxwait:  30 * time.Second,
		check_mail:         acct.PollInterval,

		expungePolicy: expungeAuto,
	}

	cfg.scheme = protocol
	if strings.HasSuffix(cfg.scheme, "+insecure") {
		cfg.scheme = strings.TrimSuffix(cfg.scheme, "+insecure")
		cfg.insecure = true
	}
	var port string
	switch cfg.scheme {
	case "imap":
		port = "143"
	case "imaps":
		port = "993"
	default:
		return nil, fmt.Errorf("Unknown IMAP scheme %s", u.Scheme)
	}
	cfg.addr = u.Host
	if u.Port() == "" {
		cfg.addr += ":" + port
	}

	for key, value := range acct.Params {
		switch key {
		case "idle-timeout":
			cfg.idle_timeout, err = parseDuration(key, value)
		case "idle-debounce":
			cfg.idle_debounce, err = parseDuration(key, value)
		case "connection-timeout":
			cfg.connection_timeout, err = parseDuration(key, value)
		case "reconnect-maxwait":
			cfg.reconnect_maxwait, err = parseDuration(key, value)
		case "keepalive-period":
			cfg.keepalive_period, err = parseDuration(key, value)
		case "keepalive-probes":
			val, perr := strconv.Atoi(value)
			if perr != nil || val < 0 {
				err = fmt.Errorf("invalid keepalive-probes value %v", value)
			}
			cfg.keepalive_probes = val
		case "keepalive-interval":
			var val time.Duration
			val, err = parseDuration(key, value)
			cfg.keepalive_interval = int(val.Seconds())
		case "expunge-policy":
			switch value {
			case "auto":
				cfg.expungePolicy = expungeAuto
			case "low-to-high":
				cfg.expungePolicy = expungeLowToHigh
			case "stable":
				cfg.expungePolicy = expungeStable
			default:
				err = fmt.Errorf("invalid expunge-policy value %v", value)
			}
		case "server-sort":
			cfg.serverSort, err = strconv.ParseBool(value)
			if err != nil {
				err = fmt.Errorf("invalid server-sort value %v: %w", value, err)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	val, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %v: %w", key, value, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %v: negative", key, value)
	}
	return val, nil
}

func providerFromURL(url string) imapProvider {
	isValidURLPrefix := func(url string, prefix string) bool {
		if !strings.HasPrefix(url, prefix) {
			return false
		}
		if len(url) > len(prefix) && url[len(prefix)] != ':' {
			// URL is not of the form "$prefix:$port"
			return false
		}
		return true
	}
	switch {
	case isValidURLPrefix(url, "imap.gmail.com"):
		return GMail
	case isValidURLPrefix(url, "127.0.0.1"):
		return Proton
	case isValidURLPrefix(url, "outlook.office365.com"):
		return Office365
	case isValidURLPrefix(url, "imap.zoho.com"):
		return Zoho
	case isValidURLPrefix(url, "imap.fastmail.com"):
		return FastMail
	case isValidURLPrefix(url, "imap.mail.me.com"):
		return iCloud
	default:
		return Unknown
	}
}
