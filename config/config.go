package config

import (
	"fmt"
	"os"
	"path"

	"github.com/caarlos0/env/v6"
	"github.com/go-ini/ini"
	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/lib/xdg"
)

type Config struct {
	General  GeneralConfig
	View     ViewConfig
	Accounts []*AccountConfig
}

// environment variables taking precedence over the configuration file
type envOverrides struct {
	Config   string `env:"MLSYNC_CONFIG"`
	LogFile  string `env:"MLSYNC_LOG_FILE"`
	LogLevel string `env:"MLSYNC_LOG_LEVEL"`
}

// DefaultPath returns the configuration file used when none is given
func DefaultPath() string {
	var o envOverrides
	if err := env.Parse(&o); err == nil && o.Config != "" {
		return xdg.ExpandHome(o.Config)
	}
	return xdg.ConfigPath("mlsync", "mlsync.conf")
}

// LoadConfigFromFile reads the configuration. An empty filename selects
// DefaultPath(). accts restricts the loaded accounts.
func LoadConfigFromFile(filename string, accts []string) (*Config, error) {
	if filename == "" {
		filename = DefaultPath()
	}
	if err := checkConfigPerms(filename); err != nil {
		return nil, err
	}
	log.Debugf("Parsing configuration from %s", filename)
	conf, err := Load(filename, accts)
	if err != nil {
		return nil, errors.Wrap(err, path.Base(filename))
	}
	return conf, nil
}

// Load parses a configuration from any source accepted by ini.Load (file
// name, []byte, io.Reader).
func Load(source any, accts []string) (*Config, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters: "=",
	}, source)
	if err != nil {
		return nil, err
	}
	conf := &Config{}
	if err := conf.General.parse(file); err != nil {
		return nil, err
	}
	if err := conf.View.parse(file); err != nil {
		return nil, err
	}
	if err := conf.parseEnv(); err != nil {
		return nil, err
	}
	conf.Accounts, err = parseAccounts(file, accts)
	if err != nil {
		return nil, err
	}
	for _, acct := range conf.Accounts {
		acct.CacheDir = conf.General.CacheDir
		acct.CacheMaxAge = conf.General.CacheMaxAge
		acct.CacheClean = conf.General.CacheClean
	}
	return conf, nil
}

func (conf *Config) parseEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return errors.Wrap(err, "environment")
	}
	if o.LogFile != "" {
		conf.General.LogFile = xdg.ExpandHome(o.LogFile)
	}
	if o.LogLevel != "" {
		level, err := log.ParseLevel(o.LogLevel)
		if err != nil {
			return errors.Wrap(err, "MLSYNC_LOG_LEVEL")
		}
		conf.General.LogLevel = level
	}
	return nil
}

// Account returns the named account or the first one if name is empty
func (conf *Config) Account(name string) (*AccountConfig, error) {
	for _, acct := range conf.Accounts {
		if name == "" || acct.Name == name {
			return acct, nil
		}
	}
	if name == "" {
		return nil, errors.New("no account configured")
	}
	return nil, fmt.Errorf("account %s not found", name)
}

// checkConfigPerms refuses files readable by group or others since account
// sections may hold passwords
func checkConfigPerms(filename string) error {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return nil // disregard absent files
	}
	if err != nil {
		return err
	}

	perms := info.Mode().Perm()
	if perms&0o44 != 0 {
		fmt.Fprintf(os.Stderr, "The file %v has too open permissions.\n", filename)
		fmt.Fprintln(os.Stderr, "This is a security issue (it contains passwords).")
		fmt.Fprintf(os.Stderr, "To fix it, run `chmod 600 %v`\n", filename)
		return errors.New("configuration file permissions too lax")
	}
	return nil
}
