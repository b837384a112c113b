package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-ini/ini"
	"github.com/mattn/go-isatty"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/lib/xdg"
)

type GeneralConfig struct {
	LogFile     string        `ini:"log-file" parse:"ParsePath"`
	LogLevel    log.LogLevel  `ini:"log-level" default:"info" parse:"ParseLogLevel"`
	CacheDir    string        `ini:"cache-dir" parse:"ParsePath"`
	CacheMaxAge time.Duration `ini:"cache-max-age" default:"720h"`
	// CacheClean is a cron specification for header cache expiry
	CacheClean string `ini:"cache-clean" default:"@daily"`
}

func (gen *GeneralConfig) parse(file *ini.File) error {
	gen.CacheDir = xdg.CachePath("mlsync")
	if err := mapSection(file.Section("general"), gen); err != nil {
		return err
	}
	log.Tracef("mlsync.conf: [general] %#v", gen)
	return nil
}

func (gen *GeneralConfig) ParseLogLevel(sec *ini.Section, key *ini.Key) (log.LogLevel, error) {
	return log.ParseLevel(key.String())
}

func (gen *GeneralConfig) ParsePath(sec *ini.Section, key *ini.Key) (string, error) {
	return xdg.ExpandHome(key.String()), nil
}

// InitLogging sets up lib/log. Output goes to log-file, or else to stderr
// when it is redirected. The mail list owns stdout.
func (gen *GeneralConfig) InitLogging() error {
	switch {
	case gen.LogFile != "":
		if err := log.InitFile(gen.LogFile, gen.LogLevel); err != nil {
			return fmt.Errorf("log-file: %w", err)
		}
		return nil
	case !isatty.IsTerminal(os.Stderr.Fd()):
		return log.Init(os.Stderr, gen.LogLevel)
	}
	return log.Init(nil, gen.LogLevel)
}
