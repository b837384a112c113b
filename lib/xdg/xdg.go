// Package xdg resolves the per-user directories of mlsync.
package xdg

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"git.sr.ht/~rjarry/mlsync/lib/log"
)

// replaced in tests
var currentUser = user.Current

// HomeDir returns $HOME, or the home of the passwd entry of the current user
// when unset.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err == nil {
		return home
	}
	u, uerr := currentUser()
	if uerr != nil {
		log.Errorf("no home directory: %v, %v", err, uerr)
		return ""
	}
	return u.HomeDir
}

// ExpandHome joins fragments and replaces a leading ~ with the home dir
func ExpandHome(fragments ...string) string {
	res := filepath.Join(fragments...)
	if res == "~" || strings.HasPrefix(res, "~/") {
		res = HomeDir() + res[1:]
	}
	return res
}

type baseDir struct {
	env      string
	darwin   string
	fallback string
	lookup   func() (string, error)
}

var (
	cacheDir = baseDir{
		env:      "XDG_CACHE_HOME",
		fallback: "~/.cache",
		lookup:   os.UserCacheDir,
	}
	configDir = baseDir{
		env:      "XDG_CONFIG_HOME",
		darwin:   "~/Library/Preferences",
		fallback: "~/.config",
		lookup:   os.UserConfigDir,
	}
)

// resolve joins paths under the base dir. Absolute paths are returned
// unchanged. On darwin, the XDG variables take precedence over the native
// locations.
func (d *baseDir) resolve(paths []string) string {
	res := filepath.Join(paths...)
	if filepath.IsAbs(res) {
		return res
	}
	var base string
	if runtime.GOOS == "darwin" {
		base = os.Getenv(d.env)
		if base == "" && d.darwin != "" {
			base = ExpandHome(d.darwin)
		}
	}
	if base == "" {
		var err error
		if base, err = d.lookup(); err != nil {
			base = ExpandHome(d.fallback)
		}
	}
	return filepath.Join(base, res)
}

// CachePath returns a path under the user cache dir
func CachePath(paths ...string) string {
	return cacheDir.resolve(paths)
}

// ConfigPath returns a path under the user config dir
func ConfigPath(paths ...string) string {
	return configDir.resolve(paths)
}
