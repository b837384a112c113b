package xdg

import (
	"errors"
	"os/user"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHomeDir(t *testing.T) {
	orig := currentUser
	defer func() { currentUser = orig }()

	t.Setenv("HOME", "/home/jdoe")
	assert.Equal(t, "/home/jdoe", HomeDir())

	t.Setenv("HOME", "")
	currentUser = func() (*user.User, error) {
		return &user.User{HomeDir: "/var/jdoe"}, nil
	}
	assert.Equal(t, "/var/jdoe", HomeDir())

	currentUser = func() (*user.User, error) {
		return nil, errors.New("unknown user")
	}
	assert.Equal(t, "", HomeDir())
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/jdoe")
	tests := []struct {
		args     []string
		expected string
	}{
		{[]string{"mail"}, "mail"},
		{[]string{"mail", "inbox"}, "mail/inbox"},
		{[]string{"/srv/mail"}, "/srv/mail"},
		{[]string{"~/mail/inbox"}, "/home/jdoe/mail/inbox"},
		{[]string{"~", "mail"}, "/home/jdoe/mail"},
		{[]string{"~"}, "/home/jdoe"},
		{[]string{"~jdoe/mail"}, "~jdoe/mail"},
		{nil, ""},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, ExpandHome(test.args...), "%v", test.args)
	}
}

func TestCachePath(t *testing.T) {
	t.Setenv("HOME", "/home/jdoe")
	t.Setenv("XDG_CACHE_HOME", "")
	expected := "/home/jdoe/.cache/mlsync/headers"
	if runtime.GOOS == "darwin" {
		expected = "/home/jdoe/Library/Caches/mlsync/headers"
	}
	assert.Equal(t, expected, CachePath("mlsync", "headers"))

	t.Setenv("XDG_CACHE_HOME", "/tmp/cache")
	assert.Equal(t, "/tmp/cache/mlsync/headers", CachePath("mlsync", "headers"))
	assert.Equal(t, "/srv/cache", CachePath("/srv/cache"))
}

func TestConfigPath(t *testing.T) {
	t.Setenv("HOME", "/home/jdoe")
	t.Setenv("XDG_CONFIG_HOME", "")
	expected := "/home/jdoe/.config/mlsync/mlsync.conf"
	if runtime.GOOS == "darwin" {
		expected = "/home/jdoe/Library/Preferences/mlsync/mlsync.conf"
	}
	assert.Equal(t, expected, ConfigPath("mlsync", "mlsync.conf"))

	t.Setenv("XDG_CONFIG_HOME", "/etc/jdoe")
	assert.Equal(t, "/etc/jdoe/mlsync/mlsync.conf", ConfigPath("mlsync", "mlsync.conf"))
}
