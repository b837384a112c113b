package lib

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/emersion/go-maildir"

	"git.sr.ht/~rjarry/mlsync/models"
)

// MaildirStore maps mailbox names to the maildirs below a root. With the
// Maildir++ layout, the root is INBOX and the other mailboxes are the
// .Dotted.Names directly below it. Otherwise every maildir is a mailbox
// named after its path relative to the root.
type MaildirStore struct {
	root      string
	maildirpp bool
}

func NewMaildirStore(root string, maildirpp bool) (*MaildirStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}
	return &MaildirStore{root: root, maildirpp: maildirpp}, nil
}

func isMaildir(path string) bool {
	for _, sub := range [...]string{"cur", "new", "tmp"} {
		if info, err := os.Stat(filepath.Join(path, sub)); err != nil || !info.IsDir() {
			return false
		}
	}
	return true
}

// FolderMap lists the mailboxes of the store
func (s *MaildirStore) FolderMap() (map[string]maildir.Dir, error) {
	if s.maildirpp {
		return s.maildirppFolders()
	}
	folders := make(map[string]maildir.Dir)
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == s.root {
			return nil
		}
		switch d.Name() {
		case "cur", "new", "tmp":
			return filepath.SkipDir
		}
		if !isMaildir(path) {
			// may still contain maildirs
			return nil
		}
		name, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		folders[filepath.ToSlash(name)] = maildir.Dir(path)
		return nil
	})
	return folders, err
}

func (s *MaildirStore) maildirppFolders() (map[string]maildir.Dir, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	folders := map[string]maildir.Dir{"INBOX": maildir.Dir(s.root)}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(s.root, e.Name())
		if !isMaildir(path) {
			continue
		}
		name := strings.ReplaceAll(strings.TrimPrefix(e.Name(), "."), ".", "/")
		folders[name] = maildir.Dir(path)
	}
	return folders, nil
}

// Dir returns the maildir of a mailbox, which may not exist yet
func (s *MaildirStore) Dir(name string) maildir.Dir {
	switch {
	case !s.maildirpp:
		return maildir.Dir(filepath.Join(s.root, filepath.FromSlash(name)))
	case name == "INBOX":
		return maildir.Dir(s.root)
	default:
		return maildir.Dir(filepath.Join(s.root, "."+strings.ReplaceAll(name, "/", ".")))
	}
}

// mbsync and OfflineIMAP store the IMAP UID in the file names
var uidField = regexp.MustCompile(`,U=\d+`)

// StripUIDFromMessageFilename drops the UID of a file name so that a copy
// is not mistaken for the original by the synchronization tools
func StripUIDFromMessageFilename(basename string) string {
	return uidField.ReplaceAllString(basename, "")
}

// maildir flags in the order they must appear in file names
var maildirFlags = []struct {
	maildir maildir.Flag
	flag    models.Flags
}{
	{maildir.FlagDraft, models.DraftFlag},
	{maildir.FlagFlagged, models.FlaggedFlag},
	{maildir.FlagPassed, models.ForwardedFlag},
	{maildir.FlagReplied, models.AnsweredFlag},
	{maildir.FlagSeen, models.SeenFlag},
	{maildir.FlagTrashed, models.DeletedFlag},
}

func FromMaildirFlags(flags []maildir.Flag) models.Flags {
	var res models.Flags
	for _, f := range flags {
		for _, m := range maildirFlags {
			if m.maildir == f {
				res |= m.flag
			}
		}
	}
	return res
}

func ToMaildirFlags(flags models.Flags) []maildir.Flag {
	var res []maildir.Flag
	for _, m := range maildirFlags {
		if flags.Has(m.flag) {
			res = append(res, m.maildir)
		}
	}
	return res
}
