package maildir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/emersion/go-maildir"

	"git.sr.ht/~rjarry/mlsync/lib/uidstore"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/lib"
)

// A Container is a directory which contains other directories which adhere to
// the Maildir spec. Mails are identified by folder and maildir key.
type Container struct {
	store *lib.MaildirStore
	uids  *uidstore.Store
	dirs  map[string]maildir.Dir
}

func NewContainer(root string, maildirpp bool) (*Container, error) {
	store, err := lib.NewMaildirStore(root, maildirpp)
	if err != nil {
		return nil, err
	}
	return &Container{
		store: store,
		uids:  uidstore.NewStore(),
		dirs:  make(map[string]maildir.Dir),
	}, nil
}

// ListFolders rescans the root and returns the folder names sorted
func (c *Container) ListFolders() ([]string, error) {
	dirs, err := c.store.FolderMap()
	if err != nil {
		return nil, err
	}
	c.dirs = dirs
	folders := make([]string, 0, len(dirs))
	for name := range dirs {
		folders = append(folders, name)
	}
	sort.Strings(folders)
	return folders, nil
}

// Dir returns the maildir of a folder, known or not
func (c *Container) Dir(name string) maildir.Dir {
	if d, ok := c.dirs[name]; ok {
		return d
	}
	return c.store.Dir(name)
}

// Create makes a new folder below the root
func (c *Container) Create(name string) (maildir.Dir, error) {
	d := c.store.Dir(name)
	if err := os.MkdirAll(string(d), 0o700); err != nil {
		return d, err
	}
	if err := d.Init(); err != nil {
		return d, fmt.Errorf("could not create %s: %w", name, err)
	}
	c.dirs[name] = d
	return d, nil
}

func uidKey(folder, key string) string {
	return folder + "\x00" + key
}

// ID returns the mail ID of key in folder, allocating one if needed
func (c *Container) ID(folder, key string) models.MailID {
	return c.uids.GetOrInsert(uidKey(folder, key))
}

// Locate returns the folder and key of a mail ID
func (c *Container) Locate(id models.MailID) (string, string, bool) {
	k, ok := c.uids.GetKey(id)
	if !ok {
		return "", "", false
	}
	folder, key, ok := strings.Cut(k, "\x00")
	return folder, key, ok
}

func (c *Container) Forget(id models.MailID) {
	c.uids.RemoveID(id)
}

// Message returns the message of a mail ID
func (c *Container) Message(id models.MailID) (*Message, error) {
	folder, key, ok := c.Locate(id)
	if !ok {
		return nil, fmt.Errorf("mail %d: %w", id, errUnknownMail)
	}
	return &Message{dir: c.Dir(folder), folder: folder, key: key, id: id}, nil
}

// Move renames the file of a mail into the cur directory of dest, keeping
// its identity. Encoded UIDs of external synchronizers are dropped from the
// file name so they do not clash with the destination's numbering.
func (c *Container) Move(id models.MailID, dest string) (string, error) {
	msg, err := c.Message(id)
	if err != nil {
		return "", err
	}
	src, err := msg.Filename()
	if err != nil {
		return "", err
	}
	name := lib.StripUIDFromMessageFilename(filepath.Base(src))
	target := filepath.Join(string(c.Dir(dest)), "cur", name)
	if err := os.Rename(src, target); err != nil {
		return "", err
	}
	newKey := keyOf(name)
	c.uids.Rekey(id, uidKey(dest, newKey))
	return newKey, nil
}

// keyOf extracts the maildir key from a file name
func keyOf(name string) string {
	key, _, _ := strings.Cut(name, ":")
	return key
}
