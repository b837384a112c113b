package maildir

import (
	"errors"
	"io"
	"os"

	"github.com/emersion/go-maildir"

	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/lib"
)

var errUnknownMail = errors.New("unknown mail")

// A Message is an individual email inside of a maildir.Dir.
type Message struct {
	dir    maildir.Dir
	folder string
	key    string
	id     models.MailID
}

// NewReader opens the message file. The caller closes it.
func (m Message) NewReader() (io.Reader, error) {
	return m.dir.Open(m.key)
}

func (m Message) ID() models.MailID {
	return m.id
}

func (m Message) Filename() (string, error) {
	return m.dir.Filename(m.key)
}

// ModelFlags fetches the flags encoded in the file name
func (m Message) ModelFlags() (models.Flags, error) {
	flags, err := m.dir.Flags(m.key)
	if err != nil {
		return 0, err
	}
	return lib.FromMaildirFlags(flags), nil
}

// SetFlags renames the file so that it carries exactly flags
func (m Message) SetFlags(flags models.Flags) error {
	return m.dir.SetFlags(m.key, lib.ToMaildirFlags(flags))
}

func (m Message) Size() (uint32, error) {
	name, err := m.Filename()
	if err != nil {
		return 0, err
	}
	st, err := os.Stat(name)
	if err != nil {
		return 0, err
	}
	return uint32(st.Size()), nil
}

// Remove deletes the email immediately.
func (m Message) Remove() error {
	return m.dir.Remove(m.key)
}
