package mboxer

import (
	"bytes"
	"io"
	"strings"

	"git.sr.ht/~rjarry/mlsync/models"
)

// message implements the lib.RawMessage interface
type message struct {
	flags   models.Flags
	content []byte
}

func (m *message) NewReader() (io.Reader, error) {
	return bytes.NewReader(m.content), nil
}

func (m *message) ModelFlags() (models.Flags, error) {
	return m.flags, nil
}

// ID is allocated when the record is stored
func (m *message) ID() models.MailID {
	return 0
}

// statusFlags reads the Status and X-Status headers written by mbox
// clients
func statusFlags(status, xstatus string) models.Flags {
	var flags models.Flags
	if strings.ContainsRune(status, 'R') {
		flags |= models.SeenFlag
	}
	for _, c := range xstatus {
		switch c {
		case 'A':
			flags |= models.AnsweredFlag
		case 'F':
			flags |= models.FlaggedFlag
		case 'T':
			flags |= models.DraftFlag
		case 'D':
			flags |= models.DeletedFlag
		}
	}
	return flags
}
