package types

import (
	"fmt"

	"git.sr.ht/~rjarry/mlsync/models"
)

type EventKind int

const (
	MailAdded EventKind = iota
	MailMoved
	MailDeleted
	FlagChanged
	SaveStatusChanged
	// MailUpdated reports a record change that is not a flag change
	MailUpdated
	// MailboxDeleted reports the removal of the mailbox MailboxID. Its mails
	// go away with it and are not reported one by one.
	MailboxDeleted
)

func (k EventKind) String() string {
	switch k {
	case MailAdded:
		return "mail-added"
	case MailMoved:
		return "mail-moved"
	case MailDeleted:
		return "mail-deleted"
	case FlagChanged:
		return "flag-changed"
	case SaveStatusChanged:
		return "save-status-changed"
	case MailUpdated:
		return "mail-updated"
	case MailboxDeleted:
		return "mailbox-deleted"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a change notification emitted by an engine. Events about the same
// mail are delivered in emission order.
type Event struct {
	Kind      EventKind
	AccountID string
	// MailboxID is the mailbox of the mails, the source one for MailMoved
	MailboxID   string
	MailboxType models.MailboxType
	// DestMailboxID and DestMailboxType are only set for MailMoved
	DestMailboxID   string
	DestMailboxType models.MailboxType
	MailIDs         []models.MailID
	ThreadID        string

	// FlagChanged
	Flag  models.Flags
	Value bool

	// SaveStatusChanged
	Status models.SaveStatus
}

func (ev *Event) String() string {
	return fmt.Sprintf("%s %s/%s %v", ev.Kind, ev.AccountID, ev.MailboxID, ev.MailIDs)
}
