package types

import (
	"context"
	"errors"

	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
)

var (
	// ErrNotFound means the mail does not exist (any more)
	ErrNotFound    = errors.New("mail not found")
	ErrUnsupported = errors.New("unsupported operation")
)

// Engine is the mail store behind a view. Implementations must be safe for
// concurrent use: list queries and commands are issued from request
// goroutines while the event feed is consumed by the apply context.
type Engine interface {
	Connect(ctx context.Context) error
	Close() error

	// GetMailList returns at most count records (all if count <= 0)
	// starting at start in the given order, and the total number of
	// matching records.
	GetMailList(ctx context.Context, filter *models.Filter, mode sort.Mode,
		start, count int) ([]*models.MailRecord, int, error)
	GetMailByID(ctx context.Context, id models.MailID) (*models.MailRecord, error)

	MoveMail(ctx context.Context, ids []models.MailID, dest string) error
	DeleteMail(ctx context.Context, ids []models.MailID, opt models.DeleteOption) error
	SetFlag(ctx context.Context, ids []models.MailID, flag models.Flags, value bool) error

	// Mailboxes lists the mailbox IDs with their type
	Mailboxes(ctx context.Context) (map[string]models.MailboxType, error)

	Events() <-chan *Event
}
