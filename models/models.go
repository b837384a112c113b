package models

import (
	"fmt"
	"strings"
	"time"
)

// MailID identifies a mail across every mailbox of every account. Engines
// allocate them from a uidstore.Store so they never collide.
type MailID uint32

// Flags is a bitmask of message flags
type Flags uint32

const (
	SeenFlag Flags = 1 << iota
	AnsweredFlag
	ForwardedFlag
	FlaggedFlag
	DeletedFlag
	DraftFlag
)

// Has returns true if every flag in f2 is set in f
func (f Flags) Has(f2 Flags) bool {
	return f2 != 0 && f&f2 == f2
}

func (f Flags) Set(f2 Flags, enable bool) Flags {
	if enable {
		return f | f2
	}
	return f &^ f2
}

var flagNames = []struct {
	flag Flags
	name string
}{
	{SeenFlag, "seen"},
	{AnsweredFlag, "answered"},
	{ForwardedFlag, "forwarded"},
	{FlaggedFlag, "flagged"},
	{DeletedFlag, "deleted"},
	{DraftFlag, "draft"},
}

func (f Flags) String() string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseFlag returns the flag matching a user supplied name
func ParseFlag(name string) (Flags, error) {
	switch strings.ToLower(name) {
	case "read":
		return SeenFlag, nil
	case "starred", "important":
		return FlaggedFlag, nil
	}
	for _, fn := range flagNames {
		if strings.EqualFold(name, fn.name) {
			return fn.flag, nil
		}
	}
	return 0, fmt.Errorf("%s: unknown flag", name)
}

type MailboxType int

const (
	User MailboxType = iota
	Inbox
	Drafts
	Sent
	Outbox
	Scheduled
	Trash
	Spam
	Archive
)

var mailboxTypeNames = map[MailboxType]string{
	User:      "user",
	Inbox:     "inbox",
	Drafts:    "drafts",
	Sent:      "sent",
	Outbox:    "outbox",
	Scheduled: "scheduled",
	Trash:     "trash",
	Spam:      "spam",
	Archive:   "archive",
}

func (t MailboxType) String() string {
	return mailboxTypeNames[t]
}

func ParseMailboxType(name string) (MailboxType, error) {
	for t, n := range mailboxTypeNames {
		if strings.EqualFold(name, n) {
			return t, nil
		}
	}
	return User, fmt.Errorf("%s: unknown mailbox type", name)
}

// GuessMailboxType maps well known folder names to a mailbox type
func GuessMailboxType(name string) MailboxType {
	base := name
	if i := strings.LastIndexAny(name, "/."); i >= 0 {
		base = name[i+1:]
	}
	switch strings.ToLower(base) {
	case "inbox":
		return Inbox
	case "drafts", "draft":
		return Drafts
	case "sent", "sent items", "sent mail", "sent messages":
		return Sent
	case "outbox":
		return Outbox
	case "scheduled":
		return Scheduled
	case "trash", "deleted", "deleted items", "deleted messages", "bin":
		return Trash
	case "spam", "junk", "junk e-mail", "junk email":
		return Spam
	case "archive", "archives", "all mail":
		return Archive
	}
	return User
}

type SaveStatus int

const (
	Received SaveStatus = iota
	Saved
	SendScheduled
	Sending
	SendDone
	SendFailed
	SendCanceled
)

var saveStatusNames = []string{
	"received", "saved", "scheduled", "sending", "sent", "failed", "canceled",
}

func (s SaveStatus) String() string {
	if int(s) < len(saveStatusNames) {
		return saveStatusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Address is a parsed mail address
type Address struct {
	Name    string
	Mailbox string
	Host    string
}

func (a *Address) Address() string {
	if a.Host == "" {
		return a.Mailbox
	}
	return a.Mailbox + "@" + a.Host
}

// DisplayName returns the name if any, the address otherwise
func (a *Address) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Address()
}

func (a *Address) String() string {
	if a.Name == "" {
		return a.Address()
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address())
}

// MailRecord is a mail as returned by an engine
type MailRecord struct {
	ID          MailID
	ThreadID    string
	AccountID   string
	MailboxID   string
	MailboxType MailboxType

	Date        time.Time
	Flags       Flags
	Priority    int
	Attachments int
	// ToMe is set when one of the account addresses is in To
	ToMe bool

	From    []*Address
	To      []*Address
	Cc      []*Address
	Subject string
	Size    uint32

	SaveStatus SaveStatus
	Preview    string
}

// Copy returns a deep copy that can be handed over to another goroutine
func (r *MailRecord) Copy() *MailRecord {
	c := *r
	c.From = copyAddresses(r.From)
	c.To = copyAddresses(r.To)
	c.Cc = copyAddresses(r.Cc)
	return &c
}

func copyAddresses(addrs []*Address) []*Address {
	if addrs == nil {
		return nil
	}
	c := make([]*Address, len(addrs))
	for i, a := range addrs {
		addr := *a
		c[i] = &addr
	}
	return c
}

// DeleteOption selects how DeleteMail disposes of mails
type DeleteOption int

const (
	// MoveToTrash moves mails to the trash mailbox, or expunges them when
	// they already are in it
	MoveToTrash DeleteOption = iota
	Expunge
)
