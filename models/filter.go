package models

type FilterMode int

const (
	// FilterMailbox shows a single mailbox
	FilterMailbox FilterMode = iota
	// FilterAll shows every mailbox of a given type
	FilterAll
	// FilterAccount shows every mailbox of the account but the trash, the
	// spam folder and virtual mailboxes
	FilterAccount
)

// Filter describes which mails a view shows
type Filter struct {
	Mode        FilterMode
	AccountID   string
	MailboxID   string
	MailboxType MailboxType

	RequireFlags Flags
	ExcludeFlags Flags

	// Search is the keyword of the search mode, empty when not searching
	Search string
}

// Copy returns an independent copy of the filter
func (f *Filter) Copy() *Filter {
	c := *f
	return &c
}

// MatchesMailbox tells whether mails of the given mailbox belong to the view
// regardless of their flags.
func (f *Filter) MatchesMailbox(account, mailbox string, typ MailboxType) bool {
	if f.AccountID != "" && account != "" && f.AccountID != account {
		return false
	}
	switch f.Mode {
	case FilterAll:
		return typ == f.MailboxType
	case FilterAccount:
		// mails without a mailbox id live in search results only
		return mailbox != "" && typ != Trash && typ != Spam
	default:
		return mailbox == f.MailboxID
	}
}

// MatchesFlags tells whether the flags satisfy the flag constraints. Mails
// flagged deleted are hidden unless the filter requires the flag.
func (f *Filter) MatchesFlags(flags Flags) bool {
	if f.RequireFlags != 0 && flags&f.RequireFlags != f.RequireFlags {
		return false
	}
	return flags&f.excluded() == 0
}

func (f *Filter) excluded() Flags {
	if f.RequireFlags.Has(DeletedFlag) {
		return f.ExcludeFlags
	}
	return f.ExcludeFlags | DeletedFlag
}

// FlagBoundary reports whether a change of flag can move mails across the
// flag constraints of the filter.
func (f *Filter) FlagBoundary(flag Flags) bool {
	return (f.RequireFlags|f.excluded())&flag != 0
}
