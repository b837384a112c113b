package models

import "time"

// MailSummary is one row of a mailbox list. Only the view's apply context
// touches it once it has been inserted in a store.
type MailSummary struct {
	MailID      MailID
	ThreadID    string
	AccountID   string
	MailboxID   string
	MailboxType MailboxType

	Timestamp     time.Time
	IsSeen        bool
	FlagImportant bool
	Priority      int
	HasAttachment bool
	IsToRecipient bool
	// SenderKey and RecipientKey are case folded. Empty means absent.
	SenderKey    string
	RecipientKey string
	Subject      string
	SizeBytes    uint32

	IsAnswered  bool
	IsForwarded bool
	IsDeleted   bool
	SaveStatus  SaveStatus

	// cached display values
	SenderAlias    string
	RecipientAlias string
	TimeText       string
	SubjectMarkup  string
	Preview        string

	Selected    bool
	Highlighted bool
}

// Fields is a bitmask naming summary attributes
type Fields uint32

const (
	FieldTimestamp Fields = 1 << iota
	FieldSeen
	FieldImportant
	FieldPriority
	FieldAttachment
	FieldToRecipient
	FieldSender
	FieldRecipient
	FieldSubject
	FieldSize
	FieldAnswered
	FieldForwarded
	FieldDeleted
	FieldSaveStatus
	FieldMailbox
)

func (f Fields) Has(f2 Fields) bool {
	return f&f2 != 0
}

// FlagField maps a message flag to the summary field carrying it
func FlagField(flag Flags) Fields {
	var f Fields
	if flag.Has(SeenFlag) {
		f |= FieldSeen
	}
	if flag.Has(FlaggedFlag) {
		f |= FieldImportant
	}
	if flag.Has(AnsweredFlag) {
		f |= FieldAnswered
	}
	if flag.Has(ForwardedFlag) {
		f |= FieldForwarded
	}
	if flag.Has(DeletedFlag) {
		f |= FieldDeleted
	}
	return f
}

// Flags rebuilds the flag bitmask carried by the summary
func (s *MailSummary) Flags() Flags {
	var f Flags
	f = f.Set(SeenFlag, s.IsSeen)
	f = f.Set(FlaggedFlag, s.FlagImportant)
	f = f.Set(AnsweredFlag, s.IsAnswered)
	f = f.Set(ForwardedFlag, s.IsForwarded)
	f = f.Set(DeletedFlag, s.IsDeleted)
	return f
}

// SetFlag updates the summary fields matching flag
func (s *MailSummary) SetFlag(flag Flags, value bool) {
	if flag.Has(SeenFlag) {
		s.IsSeen = value
	}
	if flag.Has(FlaggedFlag) {
		s.FlagImportant = value
	}
	if flag.Has(AnsweredFlag) {
		s.IsAnswered = value
	}
	if flag.Has(ForwardedFlag) {
		s.IsForwarded = value
	}
	if flag.Has(DeletedFlag) {
		s.IsDeleted = value
	}
}

// Diff returns the fields whose value differs between s and o. Display
// caches and transient state are not compared.
func (s *MailSummary) Diff(o *MailSummary) Fields {
	var f Fields
	if !s.Timestamp.Equal(o.Timestamp) {
		f |= FieldTimestamp
	}
	if s.IsSeen != o.IsSeen {
		f |= FieldSeen
	}
	if s.FlagImportant != o.FlagImportant {
		f |= FieldImportant
	}
	if s.Priority != o.Priority {
		f |= FieldPriority
	}
	if s.HasAttachment != o.HasAttachment {
		f |= FieldAttachment
	}
	if s.IsToRecipient != o.IsToRecipient {
		f |= FieldToRecipient
	}
	if s.SenderKey != o.SenderKey {
		f |= FieldSender
	}
	if s.RecipientKey != o.RecipientKey {
		f |= FieldRecipient
	}
	if s.Subject != o.Subject {
		f |= FieldSubject
	}
	if s.SizeBytes != o.SizeBytes {
		f |= FieldSize
	}
	if s.IsAnswered != o.IsAnswered {
		f |= FieldAnswered
	}
	if s.IsForwarded != o.IsForwarded {
		f |= FieldForwarded
	}
	if s.IsDeleted != o.IsDeleted {
		f |= FieldDeleted
	}
	if s.SaveStatus != o.SaveStatus {
		f |= FieldSaveStatus
	}
	if s.MailboxID != o.MailboxID || s.MailboxType != o.MailboxType {
		f |= FieldMailbox
	}
	return f
}

// CopyFrom overwrites the engine derived attributes of s with those of o,
// keeping the transient selection state.
func (s *MailSummary) CopyFrom(o *MailSummary) {
	selected, highlighted := s.Selected, s.Highlighted
	*s = *o
	s.Selected = selected
	s.Highlighted = highlighted
}
