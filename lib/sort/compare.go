package sort

import (
	"regexp"
	"strings"

	"git.sr.ht/~rjarry/mlsync/models"
)

// Order is the relation between two summaries
type Order int

const (
	Before Order = -1
	After  Order = 1
)

// SubjectPrefix matches the reply and forward prefixes ignored when
// comparing subjects.
var SubjectPrefix = regexp.MustCompile(`(?i)^((AW|RE|SV|VS|ODP|R|FWD?|TR|WG): ?)+`)

// Compare returns Before when a must be listed before b. It never returns a
// tie for two different mails: equal keys fall back to the timestamp
// (newest first) then to the mail ID (highest first). A mail is never
// before itself.
func Compare(mode Mode, a, b *models.MailSummary) Order {
	if c := primary(mode, a, b); c != 0 {
		return toOrder(c)
	}
	if mode != DateRecent && mode != DateOldest {
		if c := compareTime(b, a); c != 0 {
			return toOrder(c)
		}
	}
	if a.MailID > b.MailID {
		return Before
	}
	return After
}

// InOrder tells whether s may stay between prev and next. Either neighbour
// may be nil.
func InOrder(mode Mode, prev, s, next *models.MailSummary) bool {
	if prev != nil && Compare(mode, prev, s) != Before {
		return false
	}
	if next != nil && Compare(mode, s, next) != Before {
		return false
	}
	return true
}

// KeyFields returns the summary fields the order of mode depends on
func KeyFields(mode Mode) models.Fields {
	f := models.FieldTimestamp
	switch mode {
	case SenderAZ, SenderZA:
		f |= models.FieldSender
	case RecipientAZ, RecipientZA:
		f |= models.FieldRecipient
	case UnreadFirst:
		f |= models.FieldSeen
	case Important:
		f |= models.FieldImportant
	case Priority:
		f |= models.FieldPriority
	case Attachment:
		f |= models.FieldAttachment
	case ToCcBcc:
		f |= models.FieldToRecipient
	case SubjectAZ, SubjectZA:
		f |= models.FieldSubject
	case SizeAsc, SizeDesc:
		f |= models.FieldSize
	}
	return f
}

// SubjectKey folds a subject for comparison
func SubjectKey(subject string) string {
	subject = strings.TrimSpace(subject)
	subject = SubjectPrefix.ReplaceAllString(subject, "")
	return strings.ToLower(strings.TrimSpace(subject))
}

func primary(mode Mode, a, b *models.MailSummary) int {
	switch mode {
	case DateRecent:
		return compareTime(b, a)
	case DateOldest:
		return compareTime(a, b)
	case SenderAZ:
		return compareKeys(a.SenderKey, b.SenderKey)
	case SenderZA:
		return -compareKeys(a.SenderKey, b.SenderKey)
	case RecipientAZ:
		return compareKeys(a.RecipientKey, b.RecipientKey)
	case RecipientZA:
		return -compareKeys(a.RecipientKey, b.RecipientKey)
	case SubjectAZ:
		return compareKeys(SubjectKey(a.Subject), SubjectKey(b.Subject))
	case SubjectZA:
		return -compareKeys(SubjectKey(a.Subject), SubjectKey(b.Subject))
	case UnreadFirst:
		return trueFirst(!a.IsSeen, !b.IsSeen)
	case Important:
		return trueFirst(a.FlagImportant, b.FlagImportant)
	case Priority:
		return priority(a) - priority(b)
	case Attachment:
		return trueFirst(a.HasAttachment, b.HasAttachment)
	case ToCcBcc:
		return trueFirst(a.IsToRecipient, b.IsToRecipient)
	case SizeAsc:
		return compareSize(a, b)
	case SizeDesc:
		return compareSize(b, a)
	}
	return 0
}

func toOrder(c int) Order {
	if c < 0 {
		return Before
	}
	return After
}

func compareTime(a, b *models.MailSummary) int {
	switch {
	case a.Timestamp.Before(b.Timestamp):
		return -1
	case a.Timestamp.After(b.Timestamp):
		return 1
	}
	return 0
}

// absent keys come first
func compareKeys(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	return strings.Compare(a, b)
}

func trueFirst(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return -1
	}
	return 1
}

func priority(s *models.MailSummary) int {
	if s.Priority <= 0 {
		return 3
	}
	return s.Priority
}

func compareSize(a, b *models.MailSummary) int {
	switch {
	case a.SizeBytes < b.SizeBytes:
		return -1
	case a.SizeBytes > b.SizeBytes:
		return 1
	}
	return 0
}
