package sort

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"git.sr.ht/~rjarry/mlsync/models"
)

// Mode is the order of a mailbox list
type Mode int

const (
	DateRecent Mode = iota
	DateOldest
	SenderAZ
	SenderZA
	RecipientAZ
	RecipientZA
	UnreadFirst
	Important
	Priority
	Attachment
	ToCcBcc
	SubjectAZ
	SubjectZA
	SizeAsc
	SizeDesc
)

var modeNames = []string{
	DateRecent:  "date-recent",
	DateOldest:  "date-oldest",
	SenderAZ:    "sender-az",
	SenderZA:    "sender-za",
	RecipientAZ: "recipient-az",
	RecipientZA: "recipient-za",
	UnreadFirst: "unread-first",
	Important:   "important",
	Priority:    "priority",
	Attachment:  "attachment",
	ToCcBcc:     "to-cc-bcc",
	SubjectAZ:   "subject-az",
	SubjectZA:   "subject-za",
	SizeAsc:     "size-asc",
	SizeDesc:    "size-desc",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Alphabetic reports whether the mode orders on a text key
func (m Mode) Alphabetic() bool {
	switch m {
	case SenderAZ, SenderZA, RecipientAZ, RecipientZA, SubjectAZ, SubjectZA:
		return true
	}
	return false
}

// Parse reads a sort mode from sort criteria ("-r date", "from") or
// from a mode name ("sender-za").
func Parse(args []string) (Mode, error) {
	var mode Mode
	found := false
	reverse := false
	for _, arg := range args {
		if arg == "-r" {
			reverse = true
			continue
		}
		if found {
			return DateRecent, errors.New("Only one sort criterion is supported")
		}
		m, err := parseSortField(arg, reverse)
		if err != nil {
			return DateRecent, err
		}
		mode = m
		found = true
		reverse = false
	}
	if reverse {
		return DateRecent, errors.New("Expected argument to reverse")
	}
	if !found {
		return DateRecent, errors.New("Expected a sort criterion")
	}
	return mode, nil
}

// ParseString splits s on white space and calls Parse
func ParseString(s string) (Mode, error) {
	return Parse(strings.Fields(s))
}

func parseSortField(arg string, reverse bool) (Mode, error) {
	pick := func(normal, reversed Mode) (Mode, error) {
		if reverse {
			return reversed, nil
		}
		return normal, nil
	}
	noReverse := func(m Mode) (Mode, error) {
		if reverse {
			return m, fmt.Errorf("%s cannot be reversed", arg)
		}
		return m, nil
	}
	arg = strings.ToLower(arg)
	switch arg {
	case "date", "arrival":
		return pick(DateRecent, DateOldest)
	case "from", "sender":
		return pick(SenderAZ, SenderZA)
	case "to", "recipient":
		return pick(RecipientAZ, RecipientZA)
	case "subject":
		return pick(SubjectAZ, SubjectZA)
	case "size":
		return pick(SizeAsc, SizeDesc)
	case "read", "unread":
		return noReverse(UnreadFirst)
	case "flagged":
		return noReverse(Important)
	case "tocc":
		return noReverse(ToCcBcc)
	}
	for m, name := range modeNames {
		if arg == name {
			return noReverse(Mode(m))
		}
	}
	return DateRecent, fmt.Errorf("%v is not a valid sort criterion", arg)
}

// Summaries sorts list in place according to mode
func Summaries(mode Mode, list []*models.MailSummary) {
	sort.Slice(list, func(i, j int) bool {
		return Compare(mode, list[i], list[j]) == Before
	})
}

// Search returns the index at which s must be inserted in the ordered list
func Search(mode Mode, list []*models.MailSummary, s *models.MailSummary) int {
	return sort.Search(len(list), func(i int) bool {
		return Compare(mode, s, list[i]) == Before
	})
}
