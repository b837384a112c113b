package imap

import (
	"sort"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/charset"

	"git.sr.ht/~rjarry/mlsync/models"
)

func init() {
	imap.CharsetReader = charset.Reader
}

// ForwardedKeyword is the de facto keyword for forwarded mails
const ForwardedKeyword = "$Forwarded"

func toSeqSet(uids []uint32) *imap.SeqSet {
	var set imap.SeqSet
	for _, uid := range uids {
		set.AddNum(uid)
	}
	return &set
}

func translateEnvelope(e *imap.Envelope) *models.MailRecord {
	if e == nil {
		return &models.MailRecord{}
	}
	return &models.MailRecord{
		Date:    e.Date,
		Subject: e.Subject,
		From:    translateAddresses(e.From),
		To:      translateAddresses(e.To),
		Cc:      translateAddresses(e.Cc),
	}
}

func translateAddresses(addrs []*imap.Address) []*models.Address {
	var converted []*models.Address
	for _, addr := range addrs {
		converted = append(converted, &models.Address{
			Name:    addr.PersonalName,
			Mailbox: addr.MailboxName,
			Host:    addr.HostName,
		})
	}
	return converted
}

// messageID strips the angle brackets and folding whitespace of an envelope
// Message-Id
func messageID(e *imap.Envelope) string {
	if e == nil {
		return ""
	}
	id := strings.TrimSpace(e.MessageId)
	id = strings.TrimPrefix(id, "<")
	return strings.TrimSuffix(id, ">")
}

var imapToFlag = map[string]models.Flags{
	imap.SeenFlag:     models.SeenFlag,
	imap.AnsweredFlag: models.AnsweredFlag,
	imap.DeletedFlag:  models.DeletedFlag,
	imap.FlaggedFlag:  models.FlaggedFlag,
	imap.DraftFlag:    models.DraftFlag,
	ForwardedKeyword:  models.ForwardedFlag,
}

var flagToImap = map[models.Flags]string{
	models.SeenFlag:      imap.SeenFlag,
	models.AnsweredFlag:  imap.AnsweredFlag,
	models.DeletedFlag:   imap.DeletedFlag,
	models.FlaggedFlag:   imap.FlaggedFlag,
	models.DraftFlag:     imap.DraftFlag,
	models.ForwardedFlag: ForwardedKeyword,
}

func translateImapFlags(imapFlags []string) models.Flags {
	var flags models.Flags
	for _, imapFlag := range imapFlags {
		// keywords are case insensitive
		if flag, ok := imapToFlag[imap.CanonicalFlag(imapFlag)]; ok {
			flags |= flag
		} else if strings.EqualFold(imapFlag, ForwardedKeyword) {
			flags |= models.ForwardedFlag
		}
	}
	return flags
}

// flagNames returns the sorted IMAP names of flags
func flagNames(flags models.Flags) []string {
	var names []string
	for flag, imapFlag := range flagToImap {
		if flags.Has(flag) {
			names = append(names, imapFlag)
		}
	}
	sort.Strings(names)
	return names
}

func translateFlags(flags models.Flags) []interface{} {
	var imapFlags []interface{}
	for _, name := range flagNames(flags) {
		imapFlags = append(imapFlags, name)
	}
	return imapFlags
}

func countAttachments(bs *imap.BodyStructure) int {
	if bs == nil {
		return 0
	}
	n := 0
	bs.Walk(func(path []int, part *imap.BodyStructure) bool {
		if strings.EqualFold(part.Disposition, "attachment") {
			n++
		}
		return true
	})
	return n
}

// textPart returns the path of the first text/plain part which is not an
// attachment
func textPart(bs *imap.BodyStructure) ([]int, *imap.BodyStructure) {
	if bs == nil {
		return nil, nil
	}
	var (
		found []int
		text  *imap.BodyStructure
	)
	bs.Walk(func(path []int, part *imap.BodyStructure) bool {
		if text != nil {
			return false
		}
		if strings.EqualFold(part.MIMEType, "text") &&
			strings.EqualFold(part.MIMESubType, "plain") &&
			!strings.EqualFold(part.Disposition, "attachment") &&
			len(path) > 0 {
			found = append([]int(nil), path...)
			text = part
			return false
		}
		return true
	})
	return found, text
}
