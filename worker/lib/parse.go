package lib

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"git.sr.ht/~rjarry/mlsync/models"
)

// RFC 1123Z regexp
var dateRe = regexp.MustCompile(`(((Mon|Tue|Wed|Thu|Fri|Sat|Sun))[,]?\s[0-9]{1,2})\s` +
	`(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s` +
	`([0-9]{4})\s([0-9]{2}):([0-9]{2})(:([0-9]{2}))?\s([\+|\-][0-9]{4})\s?`)

const previewLength = 120

// RawMessage is a mail stored as an RFC 5322 message
type RawMessage interface {
	NewReader() (io.Reader, error)
	ModelFlags() (models.Flags, error)
	ID() models.MailID
}

// AddressMatcher tells whether one of the addresses belongs to the account
type AddressMatcher func([]*models.Address) bool

// MailRecord parses the message into a record. Mailbox identity, save status
// and size are left for the caller to fill in.
func MailRecord(raw RawMessage, toMe AddressMatcher) (*models.MailRecord, error) {
	r, err := raw.NewReader()
	if err != nil {
		return nil, err
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	rec, err := ReadRecord(r, toMe)
	if err != nil {
		return nil, err
	}
	flags, err := raw.ModelFlags()
	if err != nil {
		return nil, err
	}
	rec.ID = raw.ID()
	rec.Flags = flags
	return rec, nil
}

// ReadRecord parses a message. Body parts are only walked to count
// attachments and extract a preview.
func ReadRecord(r io.Reader, toMe AddressMatcher) (*models.MailRecord, error) {
	msg, err := message.Read(bufio.NewReader(r))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("could not read message: %w", err)
	}
	rec, err := RecordFromHeader(&mail.Header{Header: msg.Header}, toMe)
	if err != nil {
		return nil, err
	}
	rec.Attachments, rec.Preview = walkBody(msg)
	return rec, nil
}

// RecordFromHeader fills the header derived attributes of a record
func RecordFromHeader(h *mail.Header, toMe AddressMatcher) (*models.MailRecord, error) {
	date, err := parseDate(h)
	if err != nil {
		return nil, fmt.Errorf("could not parse date header: %w", err)
	}
	from, err := parseAddressList(h, "from")
	if err != nil {
		return nil, fmt.Errorf("could not read from address: %w", err)
	}
	to, err := parseAddressList(h, "to")
	if err != nil {
		return nil, fmt.Errorf("could not read to address: %w", err)
	}
	cc, err := parseAddressList(h, "cc")
	if err != nil {
		return nil, fmt.Errorf("could not read cc address: %w", err)
	}
	subj, err := h.Subject()
	if err != nil {
		return nil, fmt.Errorf("could not read subject: %w", err)
	}
	rec := &models.MailRecord{
		ThreadID: ThreadID(h),
		Date:     date,
		Priority: ParsePriority(h.Get("x-priority"), h.Get("importance")),
		From:     from,
		To:       to,
		Cc:       cc,
		Subject:  subj,
	}
	if toMe != nil {
		rec.ToMe = toMe(to)
	}
	if strings.HasPrefix(strings.ToLower(h.Get("content-type")), "multipart/mixed") {
		// refined by walkBody when the body is available
		rec.Attachments = 1
	}
	return rec, nil
}

// ThreadID returns the root of the References chain, falling back on
// In-Reply-To and then on the Message-Id of the mail itself.
func ThreadID(h *mail.Header) string {
	if refs, err := h.MsgIDList("references"); err == nil && len(refs) > 0 {
		return refs[0]
	}
	if irt, err := h.MsgIDList("in-reply-to"); err == nil && len(irt) > 0 {
		return irt[0]
	}
	if id, err := h.MessageID(); err == nil {
		return id
	}
	return ""
}

// ParsePriority maps X-Priority ("1 (Highest)") or Importance ("high") to
// 1..5, 0 when neither is set.
func ParsePriority(xPriority, importance string) int {
	xPriority = strings.TrimSpace(xPriority)
	if xPriority != "" {
		end := strings.IndexFunc(xPriority, func(r rune) bool {
			return !unicode.IsDigit(r)
		})
		if end < 0 {
			end = len(xPriority)
		}
		if p, err := strconv.Atoi(xPriority[:end]); err == nil && p >= 1 && p <= 5 {
			return p
		}
	}
	switch strings.ToLower(strings.TrimSpace(importance)) {
	case "high":
		return 1
	case "normal":
		return 3
	case "low":
		return 5
	}
	return 0
}

func walkBody(msg *message.Entity) (int, string) {
	attachments := 0
	preview := ""
	_ = msg.Walk(func(path []int, part *message.Entity, err error) error {
		if err != nil {
			return err
		}
		if disp, _, err := part.Header.ContentDisposition(); err == nil &&
			strings.EqualFold(disp, "attachment") {
			attachments++
			return nil
		}
		mime, _, _ := part.Header.ContentType()
		if preview == "" && (mime == "" || mime == "text/plain") {
			preview = readPreview(part.Body)
		}
		return nil
	})
	return attachments, preview
}

func readPreview(body io.Reader) string {
	buf := make([]byte, 4*previewLength)
	n, _ := io.ReadFull(body, buf)
	text := strings.Join(strings.Fields(string(buf[:n])), " ")
	runes := []rune(text)
	if len(runes) > previewLength {
		runes = runes[:previewLength]
	}
	return strings.ToValidUTF8(string(runes), "")
}

// parseDate extends the built-in date parser with additional layouts which are
// non-conforming but appear in the wild.
func parseDate(h *mail.Header) (time.Time, error) {
	t, parseErr := h.Date()
	if parseErr == nil {
		return t, nil
	}
	text, err := h.Text("date")
	if err != nil {
		return time.Time{}, errors.New("no date header")
	}
	// sometimes, no error occurs but the date is empty. In this case, guess time from received header field
	if text == "" {
		guess, err := h.Text("received")
		if err != nil {
			return time.Time{}, errors.New("no received header")
		}
		t, _ := time.Parse(time.RFC1123Z, dateRe.FindString(guess))
		return t, nil
	}
	layouts := []string{
		// X-Mailer: EarthLink Zoo Mail 1.0
		"Mon, _2 Jan 2006 15:04:05 -0700 (GMT-07:00)",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %s", text)
}

func parseAddressList(h *mail.Header, key string) ([]*models.Address, error) {
	var converted []*models.Address
	addrs, err := h.AddressList(key)
	if err != nil {
		if hdr, err := h.Text(key); err == nil {
			return []*models.Address{{Name: hdr}}, nil
		}
		return nil, err
	}
	for _, addr := range addrs {
		converted = append(converted, ConvertAddress(addr))
	}
	return converted, nil
}

// ConvertAddress splits the address at its last @
func ConvertAddress(addr *mail.Address) *models.Address {
	parts := strings.Split(addr.Address, "@")
	var mbox, host string
	if len(parts) > 1 {
		mbox = strings.Join(parts[0:len(parts)-1], "@")
		host = parts[len(parts)-1]
	} else {
		mbox = addr.Address
	}
	return &models.Address{
		Name:    addr.Name,
		Mailbox: mbox,
		Host:    host,
	}
}

// SaveStatus derives the save status of a record from its mailbox type and
// flags.
func SaveStatus(rec *models.MailRecord) models.SaveStatus {
	switch {
	case rec.MailboxType == models.Outbox:
		return models.SendScheduled
	case rec.MailboxType == models.Drafts || rec.Flags.Has(models.DraftFlag):
		return models.Saved
	case rec.MailboxType == models.Sent:
		return models.SendDone
	}
	return models.Received
}

// PartPreview decodes the beginning of a text part fetched on its own. The
// content type and transfer encoding come from the body structure.
func PartPreview(mimeType, encoding string, params map[string]string, body io.Reader) string {
	var h message.Header
	h.SetContentType(mimeType, params)
	if encoding != "" {
		h.Set("Content-Transfer-Encoding", encoding)
	}
	part, err := message.New(h, body)
	if part == nil {
		return ""
	}
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return ""
	}
	return readPreview(part.Body)
}
