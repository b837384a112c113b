package lib

import (
	"strings"
	"time"

	"git.sr.ht/~rjarry/mlsync/models"
)

// Materializer turns engine records into list rows. It holds no mutable
// state once configured and may be copied to worker goroutines.
type Materializer struct {
	TimestampFormat    string
	ThisDayTimeFormat  string
	ThisWeekTimeFormat string
	ThisYearTimeFormat string
	// Search is highlighted in the subject markup
	Search string

	now func() time.Time
}

func NewMaterializer() *Materializer {
	return &Materializer{
		TimestampFormat:    "2006-01-02 03:04 PM",
		ThisDayTimeFormat:  "15:04",
		ThisYearTimeFormat: "Jan 02",
	}
}

// Materialize builds a summary from a record. The record is not retained.
func (m *Materializer) Materialize(rec *models.MailRecord) *models.MailSummary {
	s := &models.MailSummary{
		MailID:        rec.ID,
		ThreadID:      rec.ThreadID,
		AccountID:     rec.AccountID,
		MailboxID:     rec.MailboxID,
		MailboxType:   rec.MailboxType,
		Timestamp:     rec.Date,
		IsSeen:        rec.Flags.Has(models.SeenFlag),
		FlagImportant: rec.Flags.Has(models.FlaggedFlag),
		Priority:      rec.Priority,
		HasAttachment: rec.Attachments > 0,
		IsToRecipient: rec.ToMe,
		Subject:       rec.Subject,
		SizeBytes:     rec.Size,
		IsAnswered:    rec.Flags.Has(models.AnsweredFlag),
		IsForwarded:   rec.Flags.Has(models.ForwardedFlag),
		IsDeleted:     rec.Flags.Has(models.DeletedFlag),
		SaveStatus:    rec.SaveStatus,
		Preview:       rec.Preview,
	}
	if len(rec.From) > 0 {
		s.SenderAlias = rec.From[0].DisplayName()
		s.SenderKey = strings.ToLower(s.SenderAlias)
	}
	if len(rec.To) > 0 {
		s.RecipientKey = strings.ToLower(rec.To[0].DisplayName())
		names := make([]string, 0, len(rec.To))
		for _, addr := range rec.To {
			names = append(names, addr.DisplayName())
		}
		s.RecipientAlias = strings.Join(names, ", ")
	}
	s.TimeText = m.formatDate(rec.Date)
	s.SubjectMarkup = Highlight(rec.Subject, m.Search)
	return s
}

func (m *Materializer) MaterializeAll(recs []*models.MailRecord) []*models.MailSummary {
	rows := make([]*models.MailSummary, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, m.Materialize(rec))
	}
	return rows
}

func (m *Materializer) formatDate(date time.Time) string {
	if date.IsZero() {
		return ""
	}
	now := time.Now()
	if m.now != nil {
		now = m.now()
	}
	date = date.In(now.Location())
	format := m.TimestampFormat
	if date.Year() == now.Year() {
		day, thisDay := date.YearDay(), now.YearDay()
		switch {
		case day == thisDay && m.ThisDayTimeFormat != "":
			format = m.ThisDayTimeFormat
		case day > thisDay-7 && day < thisDay && m.ThisWeekTimeFormat != "":
			format = m.ThisWeekTimeFormat
		case m.ThisYearTimeFormat != "":
			format = m.ThisYearTimeFormat
		}
	}
	return date.Format(format)
}

// Highlight wraps every case insensitive occurrence of keyword in text with
// <b></b>.
func Highlight(text, keyword string) string {
	if keyword == "" || text == "" {
		return text
	}
	lower := strings.ToLower(text)
	key := strings.ToLower(keyword)
	if len(lower) != len(text) {
		// case folding changed byte offsets, do not risk splitting runes
		return text
	}
	var b strings.Builder
	pos := 0
	for {
		i := strings.Index(lower[pos:], key)
		if i < 0 {
			break
		}
		start := pos + i
		end := start + len(key)
		b.WriteString(text[pos:start])
		b.WriteString("<b>")
		b.WriteString(text[start:end])
		b.WriteString("</b>")
		pos = end
	}
	b.WriteString(text[pos:])
	return b.String()
}
