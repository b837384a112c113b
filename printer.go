package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"git.sr.ht/~rjarry/mlsync/lib"
	"git.sr.ht/~rjarry/mlsync/models"
)

const (
	senderWidth  = 22
	subjectWidth = 60
)

var (
	unreadColor  = color.New(color.Bold)
	flaggedColor = color.New(color.FgRed)
	sendingColor = color.New(color.Faint)
	statusColor  = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// printer prints a mailbox list once loaded and, when following, every
// change made to it afterwards
type printer struct {
	lib.NopObserver
	out    io.Writer
	errOut io.Writer
	lookup func(models.MailID) *models.MailSummary
	rows   func() []*models.MailSummary
	max    int
	follow bool
	loaded bool
	err    error
	// done is called once there is nothing more to print
	done func()
}

func (p *printer) OnBatchInserted(rows []*models.MailSummary, index int) {
	if !p.loaded {
		return
	}
	for i, s := range rows {
		fmt.Fprintf(p.out, "+ %4d %s\n", index+i, formatRow(s))
	}
}

func (p *printer) OnRemoved(id models.MailID) {
	if p.loaded {
		fmt.Fprintf(p.out, "- #%d\n", id)
	}
}

func (p *printer) OnUpdated(id models.MailID) {
	if !p.loaded {
		return
	}
	if s := p.lookup(id); s != nil {
		fmt.Fprintf(p.out, "~      %s\n", formatRow(s))
	}
}

func (p *printer) OnLoadFinished(total int) {
	if p.loaded {
		return
	}
	p.loaded = true
	rows := p.rows()
	for i, s := range rows {
		if p.max > 0 && i >= p.max {
			fmt.Fprintf(p.out, "... %d more\n", len(rows)-i)
			break
		}
		fmt.Fprintf(p.out, "  %4d %s\n", i, formatRow(s))
	}
	statusColor.Fprintf(p.errOut, "%d mails\n", total)
	if !p.follow || p.err != nil {
		p.done()
	}
}

func (p *printer) OnCleared() {
	if p.loaded {
		fmt.Fprintln(p.out, "-- cleared")
	}
}

func (p *printer) OnNoContent() {
	statusColor.Fprintln(p.errOut, "no mails")
}

func (p *printer) OnStatus(msg string, err error) {
	if err != nil {
		p.err = err
		errorColor.Fprintf(p.errOut, "%s: %v\n", msg, err)
		return
	}
	statusColor.Fprintln(p.errOut, msg)
}

// formatRow lays a summary out in fixed width columns
func formatRow(s *models.MailSummary) string {
	sender := s.SenderAlias
	if sender == "" {
		sender = "(no sender)"
	}
	sender = runewidth.FillRight(runewidth.Truncate(sender, senderWidth, "…"), senderWidth)
	subject := runewidth.Truncate(s.Subject, subjectWidth, "…")
	row := fmt.Sprintf("#%-6d %-16s %s %s %s",
		s.MailID, s.TimeText, rowFlags(s), sender, subject)
	switch {
	case s.SaveStatus == models.Sending:
		return sendingColor.Sprint(row)
	case s.FlagImportant:
		return flaggedColor.Sprint(row)
	case !s.IsSeen:
		return unreadColor.Sprint(row)
	}
	return row
}

func rowFlags(s *models.MailSummary) string {
	var b strings.Builder
	mark := func(set bool, c byte) {
		if set {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	mark(!s.IsSeen, 'N')
	mark(s.FlagImportant, '!')
	mark(s.IsAnswered, 'A')
	mark(s.IsForwarded, 'F')
	mark(s.HasAttachment, '+')
	mark(s.IsToRecipient, '>')
	return b.String()
}
