package memory

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/handlers"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

func init() {
	handlers.RegisterEngineFactory("mem", newFromAccount)
}

var defaultMailboxes = map[string]models.MailboxType{
	"INBOX":     models.Inbox,
	"Drafts":    models.Drafts,
	"Sent":      models.Sent,
	"Outbox":    models.Outbox,
	"Scheduled": models.Scheduled,
	"Archive":   models.Archive,
}

// mem://name?demo=N creates an engine holding N generated mails
func newFromAccount(acct *config.AccountConfig) (types.Engine, error) {
	u, err := url.Parse(acct.Source)
	if err != nil {
		return nil, err
	}
	e := New(acct.Name)
	for id, typ := range defaultMailboxes {
		e.AddMailbox(id, typ)
	}
	e.AddMailbox(acct.Trash, models.Trash)
	e.AddMailbox(acct.Spam, models.Spam)
	if demo := u.Query().Get("demo"); demo != "" {
		n, err := strconv.Atoi(demo)
		if err != nil {
			return nil, fmt.Errorf("demo=%s: %w", demo, err)
		}
		e.Seed(DemoRecords(n, acct.Default, time.Now())...)
	}
	return e, nil
}

var (
	demoSenders = []string{
		"Alice Martin", "bob", "Chloé Durand", "", "Dmitri Ivanov",
		"eve", "Fatima Zahra", "Gustav Svensson",
	}
	demoSubjects = []string{
		"Weekly sync", "Re: build broken", "Fwd: invoice", "",
		"Lunch?", "Release notes", "RE: Re: travel plans", "Quarterly report",
		"Security advisory", "welcome!",
	}
)

// DemoRecords generates n mails in mailbox, one every 17 minutes before
// now. Attributes cycle so that every sort mode has ties to break.
func DemoRecords(n int, mailbox string, now time.Time) []*models.MailRecord {
	recs := make([]*models.MailRecord, 0, n)
	for i := 0; i < n; i++ {
		var flags models.Flags
		if i%3 != 0 {
			flags |= models.SeenFlag
		}
		if i%7 == 0 {
			flags |= models.FlaggedFlag
		}
		rec := &models.MailRecord{
			MailboxID:   mailbox,
			ThreadID:    fmt.Sprintf("thread-%d@demo", i%11),
			Date:        now.Add(-time.Duration(i) * 17 * time.Minute),
			Flags:       flags,
			Priority:    i % 6,
			Attachments: i % 4 / 3,
			ToMe:        i%5 != 0,
			Subject:     demoSubjects[i%len(demoSubjects)],
			Size:        uint32(1024 + (i*7919)%65536),
			Preview:     fmt.Sprintf("demo message number %d", i),
		}
		if name := demoSenders[i%len(demoSenders)]; name != "" {
			rec.From = []*models.Address{{
				Name: name, Mailbox: fmt.Sprintf("user%d", i%len(demoSenders)),
				Host: "demo.example",
			}}
		}
		rec.To = []*models.Address{{Mailbox: "me", Host: "demo.example"}}
		recs = append(recs, rec)
	}
	return recs
}
