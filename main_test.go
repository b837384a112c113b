package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/models"
)

func TestApplyQuery(t *testing.T) {
	tests := []struct {
		query   string
		require models.Flags
		exclude models.Flags
		search  string
		err     bool
	}{
		{query: "quarterly report", search: "quarterly report"},
		{query: "-u", exclude: models.SeenFlag},
		{
			query:   "-x flagged -X answered 'weekly sync'",
			require: models.FlaggedFlag,
			exclude: models.AnsweredFlag,
			search:  "weekly sync",
		},
		{query: "-r -x starred", require: models.SeenFlag | models.FlaggedFlag},
		{query: "-x bogus", err: true},
		{query: "-r -u", err: true},
		{query: "'unterminated", err: true},
	}
	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			var f models.Filter
			err := applyQuery(&f, test.query)
			if test.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.require, f.RequireFlags)
			assert.Equal(t, test.exclude, f.ExcludeFlags)
			assert.Equal(t, test.search, f.Search)
		})
	}
}

func TestParseOptions(t *testing.T) {
	o, err := parseOptions([]string{
		"mlsync", "-C", "/tmp/mlsync.conf", "-a", "work", "-m", "Archive",
		"-s", "-r date", "-w", "-n", "20", "-q", "-u report", "-A",
	})
	require.NoError(t, err)
	assert.Equal(t, &options{
		config:  "/tmp/mlsync.conf",
		account: "work",
		mailbox: "Archive",
		all:     true,
		sort:    "-r date",
		follow:  true,
		max:     20,
		query:   "-u report",
	}, o)

	_, err = parseOptions([]string{"mlsync", "-n", "many"})
	assert.Error(t, err)
	_, err = parseOptions([]string{"mlsync", "extra"})
	assert.Error(t, err)
}

func TestBuildFilter(t *testing.T) {
	acct := &config.AccountConfig{Name: "work", Default: "INBOX"}
	f, err := buildFilter(&options{query: "-x flagged"}, acct)
	require.NoError(t, err)
	assert.Equal(t, &models.Filter{
		Mode:         models.FilterMailbox,
		AccountID:    "work",
		MailboxID:    "INBOX",
		RequireFlags: models.FlaggedFlag,
	}, f)

	f, err = buildFilter(&options{typ: "archive"}, acct)
	require.NoError(t, err)
	assert.Equal(t, models.FilterAll, f.Mode)
	assert.Equal(t, models.Archive, f.MailboxType)

	f, err = buildFilter(&options{all: true, query: "report"}, acct)
	require.NoError(t, err)
	assert.Equal(t, models.FilterAccount, f.Mode)
	assert.Equal(t, "report", f.Search)

	_, err = buildFilter(&options{typ: "nowhere"}, acct)
	assert.Error(t, err)
}

func TestLoadDemoConfig(t *testing.T) {
	o := &options{demo: 12}
	conf, err := loadConfig(o)
	require.NoError(t, err)
	assert.Equal(t, "demo", o.account)
	acct, err := conf.Account(o.account)
	require.NoError(t, err)
	assert.Equal(t, "mem://demo?demo=12", acct.Source)
	assert.Equal(t, "INBOX", acct.Default)
}

func TestPrinter(t *testing.T) {
	color.NoColor = true
	rows := []*models.MailSummary{
		{
			MailID: 3, TimeText: "09:12", SenderAlias: "Alice Martin",
			Subject: "Weekly sync", IsSeen: true, HasAttachment: true,
		},
		{MailID: 7, TimeText: "08:00", Subject: "Lunch?"},
	}
	var out, errOut bytes.Buffer
	done := false
	p := &printer{
		out:    &out,
		errOut: &errOut,
		rows:   func() []*models.MailSummary { return rows },
		lookup: func(id models.MailID) *models.MailSummary {
			for _, s := range rows {
				if s.MailID == id {
					return s
				}
			}
			return nil
		},
		max:    1,
		follow: true,
		done:   func() { done = true },
	}

	// nothing is printed before the list is loaded
	p.OnBatchInserted(rows, 0)
	assert.Empty(t, out.String())

	p.OnLoadFinished(2)
	assert.Equal(t,
		"     0 #3      09:12            ....+. Alice Martin           Weekly sync\n"+
			"... 1 more\n",
		out.String())
	assert.Equal(t, "2 mails\n", errOut.String())
	assert.False(t, done)

	out.Reset()
	p.OnRemoved(3)
	p.OnUpdated(7)
	assert.Equal(t,
		"- #3\n"+
			"~      #7      08:00            N..... (no sender)            Lunch?\n",
		out.String())

	p.OnStatus("connection failed", errors.New("refused"))
	assert.Equal(t, "refused", p.err.Error())
}

func TestRowFlags(t *testing.T) {
	assert.Equal(t, "N!AF+>", rowFlags(&models.MailSummary{
		FlagImportant: true, IsAnswered: true, IsForwarded: true,
		HasAttachment: true, IsToRecipient: true,
	}))
	assert.Equal(t, "......", rowFlags(&models.MailSummary{IsSeen: true}))
}
