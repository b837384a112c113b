package imap

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"

	"git.sr.ht/~rjarry/mlsync/models"
)

func TestTranslateSearch(t *testing.T) {
	tests := []struct {
		name    string
		filter  *models.Filter
		with    []string
		without []string
		text    []string
	}{
		{
			name:    "deleted are hidden",
			filter:  &models.Filter{},
			without: []string{imap.DeletedFlag},
		},
		{
			name:    "unread",
			filter:  &models.Filter{ExcludeFlags: models.SeenFlag},
			without: []string{imap.DeletedFlag, imap.SeenFlag},
		},
		{
			name:   "trash view",
			filter: &models.Filter{RequireFlags: models.DeletedFlag},
			with:   []string{imap.DeletedFlag},
		},
		{
			name: "keywords",
			filter: &models.Filter{
				RequireFlags: models.FlaggedFlag | models.ForwardedFlag,
				Search:       "report ~qarterly  2023",
			},
			with:    []string{ForwardedKeyword, imap.FlaggedFlag},
			without: []string{imap.DeletedFlag},
			text:    []string{"report", "2023"},
		},
	}
	for _, test := range tests {
		sc := translateSearch(test.filter)
		assert.Equal(t, test.with, sc.WithFlags, test.name)
		assert.Equal(t, test.without, sc.WithoutFlags, test.name)
		assert.Equal(t, test.text, sc.Text, test.name)
	}
}
