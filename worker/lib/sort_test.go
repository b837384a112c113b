package lib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
)

func TestSortRecords(t *testing.T) {
	base := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	recs := []*models.MailRecord{
		{ID: 1, Date: base, Flags: models.FlaggedFlag},
		{ID: 2, Date: base.Add(time.Hour)},
		{ID: 3, Date: base.Add(2 * time.Hour), Flags: models.FlaggedFlag},
	}
	SortRecords(sort.DateRecent, recs)
	assert.Equal(t, []models.MailID{3, 2, 1}, ids(recs))

	SortRecords(sort.Important, recs)
	assert.Equal(t, []models.MailID{3, 1, 2}, ids(recs))

	assert.Equal(t, []models.MailID{1, 2}, ids(Page(recs, 1, 5)))
	assert.Equal(t, []models.MailID{3}, ids(Page(recs, 0, 1)))
	assert.Nil(t, Page(recs, 3, 1))
}

func ids(recs []*models.MailRecord) []models.MailID {
	var l []models.MailID
	for _, r := range recs {
		l = append(l, r.ID)
	}
	return l
}
