package marker_test

import (
	"testing"

	"git.sr.ht/~rjarry/mlsync/lib/marker"
	"git.sr.ht/~rjarry/mlsync/models"
)

// mockProvider implements the SummaryProvider interface and mocks the
// message store for testing
type mockProvider struct {
	rows []*models.MailSummary
}

func (mock *mockProvider) Summaries() []*models.MailSummary {
	return mock.rows
}

func (mock *mockProvider) Lookup(id models.MailID) *models.MailSummary {
	for _, s := range mock.rows {
		if s.MailID == id {
			return s
		}
	}
	return nil
}

func createMarker() (marker.Marker, *mockProvider, *int) {
	p := &mockProvider{}
	for id := models.MailID(1); id <= 4; id++ {
		p.rows = append(p.rows, &models.MailSummary{MailID: id})
	}
	count := new(int)
	m := marker.New(p, func(c int) { *count = c })
	return m, p, count
}

func TestMarker_MarkUnmark(t *testing.T) {
	m, p, count := createMarker()
	id := models.MailID(4)

	m.Mark(id)
	if !m.IsMarked(id) || !p.Lookup(id).Selected {
		t.Errorf("Marking failed")
	}
	if *count != 1 {
		t.Errorf("Marking did not report count: %d", *count)
	}

	m.Unmark(id)
	if m.IsMarked(id) || p.Lookup(id).Selected {
		t.Errorf("Unmarking failed")
	}
	if *count != 0 {
		t.Errorf("Unmarking did not report count: %d", *count)
	}
}

func TestMarker_ToggleMark(t *testing.T) {
	m, _, _ := createMarker()
	id := models.MailID(4)

	if m.IsMarked(id) {
		t.Errorf("ToggleMark: mail should not be marked")
	}

	if !m.ToggleMark(id) || !m.IsMarked(id) {
		t.Errorf("ToggleMark: mail should be marked")
	}

	if m.ToggleMark(id) || m.IsMarked(id) {
		t.Errorf("ToggleMark: mail should not be marked")
	}
}

func TestMarker_UnknownMail(t *testing.T) {
	m, _, count := createMarker()
	if m.Mark(42) {
		t.Errorf("unknown mail should not be markable")
	}
	if m.Count() != 0 || *count != 0 {
		t.Errorf("unknown mail changed the count")
	}
}

func TestMarker_Evict(t *testing.T) {
	m, p, count := createMarker()
	m.Mark(2)
	m.Mark(3)

	p.rows = append(p.rows[:1], p.rows[2:]...)
	m.Evict(2)

	if m.IsMarked(2) {
		t.Errorf("Evict: mail 2 should not be marked")
	}
	if *count != 1 {
		t.Errorf("Evict: expected count 1, got %d", *count)
	}
	marked := m.Marked()
	if len(marked) != 1 || marked[0] != 3 {
		t.Errorf("Evict: unexpected marked mails %v", marked)
	}
}

func TestMarker_SelectAllSkipsSending(t *testing.T) {
	m, p, count := createMarker()
	p.Lookup(3).SaveStatus = models.Sending

	skipped := m.SelectAll()

	if len(skipped) != 1 || skipped[0] != 3 {
		t.Errorf("SelectAll: expected mail 3 to be skipped, got %v", skipped)
	}
	if *count != 3 {
		t.Errorf("SelectAll: expected 3 marked, got %d", *count)
	}
	if m.IsMarked(3) || p.Lookup(3).Selected {
		t.Errorf("SelectAll: sending mail must not be selected")
	}
	marked := m.Marked()
	expected := []models.MailID{1, 2, 4}
	for i, id := range expected {
		if marked[i] != id {
			t.Errorf("SelectAll: expected %v, got %v", expected, marked)
			break
		}
	}
}

func TestMarker_ClearAll(t *testing.T) {
	m, p, count := createMarker()
	m.SelectAll()
	m.ClearAll()

	if m.Count() != 0 || *count != 0 {
		t.Errorf("ClearAll: marks remain")
	}
	for _, s := range p.rows {
		if s.Selected {
			t.Errorf("ClearAll: mail %d still selected", s.MailID)
		}
	}
}
