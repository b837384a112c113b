package marker

import "git.sr.ht/~rjarry/mlsync/models"

// Marker tracks the mails selected in edit mode
type Marker interface {
	Mark(models.MailID) bool
	Unmark(models.MailID)
	ToggleMark(models.MailID) bool
	Marked() []models.MailID
	IsMarked(models.MailID) bool
	Count() int
	Evict(models.MailID)
	SelectAll() []models.MailID
	ClearAll()
}

// SummaryProvider gives access to the rows of the list
type SummaryProvider interface {
	Summaries() []*models.MailSummary
	Lookup(models.MailID) *models.MailSummary
}

type controller struct {
	provider SummaryProvider
	marked   map[models.MailID]struct{}
	onChange func(count int)
}

// New returns a new Marker. onChange, if not nil, is called with the new
// count every time it changes.
func New(p SummaryProvider, onChange func(count int)) Marker {
	return &controller{
		provider: p,
		marked:   make(map[models.MailID]struct{}),
		onChange: onChange,
	}
}

// Selectable tells whether a row can take part in a bulk operation. Mails
// being sent cannot.
func Selectable(s *models.MailSummary) bool {
	return s.SaveStatus != models.Sending
}

func (mc *controller) changed() {
	if mc.onChange != nil {
		mc.onChange(len(mc.marked))
	}
}

func (mc *controller) mark(s *models.MailSummary) bool {
	if !Selectable(s) {
		return false
	}
	if _, ok := mc.marked[s.MailID]; ok {
		return true
	}
	mc.marked[s.MailID] = struct{}{}
	s.Selected = true
	return true
}

func (mc *controller) unmark(id models.MailID) bool {
	if _, ok := mc.marked[id]; !ok {
		return false
	}
	delete(mc.marked, id)
	if s := mc.provider.Lookup(id); s != nil {
		s.Selected = false
	}
	return true
}

// Mark selects the mail. It returns false if the mail is unknown or not
// selectable.
func (mc *controller) Mark(id models.MailID) bool {
	s := mc.provider.Lookup(id)
	if s == nil {
		return false
	}
	before := len(mc.marked)
	ok := mc.mark(s)
	if len(mc.marked) != before {
		mc.changed()
	}
	return ok
}

// Unmark deselects the mail
func (mc *controller) Unmark(id models.MailID) {
	if mc.unmark(id) {
		mc.changed()
	}
}

// ToggleMark flips the selection of the mail and returns the new state
func (mc *controller) ToggleMark(id models.MailID) bool {
	if mc.IsMarked(id) {
		mc.Unmark(id)
		return false
	}
	return mc.Mark(id)
}

// Evict forgets a mail that is leaving the list
func (mc *controller) Evict(id models.MailID) {
	if _, ok := mc.marked[id]; !ok {
		return
	}
	delete(mc.marked, id)
	mc.changed()
}

// IsMarked checks whether the given mail has been marked
func (mc *controller) IsMarked(id models.MailID) bool {
	_, marked := mc.marked[id]
	return marked
}

func (mc *controller) Count() int {
	return len(mc.marked)
}

// Marked returns the marked mails in list order
func (mc *controller) Marked() []models.MailID {
	marked := make([]models.MailID, 0, len(mc.marked))
	for _, s := range mc.provider.Summaries() {
		if _, ok := mc.marked[s.MailID]; ok {
			marked = append(marked, s.MailID)
		}
	}
	return marked
}

// SelectAll marks every row of the list and returns the mails that could
// not be selected.
func (mc *controller) SelectAll() []models.MailID {
	var skipped []models.MailID
	before := len(mc.marked)
	for _, s := range mc.provider.Summaries() {
		if !mc.mark(s) {
			skipped = append(skipped, s.MailID)
		}
	}
	if len(mc.marked) != before {
		mc.changed()
	}
	return skipped
}

// ClearAll removes every mark
func (mc *controller) ClearAll() {
	if len(mc.marked) == 0 {
		return
	}
	for id := range mc.marked {
		if s := mc.provider.Lookup(id); s != nil {
			s.Selected = false
		}
	}
	mc.marked = make(map[models.MailID]struct{})
	mc.changed()
}
