package lib

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"git.sr.ht/~rjarry/mlsync/models"
)

// Matches tells whether a record belongs to the view described by the
// filter.
func Matches(rec *models.MailRecord, f *models.Filter) bool {
	if f == nil {
		return true
	}
	if !f.MatchesMailbox(rec.AccountID, rec.MailboxID, rec.MailboxType) {
		return false
	}
	if !f.MatchesFlags(rec.Flags) {
		return false
	}
	return MatchKeyword(rec, f.Search)
}

// MatchKeyword checks every whitespace separated term of the keyword
// against the subject, the addresses and the preview of the record. Plain
// terms match case insensitive substrings. Terms starting with ~ match
// fuzzily, ignoring accents.
func MatchKeyword(rec *models.MailRecord, keyword string) bool {
	terms := strings.Fields(keyword)
	if len(terms) == 0 {
		return true
	}
	fields := searchFields(rec)
	for _, term := range terms {
		if !matchTerm(term, fields) {
			return false
		}
	}
	return true
}

func matchTerm(term string, fields []string) bool {
	fuzzyTerm := strings.HasPrefix(term, "~") && len(term) > 1
	if fuzzyTerm {
		term = term[1:]
	} else {
		term = strings.ToLower(term)
	}
	for _, field := range fields {
		if fuzzyTerm {
			if fuzzy.MatchNormalizedFold(term, field) {
				return true
			}
		} else if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func searchFields(rec *models.MailRecord) []string {
	fields := []string{rec.Subject, rec.Preview}
	for _, list := range [][]*models.Address{rec.From, rec.To, rec.Cc} {
		for _, addr := range list {
			fields = append(fields, addr.Name, addr.Address())
		}
	}
	return fields
}

// FilterRecords returns the records matching f, keeping their order
func FilterRecords(recs []*models.MailRecord, f *models.Filter) []*models.MailRecord {
	var matched []*models.MailRecord
	for _, rec := range recs {
		if Matches(rec, f) {
			matched = append(matched, rec)
		}
	}
	return matched
}
