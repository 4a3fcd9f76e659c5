package usecase

import (
	"sort"
	"strings"

	ingestdomain "mailvault-backend/internal/ingest/domain"
	qadomain "mailvault-backend/internal/qa/domain"
	"mailvault-backend/pkg/fuzzy"
)

const defaultSearchLimit = 20

// HeaderLister lists stored message headers without bodies
type HeaderLister interface {
	ListHeaders() ([]*ingestdomain.MessageRecord, error)
}

// HeaderSearch is typo-tolerant search over stored subjects and senders. It
// runs entirely against the local store, no embeddings involved.
type HeaderSearch struct {
	headers HeaderLister
}

func NewHeaderSearch(headers HeaderLister) *HeaderSearch {
	return &HeaderSearch{headers: headers}
}

// Search returns matching headers ranked by relevance, best first.
func (s *HeaderSearch) Search(query string, limit int) ([]qadomain.Source, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []qadomain.Source{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	records, err := s.headers.ListHeaders()
	if err != nil {
		return nil, err
	}

	threshold := fuzzy.Threshold(query)
	matches := make([]qadomain.Source, 0)
	for _, rec := range records {
		if !fuzzy.Match(query, rec.Subject, threshold) && !fuzzy.Match(query, rec.Sender, threshold) {
			continue
		}
		matches = append(matches, qadomain.Source{
			MessageID:  rec.MessageID,
			WebLink:    rec.WebLink,
			Subject:    rec.Subject,
			Sender:     rec.Sender,
			ReceivedAt: rec.ReceivedAt,
			Score:      fuzzy.Score(query, rec.Subject, rec.Sender),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
