package usecase

import (
	"testing"
	"time"

	ingestdomain "mailvault-backend/internal/ingest/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHeaderLister struct {
	records []*ingestdomain.MessageRecord
	err     error
}

func (f *fakeHeaderLister) ListHeaders() ([]*ingestdomain.MessageRecord, error) {
	return f.records, f.err
}

func headerFixture() []*ingestdomain.MessageRecord {
	now := time.Now()
	return []*ingestdomain.MessageRecord{
		{MessageID: "a", Subject: "Quarterly invoice attached", Sender: "billing@acme.com", ReceivedAt: now},
		{MessageID: "b", Subject: "Team standup notes", Sender: "bob@example.com", ReceivedAt: now},
		{MessageID: "c", Subject: "Re: invoice overdue", Sender: "alice@example.com", ReceivedAt: now},
		{MessageID: "d", Subject: "Lunch on Friday?", Sender: "carol@example.com", ReceivedAt: now},
	}
}

func TestHeaderSearchMatchesSubject(t *testing.T) {
	s := NewHeaderSearch(&fakeHeaderLister{records: headerFixture()})

	results, err := s.Search("invoice", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	got := []string{results[0].MessageID, results[1].MessageID}
	assert.ElementsMatch(t, []string{"a", "c"}, got)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestHeaderSearchToleratesTypos(t *testing.T) {
	s := NewHeaderSearch(&fakeHeaderLister{records: headerFixture()})

	results, err := s.Search("invoce", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestHeaderSearchMatchesSender(t *testing.T) {
	s := NewHeaderSearch(&fakeHeaderLister{records: headerFixture()})

	results, err := s.Search("billing", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].MessageID)
}

func TestHeaderSearchLimit(t *testing.T) {
	s := NewHeaderSearch(&fakeHeaderLister{records: headerFixture()})

	results, err := s.Search("invoice", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestHeaderSearchEmptyQuery(t *testing.T) {
	s := NewHeaderSearch(&fakeHeaderLister{records: headerFixture()})

	results, err := s.Search("   ", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
