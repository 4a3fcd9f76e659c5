package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	ingestdomain "mailvault-backend/internal/ingest/domain"
	qadomain "mailvault-backend/internal/qa/domain"
	"mailvault-backend/pkg/ai"
	"mailvault-backend/pkg/chroma"
)

const defaultMaxSources = 4

// Searcher is the similarity-search side of the index engine
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]chroma.Hit, error)
}

// MessageReader resolves stored records for search hits
type MessageReader interface {
	GetMessagesByIDs(ids []string) ([]*ingestdomain.MessageRecord, error)
}

// QAUsecase answers natural-language questions from the local index.
type QAUsecase struct {
	searcher   Searcher
	messages   MessageReader
	completion ai.CompletionService
}

func NewQAUsecase(searcher Searcher, messages MessageReader, completion ai.CompletionService) *QAUsecase {
	return &QAUsecase{
		searcher:   searcher,
		messages:   messages,
		completion: completion,
	}
}

// Answer retrieves the most relevant stored messages for question and asks
// the completion service to synthesize a cited answer from them.
//
// When synthesis fails the returned Answer still carries the ranked sources,
// alongside an error matching ingestdomain.ErrSynthesisFailed, so callers can
// show "search succeeded, synthesis failed" instead of losing both.
func (u *QAUsecase) Answer(ctx context.Context, question string, maxSources int) (*qadomain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return emptyAnswer(), nil
	}
	if maxSources <= 0 {
		maxSources = defaultMaxSources
	}

	answer := emptyAnswer()

	// Headroom above maxSources so truncation still has candidates after
	// hits without live store rows are dropped.
	k := maxSources
	if k < 4 {
		k = 4
	}

	searchStart := time.Now()
	hits, err := u.searcher.Search(ctx, question, k)
	answer.Timings.SearchMs = msSince(searchStart)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		// Deterministic no-answer result; never invoke the completion
		// service without grounding.
		return answer, nil
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, hit := range hits {
		ids[i] = hit.MessageID
		scores[hit.MessageID] = hit.Score
	}

	lookupStart := time.Now()
	records, err := u.messages.GetMessagesByIDs(ids)
	answer.Timings.LookupMs = msSince(lookupStart)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*ingestdomain.MessageRecord, len(records))
	for _, rec := range records {
		byID[rec.MessageID] = rec
	}

	// Keep similarity rank order, drop hits whose store rows are gone,
	// truncate to maxSources. No padding: fewer relevant messages means
	// fewer sources.
	selected := make([]*ingestdomain.MessageRecord, 0, maxSources)
	for _, hit := range hits {
		rec, ok := byID[hit.MessageID]
		if !ok {
			continue
		}
		selected = append(selected, rec)
		if len(selected) == maxSources {
			break
		}
	}
	if len(selected) == 0 {
		return answer, nil
	}

	for _, rec := range selected {
		answer.Sources = append(answer.Sources, qadomain.Source{
			MessageID:  rec.MessageID,
			WebLink:    rec.WebLink,
			Subject:    rec.Subject,
			Sender:     rec.Sender,
			ReceivedAt: rec.ReceivedAt,
			Snippet:    rec.Snippet(200),
			Score:      scores[rec.MessageID],
		})
	}

	prompt := buildPrompt(question, selected)

	synthesisStart := time.Now()
	text, err := u.completion.Generate(ctx, prompt)
	answer.Timings.SynthesisMs = msSince(synthesisStart)
	if err != nil {
		return answer, ingestdomain.WrapError(ingestdomain.ErrSynthesisFailed, "Could not synthesize an answer", err)
	}

	answer.AnswerText = strings.TrimSpace(text)
	return answer, nil
}

// buildPrompt assembles the grounding context for the completion service.
func buildPrompt(question string, records []*ingestdomain.MessageRecord) string {
	var sources []string
	for i, rec := range records {
		sources = append(sources, fmt.Sprintf(
			"[%d] Subject: %s\nFrom: %s\nReceived: %s\nLink: %s\n\n%s",
			i+1, rec.Subject, rec.Sender, rec.ReceivedAt.Format(time.RFC3339), rec.WebLink, rec.Body,
		))
	}

	return "Answer the question using ONLY the SOURCES below.\n" +
		"If the answer is not contained in the sources, say you don't know.\n" +
		"Cite sources using [1], [2], etc.\n\n" +
		"SOURCES:\n" + strings.Join(sources, "\n\n") + "\n\n" +
		"QUESTION:\n" + question + "\n\n" +
		"ANSWER:\n"
}

func emptyAnswer() *qadomain.Answer {
	return &qadomain.Answer{
		AnswerText: "",
		Sources:    []qadomain.Source{},
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
