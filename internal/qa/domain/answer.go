package domain

import "time"

// Source is one cited message backing an answer, ranked best-first.
type Source struct {
	MessageID  string    `json:"message_id"`
	WebLink    string    `json:"weblink"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"received_at"`
	Snippet    string    `json:"snippet"`
	Score      float64   `json:"score"`
}

// Timings is the per-stage latency breakdown of one query, in milliseconds.
type Timings struct {
	SearchMs    float64 `json:"search_ms"`
	LookupMs    float64 `json:"lookup_ms"`
	SynthesisMs float64 `json:"synthesis_ms"`
}

// Answer is the synthesized reply plus its grounding sources. An empty index
// yields an empty AnswerText and no sources; the completion service is never
// asked to answer without grounding.
type Answer struct {
	AnswerText string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Timings    Timings  `json:"timings"`
}
