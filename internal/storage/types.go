package storage

import (
	"strings"
	"time"
)

// PhraseCategory classifies a correction extracted from a feedback submission.
type PhraseCategory string

const (
	CategoryImprovement   PhraseCategory = "improvement"
	CategoryPronunciation PhraseCategory = "pronunciation"
	CategoryGrammar       PhraseCategory = "grammar"
	CategoryGeneral       PhraseCategory = "general"
)

// ParseCategory maps free-form category text onto a known category, falling
// back to "general" for anything unrecognized.
func ParseCategory(s string) PhraseCategory {
	switch PhraseCategory(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryImprovement:
		return CategoryImprovement
	case CategoryPronunciation:
		return CategoryPronunciation
	case CategoryGrammar:
		return CategoryGrammar
	default:
		return CategoryGeneral
	}
}

// PhraseKey identifies a phrase across feedback records. Two phrases with the
// same original/improved pair are the same phrase for review purposes.
type PhraseKey struct {
	Original string
	Improved string
}

// Phrase is a single original -> improved correction.
type Phrase struct {
	Original    string
	Improved    string
	Category    PhraseCategory
	Importance  int // 1..5, default 3
	Repetitions int // times this phrase appeared in a review challenge
}

func (p Phrase) Key() PhraseKey { return PhraseKey{Original: p.Original, Improved: p.Improved} }

// FeedbackRecord is one analyzed text submission with its extracted phrases.
type FeedbackRecord struct {
	ID         string // uuid
	UserID     int64
	CreatedAt  time.Time
	Importance int    // default importance for phrases that don't set one
	Summary    string // rendered feedback reply shown to the user
	Phrases    []Phrase
}

// DeliveryType marks which kind of automated challenge was sent.
type DeliveryType string

const (
	DeliveryReview   DeliveryType = "review"
	DeliveryPractice DeliveryType = "practice"
)

// DeliveryLogEntry records one dispatched challenge. Entries are only ever
// appended and counted, never mutated.
type DeliveryLogEntry struct {
	UserID int64
	Type   DeliveryType
	Week   int
	At     time.Time
}

// Config configures the SQLite store. Path ":memory:" opens an in-memory
// database (used by tests).
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}
