// Package review turns stored feedback into a prioritized, deduplicated list
// of phrases to drill.
package review

import (
	"context"
	"sort"
	"sync"

	"lingobot/internal/storage"
	logx "lingobot/pkg/logx"
)

// Candidate is a transient view of a phrase produced for one selection call.
type Candidate struct {
	Key            storage.PhraseKey
	Original       string
	Improved       string
	Category       storage.PhraseCategory
	Importance     int
	Repetitions    int
	SourceRecordID string
}

// FeedbackSource is the read capability the selector needs. *storage.Store
// satisfies it.
type FeedbackSource interface {
	RecentFeedback(ctx context.Context, userID int64, limit int) ([]storage.FeedbackRecord, error)
}

// Rand is the subset of math/rand the selector uses. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

const (
	defaultWindow        = 50
	defaultShuffleChance = 0.3
)

type Selector struct {
	source FeedbackSource
	log    logx.Logger

	// rngMu serializes rng access (selections for different users may run
	// concurrently and *rand.Rand is not goroutine safe) and guards the
	// hot-reloadable tuning knobs.
	rngMu sync.Mutex
	rng   Rand
	// window bounds how many recent records one selection considers; older
	// material is deliberately ignored.
	window        int
	shuffleChance float64
}

type Option func(*Selector)

// WithWindow overrides how many recent feedback records are considered.
func WithWindow(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithShuffleChance overrides the probability that a same-importance group is
// shuffled instead of kept in repetitions-ascending order.
func WithShuffleChance(p float64) Option {
	return func(s *Selector) {
		if p >= 0 && p <= 1 {
			s.shuffleChance = p
		}
	}
}

func New(source FeedbackSource, rng Rand, log logx.Logger, opts ...Option) *Selector {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Selector{
		source:        source,
		log:           log,
		window:        defaultWindow,
		shuffleChance: defaultShuffleChance,
		rng:           rng,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetWindow updates the record window at runtime (config hot reload).
func (s *Selector) SetWindow(n int) {
	if n > 0 {
		s.rngMu.Lock()
		s.window = n
		s.rngMu.Unlock()
	}
}

// SetShuffleChance updates the shuffle probability at runtime.
func (s *Selector) SetShuffleChance(p float64) {
	if p >= 0 && p <= 1 {
		s.rngMu.Lock()
		s.shuffleChance = p
		s.rngMu.Unlock()
	}
}

// Select returns up to limit candidates, highest importance first. Within
// each importance level the least-practiced phrases lead, except when the
// group is randomly shuffled for variety; a lower-importance phrase never
// outranks a higher-importance one.
//
// A fetch failure yields an empty result: a missed review opportunity is not
// worth failing the surrounding interaction for.
func (s *Selector) Select(ctx context.Context, userID int64, limit int) []Candidate {
	if limit <= 0 {
		return nil
	}

	s.rngMu.Lock()
	window := s.window
	s.rngMu.Unlock()

	recs, err := s.source.RecentFeedback(ctx, userID, window)
	if err != nil {
		s.log.Warn("feedback fetch failed; skipping review selection", logx.Int64("user", userID), logx.Err(err))
		return nil
	}

	// Flatten, deduplicating by phrase key. Records arrive newest first, so
	// the first occurrence (the most recent copy) wins.
	seen := make(map[storage.PhraseKey]struct{})
	var cands []Candidate
	for _, rec := range recs {
		for _, p := range rec.Phrases {
			key := p.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			cands = append(cands, Candidate{
				Key:            key,
				Original:       p.Original,
				Improved:       p.Improved,
				Category:       p.Category,
				Importance:     clampImportance(p.Importance, rec.Importance),
				Repetitions:    p.Repetitions,
				SourceRecordID: rec.ID,
			})
		}
	}
	if len(cands) == 0 {
		return nil
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Importance != cands[j].Importance {
			return cands[i].Importance > cands[j].Importance
		}
		return cands[i].Repetitions < cands[j].Repetitions
	})

	s.shuffleGroups(cands)

	if len(cands) > limit {
		cands = cands[:limit]
	}
	return cands
}

// shuffleGroups walks runs of equal importance and, per group, either keeps
// the repetitions-ascending order or applies a full uniform shuffle.
func (s *Selector) shuffleGroups(cands []Candidate) {
	if s.rng == nil {
		return
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	start := 0
	for start < len(cands) {
		end := start + 1
		for end < len(cands) && cands[end].Importance == cands[start].Importance {
			end++
		}
		if end-start > 1 && s.rng.Float64() < s.shuffleChance {
			group := cands[start:end]
			s.rng.Shuffle(len(group), func(i, j int) {
				group[i], group[j] = group[j], group[i]
			})
		}
		start = end
	}
}

func clampImportance(v, fallback int) int {
	if v < 1 || v > 5 {
		v = fallback
	}
	if v < 1 || v > 5 {
		v = 3
	}
	return v
}
