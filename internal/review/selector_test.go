package review

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"lingobot/internal/storage"
	logx "lingobot/pkg/logx"
)

type fakeSource struct {
	recs []storage.FeedbackRecord
	err  error
}

func (f *fakeSource) RecentFeedback(_ context.Context, _ int64, _ int) ([]storage.FeedbackRecord, error) {
	return f.recs, f.err
}

// noShuffle keeps the deterministic order for every group.
type noShuffle struct{}

func (noShuffle) Float64() float64            { return 1 }
func (noShuffle) Shuffle(int, func(i, j int)) {}

func phrase(orig, impr string, importance, reps int) storage.Phrase {
	return storage.Phrase{
		Original:    orig,
		Improved:    impr,
		Category:    storage.CategoryGrammar,
		Importance:  importance,
		Repetitions: reps,
	}
}

func TestSelectDeduplicatesNewestFirst(t *testing.T) {
	src := &fakeSource{recs: []storage.FeedbackRecord{
		{ID: "new", Phrases: []storage.Phrase{phrase("a", "b", 4, 7)}},
		{ID: "old", Phrases: []storage.Phrase{phrase("a", "b", 2, 1)}},
	}}
	s := New(src, noShuffle{}, logx.Nop())

	got := s.Select(context.Background(), 1, 10)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate after dedup, got %d", len(got))
	}
	if got[0].SourceRecordID != "new" || got[0].Importance != 4 || got[0].Repetitions != 7 {
		t.Fatalf("dedup kept the wrong copy: %+v", got[0])
	}
}

func TestSelectOrdering(t *testing.T) {
	src := &fakeSource{recs: []storage.FeedbackRecord{{ID: "r", Phrases: []storage.Phrase{
		phrase("a", "a2", 3, 5),
		phrase("b", "b2", 5, 2),
		phrase("c", "c2", 3, 0),
		phrase("d", "d2", 5, 0),
		phrase("e", "e2", 1, 0),
	}}}}
	s := New(src, noShuffle{}, logx.Nop())

	got := s.Select(context.Background(), 1, 10)
	want := []string{"d", "b", "c", "a", "e"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Original != w {
			t.Fatalf("position %d: expected %q, got %q", i, w, got[i].Original)
		}
	}
}

// A lower-importance phrase must never outrank a higher-importance one, no
// matter how the within-group shuffle falls.
func TestSelectImportanceBoundaryHoldsUnderShuffle(t *testing.T) {
	src := &fakeSource{recs: []storage.FeedbackRecord{{ID: "r", Phrases: []storage.Phrase{
		phrase("p1", "x", 5, 0),
		phrase("p2", "x", 3, 0),
		phrase("p3", "x", 3, 1),
		phrase("p4", "x", 1, 0),
		phrase("p5", "x", 5, 3),
		phrase("p6", "x", 2, 0),
	}}}}

	for seed := int64(0); seed < 50; seed++ {
		s := New(src, rand.New(rand.NewSource(seed)), logx.Nop())
		got := s.Select(context.Background(), 1, 3)
		if len(got) != 3 {
			t.Fatalf("seed %d: expected 3 candidates, got %d", seed, len(got))
		}
		counts := map[int]int{}
		for i, c := range got {
			counts[c.Importance]++
			if i > 0 && got[i].Importance > got[i-1].Importance {
				t.Fatalf("seed %d: importance increased at position %d: %v", seed, i, got)
			}
		}
		// Both importance-5 phrases and exactly one importance-3 phrase make
		// the cut for every shuffle outcome.
		if counts[5] != 2 || counts[3] != 1 {
			t.Fatalf("seed %d: wrong importance mix: %v", seed, counts)
		}
	}
}

func TestSelectFetchFailureYieldsEmpty(t *testing.T) {
	src := &fakeSource{err: errors.New("db locked")}
	s := New(src, noShuffle{}, logx.Nop())
	if got := s.Select(context.Background(), 1, 5); got != nil {
		t.Fatalf("expected nil on fetch failure, got %v", got)
	}
}

func TestSelectLimitAndEmptyInput(t *testing.T) {
	src := &fakeSource{recs: []storage.FeedbackRecord{{ID: "r", Phrases: []storage.Phrase{
		phrase("a", "x", 3, 0),
		phrase("b", "x", 3, 1),
		phrase("c", "x", 3, 2),
	}}}}
	s := New(src, noShuffle{}, logx.Nop())

	if got := s.Select(context.Background(), 1, 2); len(got) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(got))
	}
	if got := s.Select(context.Background(), 1, 0); got != nil {
		t.Fatalf("expected nil for zero limit, got %v", got)
	}

	s = New(&fakeSource{}, noShuffle{}, logx.Nop())
	if got := s.Select(context.Background(), 1, 5); got != nil {
		t.Fatalf("expected nil for user with no feedback, got %v", got)
	}
}

func TestSelectClampsImportance(t *testing.T) {
	src := &fakeSource{recs: []storage.FeedbackRecord{{ID: "r", Importance: 4, Phrases: []storage.Phrase{
		phrase("a", "x", 0, 0),  // falls back to record importance
		phrase("b", "x", 99, 0), // out of range both ways
	}}}}
	// Zero record importance on the second phrase's fallback path is covered
	// by a separate record.
	src.recs = append(src.recs, storage.FeedbackRecord{ID: "r2", Importance: 0, Phrases: []storage.Phrase{
		phrase("c", "x", -1, 0),
	}})
	s := New(src, noShuffle{}, logx.Nop())

	got := s.Select(context.Background(), 1, 10)
	byOrig := map[string]int{}
	for _, c := range got {
		byOrig[c.Original] = c.Importance
	}
	if byOrig["a"] != 4 {
		t.Fatalf("expected record importance fallback 4, got %d", byOrig["a"])
	}
	if byOrig["b"] != 4 {
		t.Fatalf("expected record importance fallback 4 for out-of-range, got %d", byOrig["b"])
	}
	if byOrig["c"] != 3 {
		t.Fatalf("expected default importance 3, got %d", byOrig["c"])
	}
}
