// Package feedback records analyzed user submissions: it runs the generation
// backend over the submitted text, persists the extracted phrases, and
// renders the reply.
package feedback

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"lingobot/internal/generate"
	"lingobot/internal/storage"
	logx "lingobot/pkg/logx"
)

// Analyzer extracts corrections from a submission. *generate.Client
// satisfies it.
type Analyzer interface {
	AnalyzeFeedback(ctx context.Context, text string) (*generate.Analysis, error)
}

// RecordStore persists feedback records. *storage.Store satisfies it.
type RecordStore interface {
	SaveFeedback(ctx context.Context, rec *storage.FeedbackRecord) error
}

type Service struct {
	analyzer Analyzer
	store    RecordStore
	log      logx.Logger
}

func New(analyzer Analyzer, store RecordStore, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{analyzer: analyzer, store: store, log: log}
}

// Record analyzes the submission, stores the result, and returns the reply
// text for the user. A storage failure is logged but does not suppress the
// reply; an analysis failure is returned so the caller can apologize.
func (s *Service) Record(ctx context.Context, userID int64, text string) (string, error) {
	analysis, err := s.analyzer.AnalyzeFeedback(ctx, text)
	if err != nil {
		return "", err
	}

	rec := &storage.FeedbackRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		Importance: 3,
		Summary:    analysis.Reply,
	}
	for _, c := range analysis.Corrections {
		orig := strings.TrimSpace(c.Original)
		impr := strings.TrimSpace(c.Improved)
		if orig == "" || impr == "" || orig == impr {
			continue
		}
		rec.Phrases = append(rec.Phrases, storage.Phrase{
			Original:   orig,
			Improved:   impr,
			Category:   storage.ParseCategory(c.Category),
			Importance: c.Importance,
		})
	}

	if err := s.store.SaveFeedback(ctx, rec); err != nil {
		s.log.Warn("feedback save failed", logx.Int64("user", userID), logx.Err(err))
	}

	return renderReply(analysis.Reply, rec.Phrases), nil
}

func renderReply(reply string, phrases []storage.Phrase) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(reply))
	if len(phrases) > 0 {
		b.WriteString("\n")
		for _, p := range phrases {
			b.WriteString("\n• ")
			b.WriteString(p.Original)
			b.WriteString(" → ")
			b.WriteString(p.Improved)
		}
	}
	return b.String()
}
