package challenge

import (
	"context"
	"sync"

	"lingobot/internal/review"
	"lingobot/internal/storage"
	kit "lingobot/internal/transport"
	logx "lingobot/pkg/logx"
)

// Selector picks review candidates. *review.Selector satisfies it.
type Selector interface {
	Select(ctx context.Context, userID int64, limit int) []review.Candidate
}

// Generator produces a general practice exercise. *generate.Client satisfies
// it.
type Generator interface {
	PracticePrompt(ctx context.Context, userID int64) (string, error)
}

// Sender delivers a rendered challenge. *notify.Service satisfies it.
type Sender interface {
	Send(ctx context.Context, userID int64, text string, opt *kit.SendOptions) error
}

// DeliveryStore is the write capability the dispatcher needs. *storage.Store
// satisfies it.
type DeliveryStore interface {
	AppendDeliveryLog(ctx context.Context, e storage.DeliveryLogEntry) error
	IncrementPhraseRepetition(ctx context.Context, userID int64, key storage.PhraseKey) error
}

// Rand provides the review/practice coin flip. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

const defaultReviewLimit = 2

// Dispatcher composes and delivers one challenge: a review of stored phrases
// when the coin flip says so and material exists, otherwise a generated
// practice exercise, falling back to a builtin prompt if generation fails.
type Dispatcher struct {
	selector Selector
	gen      Generator
	sender   Sender
	store    DeliveryStore
	clock    Clock
	log      logx.Logger

	// rngMu also guards reviewLimit, which is hot-reloadable.
	rngMu       sync.Mutex
	rng         Rand
	reviewLimit int
}

func NewDispatcher(selector Selector, gen Generator, sender Sender, store DeliveryStore, clock Clock, rng Rand, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		selector:    selector,
		gen:         gen,
		sender:      sender,
		store:       store,
		clock:       clock,
		rng:         rng,
		log:         log,
		reviewLimit: defaultReviewLimit,
	}
}

// SetReviewLimit overrides how many phrases a review challenge drills.
func (d *Dispatcher) SetReviewLimit(n int) {
	if n > 0 {
		d.rngMu.Lock()
		d.reviewLimit = n
		d.rngMu.Unlock()
	}
}

// Dispatch sends one challenge to the user. Only a failed send is returned
// as an error (it drives the scheduler's retry state); selection, generation
// and bookkeeping failures are absorbed locally so the user still receives a
// challenge, possibly a generic one.
func (d *Dispatcher) Dispatch(ctx context.Context, userID int64) error {
	if d.coinFlipReview() {
		if done, err := d.dispatchReview(ctx, userID, true); done {
			return err
		}
		// Nothing to review; fall through to practice.
	}
	return d.dispatchPractice(ctx, userID)
}

// DispatchReview sends a review challenge regardless of the coin flip (used
// by the manual /review command). It reports false when the user has no
// stored phrases. Manual reviews don't append to the delivery log: the log
// feeds the weekly cap, which limits automated pressure only.
func (d *Dispatcher) DispatchReview(ctx context.Context, userID int64) (bool, error) {
	sent, err := d.dispatchReview(ctx, userID, false)
	if sent && err == nil {
		d.log.Info("manual review dispatched", logx.Int64("user", userID))
	}
	return sent, err
}

func (d *Dispatcher) dispatchReview(ctx context.Context, userID int64, logDelivery bool) (bool, error) {
	d.rngMu.Lock()
	limit := d.reviewLimit
	d.rngMu.Unlock()

	cands := d.selector.Select(ctx, userID, limit)
	if len(cands) == 0 {
		return false, nil
	}

	if err := d.sender.Send(ctx, userID, renderReview(cands), nil); err != nil {
		return true, err
	}

	// Bookkeeping after the attempted send: a log entry may exist without
	// guaranteed receipt, never the reverse.
	for _, c := range cands {
		if err := d.store.IncrementPhraseRepetition(ctx, userID, c.Key); err != nil {
			d.log.Warn("repetition increment failed", logx.Int64("user", userID), logx.String("phrase", c.Original), logx.Err(err))
		}
	}
	if logDelivery {
		d.appendLog(ctx, userID, storage.DeliveryReview)
	}
	return true, nil
}

func (d *Dispatcher) dispatchPractice(ctx context.Context, userID int64) error {
	exercise, err := d.gen.PracticePrompt(ctx, userID)
	if err != nil {
		d.log.Warn("practice generation failed; using fallback prompt", logx.Int64("user", userID), logx.Err(err))
		exercise = fallbackPracticePrompt
	}

	if err := d.sender.Send(ctx, userID, renderPractice(exercise), nil); err != nil {
		return err
	}
	d.appendLog(ctx, userID, storage.DeliveryPractice)
	return nil
}

func (d *Dispatcher) appendLog(ctx context.Context, userID int64, typ storage.DeliveryType) {
	now := d.clock.Now()
	err := d.store.AppendDeliveryLog(ctx, storage.DeliveryLogEntry{
		UserID: userID,
		Type:   typ,
		Week:   WeekOf(now),
		At:     now,
	})
	if err != nil {
		d.log.Warn("delivery log append failed", logx.Int64("user", userID), logx.String("type", string(typ)), logx.Err(err))
	}
}

func (d *Dispatcher) coinFlipReview() bool {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return d.rng.Float64() < 0.5
}
