// Package schedule owns the per-user challenge timers: when a user's timer
// fires, it consults the eligibility gate, invokes the dispatcher, and arms
// the next timer.
package schedule

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	logx "lingobot/pkg/logx"
)

// State names the per-user position in the scheduling loop.
type State string

const (
	StateScheduled State = "scheduled"
	StateRetrying  State = "retrying"
)

// Gate decides whether a user may receive another automated challenge.
// *challenge.Gate satisfies it.
type Gate interface {
	MayDeliver(ctx context.Context, userID int64) bool
}

// Dispatcher composes and delivers one challenge. *challenge.Dispatcher
// satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID int64) error
}

// Rand supplies fire-time randomness. *rand.Rand satisfies it. The scheduler
// serializes access under its own mutex; do not share the instance with
// components that use a different lock.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

type Config struct {
	// RetryDelay is the fixed pause before retrying a failed fire sequence.
	RetryDelay time.Duration
	// MinNext/MaxNext bound the uniform random delay to the next fire after
	// a successful (or capped) fire.
	MinNext time.Duration
	MaxNext time.Duration
	// FireStartHour/FireEndHour bound the random local hour of a user's
	// first fire, inclusive.
	FireStartHour int
	FireEndHour   int
}

func (c *Config) applyDefaults() {
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Hour
	}
	if c.MinNext <= 0 {
		c.MinNext = 48 * time.Hour
	}
	if c.MaxNext <= c.MinNext {
		c.MaxNext = c.MinNext + 48*time.Hour
	}
	if c.FireStartHour <= 0 {
		c.FireStartHour = 9
	}
	if c.FireEndHour < c.FireStartHour || c.FireEndHour > 23 {
		c.FireEndHour = 20
	}
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	ActiveUsers int `json:"active_users"`
	ArmedTimers int `json:"armed_timers"`
}

type entry struct {
	userID    int64
	timer     Timer
	state     State
	cancelled bool
	inFlight  bool
}

// Scheduler keeps one pending timer per active user. All shared state lives
// behind one mutex; the fire handler re-acquires it before rescheduling, so
// a new timer is armed only after the previous firing fully completed and a
// user never has two concurrently pending timers. Fires for distinct users
// run on independent timer goroutines.
type Scheduler struct {
	clock Clock
	gate  Gate
	disp  Dispatcher
	log   logx.Logger
	cfg   Config

	mu      sync.Mutex
	entries map[int64]*entry
	running bool
	ctx     context.Context

	// rng is guarded by mu.
	rng Rand
}

func New(cfg Config, clock Clock, rng Rand, gate Gate, disp Dispatcher, log logx.Logger) *Scheduler {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		clock:   clock,
		rng:     rng,
		gate:    gate,
		disp:    disp,
		log:     log,
		cfg:     cfg,
		entries: map[int64]*entry{},
	}
}

// AddUser registers the user and, when the scheduler is running, arms their
// first timer at a random daytime instant. Idempotent: a second call for an
// already-active user is a no-op.
func (s *Scheduler) AddUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[userID]; ok {
		return
	}
	e := &entry{userID: userID, state: StateScheduled}
	s.entries[userID] = e
	if s.running {
		s.armLocked(e, s.firstFireDelayLocked())
	}
	s.log.Info("user scheduled", logx.Int64("user", userID))
}

// RemoveUser cancels the user's pending timer and forgets them. After this
// returns, no fire handler for the user will run. Idempotent.
func (s *Scheduler) RemoveUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		return
	}
	e.cancelled = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	delete(s.entries, userID)
	s.log.Info("user unscheduled", logx.Int64("user", userID))
}

// Start arms an initial timer for every registered user. It is the only path
// called at process boot; past due times are not re-derived, users rejoin the
// schedule as if freshly added.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx = ctx
	for _, e := range s.entries {
		if e.timer == nil && !e.inFlight {
			e.state = StateScheduled
			s.armLocked(e, s.firstFireDelayLocked())
		}
	}
	s.log.Info("scheduler started", logx.Int("users", len(s.entries)))
}

// Stop cancels every pending timer without altering the active set, so a
// future Start() resumes for the same users.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	for _, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	s.log.Info("scheduler stopped")
}

// HasUser reports whether userID is currently scheduled.
func (s *Scheduler) HasUser(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[userID]
	return ok
}

// Status reports active users and armed timers. The two counts are equal in
// steady state and diverge transiently by at most the number of users whose
// fire is currently being handled.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{ActiveUsers: len(s.entries)}
	for _, e := range s.entries {
		if e.timer != nil {
			st.ArmedTimers++
		}
	}
	return st
}

// armLocked arms e's timer. Caller holds s.mu; e must have no pending timer.
func (s *Scheduler) armLocked(e *entry, d time.Duration) {
	e.timer = s.clock.AfterFunc(d, func() { s.onFire(e) })
}

func (s *Scheduler) onFire(e *entry) {
	s.mu.Lock()
	if e.cancelled || !s.running || s.entries[e.userID] != e {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	e.inFlight = true
	ctx := s.ctx
	s.mu.Unlock()

	err := s.handleFire(ctx, e.userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	e.inFlight = false
	// The user may have been removed or the scheduler stopped mid-dispatch;
	// never leave a dangling timer in that case.
	if e.cancelled || !s.running || s.entries[e.userID] != e {
		return
	}
	var d time.Duration
	if err != nil {
		e.state = StateRetrying
		d = s.cfg.RetryDelay
		s.log.Warn("fire sequence failed; retrying", logx.Int64("user", e.userID), logx.Duration("in", d), logx.Err(err))
	} else {
		e.state = StateScheduled
		d = s.nextFireDelayLocked()
		s.log.Debug("next challenge scheduled", logx.Int64("user", e.userID), logx.Duration("in", d))
	}
	s.armLocked(e, d)
}

// handleFire runs the eligibility check and dispatch for one firing. A
// panic anywhere in the sequence is converted into an error so the caller
// lands in the retry state instead of crashing the process.
func (s *Scheduler) handleFire(ctx context.Context, userID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("fire handler panicked", logx.Int64("user", userID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("fire panic: %v", r)
		}
	}()

	if !s.gate.MayDeliver(ctx, userID) {
		// The cap resets at week rollover; keep checking on the normal
		// cadence rather than giving up for the user.
		s.log.Debug("weekly cap reached; skipping dispatch", logx.Int64("user", userID))
		return nil
	}
	return s.disp.Dispatch(ctx, userID)
}

// firstFireDelayLocked picks a uniformly random hour/minute within the
// configured daytime window on the current day, or the same instant tomorrow
// if it already passed. Caller holds s.mu.
func (s *Scheduler) firstFireDelayLocked() time.Duration {
	now := s.clock.Now()
	hour := s.cfg.FireStartHour + s.rngIntn(s.cfg.FireEndHour-s.cfg.FireStartHour+1)
	minute := s.rngIntn(60)
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at.Sub(now)
}

// nextFireDelayLocked picks a uniform random delay in [MinNext, MaxNext).
// Caller holds s.mu.
func (s *Scheduler) nextFireDelayLocked() time.Duration {
	span := s.cfg.MaxNext - s.cfg.MinNext
	return s.cfg.MinNext + time.Duration(s.rngFloat64()*float64(span))
}

func (s *Scheduler) rngIntn(n int) int {
	if s.rng == nil || n <= 0 {
		return 0
	}
	return s.rng.Intn(n)
}

func (s *Scheduler) rngFloat64() float64 {
	if s.rng == nil {
		return 0
	}
	return s.rng.Float64()
}
