package challenge

import (
	"context"
	"sync"
	"time"

	logx "lingobot/pkg/logx"
)

// DefaultWeeklyCap is the hard limit of automated challenges per user per
// week.
const DefaultWeeklyCap = 4

// Clock is injected so tests control time.
type Clock interface {
	Now() time.Time
}

// DeliveryCounter is the read capability the gate needs. *storage.Store
// satisfies it.
type DeliveryCounter interface {
	CountDeliveryLogForWeek(ctx context.Context, userID int64, week int) (int, error)
}

// Gate decides whether a user may receive another automated challenge this
// week.
type Gate struct {
	counter DeliveryCounter
	clock   Clock
	log     logx.Logger

	mu  sync.Mutex
	cap int
}

func NewGate(counter DeliveryCounter, clock Clock, weeklyCap int, log logx.Logger) *Gate {
	if weeklyCap <= 0 {
		weeklyCap = DefaultWeeklyCap
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{counter: counter, clock: clock, cap: weeklyCap, log: log}
}

// SetWeeklyCap updates the cap at runtime (config hot reload).
func (g *Gate) SetWeeklyCap(n int) {
	if n > 0 {
		g.mu.Lock()
		g.cap = n
		g.mu.Unlock()
	}
}

// MayDeliver reports whether the user is under this week's cap. A store read
// failure fails open: denying a challenge over a transient error is worse
// than occasionally exceeding the soft cap.
func (g *Gate) MayDeliver(ctx context.Context, userID int64) bool {
	week := WeekOf(g.clock.Now())
	n, err := g.counter.CountDeliveryLogForWeek(ctx, userID, week)
	if err != nil {
		g.log.Warn("delivery count failed; allowing challenge", logx.Int64("user", userID), logx.Int("week", week), logx.Err(err))
		return true
	}
	g.mu.Lock()
	limit := g.cap
	g.mu.Unlock()
	return n < limit
}
