// Package notify sends outbound messages through the transport adapter with
// a shared rate limit and bounded retries.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	kit "lingobot/internal/transport"
	logx "lingobot/pkg/logx"
)

type Config struct {
	RatePerSec int
	RetryMax   int
	RetryBase  time.Duration
}

type Service struct {
	adapter kit.Adapter
	log     logx.Logger

	mu  sync.Mutex
	cfg Config

	limiter atomic.Pointer[rate.Limiter]

	sent   atomic.Uint64
	failed atomic.Uint64
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.Apply(cfg)
	return s
}

// Apply updates the rate limit and retry knobs at runtime.
func (s *Service) Apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	// Burst = rate per sec so short spikes don't block too hard.
	s.limiter.Store(rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec))
}

// Send delivers text to the user's chat, waiting on the shared rate limiter
// and retrying transient failures with linear backoff. It returns the last
// error when all attempts fail.
func (s *Service) Send(ctx context.Context, userID int64, text string, opt *kit.SendOptions) error {
	s.mu.Lock()
	retryMax := s.cfg.RetryMax
	retryBase := s.cfg.RetryBase
	s.mu.Unlock()

	var err error
	for attempt := 0; attempt <= retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBase):
			}
		}
		if lim := s.limiter.Load(); lim != nil {
			if werr := lim.Wait(ctx); werr != nil {
				return werr
			}
		}
		_, err = s.adapter.SendText(ctx, kit.ChatTarget{ChatID: userID}, text, opt)
		if err == nil {
			s.sent.Add(1)
			return nil
		}
		s.log.Warn("send failed", logx.Int64("user", userID), logx.Int("attempt", attempt+1), logx.Err(err))
	}
	s.failed.Add(1)
	return err
}

// Stats reports lifetime delivery counters.
func (s *Service) Stats() (sent, failed uint64) {
	return s.sent.Load(), s.failed.Load()
}
