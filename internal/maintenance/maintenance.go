// Package maintenance runs periodic housekeeping jobs: pruning old delivery
// log rows and emitting a daily status summary.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lingobot/internal/schedule"
	logx "lingobot/pkg/logx"
)

// Pruner deletes delivery log rows older than the cutoff. *storage.Store
// satisfies it.
type Pruner interface {
	PruneDeliveryLog(ctx context.Context, before time.Time) (int64, error)
}

// StatusSource is polled for the daily summary line.
type StatusSource interface {
	Status() schedule.Status
}

type Config struct {
	Enabled        bool
	RetentionWeeks int    // delivery log retention, default 26
	Timezone       string // IANA name for job wall times, default UTC
}

const defaultRetentionWeeks = 26

type Service struct {
	mu     sync.Mutex
	cfg    Config
	c      *cron.Cron
	store  Pruner
	status StatusSource
	log    logx.Logger
}

func New(cfg Config, store Pruner, status StatusSource, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RetentionWeeks <= 0 {
		cfg.RetentionWeeks = defaultRetentionWeeks
	}
	return &Service{cfg: cfg, store: store, status: status, log: log}
}

// Start registers the jobs and starts the cron runner. No-op when disabled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.c != nil {
		return nil
	}
	loc := time.UTC
	if s.cfg.Timezone != "" {
		l, err := time.LoadLocation(s.cfg.Timezone)
		if err != nil {
			return fmt.Errorf("maintenance: load timezone %q: %w", s.cfg.Timezone, err)
		}
		loc = l
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc("30 4 * * 1", func() { s.prune(ctx) }); err != nil {
		return fmt.Errorf("maintenance: register prune job: %w", err)
	}
	if _, err := c.AddFunc("0 8 * * *", func() { s.summary() }); err != nil {
		return fmt.Errorf("maintenance: register summary job: %w", err)
	}
	c.Start()
	s.c = c
	s.log.Info("maintenance started", logx.Int("retention_weeks", s.cfg.RetentionWeeks), logx.String("tz", loc.String()))
	return nil
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Service) prune(ctx context.Context) {
	s.mu.Lock()
	weeks := s.cfg.RetentionWeeks
	s.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -7*weeks)
	n, err := s.store.PruneDeliveryLog(pctx, cutoff)
	if err != nil {
		s.log.Warn("delivery log prune failed", logx.Err(err))
		return
	}
	s.log.Info("delivery log pruned", logx.Int64("rows", n), logx.Time("cutoff", cutoff))
}

func (s *Service) summary() {
	st := s.status.Status()
	s.log.Info("daily summary", logx.Int("active_users", st.ActiveUsers), logx.Int("armed_timers", st.ArmedTimers))
}
