// Package app wires the configuration, storage, transport, challenge and
// scheduling layers into one process and owns their lifecycles.
package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"lingobot/internal/bot"
	"lingobot/internal/challenge"
	"lingobot/internal/config"
	"lingobot/internal/feedback"
	"lingobot/internal/generate"
	"lingobot/internal/maintenance"
	"lingobot/internal/notify"
	"lingobot/internal/ops"
	"lingobot/internal/review"
	rtsup "lingobot/internal/runtime/supervisor"
	"lingobot/internal/schedule"
	"lingobot/internal/storage"
	kit "lingobot/internal/transport"
	"lingobot/internal/transport/telegram"
	logx "lingobot/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store    *storage.Store
	adapter  *telegram.Adapter
	notify   *notify.Service
	selector *review.Selector
	gate     *challenge.Gate
	disp     *challenge.Dispatcher
	sched    *schedule.Scheduler
	router   *bot.Router
	maint    *maintenance.Service
	ops      *ops.Server

	sup     *rtsup.Supervisor
	updates chan kit.Update
	cfgCh   chan *config.Config
}

// New loads the config file and builds the full component graph. Nothing is
// started yet; call Start.
func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("component", "config")))

	// Structural settings cannot be swapped on a live process; reject the
	// reload so the running config stays intact until a restart.
	mgr.SetValidator(func(ctx context.Context, next *config.Config) error {
		cur := mgr.Get()
		if cur == nil {
			return nil
		}
		if next.Telegram.Token != cur.Telegram.Token {
			return fmt.Errorf("telegram.token changed, restart required")
		}
		if next.Storage.Path != cur.Storage.Path {
			return fmt.Errorf("storage.path changed, restart required")
		}
		return nil
	})

	a := &App{cfgMgr: mgr, logSvc: logSvc, log: log}
	if err := a.build(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, a.log.With(logx.String("component", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, a.log.With(logx.String("component", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram adapter: %w", err)
	}
	a.adapter = adapter

	retryBase, err := config.ParseDurationOrDefault("notify.retry_base", cfg.Notify.RetryBase, 500*time.Millisecond)
	if err != nil {
		return err
	}
	a.notify = notify.New(notify.Config{
		RatePerSec: cfg.Notify.RatePerSec,
		RetryMax:   cfg.Notify.RetryMax,
		RetryBase:  retryBase,
	}, adapter, a.log.With(logx.String("component", "notify")))

	genTimeout, err := config.ParseDurationOrDefault("generator.timeout", cfg.Generator.Timeout, 90*time.Second)
	if err != nil {
		return err
	}
	gen := generate.New(generate.Config{
		BaseURL: cfg.Generator.BaseURL,
		Model:   cfg.Generator.Model,
		Timeout: genTimeout,
	})

	// Each randomness consumer gets its own source: they serialize access
	// with different locks, so a shared *rand.Rand would race.
	var selOpts []review.Option
	if cfg.Challenge.RecentWindow > 0 {
		selOpts = append(selOpts, review.WithWindow(cfg.Challenge.RecentWindow))
	}
	if cfg.Challenge.ShuffleChance > 0 {
		selOpts = append(selOpts, review.WithShuffleChance(cfg.Challenge.ShuffleChance))
	}
	a.selector = review.New(store,
		rand.New(rand.NewSource(time.Now().UnixNano())),
		a.log.With(logx.String("component", "review")), selOpts...)

	clock := schedule.RealClock()
	a.gate = challenge.NewGate(store, clock, cfg.Challenge.WeeklyCap,
		a.log.With(logx.String("component", "gate")))

	a.disp = challenge.NewDispatcher(a.selector, gen, a.notify, store, clock,
		rand.New(rand.NewSource(time.Now().UnixNano())),
		a.log.With(logx.String("component", "challenge")))
	if cfg.Challenge.ReviewLimit > 0 {
		a.disp.SetReviewLimit(cfg.Challenge.ReviewLimit)
	}

	schedCfg, err := scheduleConfig(cfg.Challenge)
	if err != nil {
		return err
	}
	a.sched = schedule.New(schedCfg, clock,
		rand.New(rand.NewSource(time.Now().UnixNano())),
		a.gate, a.disp, a.log.With(logx.String("component", "schedule")))

	fb := feedback.New(gen, store, a.log.With(logx.String("component", "feedback")))

	a.router = bot.NewRouter(a.notify, a.sched, store, fb, a.disp,
		cfg.Telegram.OwnerUserIDs, a.log.With(logx.String("component", "bot")))

	a.maint = maintenance.New(maintenance.Config{
		Enabled:        cfg.Cleanup.Enabled,
		RetentionWeeks: cfg.Cleanup.RetentionWeeks,
		Timezone:       cfg.Cleanup.Timezone,
	}, store, a.sched, a.log.With(logx.String("component", "maintenance")))

	if cfg.Ops != nil && cfg.Ops.Enabled {
		a.ops = ops.New(ops.Config{
			Enabled: true,
			Addr:    cfg.Ops.Addr,
			Token:   cfg.Ops.Token,
		}, a.sched, a.notify, a.log.With(logx.String("component", "ops")))
	}
	return nil
}

func scheduleConfig(c config.ChallengeConfig) (schedule.Config, error) {
	retry, err := config.ParseDurationOrDefault("challenge.retry_delay", c.RetryDelay, time.Hour)
	if err != nil {
		return schedule.Config{}, err
	}
	minNext, err := config.ParseDurationOrDefault("challenge.min_next", c.MinNext, 48*time.Hour)
	if err != nil {
		return schedule.Config{}, err
	}
	maxNext, err := config.ParseDurationOrDefault("challenge.max_next", c.MaxNext, 96*time.Hour)
	if err != nil {
		return schedule.Config{}, err
	}
	return schedule.Config{
		RetryDelay:    retry,
		MinNext:       minNext,
		MaxNext:       maxNext,
		FireStartHour: c.FireStartHour,
		FireEndHour:   c.FireEndHour,
	}, nil
}

// Start brings up transport, the update dispatch loop, the scheduler and the
// auxiliary services, then resubscribes persisted users.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("component", "supervisor"))))
	a.updates = make(chan kit.Update, 128)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	a.sup.Go("bot.dispatch", func(ctx context.Context) error {
		return a.router.DispatchLoop(ctx, a.updates)
	})

	cfg := a.cfgMgr.Get()

	if cfg.Challenge.Enabled {
		subs, err := a.store.ListSubscriptions(ctx)
		if err != nil {
			return fmt.Errorf("load subscriptions: %w", err)
		}
		for _, id := range subs {
			a.sched.AddUser(id)
		}
		a.sched.Start(a.sup.Context())
		a.log.Info("scheduler started", logx.Int("subscribers", len(subs)))
	} else {
		a.log.Info("automated challenges disabled")
	}

	if err := a.maint.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.ops != nil {
		if err := a.ops.Start(); err != nil {
			return err
		}
	}

	a.cfgCh = a.cfgMgr.Subscribe(4)
	a.sup.Go("config.watch", func(ctx context.Context) error {
		return a.cfgMgr.Watch(ctx)
	})
	a.sup.Go0("config.apply", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-a.cfgCh:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	})

	a.log.Info("started")
	return nil
}

// applyConfig applies the hot-reloadable subset of the config: log level and
// sinks, send rate limits, challenge tunables and the owner list. Timer
// windows and structural settings need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	retryBase, err := config.ParseDurationOrDefault("notify.retry_base", cfg.Notify.RetryBase, 500*time.Millisecond)
	if err != nil {
		a.log.Warn("config reload: bad notify.retry_base, keeping previous", logx.Err(err))
	} else {
		a.notify.Apply(notify.Config{
			RatePerSec: cfg.Notify.RatePerSec,
			RetryMax:   cfg.Notify.RetryMax,
			RetryBase:  retryBase,
		})
	}
	if cfg.Challenge.WeeklyCap > 0 {
		a.gate.SetWeeklyCap(cfg.Challenge.WeeklyCap)
	}
	if cfg.Challenge.RecentWindow > 0 {
		a.selector.SetWindow(cfg.Challenge.RecentWindow)
	}
	if cfg.Challenge.ShuffleChance > 0 {
		a.selector.SetShuffleChance(cfg.Challenge.ShuffleChance)
	}
	if cfg.Challenge.ReviewLimit > 0 {
		a.disp.SetReviewLimit(cfg.Challenge.ReviewLimit)
	}
	a.router.SetOwners(cfg.Telegram.OwnerUserIDs)
	a.log.Info("config reloaded")
}

// Stop shuts components down in dependency order: stop producing new work
// first, then flush the independent services in parallel, then close
// storage and logging.
func (a *App) Stop(ctx context.Context) error {
	a.sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.adapter.Stop(gctx) })
	g.Go(func() error { a.maint.Stop(); return nil })
	if a.ops != nil {
		g.Go(func() error { return a.ops.Stop(gctx) })
	}
	stopErr := g.Wait()

	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && stopErr == nil {
			stopErr = err
		}
	}
	if a.cfgCh != nil {
		a.cfgMgr.Unsubscribe(a.cfgCh)
	}
	if err := a.store.Close(); err != nil && stopErr == nil {
		stopErr = err
	}
	a.log.Info("stopped")
	_ = a.logSvc.Close()
	return stopErr
}
