package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ykvlv/payment-reminder-bot/internal/cycle"
)

// Cycle is the job the trigger fires once per day.
type Cycle interface {
	Run(ctx context.Context, now time.Time) cycle.Summary
}

// Options pins the trigger to one wall-clock time in one zone.
type Options struct {
	Hour     int
	Minute   int
	Location *time.Location
	// Locker guards each day's run across instances; nil means single instance.
	Locker Locker
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Scheduler fires the evaluation cycle daily at Hour:Minute in Location.
type Scheduler struct {
	cron   *cron.Cron
	cycle  Cycle
	log    *zap.Logger
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers the daily job. Nothing runs until Start.
func New(c Cycle, log *zap.Logger, opts Options) (*Scheduler, error) {
	if opts.Hour < 0 || opts.Hour > 23 || opts.Minute < 0 || opts.Minute > 59 {
		return nil, fmt.Errorf("invalid trigger time %02d:%02d", opts.Hour, opts.Minute)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Locker == nil {
		opts.Locker = NopLocker{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cycle:  c,
		log:    log,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}

	cl := cronLogger{log: log}
	s.cron = cron.New(
		cron.WithLocation(opts.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(s.Spec(), func() { s.fire(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("register daily job: %w", err)
	}
	return s, nil
}

// Spec returns the cron expression of the daily job.
func (s *Scheduler) Spec() string {
	return fmt.Sprintf("%d %d * * *", s.opts.Minute, s.opts.Hour)
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("at", fmt.Sprintf("%02d:%02d", s.opts.Hour, s.opts.Minute)),
		zap.String("tz", s.opts.Location.String()),
		zap.Time("next", s.Next()),
	)
}

// Stop prevents further runs and waits for a running cycle or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// Next returns the next planned fire time, or zero if not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow executes one guarded cycle immediately.
func (s *Scheduler) RunNow(ctx context.Context) (cycle.Summary, bool) {
	return s.fire(ctx)
}

// fire runs the cycle for the current local day unless another instance
// already holds that day's lock. It reports whether the cycle ran.
func (s *Scheduler) fire(ctx context.Context) (cycle.Summary, bool) {
	now := s.opts.Now()
	day := now.In(s.opts.Location).Format(time.DateOnly)

	ok, err := s.opts.Locker.TryLock(ctx, day)
	if err != nil {
		// Lock backend down: prefer a possible duplicate over a missed day.
		s.log.Warn("day lock unavailable, running anyway", zap.String("day", day), zap.Error(err))
	} else if !ok {
		s.log.Info("cycle already claimed for today", zap.String("day", day))
		return cycle.Summary{}, false
	}

	return s.cycle.Run(ctx, now), true
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ log *zap.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug(msg, zap.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error(msg, zap.Error(err), zap.Any("kv", kv))
}
