// Package cycle runs one evaluation pass over all active subscribers:
// load, decide eligibility for tomorrow, dispatch, summarize.
package cycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ykvlv/payment-reminder-bot/internal/domain"
	"github.com/ykvlv/payment-reminder-bot/internal/notify"
)

// ErrAlreadyRunning is returned when a run is requested while another is in progress.
var ErrAlreadyRunning = errors.New("evaluation cycle already running")

// Lister is the slice of the store a cycle reads from.
type Lister interface {
	ListActive(ctx context.Context) ([]domain.Subscriber, error)
}

// Notifier delivers a single reminder.
type Notifier interface {
	Notify(ctx context.Context, s domain.Subscriber, due time.Time) notify.Result
}

// Summary aggregates the outcome of one run.
type Summary struct {
	RunID     string
	Tomorrow  time.Time
	TargetDay int
	Evaluated int
	Eligible  int
	Sent      int
	Failed    int
	// EligibleIDs lists chat ids that matched the rule, in store order.
	EligibleIDs []int64
	Err         error
}

// Runner executes evaluation cycles. Runs never overlap.
type Runner struct {
	repo        Lister
	notifier    Notifier
	log         *zap.Logger
	loc         *time.Location
	concurrency int

	mu      sync.Mutex
	running bool
}

// NewRunner creates a Runner evaluating "tomorrow" in loc and dispatching
// at most concurrency reminders at a time.
func NewRunner(repo Lister, notifier Notifier, loc *time.Location, concurrency int, log *zap.Logger) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		repo:        repo,
		notifier:    notifier,
		log:         log.Named("cycle"),
		loc:         loc,
		concurrency: concurrency,
	}
}

func (r *Runner) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *Runner) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// Run performs one cycle as of now. It never panics on per-subscriber
// failures; a store error is reported in Summary.Err.
func (r *Runner) Run(ctx context.Context, now time.Time) Summary {
	sum := Summary{RunID: uuid.NewString()}
	if !r.acquire() {
		sum.Err = ErrAlreadyRunning
		r.log.Warn("cycle skipped", zap.Error(sum.Err))
		return sum
	}
	defer r.release()

	today := now.In(r.loc)
	sum.Tomorrow = domain.Tomorrow(now, r.loc)
	sum.TargetDay = sum.Tomorrow.Day()

	subs, err := r.repo.ListActive(ctx)
	if err != nil {
		sum.Err = err
		r.log.Error("ListActive failed", zap.String("run", sum.RunID), zap.Error(err))
		return sum
	}

	var eligible []domain.Subscriber
	for _, s := range subs {
		sum.Evaluated++
		if domain.IsEligibleTomorrow(today, s.DueDay) {
			eligible = append(eligible, s)
			sum.EligibleIDs = append(sum.EligibleIDs, s.ChatID)
		}
	}
	sum.Eligible = len(eligible)

	results := make([]notify.Result, len(eligible))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, s := range eligible {
		g.Go(func() error {
			// Workers never return errors so one failure cannot cancel the rest.
			results[i] = r.notifier.Notify(ctx, s, sum.Tomorrow)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res.Delivered {
			sum.Sent++
		} else {
			sum.Failed++
		}
	}

	r.log.Info("daily check done",
		zap.String("run", sum.RunID),
		zap.String("tomorrow", domain.FormatCalendarDate(sum.Tomorrow)),
		zap.Int("target_day", sum.TargetDay),
		zap.Int("evaluated", sum.Evaluated),
		zap.Int("eligible", sum.Eligible),
		zap.Int("sent", sum.Sent),
		zap.Int("failed", sum.Failed),
	)
	return sum
}
