// Package notify delivers payment reminders to subscribers through an
// outbound messaging channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ykvlv/payment-reminder-bot/internal/domain"
)

// Sender is a minimal interface the dispatcher needs to send a text message.
// telegram.Router implements it.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Result is the outcome of one delivery attempt.
type Result struct {
	ChatID    int64
	Delivered bool
	Err       error // wraps domain.ErrDeliveryFailed when !Delivered
}

// Config tunes throttling and the circuit breaker around the channel.
type Config struct {
	// RatePerSec caps outbound messages per second; 0 disables throttling.
	RatePerSec float64
	// FailureThreshold trips the breaker after this many consecutive failures.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultConfig stays under Telegram's bulk limit of ~30 messages per second.
func DefaultConfig() Config {
	return Config{
		RatePerSec:       25,
		FailureThreshold: 10,
		OpenTimeout:      30 * time.Second,
	}
}

// Dispatcher sends one reminder per call and never lets a failure escape
// as anything other than a per-subscriber Result.
type Dispatcher struct {
	sender  Sender
	log     *zap.Logger
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// New creates a Dispatcher around sender.
func New(sender Sender, log *zap.Logger, cfg Config) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("notify")

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = DefaultConfig().FailureThreshold
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "telegram-send",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// A blocked bot or an unknown chat says nothing about the channel.
		IsSuccessful: func(err error) bool {
			return err == nil || isRecipientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Dispatcher{
		sender:  sender,
		log:     log,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
	}
}

// Notify sends the reminder for a payment due on due to s.
// Failed deliveries are logged and not retried.
func (d *Dispatcher) Notify(ctx context.Context, s domain.Subscriber, due time.Time) Result {
	res := Result{ChatID: s.ChatID}

	if err := d.limiter.Wait(ctx); err != nil {
		res.Err = fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
		d.log.Warn("send skipped", zap.Int64("chatID", s.ChatID), zap.Error(err))
		return res
	}

	text := domain.ReminderText(s.DisplayName, due)
	_, err := d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.safeSend(ctx, s.ChatID, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("channel unavailable: %w", err)
		}
		res.Err = fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err)
		d.log.Warn("send failed", zap.Int64("chatID", s.ChatID), zap.Error(err))
		return res
	}

	res.Delivered = true
	d.log.Debug("reminder sent", zap.Int64("chatID", s.ChatID))
	return res
}

// safeSend converts a panicking Sender into an error.
func (d *Dispatcher) safeSend(ctx context.Context, chatID int64, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return d.sender.SendMessage(ctx, chatID, text)
}

// isRecipientError reports whether the Bot API rejected the message because
// of the recipient (400 chat not found, 403 blocked by the user). Transport
// errors, 429 and 5xx are channel failures.
func isRecipientError(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		var valErr tgbotapi.Error
		if !errors.As(err, &valErr) {
			return false
		}
		apiErr = &valErr
	}
	return apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusForbidden
}
