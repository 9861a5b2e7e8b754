package store

import (
	"context"
	"time"

	"github.com/ykvlv/payment-reminder-bot/internal/domain"
)

// Repo defines storage operations for subscribers.
// Every method touches at most one record, except ListActive.
type Repo interface {
	Upsert(ctx context.Context, s *domain.Subscriber) error
	SetActive(ctx context.Context, chatID int64, active bool) error
	UpdateDisplayName(ctx context.Context, chatID int64, name string) error
	UpdateDueDay(ctx context.Context, chatID int64, day int) error
	UpdateStart(ctx context.Context, chatID int64, start time.Time, dueDay int) error
	Get(ctx context.Context, chatID int64) (*domain.Subscriber, error)
	ListActive(ctx context.Context) ([]domain.Subscriber, error)
	Close() error
}
