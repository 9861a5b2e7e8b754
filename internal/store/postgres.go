package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ykvlv/payment-reminder-bot/internal/domain"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS subscribers (
    chat_id      BIGINT      PRIMARY KEY,
    display_name TEXT        NOT NULL DEFAULT '',
    start_date   DATE,
    due_day      SMALLINT    NOT NULL CHECK (due_day BETWEEN 1 AND 28),
    active       BOOLEAN     NOT NULL DEFAULT TRUE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_subscribers_active ON subscribers (active, chat_id);
`

// PostgresRepo implements Repo on a pgx connection pool.
type PostgresRepo struct{ pool *pgxpool.Pool }

// OpenPostgres connects to url, verifies the connection and ensures the schema.
func OpenPostgres(ctx context.Context, url string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) Close() error { r.pool.Close(); return nil }

func (r *PostgresRepo) Upsert(ctx context.Context, s *domain.Subscriber) error {
	if s == nil {
		return errors.New("nil subscriber")
	}
	var start *time.Time
	if s.StartDate != nil {
		d := dateOnly(*s.StartDate)
		start = &d
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscribers (chat_id, display_name, start_date, due_day, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chat_id) DO UPDATE SET
			display_name = excluded.display_name,
			start_date   = excluded.start_date,
			due_day      = excluded.due_day,
			active       = excluded.active`,
		s.ChatID, s.DisplayName, start, domain.NormalizeDueDay(s.DueDay), s.Active,
		createdAtOrNow(s.CreatedAt),
	)
	return err
}

func (r *PostgresRepo) SetActive(ctx context.Context, chatID int64, active bool) error {
	return notFoundIfNone(r.pool.Exec(ctx,
		`UPDATE subscribers SET active = $1 WHERE chat_id = $2`, active, chatID))
}

func (r *PostgresRepo) UpdateDisplayName(ctx context.Context, chatID int64, name string) error {
	return notFoundIfNone(r.pool.Exec(ctx,
		`UPDATE subscribers SET display_name = $1 WHERE chat_id = $2`, name, chatID))
}

func (r *PostgresRepo) UpdateDueDay(ctx context.Context, chatID int64, day int) error {
	return notFoundIfNone(r.pool.Exec(ctx,
		`UPDATE subscribers SET due_day = $1 WHERE chat_id = $2`, domain.NormalizeDueDay(day), chatID))
}

func (r *PostgresRepo) UpdateStart(ctx context.Context, chatID int64, start time.Time, dueDay int) error {
	return notFoundIfNone(r.pool.Exec(ctx,
		`UPDATE subscribers SET start_date = $1, due_day = $2 WHERE chat_id = $3`,
		dateOnly(start), domain.NormalizeDueDay(dueDay), chatID))
}

func notFoundIfNone(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const pgSelect = `SELECT chat_id, display_name, start_date, due_day, active, created_at FROM subscribers`

func scanPg(row pgx.Row) (*domain.Subscriber, error) {
	var (
		s     domain.Subscriber
		start *time.Time
		day   int16
	)
	if err := row.Scan(&s.ChatID, &s.DisplayName, &start, &day, &s.Active, &s.CreatedAt); err != nil {
		return nil, err
	}
	if start != nil {
		d := dateOnly(*start)
		s.StartDate = &d
	}
	s.DueDay = int(day)
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func (r *PostgresRepo) Get(ctx context.Context, chatID int64) (*domain.Subscriber, error) {
	s, err := scanPg(r.pool.QueryRow(ctx, pgSelect+` WHERE chat_id = $1`, chatID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

func (r *PostgresRepo) ListActive(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := r.pool.Query(ctx, pgSelect+` WHERE active ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Subscriber
	for rows.Next() {
		s, err := scanPg(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}
