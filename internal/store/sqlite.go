package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/ykvlv/payment-reminder-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// Upsert inserts a subscriber or overwrites name, start date, due day and
// active flag of an existing one. created_at is kept from the first insert.
func (r *SQLiteRepo) Upsert(ctx context.Context, s *domain.Subscriber) error {
	if s == nil {
		return errors.New("nil subscriber")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (
			chat_id, display_name, start_date, due_day, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			display_name = excluded.display_name,
			start_date   = excluded.start_date,
			due_day      = excluded.due_day,
			active       = excluded.active`,
		s.ChatID, s.DisplayName, toNullDate(s.StartDate),
		domain.NormalizeDueDay(s.DueDay), boolToInt(s.Active),
		createdAtOrNow(s.CreatedAt).Unix(),
	)
	return err
}

// SetActive toggles the active flag.
func (r *SQLiteRepo) SetActive(ctx context.Context, chatID int64, active bool) error {
	return r.execOne(ctx, `UPDATE subscribers SET active = ? WHERE chat_id = ?`,
		boolToInt(active), chatID)
}

// UpdateDisplayName replaces the display name.
func (r *SQLiteRepo) UpdateDisplayName(ctx context.Context, chatID int64, name string) error {
	return r.execOne(ctx, `UPDATE subscribers SET display_name = ? WHERE chat_id = ?`,
		name, chatID)
}

// UpdateDueDay replaces the due day (clamped to 1..28).
func (r *SQLiteRepo) UpdateDueDay(ctx context.Context, chatID int64, day int) error {
	return r.execOne(ctx, `UPDATE subscribers SET due_day = ? WHERE chat_id = ?`,
		domain.NormalizeDueDay(day), chatID)
}

// UpdateStart replaces the start date together with the due day derived from it.
func (r *SQLiteRepo) UpdateStart(ctx context.Context, chatID int64, start time.Time, dueDay int) error {
	d := dateOnly(start)
	return r.execOne(ctx, `UPDATE subscribers SET start_date = ?, due_day = ? WHERE chat_id = ?`,
		toNullDate(&d), domain.NormalizeDueDay(dueDay), chatID)
}

// execOne runs a single-row update and maps "no rows" to domain.ErrNotFound.
func (r *SQLiteRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (*domain.Subscriber, error) {
	var (
		s         domain.Subscriber
		startNS   sql.NullString
		activeInt int
		createdAt int64
	)
	if err := row.Scan(&s.ChatID, &s.DisplayName, &startNS, &s.DueDay, &activeInt, &createdAt); err != nil {
		return nil, err
	}
	start, err := fromNullDate(startNS)
	if err != nil {
		return nil, fmt.Errorf("start_date of %d: %w", s.ChatID, err)
	}
	s.StartDate = start
	s.Active = activeInt != 0
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &s, nil
}

// Get returns a subscriber by chatID or domain.ErrNotFound.
func (r *SQLiteRepo) Get(ctx context.Context, chatID int64) (*domain.Subscriber, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT chat_id, display_name, start_date, due_day, active, created_at
		FROM subscribers
		WHERE chat_id = ?`,
		chatID,
	)
	s, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

// ListActive returns all active subscribers ordered by chat_id.
func (r *SQLiteRepo) ListActive(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chat_id, display_name, start_date, due_day, active, created_at
		FROM subscribers
		WHERE active = 1
		ORDER BY chat_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
