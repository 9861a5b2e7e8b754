package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ykvlv/payment-reminder-bot/internal/domain"
)

var bucketSubscribers = []byte("subscribers")

// boltRecord is the JSON shape of a subscriber stored in bbolt.
type boltRecord struct {
	ChatID      int64     `json:"chat_id"`
	DisplayName string    `json:"display_name"`
	StartDate   string    `json:"start_date,omitempty"` // YYYY-MM-DD
	DueDay      int       `json:"due_day"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// BoltRepo implements Repo on a single bbolt file.
type BoltRepo struct{ db *bolt.DB }

// OpenBolt opens (or creates) the bbolt database at path.
func OpenBolt(path string) (*BoltRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketSubscribers)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltRepo{db: db}, nil
}

func (r *BoltRepo) Close() error { return r.db.Close() }

// boltKey orders keys by signed chat id (group chats have negative ids).
func boltKey(chatID int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(chatID)^(1<<63))
	return k
}

func toRecord(s *domain.Subscriber) boltRecord {
	rec := boltRecord{
		ChatID:      s.ChatID,
		DisplayName: s.DisplayName,
		DueDay:      domain.NormalizeDueDay(s.DueDay),
		Active:      s.Active,
		CreatedAt:   s.CreatedAt.UTC(),
	}
	if s.StartDate != nil {
		rec.StartDate = s.StartDate.Format(dateLayout)
	}
	return rec
}

func (rec boltRecord) subscriber() (*domain.Subscriber, error) {
	s := &domain.Subscriber{
		ChatID:      rec.ChatID,
		DisplayName: rec.DisplayName,
		DueDay:      rec.DueDay,
		Active:      rec.Active,
		CreatedAt:   rec.CreatedAt.UTC(),
	}
	if rec.StartDate != "" {
		t, err := time.ParseInLocation(dateLayout, rec.StartDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("start_date of %d: %w", rec.ChatID, err)
		}
		s.StartDate = &t
	}
	return s, nil
}

func getRecord(b *bolt.Bucket, chatID int64) (boltRecord, error) {
	var rec boltRecord
	v := b.Get(boltKey(chatID))
	if v == nil {
		return rec, domain.ErrNotFound
	}
	err := json.Unmarshal(v, &rec)
	return rec, err
}

func putRecord(b *bolt.Bucket, rec boltRecord) error {
	v, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put(boltKey(rec.ChatID), v)
}

// Upsert inserts or overwrites a subscriber, keeping created_at of an existing record.
func (r *BoltRepo) Upsert(_ context.Context, s *domain.Subscriber) error {
	if s == nil {
		return errors.New("nil subscriber")
	}
	rec := toRecord(s)
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubscribers)
		prev, err := getRecord(b, s.ChatID)
		switch {
		case err == nil:
			rec.CreatedAt = prev.CreatedAt
		case errors.Is(err, domain.ErrNotFound):
			rec.CreatedAt = createdAtOrNow(s.CreatedAt)
		default:
			return err
		}
		return putRecord(b, rec)
	})
}

// update applies fn to an existing record inside one write transaction.
func (r *BoltRepo) update(chatID int64, fn func(*boltRecord)) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubscribers)
		rec, err := getRecord(b, chatID)
		if err != nil {
			return err
		}
		fn(&rec)
		return putRecord(b, rec)
	})
}

func (r *BoltRepo) SetActive(_ context.Context, chatID int64, active bool) error {
	return r.update(chatID, func(rec *boltRecord) { rec.Active = active })
}

func (r *BoltRepo) UpdateDisplayName(_ context.Context, chatID int64, name string) error {
	return r.update(chatID, func(rec *boltRecord) { rec.DisplayName = name })
}

func (r *BoltRepo) UpdateDueDay(_ context.Context, chatID int64, day int) error {
	return r.update(chatID, func(rec *boltRecord) { rec.DueDay = domain.NormalizeDueDay(day) })
}

func (r *BoltRepo) UpdateStart(_ context.Context, chatID int64, start time.Time, dueDay int) error {
	return r.update(chatID, func(rec *boltRecord) {
		rec.StartDate = dateOnly(start).Format(dateLayout)
		rec.DueDay = domain.NormalizeDueDay(dueDay)
	})
}

func (r *BoltRepo) Get(_ context.Context, chatID int64) (*domain.Subscriber, error) {
	var s *domain.Subscriber
	err := r.db.View(func(tx *bolt.Tx) error {
		rec, err := getRecord(tx.Bucket(bucketSubscribers), chatID)
		if err != nil {
			return err
		}
		s, err = rec.subscriber()
		return err
	})
	return s, err
}

// ListActive scans the bucket in key order, i.e. by chat id.
func (r *BoltRepo) ListActive(_ context.Context) ([]domain.Subscriber, error) {
	var res []domain.Subscriber
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSubscribers).ForEach(func(_, v []byte) error {
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !rec.Active {
				return nil
			}
			s, err := rec.subscriber()
			if err != nil {
				return err
			}
			res = append(res, *s)
			return nil
		})
	})
	return res, err
}
