package domain

import "time"

// Subscriber represents a chat that receives monthly payment reminders.
type Subscriber struct {
	ChatID      int64
	DisplayName string
	StartDate   *time.Time // date only, nullable
	DueDay      int        // 1..28
	Active      bool
	CreatedAt   time.Time // UTC
}
