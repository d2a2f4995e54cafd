package notifier

import (
	"context"
	"time"
)

// Config controls the notification pipeline.
type Config struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	RatePerSec int
	QueueSize  int
	RetryMax   int
	RetryBase  time.Duration
}

// Sender delivers one formatted message.
type Sender interface {
	Send(ctx context.Context, chatID int64, threadID int, text string) error
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	Text  string    `json:"text"`
	Error string    `json:"error,omitempty"`
}
