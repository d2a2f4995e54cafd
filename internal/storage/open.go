package storage

import (
	"context"
	"errors"
	"strings"

	"dbconsole/pkg/logx"

	"github.com/google/uuid"
)

// Store is the persistence API used by the console service.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)

	PutDraft(ctx context.Context, d Draft) (Draft, error)
	GetDraft(ctx context.Context, id string) (Draft, error)
	DeleteDraft(ctx context.Context, id string) error
	ListDrafts(ctx context.Context) ([]Draft, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// NewDraftID returns a fresh draft id.
func NewDraftID() string { return uuid.NewString() }

// checkID only accepts UUIDs so ids are always safe file names.
func checkID(id string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", ErrBadID
	}
	return u.String(), nil
}
