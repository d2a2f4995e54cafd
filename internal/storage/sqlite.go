package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dbconsole/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor, action, namespace, cluster, target, ok, err, took_ms, meta)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), nullStr(e.Actor), e.Action, nullStr(e.Namespace),
		nullStr(e.Cluster), nullStr(e.Target), e.OK, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}

func (s *sqliteStore) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, actor, action, namespace, cluster, target, ok, err, took_ms, meta
		 FROM audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e                                        AuditEntry
			at                                       string
			actor, ns, cluster, target, errStr, meta sql.NullString
		)
		if err := rows.Scan(&at, &actor, &e.Action, &ns, &cluster, &target, &e.OK, &errStr, &e.TookMS, &meta); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Actor, e.Namespace, e.Cluster = actor.String, ns.String, cluster.String
		e.Target, e.Error, e.MetaJSON = target.String, errStr.String, meta.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutDraft(ctx context.Context, d Draft) (Draft, error) {
	if s == nil || s.db == nil {
		return Draft{}, ErrDisabled
	}
	if strings.TrimSpace(d.ID) == "" {
		d.ID = NewDraftID()
	}
	id, err := checkID(d.ID)
	if err != nil {
		return Draft{}, err
	}
	d.ID = id
	if len(d.Values) == 0 {
		d.Values = []byte("{}")
	}

	now := time.Now().UTC()
	d.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts(id, namespace, name, vals, created_at, updated_at) VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET namespace=excluded.namespace, name=excluded.name,
		 vals=excluded.vals, updated_at=excluded.updated_at`,
		d.ID, nullStr(d.Namespace), nullStr(d.Name), string(d.Values),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Draft{}, err
	}
	return s.GetDraft(ctx, d.ID)
}

const draftColumns = `id, namespace, name, vals, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanDraft(sc scanner) (Draft, error) {
	var (
		d                Draft
		ns, name         sql.NullString
		vals             string
		created, updated string
	)
	if err := sc.Scan(&d.ID, &ns, &name, &vals, &created, &updated); err != nil {
		return Draft{}, err
	}
	d.Namespace, d.Name = ns.String, name.String
	d.Values = []byte(vals)
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return d, nil
}

func (s *sqliteStore) GetDraft(ctx context.Context, id string) (Draft, error) {
	if s == nil || s.db == nil {
		return Draft{}, ErrDisabled
	}
	id, err := checkID(id)
	if err != nil {
		return Draft{}, err
	}
	d, err := scanDraft(s.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	return d, err
}

func (s *sqliteStore) DeleteDraft(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	id, err := checkID(id)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ListDrafts(ctx context.Context) ([]Draft, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+draftColumns+` FROM drafts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortDrafts(out)
	return out, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
