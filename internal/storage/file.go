package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"dbconsole/pkg/logx"
)

// fileStore keeps everything in plain files.
//
// Files:
//   - <prefix>.audit.jsonl   (append-only JSON Lines)
//   - <prefix>.drafts/<id>.json
//
// Draft writes go through a temp file and rename.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditPath string
	auditFile *os.File
	draftsDir string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	draftsDir := prefix + ".drafts"
	if err := os.MkdirAll(draftsDir, 0o755); err != nil {
		return nil, err
	}

	auditPath := prefix + ".audit.jsonl"
	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	log.Debug("file store opened", logx.String("audit", auditPath), logx.String("drafts", draftsDir))
	return &fileStore{
		log:       log,
		auditPath: auditPath,
		auditFile: af,
		draftsDir: draftsDir,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

// ListAudit returns up to limit entries, newest first. Lines that fail to
// decode are skipped.
func (s *fileStore) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.auditPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []AuditEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fileStore) draftPath(id string) string {
	return filepath.Join(s.draftsDir, id+".json")
}

func (s *fileStore) PutDraft(ctx context.Context, d Draft) (Draft, error) {
	_ = ctx
	if strings.TrimSpace(d.ID) == "" {
		d.ID = NewDraftID()
	}
	id, err := checkID(d.ID)
	if err != nil {
		return Draft{}, err
	}
	d.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if prev, err := s.readDraftLocked(id); err == nil {
		d.CreatedAt = prev.CreatedAt
	} else if !errors.Is(err, ErrNotFound) {
		return Draft{}, err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	path := s.draftPath(id)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return Draft{}, err
	}
	if err := json.NewEncoder(f).Encode(d); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return Draft{}, err
	}
	if err := f.Close(); err != nil {
		return Draft{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func (s *fileStore) GetDraft(ctx context.Context, id string) (Draft, error) {
	_ = ctx
	id, err := checkID(id)
	if err != nil {
		return Draft{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readDraftLocked(id)
}

func (s *fileStore) readDraftLocked(id string) (Draft, error) {
	b, err := os.ReadFile(s.draftPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, err
	}
	var d Draft
	if err := json.Unmarshal(b, &d); err != nil {
		return Draft{}, err
	}
	return d, nil
}

func (s *fileStore) DeleteDraft(ctx context.Context, id string) error {
	_ = ctx
	id, err := checkID(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = os.Remove(s.draftPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// ListDrafts returns every draft, most recently updated first.
func (s *fileStore) ListDrafts(ctx context.Context) ([]Draft, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.draftsDir)
	if err != nil {
		return nil, err
	}
	out := make([]Draft, 0, len(entries))
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		d, err := s.readDraftLocked(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.log.Warn("skipping unreadable draft", logx.String("file", name), logx.Err(err))
			continue
		}
		out = append(out, d)
	}
	sortDrafts(out)
	return out, nil
}

func sortDrafts(ds []Draft) {
	slices.SortFunc(ds, func(a, b Draft) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
