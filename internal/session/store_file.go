package session

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"github.com/gita-voice-lab/internal/fileio"
	"github.com/gita-voice-lab/internal/logging"
)

// FileStore persists the token in a 0600 JSON file so a login survives
// restarts. Entries older than MaxAge are treated as absent.
type FileStore struct {
	path string
	now  func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

type fileRecord struct {
	Token     string    `json:"token"`
	SavedAt   time.Time `json:"saved_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *FileStore) Load(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var rec fileRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		logging.Warnw("session: unreadable token file; discarding", "path", s.path, "err", err)
		return "", s.Clear(ctx)
	}
	if !rec.ExpiresAt.IsZero() && !s.now().Before(rec.ExpiresAt) {
		logging.Debugw("session: stored token past max age; discarding", "path", s.path, "saved_at", rec.SavedAt)
		return "", s.Clear(ctx)
	}
	return rec.Token, nil
}

func (s *FileStore) Save(_ context.Context, token string) error {
	now := s.now().UTC()
	data, err := sonic.Marshal(fileRecord{Token: token, SavedAt: now, ExpiresAt: now.Add(MaxAge)})
	if err != nil {
		return err
	}
	return fileio.WriteAtomic(s.path, data, 0o600, 0o700)
}

func (s *FileStore) Clear(context.Context) error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
