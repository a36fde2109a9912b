package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/igefined/generic-trader/internal/domain"
)

// Store persists one provider's session between process starts.
type Store interface {
	Load() (domain.Session, error)
	Save(s domain.Session) error
}

// FileStore keeps the session as a JSON token file readable only by the owner.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load() (domain.Session, error) {
	var s domain.Session

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return s, fmt.Errorf("read token file: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse token file %s: %w", f.Path, err)
	}

	return s, nil
}

func (f *FileStore) Save(s domain.Session) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}

	return nil
}
