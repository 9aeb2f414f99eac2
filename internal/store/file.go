package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/smsledger/smsledger/internal/ledger"
)

// FileStore keeps the balance in a small YAML document.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

type fileState struct {
	Balance   *string   `yaml:"balance"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// NewFileStore returns a store backed by path. The file is created on the
// first Persist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Load reads the balance. A missing file means the balance was never set.
func (s *FileStore) Load(_ context.Context) (ledger.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ledger.Balance{}, nil
	}
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("reading balance file: %w", err)
	}

	var st fileState
	if err := yaml.Unmarshal(data, &st); err != nil {
		return ledger.Balance{}, fmt.Errorf("parsing balance file: %w", err)
	}
	if st.Balance == nil {
		return ledger.Balance{}, nil
	}
	amount, err := decimal.NewFromString(*st.Balance)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("parsing balance %q: %w", *st.Balance, err)
	}
	return ledger.Some(amount), nil
}

// Persist replaces the file atomically.
func (s *FileStore) Persist(_ context.Context, b ledger.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := fileState{UpdatedAt: s.now().UTC()}
	if amount, ok := b.Get(); ok {
		v := amount.String()
		st.Balance = &v
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling balance: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating balance dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing balance file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing balance file: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
