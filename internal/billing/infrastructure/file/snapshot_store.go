// Package file stores billing state and rendered invoices on the local disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	billing "pik-billing/internal/billing/domain"
)

// SnapshotStore keeps the billing context in one JSON document.
type SnapshotStore struct {
	path string
}

// NewSnapshotStore constructs a store writing to path.
func NewSnapshotStore(path string) (*SnapshotStore, error) {
	if path == "" {
		return nil, errors.New("file snapshot store: empty path")
	}
	return &SnapshotStore{path: path}, nil
}

// Load reads the snapshot. A missing file is a first run and yields an empty context;
// a file that cannot be decoded is an error.
func (s *SnapshotStore) Load(ctx context.Context) (*billing.BillingContext, error) {
	_ = ctx
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return billing.NewBillingContext(), nil
	}
	if err != nil {
		return nil, err
	}
	state := billing.NewBillingContext()
	if err := state.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("file snapshot store: %s: %w", s.path, err)
	}
	return state, nil
}

// Save writes the snapshot through a temp file and rename, so a crash leaves the previous snapshot intact.
func (s *SnapshotStore) Save(ctx context.Context, runID string, state *billing.BillingContext) error {
	_ = ctx
	_ = runID
	if state == nil {
		return errors.New("file snapshot store: nil context")
	}
	data, err := state.MarshalJSON()
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
