// Package store persists annotation snapshots as one JSON document per
// file and user.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/annosuite/annotator/internal/document"
)

var ErrNotFound = errors.New("annotations not found")

type Store interface {
	Save(ctx context.Context, fileID, userID string, snap document.Snapshot) error
	Load(ctx context.Context, fileID, userID string) (document.Snapshot, error)
}

type key struct{ file, user string }

// Memory keeps snapshots in process memory. It backs development servers
// started without a database.
type Memory struct {
	mu   sync.RWMutex
	docs map[key]document.Snapshot
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[key]document.Snapshot)}
}

func (m *Memory) Save(ctx context.Context, fileID, userID string, snap document.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key{fileID, userID}] = snap.Clone()
	return nil
}

func (m *Memory) Load(ctx context.Context, fileID, userID string) (document.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return document.Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.docs[key{fileID, userID}]
	if !ok {
		return document.Snapshot{}, ErrNotFound
	}
	return snap.Clone(), nil
}
