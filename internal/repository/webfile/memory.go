package webfile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
)

type memoryRepository struct {
	mu      sync.RWMutex
	entries map[string]entity.WebFileEntry
	log     *slog.Logger
}

func NewMemoryRepository(log *slog.Logger) *memoryRepository {
	return &memoryRepository{
		entries: make(map[string]entity.WebFileEntry),
		log:     log.With(slog.String("item", "MemoryWebFileRepository")),
	}
}

func (r *memoryRepository) Save(_ context.Context, entry *entity.WebFileEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.SessionID] = *entry

	return nil
}

func (r *memoryRepository) Get(_ context.Context, sid string) (*entity.WebFileEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[sid]
	if !ok {
		return nil, common.ErrFileNotFoundError
	}

	return &entry, nil
}

func (r *memoryRepository) Delete(_ context.Context, sid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, sid)

	return nil
}

func (r *memoryRepository) List(_ context.Context) ([]*entity.WebFileEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*entity.WebFileEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, &e)
	}

	sortEntries(entries)

	return entries, nil
}
