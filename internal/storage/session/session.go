// Package session keeps in-flight interactions in memory.
package session

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
	"github.com/jgivc/fetchbot/internal/util"
)

const maxIDAttempts = 16

type PartialChecker interface {
	HasPartial(id string) bool
}

type Clock func() time.Time

type Config struct {
	TTL        time.Duration
	PartialTTL time.Duration
}

type sessionStorage struct {
	mu       sync.Mutex
	sessions map[string]*entity.Session
	partial  PartialChecker
	cfg      Config
	now      Clock
	newID    func() (string, error)
	log      *slog.Logger
}

func NewSessionStorage(partial PartialChecker, cfg Config, log *slog.Logger) *sessionStorage {
	return NewSessionStorageWithClock(partial, cfg, time.Now, log)
}

func NewSessionStorageWithClock(partial PartialChecker, cfg Config, now Clock, log *slog.Logger) *sessionStorage {
	return &sessionStorage{
		sessions: make(map[string]*entity.Session),
		partial:  partial,
		cfg:      cfg,
		now:      now,
		newID:    util.NewSessionID,
		log:      log.With(slog.String("item", "SessionStorage")),
	}
}

// Create stores s under a fresh id and returns the id.
func (st *sessionStorage) Create(s *entity.Session) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for range maxIDAttempts {
		id, err := st.newID()
		if err != nil {
			return "", fmt.Errorf("cannot create session id: %w", err)
		}

		if _, exists := st.sessions[id]; exists {
			continue
		}

		c := s.Clone()
		c.ID = id
		c.CreatedAt = st.now()
		st.sessions[id] = c

		st.log.Debug("Session created", slog.String("id", id), slog.Int64("user_id", c.OwnerUserID))

		return id, nil
	}

	return "", fmt.Errorf("cannot create session id: %d collisions", maxIDAttempts)
}

func (st *sessionStorage) Get(id string) (*entity.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, false
	}

	return s.Clone(), true
}

// Mutate runs fn on the stored session under the store lock. Changes are
// discarded when fn fails.
func (st *sessionStorage) Mutate(id string, fn func(*entity.Session) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return common.ErrSessionExpired
	}

	c := s.Clone()
	if err := fn(c); err != nil {
		return err
	}

	c.ID = id
	st.sessions[id] = c

	return nil
}

func (st *sessionStorage) Remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	delete(st.sessions, id)
}

// FindAwaitingInput returns the newest session of the user waiting for a typed format.
func (st *sessionStorage) FindAwaitingInput(userID int64) (*entity.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var found *entity.Session
	for _, s := range st.sessions {
		if !s.OwnedBy(userID) || s.State != entity.StateAwaitingCustomFormatInput {
			continue
		}

		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			found = s
		}
	}

	if found == nil {
		return nil, false
	}

	return found.Clone(), true
}

// ListExpired returns ids whose TTL elapsed at now. Sessions with partial
// download artifacts get the longer TTL so a retry can resume. A session
// whose download is running never expires: its worker still writes into the
// working directory.
func (st *sessionStorage) ListExpired(now time.Time) []string {
	st.mu.Lock()
	candidates := make(map[string]time.Time, len(st.sessions))
	for id, s := range st.sessions {
		if s.State == entity.StateDownloading {
			continue
		}

		candidates[id] = s.CreatedAt
	}
	st.mu.Unlock()

	var ids []string
	for id, created := range candidates {
		age := now.Sub(created)
		if age <= st.cfg.TTL {
			continue
		}

		if age <= st.cfg.PartialTTL && st.partial.HasPartial(id) {
			continue
		}

		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Busy reports whether a download is running for id.
func (st *sessionStorage) Busy(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]

	return ok && s.State == entity.StateDownloading
}

// IDs returns all live session ids.
func (st *sessionStorage) IDs() []string {
	st.mu.Lock()
	defer st.mu.Unlock()

	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func (st *sessionStorage) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	return len(st.sessions)
}
