package session

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jgivc/fetchbot/internal/common"
	"github.com/jgivc/fetchbot/internal/entity"
)

type fakePartial map[string]bool

func (f fakePartial) HasPartial(id string) bool { return f[id] }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestStore(partial fakePartial) (*sessionStorage, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{TTL: 2 * time.Hour, PartialTTL: 8 * time.Hour}

	return NewSessionStorageWithClock(partial, cfg, clock.Now, log), clock
}

func TestCreateGet(t *testing.T) {
	st, clock := newTestStore(fakePartial{})

	id, err := st.Create(&entity.Session{SourceURL: "https://example.com/v", OwnerUserID: 7})
	require.NoError(t, err)
	require.Len(t, id, 8)

	s, ok := st.Get(id)
	require.True(t, ok)
	require.Equal(t, id, s.ID)
	require.Equal(t, clock.Now(), s.CreatedAt)
	require.Equal(t, entity.StateAwaitingFormatSelection, s.State)

	s.State = entity.StateDownloading
	again, _ := st.Get(id)
	require.Equal(t, entity.StateAwaitingFormatSelection, again.State)

	_, ok = st.Get("ffffffff")
	require.False(t, ok)
	require.Equal(t, 1, st.Len())
}

func TestCreateRetriesCollision(t *testing.T) {
	st, _ := newTestStore(fakePartial{})

	ids := []string{"aaaaaaaa", "aaaaaaaa", "bbbbbbbb"}
	st.newID = func() (string, error) {
		id := ids[0]
		ids = ids[1:]

		return id, nil
	}

	first, err := st.Create(&entity.Session{})
	require.NoError(t, err)
	require.Equal(t, "aaaaaaaa", first)

	second, err := st.Create(&entity.Session{})
	require.NoError(t, err)
	require.Equal(t, "bbbbbbbb", second)
}

func TestMutate(t *testing.T) {
	st, _ := newTestStore(fakePartial{})
	id, err := st.Create(&entity.Session{OwnerUserID: 1})
	require.NoError(t, err)

	require.NoError(t, st.Mutate(id, func(s *entity.Session) error {
		return s.Transition(entity.EventFormatChosen)
	}))

	s, _ := st.Get(id)
	require.Equal(t, entity.StateAwaitingAdRemovalChoice, s.State)

	boom := errors.New("boom")
	err = st.Mutate(id, func(s *entity.Session) error {
		s.Title = "changed"

		return boom
	})
	require.ErrorIs(t, err, boom)

	s, _ = st.Get(id)
	require.Empty(t, s.Title)

	err = st.Mutate(id, func(s *entity.Session) error {
		return s.Transition(entity.EventRetry)
	})
	require.ErrorIs(t, err, common.ErrIllegalTransition)

	err = st.Mutate("ffffffff", func(*entity.Session) error { return nil })
	require.ErrorIs(t, err, common.ErrSessionExpired)
}

func TestFindAwaitingInput(t *testing.T) {
	st, clock := newTestStore(fakePartial{})

	older, err := st.Create(&entity.Session{OwnerUserID: 1, State: entity.StateAwaitingCustomFormatInput})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	newer, err := st.Create(&entity.Session{OwnerUserID: 1, State: entity.StateAwaitingCustomFormatInput})
	require.NoError(t, err)
	_, err = st.Create(&entity.Session{OwnerUserID: 2})
	require.NoError(t, err)

	s, ok := st.FindAwaitingInput(1)
	require.True(t, ok)
	require.Equal(t, newer, s.ID)
	require.NotEqual(t, older, s.ID)

	_, ok = st.FindAwaitingInput(2)
	require.False(t, ok)
}

func TestListExpired(t *testing.T) {
	partial := fakePartial{}
	st, clock := newTestStore(partial)

	plain, err := st.Create(&entity.Session{})
	require.NoError(t, err)
	resumable, err := st.Create(&entity.Session{})
	require.NoError(t, err)
	partial[resumable] = true

	require.Empty(t, st.ListExpired(clock.Now().Add(time.Hour)))
	require.Equal(t, []string{plain}, st.ListExpired(clock.Now().Add(3*time.Hour)))
	require.ElementsMatch(t, []string{plain, resumable}, st.ListExpired(clock.Now().Add(9*time.Hour)))

	st.Remove(plain)
	require.Equal(t, []string{resumable}, st.IDs())
}

func TestListExpiredSkipsRunningDownload(t *testing.T) {
	st, clock := newTestStore(fakePartial{})

	id, err := st.Create(&entity.Session{State: entity.StateAwaitingAdRemovalChoice})
	require.NoError(t, err)

	clock.Advance(time.Hour + 59*time.Minute)
	require.NoError(t, st.Mutate(id, func(s *entity.Session) error {
		return s.Transition(entity.EventAdRemovalChoice)
	}))
	require.True(t, st.Busy(id))

	require.Empty(t, st.ListExpired(clock.Now().Add(2*time.Minute)))
	require.Empty(t, st.ListExpired(clock.Now().Add(24*time.Hour)))

	require.NoError(t, st.Mutate(id, func(s *entity.Session) error {
		return s.Transition(entity.EventDownloadFailed)
	}))
	require.False(t, st.Busy(id))
	require.Equal(t, []string{id}, st.ListExpired(clock.Now().Add(2*time.Minute)))
	require.False(t, st.Busy("missing"))
}

func TestConcurrentAccess(t *testing.T) {
	st, _ := newTestStore(fakePartial{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for range 50 {
				id, err := st.Create(&entity.Session{})
				if err != nil {
					continue
				}

				_ = st.Mutate(id, func(s *entity.Session) error {
					s.Title = id

					return nil
				})
				st.Get(id)
				st.Remove(id)
			}
		}()
	}

	wg.Wait()
	require.Zero(t, st.Len())
}
