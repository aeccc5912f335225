// Package counter bounds how many downloads a single user may run at once.
package counter

import (
	"log/slog"
	"sync"

	"github.com/jgivc/fetchbot/internal/metrics"
)

const (
	serviceName = "counter"
)

type counterService struct {
	mu       sync.Mutex
	capacity int
	inFlight map[int64]int
	log      *slog.Logger
}

func NewCounterService(capacity int, log *slog.Logger) *counterService {
	return &counterService{
		capacity: capacity,
		inFlight: make(map[int64]int),
		log:      log.With(slog.String("service", serviceName)),
	}
}

// TryAcquire takes a slot for the user. It returns false at capacity.
func (c *counterService) TryAcquire(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight[userID] >= c.capacity {
		c.log.Debug("Limit reached", slog.Int64("user_id", userID), slog.Int("in_flight", c.inFlight[userID]))

		return false
	}

	c.inFlight[userID]++
	metrics.DownloadsInFlight.Inc()

	return true
}

// Release frees a slot. Releasing without a held slot is a no-op.
func (c *counterService) Release(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.inFlight[userID]
	if !ok {
		c.log.Warn("Release without acquire", slog.Int64("user_id", userID))

		return
	}

	if n <= 1 {
		delete(c.inFlight, userID)
	} else {
		c.inFlight[userID] = n - 1
	}

	metrics.DownloadsInFlight.Dec()
}

func (c *counterService) InFlight(userID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.inFlight[userID]
}
