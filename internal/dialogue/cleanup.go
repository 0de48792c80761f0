package dialogue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultCleanupInterval is the default interval at which expired sessions are removed.
const DefaultCleanupInterval = 1 * time.Minute

// Expirer is a store that can drop expired sessions.
type Expirer interface {
	CleanupExpired() int
	Len() int
}

// CleanupService periodically removes expired sessions.
type CleanupService struct {
	store    Expirer
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewCleanupService creates a cleanup service. A non-positive interval means
// DefaultCleanupInterval.
func NewCleanupService(store Expirer, interval time.Duration, logger *zap.Logger) *CleanupService {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupService{
		store:    store,
		interval: interval,
		logger:   logger.With(zap.String("component", "dialogue.cleanup")),
	}
}

// Start begins the periodic cleanup. Calling Start on a running service is a no-op.
func (c *CleanupService) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(cleanupCtx)
}

// Stop cancels the cleanup goroutine and waits for it to exit.
func (c *CleanupService) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the cleanup goroutine is active.
func (c *CleanupService) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *CleanupService) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		close(c.done)
		c.mu.Unlock()
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.cleanup()
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("cleanup service stopping")
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *CleanupService) cleanup() {
	start := time.Now()
	removed := c.store.CleanupExpired()
	if removed > 0 {
		c.logger.Info("expired sessions removed",
			zap.Int("removed", removed),
			zap.Int("remaining", c.store.Len()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
