package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/funnelkit/provision-api/internal/domain"
	"github.com/funnelkit/provision-api/internal/store"
)

// ModeController reads and switches the system mode with a short TTL
// cache in front of the store, so the hot submission path does not hit
// the database for every request. Reads fail open to async_queue: an
// unreadable mode must not block provisioning.
type ModeController struct {
	modes  store.ModeStore
	logs   store.HealthLogStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	cached    domain.SystemMode
	fetchedAt time.Time
}

// NewModeController creates a controller with the given cache TTL.
func NewModeController(modes store.ModeStore, logs store.HealthLogStore, ttl time.Duration, logger *slog.Logger) *ModeController {
	return &ModeController{
		modes:  modes,
		logs:   logs,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "mode_controller")),
		now:    time.Now,
	}
}

// Current returns the effective system mode. An unset or unreadable
// mode resolves to async_queue.
func (c *ModeController) Current(ctx context.Context) domain.SystemMode {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != "" && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.cached
	}

	mode, err := c.modes.GetMode(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrModeUnset) {
			c.logger.Warn("failed to read system mode, defaulting to async_queue",
				slog.String("error", err.Error()))
		}
		mode = domain.ModeAsyncQueue
	}

	c.cached = mode
	c.fetchedAt = c.now()
	return mode
}

// Switch persists a new mode, appends a SWITCH audit entry, and drops
// the cache so the change takes effect immediately on this instance.
func (c *ModeController) Switch(ctx context.Context, mode domain.SystemMode, actorID uuid.UUID, reason string) error {
	if _, err := domain.ParseSystemMode(string(mode)); err != nil {
		return err
	}

	c.mu.Lock()
	previous := c.cached
	c.mu.Unlock()

	if err := c.modes.SetMode(ctx, mode, actorID); err != nil {
		return fmt.Errorf("failed to persist system mode: %w", err)
	}

	c.mu.Lock()
	c.cached = mode
	c.fetchedAt = c.now()
	c.mu.Unlock()

	c.logger.Info("system mode switched",
		slog.String("mode", string(mode)),
		slog.String("actor_id", actorID.String()),
		slog.String("reason", reason))

	entry := domain.NewHealthLogEntry(domain.HealthEventSwitch, domain.KindModeSwitched,
		fmt.Sprintf("system mode switched to %s", mode)).
		WithMetadata(map[string]any{
			"from":     string(previous),
			"to":       string(mode),
			"actor_id": actorID.String(),
			"reason":   reason,
		})
	if err := c.logs.Append(ctx, entry); err != nil {
		c.logger.Error("failed to append mode switch log entry",
			slog.String("error", err.Error()))
	}
	return nil
}

// Invalidate drops the cached mode. Used by tests and by operators who
// changed the mode out of band.
func (c *ModeController) Invalidate() {
	c.mu.Lock()
	c.cached = ""
	c.mu.Unlock()
}
