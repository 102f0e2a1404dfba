package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funnelkit/provision-api/internal/domain"
)

func TestModeControllerDefaultsToAsyncWhenUnset(t *testing.T) {
	t.Parallel()

	modes := &fakeModeStore{}
	c := NewModeController(modes, &fakeLogs{}, time.Minute, testLogger())

	assert.Equal(t, domain.ModeAsyncQueue, c.Current(context.Background()))
}

func TestModeControllerFailsOpenOnStoreError(t *testing.T) {
	t.Parallel()

	modes := &fakeModeStore{getErr: errors.New("connection refused")}
	c := NewModeController(modes, &fakeLogs{}, time.Minute, testLogger())

	assert.Equal(t, domain.ModeAsyncQueue, c.Current(context.Background()))
}

func TestModeControllerCachesWithinTTL(t *testing.T) {
	t.Parallel()

	modes := &fakeModeStore{mode: domain.ModeSyncDirect, set: true}
	c := NewModeController(modes, &fakeLogs{}, time.Hour, testLogger())

	ctx := context.Background()
	assert.Equal(t, domain.ModeSyncDirect, c.Current(ctx))
	assert.Equal(t, domain.ModeSyncDirect, c.Current(ctx))
	assert.Equal(t, domain.ModeSyncDirect, c.Current(ctx))
	assert.Equal(t, 1, modes.getCalls)
}

func TestModeControllerExpiredCacheRefetches(t *testing.T) {
	t.Parallel()

	modes := &fakeModeStore{mode: domain.ModeSyncDirect, set: true}
	c := NewModeController(modes, &fakeLogs{}, time.Minute, testLogger())

	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	assert.Equal(t, domain.ModeSyncDirect, c.Current(ctx))

	modes.mode = domain.ModeAsyncQueue
	now = now.Add(2 * time.Minute)
	assert.Equal(t, domain.ModeAsyncQueue, c.Current(ctx))
	assert.Equal(t, 2, modes.getCalls)
}

func TestModeControllerSwitch(t *testing.T) {
	t.Parallel()

	modes := &fakeModeStore{mode: domain.ModeAsyncQueue, set: true}
	logs := &fakeLogs{}
	c := NewModeController(modes, logs, time.Hour, testLogger())

	ctx := context.Background()
	actor := uuid.New()
	require.Equal(t, domain.ModeAsyncQueue, c.Current(ctx))

	require.NoError(t, c.Switch(ctx, domain.ModeSyncDirect, actor, "queue backlog"))

	// Takes effect immediately despite the long TTL.
	assert.Equal(t, domain.ModeSyncDirect, c.Current(ctx))
	assert.Equal(t, domain.ModeSyncDirect, modes.mode)
	assert.Equal(t, actor, modes.actor)

	switches := logs.byKind(domain.KindModeSwitched)
	require.Len(t, switches, 1)
	assert.Equal(t, domain.HealthEventSwitch, switches[0].EventType)
	assert.Equal(t, "async_queue", switches[0].Metadata["from"])
	assert.Equal(t, "sync_direct", switches[0].Metadata["to"])
	assert.Equal(t, "queue backlog", switches[0].Metadata["reason"])
}

func TestModeControllerSwitchRejectsInvalidMode(t *testing.T) {
	t.Parallel()

	c := NewModeController(&fakeModeStore{}, &fakeLogs{}, time.Minute, testLogger())
	err := c.Switch(context.Background(), domain.SystemMode("turbo"), uuid.New(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidMode)
}
