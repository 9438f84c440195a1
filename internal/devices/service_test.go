package devices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlink/fleetlink/internal/store"
	"github.com/fleetlink/fleetlink/internal/store/memory"
)

func TestObserve_FirstContactSetsFirstSeenOnce(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	first, err := svc.Observe(ctx, "dev-1", store.DeviceMetadata{Model: "Pixel"})
	require.NoError(t, err)
	assert.True(t, first.Online)
	assert.False(t, first.FirstSeen.IsZero())

	time.Sleep(5 * time.Millisecond)

	second, err := svc.Observe(ctx, "dev-1", store.DeviceMetadata{Model: "Pixel 8"})
	require.NoError(t, err)
	assert.True(t, first.FirstSeen.Equal(second.FirstSeen))
	assert.True(t, second.LastSeen.After(first.LastSeen))
	assert.Equal(t, "Pixel 8", second.Metadata.Model)
}

func TestMarkOffline(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	assert.ErrorIs(t, svc.MarkOffline(ctx, "never-seen"), ErrDeviceNotFound)

	_, err := svc.Observe(ctx, "dev-1", store.DeviceMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.MarkOffline(ctx, "dev-1"))

	device, err := svc.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, device.Online)
}

func TestExistsAndGet(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	exists, err := svc.Exists(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.Get(ctx, "dev-1")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = svc.Observe(ctx, "dev-1", store.DeviceMetadata{})
	require.NoError(t, err)

	exists, err = svc.Exists(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRemove(t *testing.T) {
	svc := NewService(memory.New())
	ctx := context.Background()

	_, err := svc.Observe(ctx, "dev-1", store.DeviceMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, "dev-1"))

	exists, err := svc.Exists(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, exists)
}
