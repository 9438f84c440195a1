// Package devices manages the durable records of remote agents.
package devices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetlink/fleetlink/internal/store"
)

var ErrDeviceNotFound = errors.New("device not found")

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Observe registers an arrival: the device record is created on first-ever
// contact (first-seen set once) and updated in place on every subsequent one.
// The device is marked online persistently.
func (s *Service) Observe(ctx context.Context, deviceID string, meta store.DeviceMetadata) (*store.Device, error) {
	now := time.Now()

	device, err := s.store.GetDevice(ctx, deviceID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		device = &store.Device{
			ID:        deviceID,
			FirstSeen: now,
		}
		slog.Info("New device registered", "device_id", deviceID)
	case err != nil:
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	device.LastSeen = now
	device.Online = true
	device.Metadata = meta

	if err := s.store.PutDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to persist device: %w", err)
	}
	return device, nil
}

// MarkOffline records a departure with an updated last-seen time.
func (s *Service) MarkOffline(ctx context.Context, deviceID string) error {
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("failed to load device: %w", err)
	}

	device.LastSeen = time.Now()
	device.Online = false

	if err := s.store.PutDevice(ctx, device); err != nil {
		return fmt.Errorf("failed to persist device: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, deviceID string) (*store.Device, error) {
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

func (s *Service) Exists(ctx context.Context, deviceID string) (bool, error) {
	_, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get device: %w", err)
	}
	return true, nil
}

func (s *Service) List(ctx context.Context) ([]store.Device, error) {
	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// Remove deletes the device record together with all of its per-device
// documents. Dropping a live channel is the session registry's job; callers
// go through it.
func (s *Service) Remove(ctx context.Context, deviceID string) error {
	if err := s.store.DeleteDevice(ctx, deviceID); err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	slog.Info("Device removed", "device_id", deviceID)
	return nil
}
