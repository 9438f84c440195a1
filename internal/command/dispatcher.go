// Package command is the single send-path for operator- and system-issued
// commands: validated, then either delivered immediately over a live session
// or queued durably for an offline device.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetlink/fleetlink/internal/devices"
	"github.com/fleetlink/fleetlink/internal/protocol"
	"github.com/fleetlink/fleetlink/internal/store"
)

var (
	ErrUnknownDevice   = errors.New("device unknown")
	ErrDuplicateQueued = errors.New("a command of this kind is already queued")
	ErrDelivery        = errors.New("command delivery failed")
)

// Result tells the caller how the command left the dispatcher.
type Result string

const (
	ResultRequested Result = "requested"
	ResultQueued    Result = "queued"
)

// Channels is the live-session surface the dispatcher chooses its send path
// with. The session registry implements it.
type Channels interface {
	IsOnline(deviceID string) bool
	Emit(deviceID string, kind protocol.Kind, payload protocol.Payload) error
}

type Dispatcher struct {
	store    store.Store
	devices  *devices.Service
	channels Channels
}

func NewDispatcher(st store.Store, devs *devices.Service) *Dispatcher {
	return &Dispatcher{store: st, devices: devs}
}

// SetChannels wires the live-session surface after construction. This breaks
// the circular dependency between the dispatcher and the session registry
// during initialization.
func (d *Dispatcher) SetChannels(ch Channels) {
	d.channels = ch
}

// Send validates (kind, payload), then emits over the live channel if the
// device is online (fire-and-forget, "requested") or persists a QueueEntry
// otherwise ("queued"). At most one entry per (device, kind) may be queued.
func (d *Dispatcher) Send(ctx context.Context, deviceID string, kind protocol.Kind, payload protocol.Payload) (Result, error) {
	if payload == nil {
		payload = protocol.Payload{}
	}
	if err := protocol.ValidateCommand(kind, payload); err != nil {
		return "", err
	}

	exists, err := d.devices.Exists(ctx, deviceID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrUnknownDevice
	}

	if d.channels != nil && d.channels.IsOnline(deviceID) {
		if err := d.channels.Emit(deviceID, kind, payload); err != nil {
			return "", fmt.Errorf("%w: %v", ErrDelivery, err)
		}
		slog.Info("Command requested", "device_id", deviceID, "kind", kind)
		return ResultRequested, nil
	}

	if err := d.enqueue(ctx, deviceID, kind, payload); err != nil {
		return "", err
	}
	slog.Info("Command queued, device offline", "device_id", deviceID, "kind", kind)
	return ResultQueued, nil
}

// enqueue persists a QueueEntry keyed by its kind, so the store's
// (device, collection, fingerprint) uniqueness rejects a second entry of the
// same kind atomically even under concurrent sends.
func (d *Dispatcher) enqueue(ctx context.Context, deviceID string, kind protocol.Kind, payload protocol.Payload) error {
	entry := store.QueueEntry{
		Token:    uuid.NewString(),
		Kind:     kind,
		Payload:  payload,
		QueuedAt: time.Now(),
	}
	err := d.store.AppendRecord(ctx, deviceID, store.CollectionCommandQueue, string(kind), entry)
	if errors.Is(err, store.ErrDuplicate) {
		return ErrDuplicateQueued
	}
	return err
}

// Replay redelivers every queued command for a freshly reconnected device in
// insertion order. A successfully emitted entry is removed; a failed one is
// logged and left queued. Removal happens on emission, not on any
// acknowledgement from the device.
func (d *Dispatcher) Replay(ctx context.Context, deviceID string) {
	var queued []store.QueueEntry
	if err := d.store.ListRecords(ctx, deviceID, store.CollectionCommandQueue, &queued); err != nil {
		slog.Error("Failed to load command queue", "device_id", deviceID, "error", err)
		return
	}
	if len(queued) == 0 {
		return
	}

	slog.Info("Replaying queued commands", "device_id", deviceID, "count", len(queued))
	for _, entry := range queued {
		if err := d.channels.Emit(deviceID, entry.Kind, entry.Payload); err != nil {
			slog.Error("Queued command delivery failed",
				"device_id", deviceID, "kind", entry.Kind, "error", err)
			continue
		}
		if err := d.store.RemoveRecord(ctx, deviceID, store.CollectionCommandQueue, string(entry.Kind)); err != nil {
			slog.Error("Failed to remove delivered queue entry",
				"device_id", deviceID, "kind", entry.Kind, "error", err)
		}
	}
}
