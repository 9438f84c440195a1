// Package poll maintains one recurring timer per device, synthesizing an
// outbound location command on each tick.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetlink/fleetlink/internal/command"
	"github.com/fleetlink/fleetlink/internal/protocol"
	"github.com/fleetlink/fleetlink/internal/store"
)

var ErrIntervalTooShort = errors.New("polling interval too short")

// MinIntervalSeconds is the lowest accepted poll interval.
const MinIntervalSeconds = 30

// Sender issues the synthesized poll commands. The command dispatcher
// implements it.
type Sender interface {
	Send(ctx context.Context, deviceID string, kind protocol.Kind, payload protocol.Payload) (command.Result, error)
}

type Driver struct {
	mu     sync.Mutex
	timers map[string]chan struct{}
	store  store.Store
	sender Sender
}

func NewDriver(st store.Store, sender Sender) *Driver {
	return &Driver{
		timers: make(map[string]chan struct{}),
		store:  st,
		sender: sender,
	}
}

// Start reads the device's poll interval and, if enabled, arms its repeating
// timer. Any existing timer for the device is cancelled first, so restarting
// is idempotent and two ticks can never overlap for one device.
func (d *Driver) Start(ctx context.Context, deviceID string) error {
	var settings store.GPSSettings
	if err := d.store.GetDoc(ctx, deviceID, store.DocGPSSettings, &settings); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked(deviceID)

	if settings.UpdateFrequency <= 0 {
		return nil
	}

	stop := make(chan struct{})
	d.timers[deviceID] = stop
	go d.run(deviceID, time.Duration(settings.UpdateFrequency)*time.Second, stop)

	slog.Info("Poll schedule armed", "device_id", deviceID, "interval_seconds", settings.UpdateFrequency)
	return nil
}

// SetInterval persists a new poll interval and restarts the device's timer.
// Intervals below the minimum are rejected without touching the existing
// schedule.
func (d *Driver) SetInterval(ctx context.Context, deviceID string, seconds int) error {
	if seconds < MinIntervalSeconds {
		return ErrIntervalTooShort
	}

	settings := store.GPSSettings{UpdateFrequency: seconds}
	if err := d.store.SetDoc(ctx, deviceID, store.DocGPSSettings, settings); err != nil {
		return err
	}
	return d.Start(ctx, deviceID)
}

// Stop cancels and forgets the device's timer. Safe to call when none exists.
func (d *Driver) Stop(deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked(deviceID)
}

func (d *Driver) stopLocked(deviceID string) {
	if stop, ok := d.timers[deviceID]; ok {
		close(stop)
		delete(d.timers, deviceID)
	}
}

func (d *Driver) StopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for deviceID, stop := range d.timers {
		close(stop)
		delete(d.timers, deviceID)
	}
}

func (d *Driver) run(deviceID string, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			slog.Debug("Poll tick", "device_id", deviceID)
			if _, err := d.sender.Send(context.Background(), deviceID, protocol.KindLocation, nil); err != nil {
				slog.Error("Poll command failed", "device_id", deviceID, "error", err)
			}
		case <-stop:
			return
		}
	}
}
