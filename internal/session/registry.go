// Package session owns the set of currently-connected devices: it drives the
// connect/disconnect lifecycle, wires inbound reports to ingestion, and
// exposes the live-channel surface the dispatcher sends through.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetlink/fleetlink/internal/command"
	"github.com/fleetlink/fleetlink/internal/devices"
	"github.com/fleetlink/fleetlink/internal/ingest"
	"github.com/fleetlink/fleetlink/internal/poll"
	"github.com/fleetlink/fleetlink/internal/protocol"
	"github.com/fleetlink/fleetlink/internal/store"
)

var ErrNotConnected = errors.New("device not connected")

// Channel is a live device channel. The concrete transport lives outside the
// core; the registry only ever sends envelopes and closes.
type Channel interface {
	Send(kind protocol.Kind, payload any) error
	Close() error
	RemoteAddr() string
}

// Session is the live binding between a device and its current channel. Gen
// uniquely identifies this binding: a reconnect for the same device ID mints
// a new generation, so a late disconnect carrying a stale generation can be
// told apart from one that applies to the current binding.
type Session struct {
	DeviceID    string
	Gen         uint64
	Channel     Channel
	ConnectedAt time.Time
}

type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	nextGen  uint64

	devices    *devices.Service
	dispatcher *command.Dispatcher
	poller     *poll.Driver
	reports    *ingest.Router
}

func NewRegistry(devs *devices.Service, dispatcher *command.Dispatcher, poller *poll.Driver, reports *ingest.Router) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		devices:    devs,
		dispatcher: dispatcher,
		poller:     poller,
		reports:    reports,
	}
}

var _ command.Channels = (*Registry)(nil)

// Connect binds ch as the device's session, persists the arrival, replays
// any queued commands, and starts the device's poll schedule. A new arrival
// for an already-bound ID replaces the prior binding: the old channel is
// closed, and because its generation is no longer current, its eventual
// disconnect is ignored rather than recorded as an offline transition.
func (r *Registry) Connect(ctx context.Context, ch Channel, deviceID string, meta store.DeviceMetadata) (uint64, error) {
	r.mu.Lock()
	r.nextGen++
	gen := r.nextGen
	if existing, ok := r.sessions[deviceID]; ok {
		slog.Warn("Device already connected, replacing session",
			"device_id", deviceID, "stale_gen", existing.Gen)
		_ = existing.Channel.Close()
	}
	r.sessions[deviceID] = &Session{
		DeviceID:    deviceID,
		Gen:         gen,
		Channel:     ch,
		ConnectedAt: time.Now(),
	}
	r.mu.Unlock()

	if _, err := r.devices.Observe(ctx, deviceID, meta); err != nil {
		r.mu.Lock()
		if current, ok := r.sessions[deviceID]; ok && current.Gen == gen {
			delete(r.sessions, deviceID)
		}
		r.mu.Unlock()
		return 0, fmt.Errorf("failed to register arrival: %w", err)
	}

	slog.Info("Device connected", "device_id", deviceID, "remote_addr", ch.RemoteAddr(), "gen", gen)

	r.dispatcher.Replay(ctx, deviceID)

	if err := r.poller.Start(ctx, deviceID); err != nil {
		slog.Error("Failed to start poll schedule", "device_id", deviceID, "error", err)
	}

	return gen, nil
}

// Disconnect clears the session binding, marks the device offline, and stops
// its poll schedule, but only if gen still names the current binding. A
// disconnect from a channel that has since been replaced is a no-op.
func (r *Registry) Disconnect(ctx context.Context, deviceID string, gen uint64) {
	r.mu.Lock()
	current, ok := r.sessions[deviceID]
	if !ok || current.Gen != gen {
		r.mu.Unlock()
		slog.Debug("Ignoring stale disconnect", "device_id", deviceID, "gen", gen)
		return
	}
	delete(r.sessions, deviceID)
	r.mu.Unlock()

	r.poller.Stop(deviceID)

	if err := r.devices.MarkOffline(ctx, deviceID); err != nil {
		slog.Error("Failed to mark device offline", "device_id", deviceID, "error", err)
	}
	slog.Info("Device disconnected", "device_id", deviceID, "gen", gen)
}

// HandleReport routes one inbound envelope from the device's channel.
func (r *Registry) HandleReport(ctx context.Context, deviceID string, env protocol.Envelope) {
	if err := r.reports.Handle(ctx, deviceID, env.Kind, env.Payload); err != nil {
		slog.Error("Failed to process report", "device_id", deviceID, "kind", env.Kind, "error", err)
	}
}

func (r *Registry) IsOnline(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[deviceID]
	return ok
}

// Emit sends a command over the device's live channel. Fire-and-forget: the
// command counts as delivered once handed to the channel.
func (r *Registry) Emit(deviceID string, kind protocol.Kind, payload protocol.Payload) error {
	r.mu.Lock()
	session, ok := r.sessions[deviceID]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, deviceID)
	}
	return session.Channel.Send(kind, payload)
}

// Connected lists the device IDs with a live session.
func (r *Registry) Connected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// RemoveDevice is the explicit operator removal: it drops any live channel,
// stops the poll schedule, and deletes the device record with its documents.
func (r *Registry) RemoveDevice(ctx context.Context, deviceID string) error {
	r.mu.Lock()
	if session, ok := r.sessions[deviceID]; ok {
		_ = session.Channel.Close()
		delete(r.sessions, deviceID)
	}
	r.mu.Unlock()

	r.poller.Stop(deviceID)
	return r.devices.Remove(ctx, deviceID)
}

// Shutdown closes every live channel and stops every poll schedule.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	for deviceID, session := range r.sessions {
		_ = session.Channel.Close()
		delete(r.sessions, deviceID)
	}
	r.mu.Unlock()

	r.poller.StopAll()
}
