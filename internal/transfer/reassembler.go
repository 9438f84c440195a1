// Package transfer reassembles binary payloads delivered over a device
// channel as an ordered sequence of base64 fragments.
package transfer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetlink/fleetlink/internal/store"
)

// ErrReconstruction marks a transfer that could not be decoded. The transfer
// state is discarded and the payload is not retried.
var ErrReconstruction = errors.New("transfer reconstruction failed")

var ErrUnknownTransfer = errors.New("unknown transfer")

const (
	idleExpiry   = 2 * time.Minute
	reapInterval = 30 * time.Second
)

// Meta describes a transfer as declared by its begin signal.
type Meta struct {
	Name        string
	Path        string
	TotalChunks int
	TotalSize   int64
}

type state struct {
	deviceID     string
	meta         Meta
	chunks       []string
	present      []bool
	recordType   string
	startedAt    time.Time
	lastActivity time.Time
}

// Reassembler accumulates in-flight transfers in memory. Transfers that never
// see an end signal are reaped after an idle expiry.
type Reassembler struct {
	mu        sync.Mutex
	transfers map[string]*state
	store     store.Store
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func New(st store.Store) *Reassembler {
	r := &Reassembler{
		transfers: make(map[string]*state),
		store:     st,
		stopCh:    make(chan struct{}),
	}
	go r.reapLoop()
	return r
}

// Begin allocates state for a transfer. Overwriting an existing ID is allowed
// but is a protocol anomaly worth noting.
func (r *Reassembler) Begin(deviceID, transferID string, meta Meta) {
	if meta.TotalChunks < 0 {
		meta.TotalChunks = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.transfers[transferID]; ok {
		slog.Warn("Transfer restarted before completion, discarding previous state",
			"transfer_id", transferID, "device_id", deviceID)
	}

	now := time.Now()
	r.transfers[transferID] = &state{
		deviceID:     deviceID,
		meta:         meta,
		chunks:       make([]string, meta.TotalChunks),
		present:      make([]bool, meta.TotalChunks),
		recordType:   "download",
		startedAt:    now,
		lastActivity: now,
	}
}

// Fragment stores data at position index. Unknown transfer IDs and
// out-of-range indexes are observed and dropped; the wire side is not
// authenticated.
func (r *Reassembler) Fragment(transferID string, index int, data string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.transfers[transferID]
	if !ok {
		slog.Debug("Fragment for unknown transfer dropped", "transfer_id", transferID, "index", index)
		return
	}
	if index < 0 || index >= len(st.chunks) {
		slog.Debug("Out-of-range fragment dropped",
			"transfer_id", transferID, "index", index, "total", len(st.chunks))
		return
	}

	st.chunks[index] = data
	st.present[index] = true
	st.lastActivity = time.Now()
}

// End consumes the transfer: fragments are concatenated in index order,
// decoded, persisted to the blob area, and recorded as a download for the
// owning device. The transfer state is discarded whether or not this
// succeeds.
func (r *Reassembler) End(ctx context.Context, transferID string) error {
	r.mu.Lock()
	st, ok := r.transfers[transferID]
	delete(r.transfers, transferID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransfer, transferID)
	}

	for i, present := range st.present {
		if !present {
			err := fmt.Errorf("%w: missing fragment %d of %d", ErrReconstruction, i, len(st.chunks))
			slog.Error("Transfer reconstruction failed",
				"transfer_id", transferID, "device_id", st.deviceID, "error", err)
			return err
		}
	}

	if err := r.persist(ctx, st); err != nil {
		slog.Error("Transfer persistence failed",
			"transfer_id", transferID, "device_id", st.deviceID, "error", err)
		return err
	}

	slog.Info("Transfer completed",
		"transfer_id", transferID,
		"device_id", st.deviceID,
		"name", st.meta.Name,
		"chunks", len(st.chunks),
		"elapsed", time.Since(st.startedAt))
	return nil
}

// Single ingests a payload delivered in one shot: the degenerate one-fragment
// case, sharing the decode/persist/record path with chunked transfers.
// recordType is "download" or "voiceRecord".
func (r *Reassembler) Single(ctx context.Context, deviceID, name, encoded, recordType string) error {
	st := &state{
		deviceID:   deviceID,
		meta:       Meta{Name: name},
		chunks:     []string{encoded},
		recordType: recordType,
		startedAt:  time.Now(),
	}
	return r.persist(ctx, st)
}

func (r *Reassembler) persist(ctx context.Context, st *state) error {
	payload, err := base64.StdEncoding.DecodeString(strings.Join(st.chunks, ""))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReconstruction, err)
	}

	key, err := r.store.SaveBlob(ctx, st.deviceID, st.meta.Name, payload)
	if err != nil {
		return fmt.Errorf("failed to persist payload: %w", err)
	}

	rec := store.DownloadRecord{
		Time:         time.Now(),
		Type:         st.recordType,
		OriginalName: st.meta.Name,
		BlobKey:      key,
		Size:         len(payload),
	}
	if err := r.store.AppendRecord(ctx, st.deviceID, store.CollectionDownloads, uuid.NewString(), rec); err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

func (r *Reassembler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Reassembler) reapLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reapIdle()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reassembler) reapIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, st := range r.transfers {
		if now.Sub(st.lastActivity) > idleExpiry {
			slog.Warn("Reaping abandoned transfer",
				"transfer_id", id,
				"device_id", st.deviceID,
				"name", st.meta.Name,
				"idle", now.Sub(st.lastActivity))
			delete(r.transfers, id)
		}
	}
}
