// Package ingest turns inbound device reports into stored telemetry records,
// deduplicating them by content fingerprint.
package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/fleetlink/fleetlink/internal/protocol"
	"github.com/fleetlink/fleetlink/internal/store"
)

// Outcome reports what ingesting a record did.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeRefreshed Outcome = "refreshed"
	OutcomeDuplicate Outcome = "duplicate"
)

// Fingerprint hashes the kind-specific identity fields of a record into a
// stable content fingerprint. Fields are separated so adjacent values cannot
// collide across boundaries.
func Fingerprint(fields ...string) string {
	hasher := blake3.New()
	for i, field := range fields {
		if i > 0 {
			hasher.Write([]byte{0x1f})
		}
		hasher.Write([]byte(field))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Per-kind identity fields, matching what makes each record one logical
// observation.

func FingerprintCall(e protocol.CallEntry) string {
	return Fingerprint(e.PhoneNo, strconv.FormatInt(e.Date, 10))
}

func FingerprintSMS(e protocol.SMSEntry) string {
	return Fingerprint(e.Address, e.Body)
}

func FingerprintContact(e protocol.ContactEntry) string {
	return Fingerprint(e.PhoneNo, e.Name)
}

func FingerprintWifi(n protocol.WifiNetwork) string {
	return Fingerprint(n.SSID, n.BSSID)
}

func FingerprintNotification(n protocol.NotificationReport) string {
	return Fingerprint(n.Key, n.Content)
}

// NormalizePhone strips whitespace so the same contact reported with
// different spacing fingerprints identically.
func NormalizePhone(phone string) string {
	return strings.Join(strings.Fields(phone), "")
}

// Deduplicator is a query-then-write helper over the Telemetry Store. It has
// no failure states of its own.
type Deduplicator struct {
	store store.Store
}

func NewDeduplicator(st store.Store) *Deduplicator {
	return &Deduplicator{store: st}
}

// IsNovel reports whether no record for (device, collection) carries the
// fingerprint.
func (d *Deduplicator) IsNovel(ctx context.Context, deviceID string, col store.Collection, fingerprint string) (bool, error) {
	found, err := d.store.FindRecord(ctx, deviceID, col, fingerprint, nil)
	if err != nil {
		return false, err
	}
	return !found, nil
}

// Ingest persists rec under its fingerprint if novel.
func (d *Deduplicator) Ingest(ctx context.Context, deviceID string, col store.Collection, fingerprint string, rec any) (Outcome, error) {
	novel, err := d.IsNovel(ctx, deviceID, col, fingerprint)
	if err != nil {
		return "", err
	}
	if !novel {
		return OutcomeDuplicate, nil
	}
	if err := d.store.AppendRecord(ctx, deviceID, col, fingerprint, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("failed to append record: %w", err)
	}
	return OutcomeInserted, nil
}

// IngestWifi applies the wifi-specific repeat semantics: a re-sighted network
// refreshes its last-seen time instead of inserting a duplicate.
func (d *Deduplicator) IngestWifi(ctx context.Context, deviceID string, network protocol.WifiNetwork) (Outcome, error) {
	fingerprint := FingerprintWifi(network)
	now := time.Now()

	var existing store.WifiRecord
	found, err := d.store.FindRecord(ctx, deviceID, store.CollectionWifiLog, fingerprint, &existing)
	if err != nil {
		return "", err
	}

	if found {
		existing.WifiNetwork = network
		existing.LastSeen = now
		if err := d.store.UpdateRecord(ctx, deviceID, store.CollectionWifiLog, fingerprint, existing); err != nil {
			return "", fmt.Errorf("failed to refresh wifi sighting: %w", err)
		}
		return OutcomeRefreshed, nil
	}

	rec := store.WifiRecord{
		WifiNetwork: network,
		Fingerprint: fingerprint,
		FirstSeen:   now,
		LastSeen:    now,
	}
	if err := d.store.AppendRecord(ctx, deviceID, store.CollectionWifiLog, fingerprint, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			if err := d.store.UpdateRecord(ctx, deviceID, store.CollectionWifiLog, fingerprint, rec); err != nil {
				return "", fmt.Errorf("failed to refresh wifi sighting: %w", err)
			}
			return OutcomeRefreshed, nil
		}
		return "", fmt.Errorf("failed to append wifi sighting: %w", err)
	}
	return OutcomeInserted, nil
}
