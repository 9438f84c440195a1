package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlink/fleetlink/internal/protocol"
	"github.com/fleetlink/fleetlink/internal/store"
	"github.com/fleetlink/fleetlink/internal/store/memory"
)

func TestFingerprint_FieldBoundaries(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide.
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
	assert.Equal(t, Fingerprint("ab", "c"), Fingerprint("ab", "c"))
	assert.Len(t, Fingerprint("x"), 64)
}

func TestFingerprintSMS_IdentityFields(t *testing.T) {
	a := protocol.SMSEntry{Address: "+15550001111", Body: "hi", Date: 1}
	b := protocol.SMSEntry{Address: "+15550001111", Body: "hi", Date: 99, Type: 2}
	assert.Equal(t, FingerprintSMS(a), FingerprintSMS(b), "date and type are not identity")

	c := protocol.SMSEntry{Address: "+15550001111", Body: "hi!"}
	assert.NotEqual(t, FingerprintSMS(a), FingerprintSMS(c))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+15550001111", NormalizePhone("+1 555 000 1111"))
	assert.Equal(t, "+15550001111", NormalizePhone(" +15550001111 "))
	assert.Equal(t, "", NormalizePhone("   "))
}

func TestDeduplicator_Ingest(t *testing.T) {
	s := memory.New()
	dedup := NewDeduplicator(s)
	ctx := context.Background()

	entry := protocol.SMSEntry{Address: "+15550001111", Body: "hello"}
	fp := FingerprintSMS(entry)
	rec := store.SMSRecord{SMSEntry: entry, Fingerprint: fp}

	outcome, err := dedup.Ingest(ctx, "dev-1", store.CollectionSMS, fp, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)

	outcome, err = dedup.Ingest(ctx, "dev-1", store.CollectionSMS, fp, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	var list []store.SMSRecord
	require.NoError(t, s.ListRecords(ctx, "dev-1", store.CollectionSMS, &list))
	assert.Len(t, list, 1)

	// Same fingerprint on another device is independent.
	outcome, err = dedup.Ingest(ctx, "dev-2", store.CollectionSMS, fp, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)
}

func TestDeduplicator_IngestWifi_RefreshesSighting(t *testing.T) {
	s := memory.New()
	dedup := NewDeduplicator(s)
	ctx := context.Background()

	network := protocol.WifiNetwork{SSID: "home", BSSID: "00:11:22:33:44:55", Level: -60}

	outcome, err := dedup.IngestWifi(ctx, "dev-1", network)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)

	var first store.WifiRecord
	found, err := s.FindRecord(ctx, "dev-1", store.CollectionWifiLog, FingerprintWifi(network), &first)
	require.NoError(t, err)
	require.True(t, found)

	// Re-sighted with a new signal level: refreshed in place, not duplicated.
	network.Level = -40
	outcome, err = dedup.IngestWifi(ctx, "dev-1", network)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, outcome)

	var list []store.WifiRecord
	require.NoError(t, s.ListRecords(ctx, "dev-1", store.CollectionWifiLog, &list))
	require.Len(t, list, 1)
	assert.Equal(t, -40, list[0].Level)
	assert.Equal(t, first.FirstSeen.Unix(), list[0].FirstSeen.Unix())
	assert.False(t, list[0].LastSeen.Before(first.LastSeen))
}
