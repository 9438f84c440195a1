package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlink/fleetlink/internal/store"
)

func TestDeviceRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetDevice(ctx, "dev-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	device := &store.Device{
		ID:        "dev-1",
		FirstSeen: time.Now().Truncate(time.Second),
		Online:    true,
		Metadata:  store.DeviceMetadata{Model: "Pixel", Manufacturer: "Google"},
	}
	require.NoError(t, s.PutDevice(ctx, device))

	got, err := s.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", got.ID)
	assert.True(t, got.Online)
	assert.Equal(t, "Pixel", got.Metadata.Model)
}

func TestListDevices_InsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.PutDevice(ctx, &store.Device{ID: id}))
	}
	// Re-put must not duplicate or reorder.
	require.NoError(t, s.PutDevice(ctx, &store.Device{ID: "a", Online: true}))

	list, err := s.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, "b", list[2].ID)
	assert.True(t, list[1].Online)
}

func TestDeleteDevice_PurgesEverything(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.PutDevice(ctx, &store.Device{ID: "dev-1"}))
	require.NoError(t, s.SetDoc(ctx, "dev-1", store.DocGPSSettings, store.GPSSettings{UpdateFrequency: 60}))
	require.NoError(t, s.AppendRecord(ctx, "dev-1", store.CollectionSMS, "fp-1", store.SMSRecord{Fingerprint: "fp-1"}))
	key, err := s.SaveBlob(ctx, "dev-1", "a.bin", []byte{1, 2, 3})
	require.NoError(t, err)

	require.NoError(t, s.DeleteDevice(ctx, "dev-1"))

	_, err = s.GetDevice(ctx, "dev-1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	var settings store.GPSSettings
	assert.ErrorIs(t, s.GetDoc(ctx, "dev-1", store.DocGPSSettings, &settings), store.ErrNotFound)

	found, err := s.FindRecord(ctx, "dev-1", store.CollectionSMS, "fp-1", nil)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.GetBlob(ctx, key)
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListDevices(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDocRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SetDoc(ctx, "dev-1", store.DocGPSSettings, store.GPSSettings{UpdateFrequency: 45}))

	var settings store.GPSSettings
	require.NoError(t, s.GetDoc(ctx, "dev-1", store.DocGPSSettings, &settings))
	assert.Equal(t, 45, settings.UpdateFrequency)

	// Overwrite.
	require.NoError(t, s.SetDoc(ctx, "dev-1", store.DocGPSSettings, store.GPSSettings{UpdateFrequency: 90}))
	require.NoError(t, s.GetDoc(ctx, "dev-1", store.DocGPSSettings, &settings))
	assert.Equal(t, 90, settings.UpdateFrequency)
}

func TestRecords_FindUpdateRemove(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := store.ContactRecord{Fingerprint: "fp-1"}
	rec.Name = "Alice"
	rec.PhoneNo = "+15550001111"
	require.NoError(t, s.AppendRecord(ctx, "dev-1", store.CollectionContacts, "fp-1", rec))

	var got store.ContactRecord
	found, err := s.FindRecord(ctx, "dev-1", store.CollectionContacts, "fp-1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Alice", got.Name)

	found, err = s.FindRecord(ctx, "dev-1", store.CollectionContacts, "fp-missing", nil)
	require.NoError(t, err)
	assert.False(t, found)

	rec.Name = "Alice B"
	require.NoError(t, s.UpdateRecord(ctx, "dev-1", store.CollectionContacts, "fp-1", rec))
	_, err = s.FindRecord(ctx, "dev-1", store.CollectionContacts, "fp-1", &got)
	require.NoError(t, err)
	assert.Equal(t, "Alice B", got.Name)

	assert.ErrorIs(t, s.UpdateRecord(ctx, "dev-1", store.CollectionContacts, "fp-missing", rec), store.ErrNotFound)

	require.NoError(t, s.RemoveRecord(ctx, "dev-1", store.CollectionContacts, "fp-1"))
	assert.ErrorIs(t, s.RemoveRecord(ctx, "dev-1", store.CollectionContacts, "fp-1"), store.ErrNotFound)
}

func TestAppendRecord_DuplicateFingerprintRejected(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := store.ContactRecord{Fingerprint: "fp-1"}
	rec.Name = "Alice"
	require.NoError(t, s.AppendRecord(ctx, "dev-1", store.CollectionContacts, "fp-1", rec))
	assert.ErrorIs(t, s.AppendRecord(ctx, "dev-1", store.CollectionContacts, "fp-1", rec), store.ErrDuplicate)

	// The same fingerprint in another collection or for another device is fine.
	require.NoError(t, s.AppendRecord(ctx, "dev-1", store.CollectionSMS, "fp-1", store.SMSRecord{Fingerprint: "fp-1"}))
	require.NoError(t, s.AppendRecord(ctx, "dev-2", store.CollectionContacts, "fp-1", rec))

	var listed []store.ContactRecord
	require.NoError(t, s.ListRecords(ctx, "dev-1", store.CollectionContacts, &listed))
	assert.Len(t, listed, 1)
}

func TestListRecords_InsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i, fp := range []string{"fp-b", "fp-a", "fp-c"} {
		rec := store.SMSRecord{Fingerprint: fp}
		rec.Body = fp
		rec.Date = int64(i)
		require.NoError(t, s.AppendRecord(ctx, "dev-1", store.CollectionSMS, fp, rec))
	}

	var list []store.SMSRecord
	require.NoError(t, s.ListRecords(ctx, "dev-1", store.CollectionSMS, &list))
	require.Len(t, list, 3)
	assert.Equal(t, "fp-b", list[0].Fingerprint)
	assert.Equal(t, "fp-a", list[1].Fingerprint)
	assert.Equal(t, "fp-c", list[2].Fingerprint)
}

func TestListRecords_EmptyCollection(t *testing.T) {
	s := New()

	var list []store.SMSRecord
	require.NoError(t, s.ListRecords(context.Background(), "dev-1", store.CollectionSMS, &list))
	assert.Empty(t, list)
}

func TestBlobs(t *testing.T) {
	s := New()
	ctx := context.Background()

	payload := []byte("payload bytes")
	key, err := s.SaveBlob(ctx, "dev-1", "report.pdf", payload)
	require.NoError(t, err)
	assert.Contains(t, key, "report.pdf")

	got, err := s.GetBlob(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Stored copy must not alias the caller's slice.
	payload[0] = 'X'
	got, err = s.GetBlob(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, byte('p'), got[0])

	// Same name twice gets distinct keys.
	key2, err := s.SaveBlob(ctx, "dev-1", "report.pdf", []byte("other"))
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
}
