package transfer

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlink/fleetlink/internal/store"
	"github.com/fleetlink/fleetlink/internal/store/memory"
)

func newTestReassembler(t *testing.T) (*Reassembler, *memory.Store) {
	t.Helper()
	s := memory.New()
	r := New(s)
	t.Cleanup(r.Stop)
	return r, s
}

func splitEncoded(payload []byte, parts int) []string {
	encoded := base64.StdEncoding.EncodeToString(payload)
	chunkLen := (len(encoded) + parts - 1) / parts
	chunks := make([]string, 0, parts)
	for i := 0; i < len(encoded); i += chunkLen {
		end := i + chunkLen
		if end > len(encoded) {
			end = len(encoded)
		}
		chunks = append(chunks, encoded[i:end])
	}
	return chunks
}

func TestReassembler_OutOfOrderFragments(t *testing.T) {
	r, s := newTestReassembler(t)
	ctx := context.Background()

	payload := []byte("AABBCCDDEEFF reconstructed from shuffled fragments")
	chunks := splitEncoded(payload, 4)

	r.Begin("dev-1", "tr-1", Meta{Name: "photo.jpg", TotalChunks: len(chunks)})
	for _, i := range []int{2, 0, 3, 1} {
		r.Fragment("tr-1", i, chunks[i])
	}
	require.NoError(t, r.End(ctx, "tr-1"))

	var downloads []store.DownloadRecord
	require.NoError(t, s.ListRecords(ctx, "dev-1", store.CollectionDownloads, &downloads))
	require.Len(t, downloads, 1)
	assert.Equal(t, "photo.jpg", downloads[0].OriginalName)
	assert.Equal(t, len(payload), downloads[0].Size)

	data, err := s.GetBlob(ctx, downloads[0].BlobKey)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestReassembler_MissingFragment(t *testing.T) {
	r, s := newTestReassembler(t)
	ctx := context.Background()

	chunks := splitEncoded([]byte("incomplete delivery"), 3)
	r.Begin("dev-1", "tr-1", Meta{Name: "file.bin", TotalChunks: 3})
	r.Fragment("tr-1", 0, chunks[0])
	r.Fragment("tr-1", 2, chunks[2])

	err := r.End(ctx, "tr-1")
	assert.ErrorIs(t, err, ErrReconstruction)

	// The transfer is consumed either way; a second end is unknown.
	assert.ErrorIs(t, r.End(ctx, "tr-1"), ErrUnknownTransfer)

	var downloads []store.DownloadRecord
	require.NoError(t, s.ListRecords(ctx, "dev-1", store.CollectionDownloads, &downloads))
	assert.Empty(t, downloads)
}

func TestReassembler_UnknownAndOutOfRangeFragmentsDropped(t *testing.T) {
	r, s := newTestReassembler(t)
	ctx := context.Background()

	// No begin signal: dropped without state.
	r.Fragment("tr-ghost", 0, "AAAA")
	assert.ErrorIs(t, r.End(ctx, "tr-ghost"), ErrUnknownTransfer)

	chunks := splitEncoded([]byte("bounds"), 2)
	r.Begin("dev-1", "tr-1", Meta{Name: "b.bin", TotalChunks: 2})
	r.Fragment("tr-1", -1, "AAAA")
	r.Fragment("tr-1", 2, "AAAA")
	r.Fragment("tr-1", 0, chunks[0])
	r.Fragment("tr-1", 1, chunks[1])
	require.NoError(t, r.End(ctx, "tr-1"))

	var downloads []store.DownloadRecord
	require.NoError(t, s.ListRecords(ctx, "dev-1", store.CollectionDownloads, &downloads))
	assert.Len(t, downloads, 1)
}

func TestReassembler_RestartDiscardsPreviousState(t *testing.T) {
	r, s := newTestReassembler(t)
	ctx := context.Background()

	stale := splitEncoded([]byte("stale transfer"), 2)
	r.Begin("dev-1", "tr-1", Meta{Name: "old.bin", TotalChunks: 2})
	r.Fragment("tr-1", 0, stale[0])

	fresh := splitEncoded([]byte("fresh transfer"), 2)
	r.Begin("dev-1", "tr-1", Meta{Name: "new.bin", TotalChunks: 2})
	r.Fragment("tr-1", 0, fresh[0])
	r.Fragment("tr-1", 1, fresh[1])
	require.NoError(t, r.End(ctx, "tr-1"))

	var downloads []store.DownloadRecord
	require.NoError(t, s.ListRecords(ctx, "dev-1", store.CollectionDownloads, &downloads))
	require.Len(t, downloads, 1)
	assert.Equal(t, "new.bin", downloads[0].OriginalName)

	data, err := s.GetBlob(ctx, downloads[0].BlobKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh transfer"), data)
}

func TestReassembler_UndecodableTransfer(t *testing.T) {
	r, _ := newTestReassembler(t)
	ctx := context.Background()

	r.Begin("dev-1", "tr-1", Meta{Name: "bad.bin", TotalChunks: 1})
	r.Fragment("tr-1", 0, "not***base64")
	assert.ErrorIs(t, r.End(ctx, "tr-1"), ErrReconstruction)
}

func TestReassembler_Single(t *testing.T) {
	r, s := newTestReassembler(t)
	ctx := context.Background()

	audio := []byte("one-shot voice recording")
	encoded := base64.StdEncoding.EncodeToString(audio)
	require.NoError(t, r.Single(ctx, "dev-1", "rec.mp3", encoded, "voiceRecord"))

	var downloads []store.DownloadRecord
	require.NoError(t, s.ListRecords(ctx, "dev-1", store.CollectionDownloads, &downloads))
	require.Len(t, downloads, 1)
	assert.Equal(t, "voiceRecord", downloads[0].Type)

	data, err := s.GetBlob(ctx, downloads[0].BlobKey)
	require.NoError(t, err)
	assert.Equal(t, audio, data)
}

func TestReassembler_ReapsIdleTransfers(t *testing.T) {
	r, _ := newTestReassembler(t)

	r.Begin("dev-1", "tr-stale", Meta{Name: "s.bin", TotalChunks: 2})
	r.Begin("dev-1", "tr-live", Meta{Name: "l.bin", TotalChunks: 2})

	r.mu.Lock()
	r.transfers["tr-stale"].lastActivity = time.Now().Add(-idleExpiry - time.Second)
	r.mu.Unlock()

	r.reapIdle()

	r.mu.Lock()
	_, staleKept := r.transfers["tr-stale"]
	_, liveKept := r.transfers["tr-live"]
	r.mu.Unlock()
	assert.False(t, staleKept)
	assert.True(t, liveKept)
}
