package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlink/fleetlink/internal/protocol"
	"github.com/fleetlink/fleetlink/internal/store"
)

func setupDataRouter(env *testEnv) *gin.Engine {
	h := NewDataHandler(env.devices, env.store)
	r := gin.New()
	r.GET("/devices/:id/data/:page", h.GetPage)
	return r
}

func TestGetPage_UnknownDeviceAndPage(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", true)
	r := setupDataRouter(env)

	w := doJSON(r, "GET", "/devices/nope/data/sms", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "device not found")

	w = doJSON(r, "GET", "/devices/dev-1/data/blood-type", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "unknown data page")
}

func TestGetPage_CallsSortedAndFiltered(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", true)
	ctx := context.Background()

	calls := []store.CallRecord{
		{CallEntry: protocol.CallEntry{PhoneNo: "+15550001111", Date: 100}, Fingerprint: "fp-1"},
		{CallEntry: protocol.CallEntry{PhoneNo: "+15550002222", Date: 300}, Fingerprint: "fp-2"},
		{CallEntry: protocol.CallEntry{PhoneNo: "5550001111", Date: 200}, Fingerprint: "fp-3"},
	}
	for _, call := range calls {
		require.NoError(t, env.store.AppendRecord(ctx, "dev-1", store.CollectionCalls, call.Fingerprint, call))
	}

	r := setupDataRouter(env)

	w := doJSON(r, "GET", "/devices/dev-1/data/calls", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all []store.CallRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, int64(300), all[0].Date)
	assert.Equal(t, int64(200), all[1].Date)

	// The filter matches on the last six digits, with or without prefix.
	w = doJSON(r, "GET", "/devices/dev-1/data/calls?filter=001111", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var filtered []store.CallRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &filtered))
	assert.Len(t, filtered, 2)
}

func TestGetPage_SMSWithStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", true)
	ctx := context.Background()

	rec := store.SMSRecord{Fingerprint: "fp-1"}
	rec.Address = "+15550001111"
	rec.Body = "hello"
	require.NoError(t, env.store.AppendRecord(ctx, "dev-1", store.CollectionSMS, "fp-1", rec))
	now := time.Now()
	require.NoError(t, env.store.SetDoc(ctx, "dev-1", store.DocSMSStatus, store.SMSStatus{LastUpdated: &now, ItemCount: 1}))

	r := setupDataRouter(env)
	w := doJSON(r, "GET", "/devices/dev-1/data/sms", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items  []store.SMSRecord `json:"items"`
		Status store.SMSStatus   `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, 1, resp.Status.ItemCount)
}

func TestGetPage_EmptyDocsTolerated(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", true)
	r := setupDataRouter(env)

	// Pages backed by never-written documents still answer with empty data.
	for _, page := range []string{"sms", "wifi", "apps", "files", "permissions", "camera", "clipboard"} {
		w := doJSON(r, "GET", "/devices/dev-1/data/"+page, nil)
		assert.Equal(t, http.StatusOK, w.Code, "page %s", page)
	}
}

func TestGetPage_DownloadsSplitByType(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", true)
	ctx := context.Background()

	records := []store.DownloadRecord{
		{Type: "download", OriginalName: "file.zip"},
		{Type: "voiceRecord", OriginalName: "rec.mp3"},
	}
	for i, rec := range records {
		require.NoError(t, env.store.AppendRecord(ctx, "dev-1", store.CollectionDownloads, string(rune('a'+i)), rec))
	}

	r := setupDataRouter(env)

	w := doJSON(r, "GET", "/devices/dev-1/data/downloads", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var downloads []store.DownloadRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &downloads))
	require.Len(t, downloads, 1)
	assert.Equal(t, "file.zip", downloads[0].OriginalName)

	w = doJSON(r, "GET", "/devices/dev-1/data/microphone", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var recordings []store.DownloadRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recordings))
	require.Len(t, recordings, 1)
	assert.Equal(t, "rec.mp3", recordings[0].OriginalName)
}

func TestGetPage_Info(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "dev-1", true)
	r := setupDataRouter(env)

	w := doJSON(r, "GET", "/devices/dev-1/data/info", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var device store.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &device))
	assert.Equal(t, "dev-1", device.ID)
	assert.Equal(t, "Pixel", device.Metadata.Model)
}
