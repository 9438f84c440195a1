package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/fleetlink/fleetlink/internal/command"
	"github.com/fleetlink/fleetlink/internal/devices"
	"github.com/fleetlink/fleetlink/internal/ingest"
	"github.com/fleetlink/fleetlink/internal/poll"
	"github.com/fleetlink/fleetlink/internal/session"
	"github.com/fleetlink/fleetlink/internal/store"
	"github.com/fleetlink/fleetlink/internal/store/memory"
	"github.com/fleetlink/fleetlink/internal/transfer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	store      *memory.Store
	devices    *devices.Service
	dispatcher *command.Dispatcher
	registry   *session.Registry
	poller     *poll.Driver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := memory.New()
	devs := devices.NewService(s)
	transfers := transfer.New(s)
	t.Cleanup(transfers.Stop)
	reports := ingest.NewRouter(s, ingest.NewDeduplicator(s), transfers)
	dispatcher := command.NewDispatcher(s, devs)
	poller := poll.NewDriver(s, dispatcher)
	registry := session.NewRegistry(devs, dispatcher, poller, reports)
	dispatcher.SetChannels(registry)
	t.Cleanup(registry.Shutdown)
	return &testEnv{store: s, devices: devs, dispatcher: dispatcher, registry: registry, poller: poller}
}

func (e *testEnv) seedDevice(t *testing.T, deviceID string, online bool) {
	t.Helper()
	ctx := context.Background()
	_, err := e.devices.Observe(ctx, deviceID, store.DeviceMetadata{Model: "Pixel"})
	require.NoError(t, err)
	if !online {
		require.NoError(t, e.devices.MarkOffline(ctx, deviceID))
	}
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
