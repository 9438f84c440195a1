package tests

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetlink/fleetlink/internal/api/http/dto"
	"github.com/fleetlink/fleetlink/internal/protocol"
	"github.com/fleetlink/fleetlink/internal/store"
)

const deviceID = "sys-dev-1"

// simDevice is a scripted device on the other end of a live channel.
type simDevice struct {
	conn *websocket.Conn
}

func dialDevice(t *testing.T, wsURL string) *simDevice {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL+"?id="+deviceID+"&model=Simulator&manf=Test&release=14", nil)
	require.NoError(t, err)
	return &simDevice{conn: conn}
}

func (d *simDevice) readEnvelope(t *testing.T) protocol.Envelope {
	t.Helper()
	require.NoError(t, d.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env protocol.Envelope
	require.NoError(t, d.conn.ReadJSON(&env))
	return env
}

func (d *simDevice) sendReport(t *testing.T, kind protocol.Kind, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, d.conn.WriteJSON(protocol.Envelope{Kind: kind, Payload: data}))
}

func (d *simDevice) close() {
	_ = d.conn.Close()
}

func getDevice(t *testing.T, router *gin.Engine) (dto.DeviceResponse, int) {
	t.Helper()
	rr := doGet(router, "/devices/"+deviceID)
	var resp dto.DeviceResponse
	if rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}
	return resp, rr.Code
}

// TestDeviceLifecycle drives one device through the full loop: connect,
// command delivery, telemetry ingestion, disconnect, offline queueing,
// replay on reconnect, and removal.
func TestDeviceLifecycle(t *testing.T, router *gin.Engine, wsURL string) {
	device := dialDevice(t, wsURL)
	defer device.close()

	welcome := device.readEnvelope(t)
	require.Equal(t, protocol.KindWelcome, welcome.Kind)

	t.Run("connected device is listed", func(t *testing.T) {
		require.Eventually(t, func() bool {
			resp, code := getDevice(t, router)
			return code == http.StatusOK && resp.Connected
		}, 5*time.Second, 20*time.Millisecond)

		resp, _ := getDevice(t, router)
		assert.True(t, resp.Online)
		assert.Equal(t, "Simulator", resp.Metadata.Model)
	})

	t.Run("command reaches live channel", func(t *testing.T) {
		rr := doJSON(router, "POST", "/devices/"+deviceID+"/commands", dto.CommandRequest{Kind: "location"})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.CommandResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "requested", resp.Result)

		env := device.readEnvelope(t)
		assert.Equal(t, protocol.KindLocation, env.Kind)
	})

	t.Run("telemetry lands on the data page", func(t *testing.T) {
		device.sendReport(t, protocol.KindLocation, protocol.LocationReport{
			Enabled:   true,
			Latitude:  48.8566,
			Longitude: 2.3522,
		})

		require.Eventually(t, func() bool {
			rr := doGet(router, "/devices/"+deviceID+"/data/gps")
			if rr.Code != http.StatusOK {
				return false
			}
			var fixes []store.GPSRecord
			if err := json.Unmarshal(rr.Body.Bytes(), &fixes); err != nil {
				return false
			}
			return len(fixes) == 1 && fixes[0].Latitude == 48.8566
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("disconnect marks offline and queues commands", func(t *testing.T) {
		device.close()

		require.Eventually(t, func() bool {
			resp, code := getDevice(t, router)
			return code == http.StatusOK && !resp.Connected && !resp.Online
		}, 5*time.Second, 20*time.Millisecond)

		rr := doJSON(router, "POST", "/devices/"+deviceID+"/commands", dto.CommandRequest{Kind: "contacts"})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.CommandResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "queued", resp.Result)
	})

	t.Run("reconnect replays the queue", func(t *testing.T) {
		device = dialDevice(t, wsURL)

		env := device.readEnvelope(t)
		require.Equal(t, protocol.KindWelcome, env.Kind)

		env = device.readEnvelope(t)
		assert.Equal(t, protocol.KindContacts, env.Kind)
	})

	t.Run("removal deletes the device", func(t *testing.T) {
		rr := doJSON(router, "DELETE", "/devices/"+deviceID, nil)
		require.Equal(t, http.StatusNoContent, rr.Code)

		require.Eventually(t, func() bool {
			_, code := getDevice(t, router)
			return code == http.StatusNotFound
		}, 5*time.Second, 20*time.Millisecond)
	})
}
