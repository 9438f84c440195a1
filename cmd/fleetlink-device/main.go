// fleetlink-device is a simulated remote agent. It connects to a coordinator
// over the device channel, answers location polls with canned fixes, and
// responds to a handful of command kinds with sample telemetry. Useful for
// exercising a coordinator without real hardware.
package main

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetlink/fleetlink/internal/protocol"
)

func main() {
	InitConfig()
	initLogger(config.Log.Level)

	slog.Info("FleetLink simulated device", "device_id", config.Device.ID, "server", config.Server.Url)

	endpoint, err := url.Parse(config.Server.Url)
	if err != nil {
		slog.Error("Invalid server URL", "error", err)
		os.Exit(1)
	}
	query := endpoint.Query()
	query.Set("id", config.Device.ID)
	query.Set("model", config.Device.Model)
	query.Set("manf", config.Device.Manufacturer)
	query.Set("release", config.Device.OSVersion)
	endpoint.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(endpoint.String(), nil)
	if err != nil {
		slog.Error("Failed to connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				slog.Error("Channel read failed", "error", err)
				return
			}
			handleCommand(conn, env)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}
}

func handleCommand(conn *websocket.Conn, env protocol.Envelope) {
	slog.Info("Command received", "kind", env.Kind)

	switch env.Kind {
	case protocol.KindWelcome:
		// Greeting; nothing to answer.

	case protocol.KindLocation:
		reply(conn, protocol.KindLocation, protocol.LocationReport{
			Enabled:   true,
			Latitude:  52.52,
			Longitude: 13.405,
			Accuracy:  12,
		})

	case protocol.KindSMS:
		var payload protocol.Payload
		_ = json.Unmarshal(env.Payload, &payload)
		if payload["action"] == "sendSMS" {
			// Acknowledge a send with a bare boolean, as real devices do.
			replyRaw(conn, protocol.KindSMS, json.RawMessage("true"))
			return
		}
		reply(conn, protocol.KindSMS, protocol.SMSReport{
			SMSList: []protocol.SMSEntry{
				{Address: "+15550001111", Body: "hello from the simulator", Date: time.Now().UnixMilli()},
			},
		})

	case protocol.KindContacts:
		reply(conn, protocol.KindContacts, protocol.ContactsReport{
			ContactsList: []protocol.ContactEntry{
				{PhoneNo: "+15550001111", Name: "Sim Contact"},
			},
		})

	case protocol.KindWifi:
		reply(conn, protocol.KindWifi, protocol.WifiReport{
			Networks: []protocol.WifiNetwork{
				{SSID: "sim-net", BSSID: "00:11:22:33:44:55", Level: -42},
			},
		})

	case protocol.KindPermissions:
		reply(conn, protocol.KindPermissions, protocol.PermissionsReport{
			Permissions: []string{"android.permission.ACCESS_FINE_LOCATION"},
		})

	default:
		slog.Info("Command not simulated", "kind", env.Kind)
	}
}

func reply(conn *websocket.Conn, kind protocol.Kind, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode report", "kind", kind, "error", err)
		return
	}
	replyRaw(conn, kind, data)
}

func replyRaw(conn *websocket.Conn, kind protocol.Kind, payload json.RawMessage) {
	env := protocol.Envelope{Kind: kind, Payload: payload}
	if err := conn.WriteJSON(env); err != nil {
		slog.Error("Failed to send report", "kind", kind, "error", err)
		return
	}
	slog.Debug("Report sent", "kind", kind)
}
