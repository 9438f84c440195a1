package ws

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/fleetlink/fleetlink/internal/geo"
	"github.com/fleetlink/fleetlink/internal/protocol"
	"github.com/fleetlink/fleetlink/internal/session"
	"github.com/fleetlink/fleetlink/internal/store"
)

// Handler accepts device connections. A device identifies itself through
// connection-time query parameters; the coordinator emits a greeting as soon
// as the channel is up, then registers the session and pumps inbound reports
// into the registry until the channel drops.
type Handler struct {
	registry *session.Registry
	resolver geo.Resolver
	upgrader websocket.Upgrader
}

func NewHandler(registry *session.Registry, resolver geo.Resolver) *Handler {
	return &Handler{
		registry: registry,
		resolver: resolver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The device side is unauthenticated by contract.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade device connection", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	params := r.URL.Query()
	deviceID := params.Get("id")
	if deviceID == "" {
		deviceID = store.DefaultDeviceID
	}

	address := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		address = host
	}

	meta := store.DeviceMetadata{
		Address:      address,
		Geo:          h.resolver.Lookup(address),
		Model:        paramOr(params.Get("model"), "Unknown"),
		Manufacturer: paramOr(params.Get("manf"), "Unknown"),
		OSVersion:    paramOr(params.Get("release"), "Unknown"),
	}

	ch := newChannel(conn, address)

	if err := ch.Send(protocol.KindWelcome, nil); err != nil {
		slog.Error("Failed to greet device", "device_id", deviceID, "error", err)
		_ = ch.Close()
		return
	}

	// The channel outlives the HTTP request; store operations for this
	// session must not be tied to the request context.
	ctx := context.Background()

	gen, err := h.registry.Connect(ctx, ch, deviceID, meta)
	if err != nil {
		slog.Error("Failed to register device", "device_id", deviceID, "error", err)
		_ = ch.Close()
		return
	}

	defer func() {
		h.registry.Disconnect(ctx, deviceID, gen)
		_ = ch.Close()
	}()

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("Device channel error", "device_id", deviceID, "error", err)
			}
			return
		}
		h.registry.HandleReport(ctx, deviceID, env)
	}
}

func paramOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
