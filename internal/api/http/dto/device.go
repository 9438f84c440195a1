package dto

import (
	"time"

	"github.com/fleetlink/fleetlink/internal/store"
)

type DeviceResponse struct {
	ID        string               `json:"id"`
	FirstSeen time.Time            `json:"first_seen"`
	LastSeen  time.Time            `json:"last_seen"`
	Online    bool                 `json:"online"`
	Connected bool                 `json:"connected"`
	Metadata  store.DeviceMetadata `json:"metadata"`
}

type ListDevicesResponse struct {
	Devices []DeviceResponse `json:"devices"`
}

type CommandRequest struct {
	Kind    string         `json:"kind" binding:"required"`
	Payload map[string]any `json:"payload"`
}

type CommandResponse struct {
	Result string `json:"result"`
}

type PollIntervalRequest struct {
	Seconds int `json:"seconds" binding:"required"`
}
