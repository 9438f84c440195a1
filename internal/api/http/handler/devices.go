package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetlink/fleetlink/internal/api/http/dto"
	"github.com/fleetlink/fleetlink/internal/devices"
	"github.com/fleetlink/fleetlink/internal/poll"
	"github.com/fleetlink/fleetlink/internal/session"
	"github.com/fleetlink/fleetlink/internal/store"
)

type DevicesHandler struct {
	devices  *devices.Service
	registry *session.Registry
	poller   *poll.Driver
}

func NewDevicesHandler(devs *devices.Service, registry *session.Registry, poller *poll.Driver) *DevicesHandler {
	return &DevicesHandler{devices: devs, registry: registry, poller: poller}
}

// ListDevices returns all known devices, optionally filtered by state.
// GET /devices?state=online|offline
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	deviceList, err := h.devices.List(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list devices", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list devices"})
		return
	}

	state := c.Query("state")
	responses := make([]dto.DeviceResponse, 0, len(deviceList))
	for _, device := range deviceList {
		if state == "online" && !device.Online {
			continue
		}
		if state == "offline" && device.Online {
			continue
		}
		responses = append(responses, h.toResponse(device))
	}

	c.JSON(http.StatusOK, dto.ListDevicesResponse{Devices: responses})
}

// GetDevice returns details for one device.
// GET /devices/:id
func (h *DevicesHandler) GetDevice(c *gin.Context) {
	deviceID := c.Param("id")

	device, err := h.devices.Get(c.Request.Context(), deviceID)
	if err != nil {
		if errors.Is(err, devices.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		slog.Error("Failed to get device", "error", err, "device_id", deviceID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get device"})
		return
	}

	c.JSON(http.StatusOK, h.toResponse(*device))
}

// DeleteDevice removes a device: its record, its documents, and any live
// channel.
// DELETE /devices/:id
func (h *DevicesHandler) DeleteDevice(c *gin.Context) {
	deviceID := c.Param("id")

	if err := h.registry.RemoveDevice(c.Request.Context(), deviceID); err != nil {
		slog.Error("Failed to remove device", "error", err, "device_id", deviceID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove device"})
		return
	}

	c.Status(http.StatusNoContent)
}

// SetPollInterval updates the device's location poll interval.
// PUT /devices/:id/poll
func (h *DevicesHandler) SetPollInterval(c *gin.Context) {
	deviceID := c.Param("id")

	var req dto.PollIntervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.poller.SetInterval(c.Request.Context(), deviceID, req.Seconds); err != nil {
		if errors.Is(err, poll.ErrIntervalTooShort) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "polling too short"})
			return
		}
		slog.Error("Failed to set poll interval", "error", err, "device_id", deviceID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set poll interval"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"seconds": req.Seconds})
}

func (h *DevicesHandler) toResponse(device store.Device) dto.DeviceResponse {
	return dto.DeviceResponse{
		ID:        device.ID,
		FirstSeen: device.FirstSeen,
		LastSeen:  device.LastSeen,
		Online:    device.Online,
		Connected: h.registry.IsOnline(device.ID),
		Metadata:  device.Metadata,
	}
}
