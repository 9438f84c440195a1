package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetlink/fleetlink/internal/api/http/dto"
	"github.com/fleetlink/fleetlink/internal/command"
	"github.com/fleetlink/fleetlink/internal/protocol"
)

type CommandsHandler struct {
	dispatcher *command.Dispatcher
}

func NewCommandsHandler(dispatcher *command.Dispatcher) *CommandsHandler {
	return &CommandsHandler{dispatcher: dispatcher}
}

// PostCommand requests a command for a device. The response reports whether
// the command was delivered to the live channel or queued for redelivery.
// POST /devices/:id/commands
func (h *CommandsHandler) PostCommand(c *gin.Context) {
	deviceID := c.Param("id")

	var req dto.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.dispatcher.Send(c.Request.Context(), deviceID, protocol.Kind(req.Kind), req.Payload)
	if err != nil {
		var validationErr *protocol.ValidationError
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
		case errors.Is(err, protocol.ErrUnknownKind):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, command.ErrUnknownDevice):
			c.JSON(http.StatusNotFound, gin.H{"error": "device unknown"})
		case errors.Is(err, command.ErrDuplicateQueued):
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate command queued"})
		default:
			slog.Error("Failed to dispatch command", "error", err, "device_id", deviceID, "kind", req.Kind)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to dispatch command"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.CommandResponse{Result: string(result)})
}
