package http

import (
	"github.com/gin-gonic/gin"

	"github.com/fleetlink/fleetlink/internal/api/http/handler"
	"github.com/fleetlink/fleetlink/internal/api/http/middleware"
	"github.com/fleetlink/fleetlink/internal/command"
	"github.com/fleetlink/fleetlink/internal/devices"
	"github.com/fleetlink/fleetlink/internal/poll"
	"github.com/fleetlink/fleetlink/internal/session"
	"github.com/fleetlink/fleetlink/internal/store"
)

type Services struct {
	Devices    *devices.Service
	Dispatcher *command.Dispatcher
	Registry   *session.Registry
	Poller     *poll.Driver
	Store      store.Store
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	devicesHandler := handler.NewDevicesHandler(srvs.Devices, srvs.Registry, srvs.Poller)
	engine.GET("/devices", devicesHandler.ListDevices)
	engine.GET("/devices/:id", devicesHandler.GetDevice)
	engine.DELETE("/devices/:id", devicesHandler.DeleteDevice)
	engine.PUT("/devices/:id/poll", devicesHandler.SetPollInterval)

	dataHandler := handler.NewDataHandler(srvs.Devices, srvs.Store)
	engine.GET("/devices/:id/data/:page", dataHandler.GetPage)

	commandsHandler := handler.NewCommandsHandler(srvs.Dispatcher)
	engine.POST("/devices/:id/commands", commandsHandler.PostCommand)
}
