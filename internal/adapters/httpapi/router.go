// Package httpapi exposes the request/response half of the signaling surface.
// Every reply is a JSON object; failures are reported through an "error" key
// in a 200 response so clients never have to branch on transport codes.
package httpapi

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openmeet/openmeet/internal/app"
	"github.com/openmeet/openmeet/internal/config"
	"github.com/openmeet/openmeet/internal/directory"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter builds the gin engine with the REST surface. The websocket
// endpoint is registered separately by the signal adapter.
func SetupRouter(cfg *config.Config, mgr *app.Manager, dir *directory.Directory) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.HTTP.Secret))
	r.Use(sessions.Sessions("OpenMeetSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &Handlers{Manager: mgr, Directory: dir}

	api := r.Group("/signaling")
	api.POST("/fetch-capabilities", h.FetchCapabilities)
	api.POST("/user-info", h.UserInfo)
	api.POST("/create-rooms", h.CreateRooms)
	api.POST("/room-state", h.RoomState)
	api.POST("/heartbeat", h.Heartbeat)
	api.POST("/leave", h.Leave)
	api.POST("/create-transport", h.CreateTransport)
	api.POST("/connect-transport", h.ConnectTransport)
	api.POST("/close-transport", h.CloseTransport)
	api.POST("/send-track", h.SendTrack)
	api.POST("/recv-track", h.RecvTrack)
	api.POST("/pause-producer", h.PauseProducer)
	api.POST("/resume-producer", h.ResumeProducer)
	api.POST("/close-producer", h.CloseProducer)
	api.POST("/pause-consumer", h.PauseConsumer)
	api.POST("/resume-consumer", h.ResumeConsumer)
	api.POST("/close-consumer", h.CloseConsumer)
	api.POST("/consumer-set-layers", h.ConsumerSetLayers)
	api.POST("/start-record", h.StartRecord)

	return r
}
