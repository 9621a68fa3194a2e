package routes

import (
	"lifeline/internal/handlers"
	"lifeline/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupTrackingRoutes sets up the realtime channel and the desk monitor view
func SetupTrackingRoutes(r *gin.RouterGroup, trackingHandler *handlers.TrackingHandler, jwtSecret string) {
	// Browsers cannot attach an Authorization header to a websocket
	// handshake, so the channel endpoint sits outside the auth groups and
	// validates the request id and role itself.
	r.GET("/ws/requests/:id", trackingHandler.Connect)

	monitor := r.Group("/requests")
	monitor.Use(middleware.AuthRequired(jwtSecret), middleware.ManagerRequired())
	{
		monitor.GET("/:id/monitor", trackingHandler.MonitorSnapshot)
		monitor.DELETE("/:id/monitor", trackingHandler.StopMonitor)
	}
}
