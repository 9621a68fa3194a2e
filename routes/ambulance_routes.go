package routes

import (
	"lifeline/internal/handlers"
	"lifeline/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupAmbulanceRoutes sets up routes for fleet management
func SetupAmbulanceRoutes(r *gin.RouterGroup, ambulanceHandler *handlers.AmbulanceHandler, jwtSecret string) {
	ambulances := r.Group("/ambulances")
	ambulances.Use(middleware.AuthRequired(jwtSecret))
	{
		ambulances.GET("", ambulanceHandler.List)
		ambulances.GET("/available", ambulanceHandler.GetAvailable)
		ambulances.GET("/:id", ambulanceHandler.GetByID)
	}

	admin := r.Group("/ambulances")
	admin.Use(middleware.AuthRequired(jwtSecret), middleware.ManagerRequired())
	{
		admin.POST("", ambulanceHandler.Register)
		admin.POST("/:id/maintenance", ambulanceHandler.SetMaintenance)
		admin.POST("/:id/return", ambulanceHandler.ReturnToService)
	}

	operator := r.Group("/ambulances")
	operator.Use(middleware.AuthRequired(jwtSecret), middleware.AmbulanceRequired())
	{
		operator.PUT("/:id/location", ambulanceHandler.UpdateLocation)
	}
}
