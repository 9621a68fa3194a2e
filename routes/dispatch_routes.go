package routes

import (
	"lifeline/internal/handlers"
	"lifeline/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupDispatchRoutes sets up routes for the request lifecycle
func SetupDispatchRoutes(r *gin.RouterGroup, dispatchHandler *handlers.DispatchHandler, jwtSecret string) {
	// Creating a request is open: a requester in distress must not be
	// blocked on having an account.
	r.POST("/requests", dispatchHandler.CreateRequest)

	requests := r.Group("/requests")
	requests.Use(middleware.AuthRequired(jwtSecret))
	{
		requests.GET("/active", dispatchHandler.GetActiveRequests)
		requests.GET("/:id", dispatchHandler.GetRequest)
		requests.POST("/:id/cancel", dispatchHandler.Cancel)
	}

	// Assignment is a desk decision; the road transitions belong to the
	// ambulance operator.
	desk := r.Group("/requests")
	desk.Use(middleware.AuthRequired(jwtSecret), middleware.ManagerRequired())
	{
		desk.POST("/:id/assign", dispatchHandler.Assign)
	}

	operator := r.Group("/requests")
	operator.Use(middleware.AuthRequired(jwtSecret), middleware.AmbulanceRequired())
	{
		operator.POST("/:id/dispatch", dispatchHandler.Dispatch)
		operator.POST("/:id/arrive", dispatchHandler.Arrive)
		operator.POST("/:id/complete", dispatchHandler.Complete)
	}
}
