package handlers

import (
	"errors"
	"strconv"

	"lifeline/internal/models"
	"lifeline/internal/services"
	"lifeline/internal/utils"
	"lifeline/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AmbulanceHandler struct {
	ambulances *services.AmbulanceService
	log        *logger.Logger
}

func NewAmbulanceHandler(ambulances *services.AmbulanceService, log *logger.Logger) *AmbulanceHandler {
	return &AmbulanceHandler{
		ambulances: ambulances,
		log:        log,
	}
}

// Register handles POST /ambulances
func (h *AmbulanceHandler) Register(c *gin.Context) {
	var input services.RegisterAmbulanceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.BadRequestResponse(c, "Invalid request data: "+err.Error())
		return
	}

	ambulance, err := h.ambulances.Register(c.Request.Context(), &input)
	if err != nil {
		h.log.WithError(err).Error("Failed to register ambulance")
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.CreatedResponse(c, "Ambulance registered", ambulance)
}

// List handles GET /ambulances
func (h *AmbulanceHandler) List(c *gin.Context) {
	ambulances, err := h.ambulances.List(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to list ambulances")
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponse(c, "Ambulances retrieved", ambulances)
}

// GetAvailable handles GET /ambulances/available. With lat and lng query
// parameters the available units come back ranked by distance from that
// point (optional radius_km and limit narrow the list); without them it is
// the plain availability roster.
func (h *AmbulanceHandler) GetAvailable(c *gin.Context) {
	if c.Query("lat") != "" || c.Query("lng") != "" {
		h.suggestNearest(c)
		return
	}

	ambulances, err := h.ambulances.GetAvailable(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to list available ambulances")
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponse(c, "Available ambulances retrieved", ambulances)
}

func (h *AmbulanceHandler) suggestNearest(c *gin.Context) {
	latitude, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid lat")
		return
	}
	longitude, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid lng")
		return
	}

	radiusKM := 0.0
	if raw := c.Query("radius_km"); raw != "" {
		if radiusKM, err = strconv.ParseFloat(raw, 64); err != nil {
			utils.BadRequestResponse(c, "Invalid radius_km")
			return
		}
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			utils.BadRequestResponse(c, "Invalid limit")
			return
		}
	}

	suggestions, err := h.ambulances.SuggestNearest(c.Request.Context(), latitude, longitude, radiusKM, limit)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCoordinates) {
			utils.BadRequestResponse(c, err.Error())
			return
		}
		h.log.WithError(err).Error("Failed to rank available ambulances")
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponse(c, "Nearest available ambulances", suggestions)
}

// GetByID handles GET /ambulances/:id
func (h *AmbulanceHandler) GetByID(c *gin.Context) {
	id, ok := h.ambulanceID(c)
	if !ok {
		return
	}

	ambulance, err := h.ambulances.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ambulance retrieved", ambulance)
}

// SetMaintenance handles POST /ambulances/:id/maintenance
func (h *AmbulanceHandler) SetMaintenance(c *gin.Context) {
	id, ok := h.ambulanceID(c)
	if !ok {
		return
	}

	if err := h.ambulances.SetMaintenance(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ambulance moved to maintenance", nil)
}

// ReturnToService handles POST /ambulances/:id/return
func (h *AmbulanceHandler) ReturnToService(c *gin.Context) {
	id, ok := h.ambulanceID(c)
	if !ok {
		return
	}

	if err := h.ambulances.ReturnToService(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ambulance returned to service", nil)
}

// UpdateLocation handles PUT /ambulances/:id/location
func (h *AmbulanceHandler) UpdateLocation(c *gin.Context) {
	id, ok := h.ambulanceID(c)
	if !ok {
		return
	}

	var body struct {
		Latitude  float64 `json:"lat" binding:"required"`
		Longitude float64 `json:"lng" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "Invalid request data: "+err.Error())
		return
	}

	if err := h.ambulances.UpdateLocation(c.Request.Context(), id, body.Latitude, body.Longitude); err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Location updated", nil)
}

func (h *AmbulanceHandler) ambulanceID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid ambulance id")
		return primitive.NilObjectID, false
	}
	return id, true
}

func (h *AmbulanceHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrAmbulanceNotFound):
		utils.NotFoundResponse(c, "Ambulance")
	case errors.Is(err, models.ErrUnitUnavailable):
		utils.ConflictResponse(c, "UNIT_UNAVAILABLE", "Ambulance is on a mission")
	case errors.Is(err, models.ErrInvalidCoordinates):
		utils.BadRequestResponse(c, err.Error())
	default:
		h.log.WithError(err).Error("Ambulance operation failed")
		utils.InternalServerErrorResponse(c)
	}
}
