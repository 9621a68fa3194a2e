package handlers

import (
	"errors"

	"lifeline/internal/models"
	"lifeline/internal/services"
	"lifeline/internal/utils"
	"lifeline/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DispatchHandler struct {
	dispatch *services.DispatchService
	log      *logger.Logger
}

func NewDispatchHandler(dispatch *services.DispatchService, log *logger.Logger) *DispatchHandler {
	return &DispatchHandler{
		dispatch: dispatch,
		log:      log,
	}
}

// CreateRequest handles POST /requests
func (h *DispatchHandler) CreateRequest(c *gin.Context) {
	var input services.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.BadRequestResponse(c, "Invalid request data: "+err.Error())
		return
	}

	request, err := h.dispatch.CreateRequest(c.Request.Context(), &input)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCoordinates) {
			utils.BadRequestResponse(c, err.Error())
			return
		}
		h.log.WithError(err).Error("Failed to create emergency request")
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.CreatedResponse(c, "Emergency request created", request)
}

// GetRequest handles GET /requests/:id
func (h *DispatchHandler) GetRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	request, err := h.dispatch.GetRequest(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Request retrieved", request)
}

// GetActiveRequests handles GET /requests/active
func (h *DispatchHandler) GetActiveRequests(c *gin.Context) {
	requests, err := h.dispatch.GetActiveRequests(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to list active requests")
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponse(c, "Active requests retrieved", requests)
}

// Assign handles POST /requests/:id/assign
func (h *DispatchHandler) Assign(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var body struct {
		AmbulanceID string `json:"ambulance_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.BadRequestResponse(c, "Invalid request data: "+err.Error())
		return
	}

	ambulanceID, err := primitive.ObjectIDFromHex(body.AmbulanceID)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid ambulance id")
		return
	}

	request, err := h.dispatch.Assign(c.Request.Context(), id, ambulanceID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ambulance assigned", request)
}

// Dispatch handles POST /requests/:id/dispatch
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var body struct {
		Latitude  *float64 `json:"lat"`
		Longitude *float64 `json:"lng"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		utils.BadRequestResponse(c, "Invalid request data: "+err.Error())
		return
	}

	var position *models.Location
	if body.Latitude != nil && body.Longitude != nil {
		loc := models.NewLocation(*body.Latitude, *body.Longitude)
		position = &loc
	}

	request, err := h.dispatch.Dispatch(c.Request.Context(), id, position)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ambulance dispatched", request)
}

// Arrive handles POST /requests/:id/arrive
func (h *DispatchHandler) Arrive(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	request, err := h.dispatch.Arrive(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Arrival recorded", request)
}

// Complete handles POST /requests/:id/complete
func (h *DispatchHandler) Complete(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	request, err := h.dispatch.Complete(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Request completed", request)
}

// Cancel handles POST /requests/:id/cancel
func (h *DispatchHandler) Cancel(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
		utils.BadRequestResponse(c, "Invalid request data: "+err.Error())
		return
	}

	request, err := h.dispatch.Cancel(c.Request.Context(), id, body.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Request cancelled", request)
}

func (h *DispatchHandler) requestID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid request id")
		return primitive.NilObjectID, false
	}
	return id, true
}

func (h *DispatchHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrRequestNotFound):
		utils.NotFoundResponse(c, "Request")
	case errors.Is(err, models.ErrAmbulanceNotFound):
		utils.NotFoundResponse(c, "Ambulance")
	case errors.Is(err, models.ErrUnitUnavailable):
		utils.ConflictResponse(c, "UNIT_UNAVAILABLE", "Ambulance is not available for assignment")
	case errors.Is(err, models.ErrInvalidTransition):
		utils.ConflictResponse(c, "INVALID_TRANSITION", "Request state does not allow this operation")
	case errors.Is(err, models.ErrInvalidCoordinates):
		utils.BadRequestResponse(c, err.Error())
	default:
		h.log.WithError(err).Error("Dispatch operation failed")
		utils.InternalServerErrorResponse(c)
	}
}
