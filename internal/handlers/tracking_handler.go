package handlers

import (
	"errors"

	"lifeline/internal/models"
	"lifeline/internal/realtime"
	"lifeline/internal/services"
	"lifeline/internal/utils"
	"lifeline/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TrackingHandler exposes the realtime surface: the per-request websocket
// channel and the dispatch desk's monitor snapshot.
type TrackingHandler struct {
	hub      *realtime.Hub
	dispatch *services.DispatchService
	monitors *services.MonitorService
	log      *logger.Logger
}

func NewTrackingHandler(hub *realtime.Hub, dispatch *services.DispatchService, monitors *services.MonitorService, log *logger.Logger) *TrackingHandler {
	return &TrackingHandler{
		hub:      hub,
		dispatch: dispatch,
		monitors: monitors,
		log:      log,
	}
}

// Connect handles GET /ws/requests/:id. The role query parameter declares
// which side of the channel the connection speaks for; observers are
// accepted on any request, the two active roles only while the request is
// still live.
func (h *TrackingHandler) Connect(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid request id")
		return
	}

	role := realtime.Role(c.Query("role"))
	switch role {
	case realtime.RoleAmbulance, realtime.RolePatient, realtime.RoleObserver:
	default:
		utils.BadRequestResponse(c, "Role must be ambulance, patient or observer")
		return
	}

	request, err := h.dispatch.GetRequest(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrRequestNotFound) {
			utils.NotFoundResponse(c, "Request")
			return
		}
		h.log.WithError(err).Error("Failed to load request for tracking")
		utils.InternalServerErrorResponse(c)
		return
	}

	if request.Status.IsTerminal() && role != realtime.RoleObserver {
		utils.ConflictResponse(c, "REQUEST_CLOSED", "Request is no longer active")
		return
	}

	if err := realtime.ServeWS(h.hub, c.Writer, c.Request, id.Hex(), role); err != nil {
		h.log.WithError(err).WithRequestID(id).Warn("Websocket upgrade failed")
	}
}

// MonitorSnapshot handles GET /requests/:id/monitor
func (h *TrackingHandler) MonitorSnapshot(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid request id")
		return
	}

	snapshot, err := h.monitors.Snapshot(id)
	if err != nil {
		if errors.Is(err, models.ErrRequestNotFound) {
			utils.NotFoundResponse(c, "Request")
			return
		}
		h.log.WithError(err).Error("Failed to build monitor snapshot")
		utils.InternalServerErrorResponse(c)
		return
	}

	utils.SuccessResponse(c, "Monitor snapshot", snapshot)
}

// StopMonitor handles DELETE /requests/:id/monitor
func (h *TrackingHandler) StopMonitor(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid request id")
		return
	}

	h.monitors.StopObserving(id)
	utils.SuccessResponse(c, "Monitor stopped", nil)
}
