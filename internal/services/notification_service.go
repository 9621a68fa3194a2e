package services

import (
	"context"
	"fmt"
	"time"

	"lifeline/internal/models"
	"lifeline/pkg/logger"
	"lifeline/pkg/push"
	"lifeline/pkg/sms"
)

// NotificationService fans dispatch milestones out to the people involved:
// push to the ambulance crew's device, SMS to the requester's contact number.
// Every send is best effort; a provider failure is logged and never surfaces
// to the caller, because a lost text must not roll back a state transition.
type NotificationService struct {
	smsProvider  sms.SMSProvider
	pushProvider push.PushProvider
	smsFrom      string
	log          *logger.Logger
}

func NewNotificationService(smsProvider sms.SMSProvider, pushProvider push.PushProvider, smsFrom string, log *logger.Logger) *NotificationService {
	return &NotificationService{
		smsProvider:  smsProvider,
		pushProvider: pushProvider,
		smsFrom:      smsFrom,
		log:          log,
	}
}

// NotifyAssigned pushes the new mission to the assigned unit's device.
func (s *NotificationService) NotifyAssigned(ctx context.Context, request *models.EmergencyRequest, ambulance *models.Ambulance) {
	if s.pushProvider == nil || ambulance.DeviceToken == "" {
		return
	}

	_, err := s.pushProvider.SendNotification(ctx, &push.NotificationRequest{
		Token: ambulance.DeviceToken,
		Title: "New emergency assignment",
		Body:  fmt.Sprintf("Proceed to patient at %.5f, %.5f", request.Location.Latitude(), request.Location.Longitude()),
		Data: map[string]string{
			"request_id": request.ID.Hex(),
			"type":       "assignment",
		},
	})
	if err != nil {
		s.log.WithError(err).WithRequestID(request.ID).Warn("Failed to push assignment notification")
	}
}

// NotifyDispatched texts the requester that a unit is on the way.
func (s *NotificationService) NotifyDispatched(ctx context.Context, request *models.EmergencyRequest, ambulance *models.Ambulance) {
	unit := "An ambulance"
	if ambulance != nil && ambulance.CallSign != "" {
		unit = "Ambulance " + ambulance.CallSign
	}
	s.sendSMS(ctx, request, fmt.Sprintf("%s is on the way to your location.", unit))
}

// NotifyArrived texts the requester that the unit has reached them.
func (s *NotificationService) NotifyArrived(ctx context.Context, request *models.EmergencyRequest) {
	s.sendSMS(ctx, request, "Your ambulance has arrived at your location.")
}

// NotifyCancelled texts the requester a cancellation confirmation.
func (s *NotificationService) NotifyCancelled(ctx context.Context, request *models.EmergencyRequest) {
	s.sendSMS(ctx, request, "Your ambulance request has been cancelled.")
}

func (s *NotificationService) sendSMS(ctx context.Context, request *models.EmergencyRequest, message string) {
	if s.smsProvider == nil || request.ContactNumber == "" {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.smsProvider.SendSMS(sendCtx, &sms.SMSRequest{
		To:      request.ContactNumber,
		From:    s.smsFrom,
		Message: message,
	})
	if err != nil {
		s.log.WithError(err).WithRequestID(request.ID).Warn("Failed to send SMS notification")
	}
}
