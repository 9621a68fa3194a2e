package services

import (
	"context"
	"sort"
	"time"

	"lifeline/internal/models"
	"lifeline/internal/repositories/interfaces"
	"lifeline/internal/utils"
	"lifeline/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AmbulanceService manages the fleet roster. Availability flips are driven
// by DispatchService as request side effects; the only direct availability
// operation exposed here is taking a unit in and out of maintenance.
type AmbulanceService struct {
	ambulances interfaces.AmbulanceRepository
	log        *logger.Logger
}

func NewAmbulanceService(ambulances interfaces.AmbulanceRepository, log *logger.Logger) *AmbulanceService {
	return &AmbulanceService{
		ambulances: ambulances,
		log:        log,
	}
}

type RegisterAmbulanceInput struct {
	VehicleNumber string `json:"vehicle_number" binding:"required"`
	CallSign      string `json:"call_sign"`
	Hospital      string `json:"hospital"`
	DriverName    string `json:"driver_name"`
	DriverContact string `json:"driver_contact"`
	DeviceToken   string `json:"device_token"`
}

func (s *AmbulanceService) Register(ctx context.Context, input *RegisterAmbulanceInput) (*models.Ambulance, error) {
	now := time.Now()
	ambulance := &models.Ambulance{
		VehicleNumber: input.VehicleNumber,
		CallSign:      input.CallSign,
		Hospital:      input.Hospital,
		DriverName:    input.DriverName,
		DriverContact: input.DriverContact,
		DeviceToken:   input.DeviceToken,
		Availability:  models.AmbulanceAvailable,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.ambulances.Create(ctx, ambulance); err != nil {
		return nil, err
	}

	s.log.WithAmbulanceID(ambulance.ID).Info("Ambulance registered")
	return ambulance, nil
}

func (s *AmbulanceService) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Ambulance, error) {
	return s.ambulances.GetByID(ctx, id)
}

func (s *AmbulanceService) List(ctx context.Context) ([]*models.Ambulance, error) {
	return s.ambulances.List(ctx)
}

func (s *AmbulanceService) GetAvailable(ctx context.Context) ([]*models.Ambulance, error) {
	return s.ambulances.GetAvailable(ctx)
}

// UnitSuggestion is one candidate for an assignment, ranked by straight-line
// distance from the incident.
type UnitSuggestion struct {
	Ambulance  *models.Ambulance `json:"ambulance"`
	DistanceKM float64           `json:"distance_km"`
	BearingDeg float64           `json:"bearing_deg"`
	ETAMinutes int               `json:"eta_minutes"`
}

// SuggestNearest ranks available units by distance from the given incident
// coordinates. Units with no known standing position are skipped; units
// beyond the search radius do not make the list. radiusKM <= 0 falls back to
// the default search radius, limit <= 0 to the default page size; both are
// clamped to their maximums.
func (s *AmbulanceService) SuggestNearest(ctx context.Context, latitude, longitude, radiusKM float64, limit int) ([]UnitSuggestion, error) {
	location := models.NewLocation(latitude, longitude)
	if err := location.Validate(); err != nil {
		return nil, err
	}

	if radiusKM <= 0 {
		radiusKM = utils.DefaultSearchRadiusKM
	}
	if radiusKM > utils.MaxDispatchDistanceKM {
		radiusKM = utils.MaxDispatchDistanceKM
	}
	if limit <= 0 {
		limit = utils.DefaultPageSize
	}
	if limit > utils.MaxPageSize {
		limit = utils.MaxPageSize
	}

	available, err := s.ambulances.GetAvailable(ctx)
	if err != nil {
		return nil, err
	}

	suggestions := make([]UnitSuggestion, 0, len(available))
	for _, unit := range available {
		if unit.CurrentLocation == nil {
			continue
		}
		unitLat := unit.CurrentLocation.Latitude()
		unitLng := unit.CurrentLocation.Longitude()
		if !utils.IsWithinRadius(latitude, longitude, unitLat, unitLng, radiusKM) {
			continue
		}

		distance := utils.CalculateDistance(latitude, longitude, unitLat, unitLng)
		suggestions = append(suggestions, UnitSuggestion{
			Ambulance:  unit,
			DistanceKM: distance,
			BearingDeg: utils.CalculateBearing(unitLat, unitLng, latitude, longitude),
			ETAMinutes: utils.EstimateETAMinutes(distance, 0),
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].DistanceKM < suggestions[j].DistanceKM
	})
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}

	return suggestions, nil
}

// SetMaintenance takes a unit out of the pool. Refused while the unit is on
// a mission.
func (s *AmbulanceService) SetMaintenance(ctx context.Context, id primitive.ObjectID) error {
	if err := s.ambulances.SetMaintenance(ctx, id); err != nil {
		return err
	}
	s.log.WithAmbulanceID(id).Info("Ambulance moved to maintenance")
	return nil
}

// ReturnToService brings a maintenance unit back to available.
func (s *AmbulanceService) ReturnToService(ctx context.Context, id primitive.ObjectID) error {
	if err := s.ambulances.Release(ctx, id); err != nil {
		return err
	}
	s.log.WithAmbulanceID(id).Info("Ambulance returned to service")
	return nil
}

// UpdateLocation records the unit's standing position, used for choosing the
// nearest available unit when assigning.
func (s *AmbulanceService) UpdateLocation(ctx context.Context, id primitive.ObjectID, latitude, longitude float64) error {
	location := models.NewLocation(latitude, longitude)
	if err := location.Validate(); err != nil {
		return err
	}
	return s.ambulances.SetCurrentLocation(ctx, id, location)
}
