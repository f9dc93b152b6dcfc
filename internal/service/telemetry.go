package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/hjemla/easeewatch/internal/api/easee"
	"github.com/hjemla/easeewatch/internal/models"
)

// ChargerAPI is the slice of the Easee client the pipeline needs.
type ChargerAPI interface {
	ListChargers(ctx context.Context, token string) ([]easee.Charger, error)
	GetChargerState(ctx context.Context, token, chargerID string) (*easee.ChargerObservation, error)
}

// SessionManager guards the authenticated session the pipeline fetches with.
type SessionManager interface {
	EnsureValid(ctx context.Context) error
	AccessToken() string
}

// TelemetryService is the fetch pipeline: ensure the session is valid, list
// the chargers, then fetch each charger's state in listing order.
type TelemetryService struct {
	logger  *zap.Logger
	api     ChargerAPI
	session SessionManager
}

// NewTelemetryService creates the fetch pipeline.
func NewTelemetryService(logger *zap.Logger, api ChargerAPI, session SessionManager) *TelemetryService {
	return &TelemetryService{
		logger:  logger,
		api:     api,
		session: session,
	}
}

// FetchAll fetches the current state of every charger. The first per-charger
// error aborts the whole call; partial results are never returned.
func (s *TelemetryService) FetchAll(ctx context.Context) ([]models.ChargerState, error) {
	if err := s.session.EnsureValid(ctx); err != nil {
		return nil, err
	}
	token := s.session.AccessToken()

	chargers, err := s.api.ListChargers(ctx, token)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Listed chargers", zap.Int("count", len(chargers)))

	states := make([]models.ChargerState, 0, len(chargers))
	for _, ch := range chargers {
		obs, err := s.api.GetChargerState(ctx, token, ch.ID)
		if err != nil {
			return nil, err
		}

		states = append(states, models.ChargerState{
			ID:            ch.ID,
			Power:         *obs.TotalPower,
			Session:       *obs.SessionEnergy,
			EnergyPerHour: *obs.EnergyPerHour,
		})
	}

	return states, nil
}
