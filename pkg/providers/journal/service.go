package journal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tphan267/arqut-signal/pkg/api"
	"github.com/tphan267/arqut-signal/pkg/logger"
	"github.com/tphan267/arqut-signal/pkg/models"
	"github.com/tphan267/arqut-signal/pkg/providers"
	"github.com/tphan267/arqut-signal/pkg/signaling"
	"github.com/tphan267/arqut-signal/pkg/storage/repositories"
)

// MaxListLimit bounds the ?limit= query parameter.
const MaxListLimit = 1000

// Service keeps a sqlite journal of signaling notifications
type Service struct {
	repo      *repositories.EventRepository
	logger    *logger.Logger
	sessionID string
	room      string
}

// NewService creates a new journal service
func NewService() *Service {
	return &Service{}
}

// Name returns the service name
func (s *Service) Name() string {
	return "journal"
}

// Initialize binds the journal to the registry's storage
func (s *Service) Initialize(ctx context.Context, registry *providers.Registry) error {
	if registry.DB() == nil {
		return errors.New("journal requires storage")
	}
	s.repo = registry.DB().Events()
	s.logger = registry.Logger()
	s.sessionID = uuid.NewString()
	if client := registry.SignalingClient(); client != nil {
		s.room = client.Room()
	}

	s.logger.Debug("[Journal] Session %s", s.sessionID)
	return nil
}

func (s *Service) IsRunnable() bool {
	return false
}

func (s *Service) Start(ctx context.Context) error {
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	return nil
}

// RegisterAPIRoutes registers journal routes
func (s *Service) RegisterAPIRoutes(router fiber.Router) error {
	router.Get("/events", s.handleListEvents)
	router.Post("/metrics", s.handleGetMetrics)
	return nil
}

func (s *Service) SessionID() string {
	return s.sessionID
}

// Wrap returns a handler that records each notification before forwarding it
func (s *Service) Wrap(next signaling.Handler) signaling.Handler {
	if next == nil {
		next = signaling.NopHandler{}
	}
	return &Recorder{journal: s, next: next}
}

// Record stores one event for the current session
func (s *Service) Record(kind, peerID, detail string) error {
	if s.repo == nil {
		return errors.New("journal not initialized")
	}
	return s.repo.Create(&models.CallEvent{
		SessionID: s.sessionID,
		Room:      s.room,
		Kind:      kind,
		PeerID:    peerID,
		Detail:    detail,
	})
}

// Events lists recorded events
func (s *Service) Events(ctx context.Context, filter models.EventFilter) ([]*models.CallEvent, error) {
	if s.repo == nil {
		return nil, errors.New("journal not initialized")
	}
	return s.repo.List(filter)
}

// GetMetrics counts events by kind, optionally restricted to the given kinds
func (s *Service) GetMetrics(ctx context.Context, query providers.MetricsQuery) (*providers.MetricsResult, error) {
	if s.repo == nil {
		return nil, errors.New("journal not initialized")
	}

	counts, err := s.repo.CountByKind(models.EventFilter{SessionID: query.SessionID, Room: query.Room})
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	result := &providers.MetricsResult{Counts: make(map[string]int, len(counts))}
	for kind, n := range counts {
		if len(query.Kinds) > 0 && !slices.Contains(query.Kinds, kind) {
			continue
		}
		result.Counts[kind] = n
		result.Total += n
	}
	return result, nil
}

// handleListEvents handles GET /api/events
func (s *Service) handleListEvents(c *fiber.Ctx) error {
	filter := models.EventFilter{
		SessionID: c.Query("session"),
		Room:      c.Query("room"),
		Kind:      c.Query("kind"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > MaxListLimit {
			return api.ErrorBadRequestResp(c, fmt.Sprintf("limit must be between 1 and %d", MaxListLimit))
		}
		filter.Limit = limit
	}

	events, err := s.Events(c.Context(), filter)
	if err != nil {
		s.logger.Error("[Journal] Failed to list events: %v", err)
		return api.ErrorInternalServerErrorResp(c, "Failed to list events")
	}
	return api.SuccessResp(c, events)
}

// handleGetMetrics handles POST /api/metrics
func (s *Service) handleGetMetrics(c *fiber.Ctx) error {
	var query providers.MetricsQuery
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&query); err != nil {
			return api.ErrorBadRequestResp(c, "Invalid request body")
		}
	}

	result, err := s.GetMetrics(c.Context(), query)
	if err != nil {
		s.logger.Error("[Journal] Failed to get metrics: %v", err)
		return api.ErrorInternalServerErrorResp(c, "Failed to get metrics")
	}
	return api.SuccessResp(c, result)
}

var _ providers.Service = (*Service)(nil)
var _ providers.JournalProvider = (*Service)(nil)
