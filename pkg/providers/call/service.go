package call

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/pion/webrtc/v4"
	"github.com/tphan267/arqut-signal/pkg/api"
	"github.com/tphan267/arqut-signal/pkg/config"
	"github.com/tphan267/arqut-signal/pkg/providers"
	"github.com/tphan267/arqut-signal/pkg/signaling"
)

// Service implements the providers.Service interface for the call peer
type Service struct {
	peer     *Peer
	registry *providers.Registry
}

// NewService creates a new call service instance
func NewService() *Service {
	return &Service{}
}

// Name returns the service name
func (s *Service) Name() string {
	return "call"
}

// Initialize creates the peer and installs it as the signaling client's
// handler, behind the journal when one is registered.
func (s *Service) Initialize(ctx context.Context, registry *providers.Registry) error {
	s.registry = registry

	sigClient := registry.SignalingClient()
	if sigClient == nil {
		registry.Logger().Info("[Call] Signaling client not configured, calls disabled")
		return nil
	}

	var iceServers []webrtc.ICEServer
	if cfg, ok := registry.Config().(*config.Config); ok {
		iceServers = cfg.ICEServers()
	}

	peer, err := NewPeer(iceServers, sigClient, registry.Logger())
	if err != nil {
		return fmt.Errorf("failed to create call peer: %w", err)
	}
	s.peer = peer

	var handler signaling.Handler = peer
	if journal, err := registry.GetJournal(); err == nil {
		handler = journal.Wrap(handler)
	}
	sigClient.SetHandler(handler)

	registry.Logger().Debug("[Call] Initialized")
	return nil
}

func (s *Service) IsRunnable() bool {
	return false
}

func (s *Service) Start(ctx context.Context) error {
	return nil
}

// Stop closes any active call
func (s *Service) Stop(ctx context.Context) error {
	s.Hangup()
	return nil
}

// RegisterAPIRoutes adds call endpoints
func (s *Service) RegisterAPIRoutes(router fiber.Router) error {
	// GET /api/call - peer connection status
	router.Get("/call", func(c *fiber.Ctx) error {
		if s.peer == nil {
			return api.ErrorUnavailableResp(c, "Call service not available")
		}
		return api.SuccessResp(c, s.peer.Status())
	})

	// DELETE /api/call - hang up
	router.Delete("/call", func(c *fiber.Ctx) error {
		if s.peer == nil {
			return api.ErrorUnavailableResp(c, "Call service not available")
		}
		s.peer.Hangup()
		return api.SuccessResp(c, fiber.Map{"message": "Call closed"})
	})

	return nil
}

// Status reports the call state; a disabled service reports no role.
func (s *Service) Status() providers.CallStatus {
	if s.peer == nil {
		return providers.CallStatus{Role: RoleNone}
	}
	return s.peer.Status()
}

func (s *Service) Hangup() {
	if s.peer != nil {
		s.peer.Hangup()
	}
}

// Peer returns the underlying peer, nil when signaling is not configured
func (s *Service) Peer() *Peer {
	return s.peer
}

var _ providers.Service = (*Service)(nil)
var _ providers.CallProvider = (*Service)(nil)
