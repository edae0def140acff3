package providers

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/tphan267/arqut-signal/pkg/logger"
	"github.com/tphan267/arqut-signal/pkg/signaling"
	"github.com/tphan267/arqut-signal/pkg/storage"
)

// Service is the base interface that all providers must implement
type Service interface {
	// Name returns unique service identifier (constant)
	Name() string

	// Initialize sets up the service with dependencies from registry
	Initialize(ctx context.Context, registry *Registry) error

	// IsRunnable indicates if service needs to run in background
	IsRunnable() bool

	// Start starts the service (only called if IsRunnable returns true)
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service
	Stop(ctx context.Context) error

	// RegisterAPIRoutes registers HTTP routes for this service
	RegisterAPIRoutes(router fiber.Router) error
}

// Registry manages service lifecycle and dependencies. Services are
// initialized in registration order, so a service may look up any service
// registered before it.
type Registry struct {
	services  map[string]Service
	ordered   []Service
	runnable  []Service
	db        storage.Storage
	logger    *logger.Logger
	config    any
	sigClient *signaling.Client
}

// NewRegistry creates a new service registry. sigClient may be nil.
func NewRegistry(db storage.Storage, log *logger.Logger, cfg any, sigClient *signaling.Client) *Registry {
	return &Registry{
		services:  make(map[string]Service),
		db:        db,
		logger:    log,
		config:    cfg,
		sigClient: sigClient,
	}
}

// MustRegister registers a service and panics on error (for convenience in main)
func (r *Registry) MustRegister(service Service) {
	if err := r.Register(service); err != nil {
		panic(fmt.Sprintf("Failed to register service %s: %v", service.Name(), err))
	}
}

// DB returns the database storage
func (r *Registry) DB() storage.Storage {
	return r.db
}

// Logger returns the logger
func (r *Registry) Logger() *logger.Logger {
	return r.logger
}

func (r *Registry) Config() any {
	return r.config
}

// SignalingClient returns the signaling client (can be nil if not configured)
func (r *Registry) SignalingClient() *signaling.Client {
	return r.sigClient
}

// Register adds a service to the registry (before initialization)
func (r *Registry) Register(service Service) error {
	name := service.Name()
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("service %s already registered", name)
	}

	r.services[name] = service
	r.ordered = append(r.ordered, service)

	if service.IsRunnable() {
		r.runnable = append(r.runnable, service)
	}

	return nil
}

// InitializeAll initializes all services
func (r *Registry) InitializeAll(ctx context.Context) error {
	for _, service := range r.ordered {
		r.logger.Debug("[Registry] Initializing service: %s", service.Name())
		if err := service.Initialize(ctx, r); err != nil {
			return fmt.Errorf("failed to initialize service %s: %w", service.Name(), err)
		}
	}

	r.logger.Info("[Registry] %d services initialized", len(r.ordered))
	return nil
}

// StartRunnable starts all background services
func (r *Registry) StartRunnable(ctx context.Context) error {
	if len(r.runnable) == 0 {
		r.logger.Debug("[Registry] No runnable services to start")
		return nil
	}

	for _, service := range r.runnable {
		r.logger.Info("[Registry] Starting service: %s", service.Name())

		go func(s Service) {
			if err := s.Start(ctx); err != nil {
				r.logger.Error("[Registry] Service %s stopped with error: %v", s.Name(), err)
			}
		}(service)
	}
	return nil
}

// Shutdown stops all services in reverse registration order
func (r *Registry) Shutdown(ctx context.Context) error {
	for i := len(r.ordered) - 1; i >= 0; i-- {
		service := r.ordered[i]
		r.logger.Debug("[Registry] Stopping service: %s", service.Name())
		if err := service.Stop(ctx); err != nil {
			r.logger.Error("[Registry] Error stopping service %s: %v", service.Name(), err)
		}
	}

	r.logger.Info("[Registry] All services stopped")
	return nil
}

// Get retrieves an initialized service by name
func (r *Registry) Get(name string) (Service, error) {
	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("service %s not found", name)
	}
	return service, nil
}

// RegisterAllRoutes registers API routes for all services
func (r *Registry) RegisterAllRoutes(router fiber.Router) error {
	for _, service := range r.ordered {
		if err := service.RegisterAPIRoutes(router); err != nil {
			return fmt.Errorf("failed to register routes for service %s: %w", service.Name(), err)
		}
	}

	r.logger.Debug("[Registry] Routes registered for %d services", len(r.ordered))
	return nil
}

// GetJournal returns the journal service with type assertion
func (r *Registry) GetJournal() (JournalProvider, error) {
	service, err := r.Get("journal")
	if err != nil {
		return nil, err
	}
	journal, ok := service.(JournalProvider)
	if !ok {
		return nil, fmt.Errorf("service is not a JournalProvider")
	}
	return journal, nil
}

// GetCall returns the call service with type assertion
func (r *Registry) GetCall() (CallProvider, error) {
	service, err := r.Get("call")
	if err != nil {
		return nil, err
	}
	call, ok := service.(CallProvider)
	if !ok {
		return nil, fmt.Errorf("service is not a CallProvider")
	}
	return call, nil
}
