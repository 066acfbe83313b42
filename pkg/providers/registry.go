// Package providers dispatches integration jobs to provider handlers.
// Handler failures never leave this package: they are returned as a failed Result.
package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Result is the outcome of a provider operation
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Success builds a passing result
func Success(format string, args ...any) Result {
	return Result{OK: true, Message: fmt.Sprintf(format, args...)}
}

// Failure builds a failing result
func Failure(format string, args ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}

// Handler implements the operations of one provider.
// An error return is normalized into a failed Result by the registry.
type Handler interface {
	Provider() models.Provider
	Test(ctx context.Context, integration *models.Integration) (Result, error)
	Sync(ctx context.Context, integration *models.Integration) (Result, error)
}

// Registry maps providers to their handlers
type Registry struct {
	handlers map[models.Provider]Handler
	mu       sync.RWMutex
	logger   ectologger.Logger
}

// NewRegistry creates a registry with the given handlers
func NewRegistry(logger ectologger.Logger, handlers ...Handler) *Registry {
	r := &Registry{
		handlers: make(map[models.Provider]Handler),
		logger:   logger,
	}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds or replaces the handler for its provider
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Provider()] = h
}

// Handler returns the handler registered for the provider
func (r *Registry) Handler(provider models.Provider) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[provider]
	return h, ok
}

// Dispatch runs the operation for the integration's provider and job type. It never panics
// and never returns an error: unsupported pairs and handler failures come back as a failed Result.
func (r *Registry) Dispatch(ctx context.Context, integration *models.Integration, jobType models.JobType) (result Result) {
	ctx, span := tracing.StartSpan(ctx, "Registry.Dispatch")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": integration.ID,
		"provider":       integration.Provider,
		"job_type":       jobType,
	})

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("Provider handler panicked: %v", rec)
			result = Failure(FallbackMessage)
		}
	}()

	h, ok := r.Handler(integration.Provider)
	if !ok {
		return notAvailable(integration.Provider)
	}

	var err error
	switch jobType {
	case models.JobTypeTest:
		result, err = h.Test(ctx, integration)
	case models.JobTypeSync:
		result, err = h.Sync(ctx, integration)
	default:
		return notAvailable(integration.Provider)
	}

	if err != nil {
		tracing.RecordError(span, err, "provider operation failed")
		log.WithError(err).Warn("Provider operation failed")
		return Failure("%s", Normalize(err))
	}

	if !result.OK && result.Message == "" {
		result.Message = FallbackMessage
	}
	return result
}

func notAvailable(provider models.Provider) Result {
	return Failure("%s: not yet available", provider.Label())
}
