// Package registry maps intent types to realm handler registrations. The
// registry is an in-memory, mutex-guarded catalog: handlers register at
// startup and the executor consults it on every submission.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intentd/internal/execution"
)

// Registry errors.
var (
	ErrInvalidRegistration = errors.New("invalid handler registration")
	ErrNotRegistered       = errors.New("handler not registered")
)

// Registration binds an intent type to a realm handler.
type Registration struct {
	// IntentType the handler accepts.
	IntentType string
	// HandlerName is the realm the handler serves.
	HandlerName string
	// Fn is the handler implementation.
	Fn execution.HandlerFunc
	// Fields is the parameter allow-list; only these intent parameters
	// reach the handler. Empty means the handler takes no parameters.
	Fields []string
	// Metadata carries free-form registration annotations.
	Metadata map[string]string
}

// Registry is the handler catalog.
type Registry struct {
	logger *zap.Logger

	mu sync.RWMutex
	// byIntent preserves registration order per intent type.
	byIntent map[string][]Registration
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logger:   logger,
		byIntent: make(map[string][]Registration),
	}
}

// Register adds a handler for an intent type. Re-registering the same
// intent type and handler name updates the registration in place and keeps
// its position.
func (r *Registry) Register(reg Registration) error {
	if reg.IntentType == "" || reg.HandlerName == "" || reg.Fn == nil {
		return fmt.Errorf("%w: intent type, handler name and handler func are required", ErrInvalidRegistration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.byIntent[reg.IntentType]
	for i, existing := range regs {
		if existing.HandlerName == reg.HandlerName {
			regs[i] = reg
			r.logger.Info("handler registration updated",
				zap.String("intent_type", reg.IntentType),
				zap.String("handler", reg.HandlerName),
			)
			return nil
		}
	}
	r.byIntent[reg.IntentType] = append(regs, reg)
	r.logger.Info("handler registered",
		zap.String("intent_type", reg.IntentType),
		zap.String("handler", reg.HandlerName),
	)
	return nil
}

// Unregister removes a handler. Removing an unknown registration fails with
// ErrNotRegistered.
func (r *Registry) Unregister(intentType, handlerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.byIntent[intentType]
	for i, existing := range regs {
		if existing.HandlerName == handlerName {
			r.byIntent[intentType] = append(regs[:i:i], regs[i+1:]...)
			if len(r.byIntent[intentType]) == 0 {
				delete(r.byIntent, intentType)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrNotRegistered, intentType, handlerName)
}

// Lookup returns the registrations for an intent type in registration order.
// The returned slice is a copy; mutating it does not affect the registry.
func (r *Registry) Lookup(intentType string) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.byIntent[intentType]
	if len(regs) == 0 {
		return nil
	}
	out := make([]Registration, len(regs))
	copy(out, regs)
	return out
}

// IntentTypes returns the intent types with at least one handler.
func (r *Registry) IntentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.byIntent))
	for t := range r.byIntent {
		types = append(types, t)
	}
	return types
}
