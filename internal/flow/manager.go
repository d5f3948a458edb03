// Package flow implements the setup-flow engine: short-lived flow instances
// that render declarative form schemas, evaluate one step submission at a
// time, and finish with either a created entry or an abort.
package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager errors.
var (
	ErrFlowNotFound   = errors.New("flow instance not found")
	ErrUnknownHandler = errors.New("unknown flow handler")
)

// Handler evaluates one step of a flow. A nil or empty input means the step
// is being displayed for the first time and must render its form without
// validating.
type Handler interface {
	// StepID names the step the handler owns.
	StepID() string

	// HandleStep evaluates the step for the given raw user input.
	HandleStep(ctx context.Context, input map[string]interface{}) (*Result, error)
}

// HandlerFactory creates a fresh handler for each flow instance.
type HandlerFactory func() Handler

// instance is one in-progress flow. Its mutex guarantees at most one active
// step evaluation per flow instance at a time.
type instance struct {
	mu        sync.Mutex
	id        string
	handler   Handler
	createdAt time.Time
}

// ManagerConfig holds configuration for the flow manager.
type ManagerConfig struct {
	// TTL is how long an untouched flow instance survives before it is
	// discarded. Abandoned forms have no side effects, so discarding is
	// safe. Default: 10 minutes.
	TTL time.Duration

	Logger zerolog.Logger
}

// Manager owns the set of in-progress flow instances.
type Manager struct {
	mu        sync.Mutex
	flows     map[string]*instance
	factories map[string]HandlerFactory
	ttl       time.Duration
	logger    zerolog.Logger
}

// NewManager creates a flow manager.
func NewManager(cfg ManagerConfig) *Manager {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}

	return &Manager{
		flows:     make(map[string]*instance),
		factories: make(map[string]HandlerFactory),
		ttl:       ttl,
		logger:    cfg.Logger,
	}
}

// Register adds a handler factory under the given flow type name.
func (m *Manager) Register(name string, factory HandlerFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = factory
}

// Start creates a new flow instance of the given type and evaluates its
// first step with no input, which renders the initial form.
func (m *Manager) Start(ctx context.Context, name string) (*Result, error) {
	m.mu.Lock()
	factory, ok := m.factories[name]
	if !ok {
		m.mu.Unlock()
		return nil, ErrUnknownHandler
	}

	m.pruneLocked()

	inst := &instance{
		id:        uuid.New().String(),
		handler:   factory(),
		createdAt: time.Now(),
	}
	m.flows[inst.id] = inst
	m.mu.Unlock()

	m.logger.Debug().Str("flow_id", inst.id).Str("handler", name).Msg("flow started")

	return m.evaluate(ctx, inst, nil)
}

// Submit evaluates the flow's step with user input. Terminal results remove
// the instance.
func (m *Manager) Submit(ctx context.Context, flowID string, input map[string]interface{}) (*Result, error) {
	m.mu.Lock()
	inst, ok := m.flows[flowID]
	if ok && time.Since(inst.createdAt) > m.ttl {
		delete(m.flows, flowID)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrFlowNotFound
	}

	return m.evaluate(ctx, inst, input)
}

// evaluate runs the handler under the instance lock and retires the
// instance when the result is terminal.
func (m *Manager) evaluate(ctx context.Context, inst *instance, input map[string]interface{}) (*Result, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	result, err := inst.handler.HandleStep(ctx, input)
	if err != nil {
		return nil, err
	}

	result.FlowID = inst.id
	if result.StepID == "" {
		result.StepID = inst.handler.StepID()
	}

	if result.Terminal() {
		m.mu.Lock()
		delete(m.flows, inst.id)
		m.mu.Unlock()

		m.logger.Debug().
			Str("flow_id", inst.id).
			Str("result", string(result.Type)).
			Msg("flow finished")
	}

	return result, nil
}

// pruneLocked drops expired instances. Callers must hold m.mu.
func (m *Manager) pruneLocked() {
	cutoff := time.Now().Add(-m.ttl)
	for id, inst := range m.flows {
		if inst.createdAt.Before(cutoff) {
			delete(m.flows, id)
		}
	}
}
