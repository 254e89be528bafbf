package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType represents the type of event.
type EventType string

const (
	// EventScansIngested is emitted after a batch of raw scans is stored.
	EventScansIngested EventType = "scans.ingested"
	// EventSimulationRun is emitted after a growth simulation finishes.
	EventSimulationRun EventType = "simulation.run"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      any
}

// ScansIngestedData contains data for scans ingested events.
type ScansIngestedData struct {
	Count int
	Total int
}

// SimulationRunData contains data for simulation run events.
type SimulationRunData struct {
	WeeklyValue  float64
	DaysRun      int
	Died         bool
	ReachedAdult bool
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewManager creates a new event manager.
func NewManager(enabled bool, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		logger:   logger,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run
// asynchronously on a context detached from the caller's cancellation.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data any) {
	m.mu.RLock()
	enabled := m.enabled
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if !enabled || len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	hctx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		m.wg.Add(1)
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(hctx, event); err != nil {
				m.logger.Warn("event handler failed",
					zap.String("event", string(event.Type)),
					zap.Error(err))
			}
		}(handler)
	}
}

// PublishScansIngested publishes a scans ingested event.
func (m *Manager) PublishScansIngested(ctx context.Context, count, total int) {
	m.Publish(ctx, EventScansIngested, ScansIngestedData{Count: count, Total: total})
}

// PublishSimulationRun publishes a simulation run event.
func (m *Manager) PublishSimulationRun(ctx context.Context, data SimulationRunData) {
	m.Publish(ctx, EventSimulationRun, data)
}

// Wait blocks until every handler started so far has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown stops accepting events and waits for running handlers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.wg.Wait()
}
