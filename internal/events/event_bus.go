// Package events provides the event bus that fans decision, regime and risk
// events out to subscribers such as the websocket feed and metrics.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/regime"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

// EventType defines the category of event.
type EventType string

const (
	EventTypeDecision     EventType = "decision"
	EventTypeRegimeChange EventType = "regime_change"
	EventTypeTrade        EventType = "trade"
	EventTypeRiskAlert    EventType = "risk_alert"
	EventTypeBreaker      EventType = "breaker"
	EventTypeHeartbeat    EventType = "heartbeat"
)

// Event is the base interface for all published events.
type Event interface {
	GetType() EventType
	GetTimestamp() time.Time
	GetID() string
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *BaseEvent) GetType() EventType      { return e.Type }
func (e *BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e *BaseEvent) GetID() string           { return e.ID }

func newBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

// DecisionEvent carries a completed decision cycle result.
type DecisionEvent struct {
	BaseEvent
	Decision types.Decision `json:"decision"`
}

// RegimeChangeEvent is published when a pair's detected trend state changes.
type RegimeChangeEvent struct {
	BaseEvent
	Pair     string          `json:"pair"`
	Previous regime.Snapshot `json:"previous"`
	Current  regime.Snapshot `json:"current"`
}

// TradeEvent carries a closed-trade result fed back into the engine.
type TradeEvent struct {
	BaseEvent
	Pair        string          `json:"pair"`
	Strategy    string          `json:"strategy"`
	ProfitRatio float64         `json:"profit_ratio"`
	ProfitAbs   decimal.Decimal `json:"profit_abs"`
	ExitReason  string          `json:"exit_reason"`
}

// RiskAlertEvent signals a refused entry or a risk threshold breach.
type RiskAlertEvent struct {
	BaseEvent
	Severity string `json:"severity"`
	Pair     string `json:"pair,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Message  string `json:"message"`
}

// BreakerEvent reports circuit breaker trips and resets.
type BreakerEvent struct {
	BaseEvent
	Tripped bool   `json:"tripped"`
	Reason  string `json:"reason,omitempty"`
}

// NewDecisionEvent wraps a decision for publication.
func NewDecisionEvent(decision types.Decision) *DecisionEvent {
	return &DecisionEvent{BaseEvent: newBaseEvent(EventTypeDecision), Decision: decision}
}

// NewRegimeChangeEvent wraps a regime transition for publication.
func NewRegimeChangeEvent(pair string, previous, current regime.Snapshot) *RegimeChangeEvent {
	return &RegimeChangeEvent{
		BaseEvent: newBaseEvent(EventTypeRegimeChange),
		Pair:      pair,
		Previous:  previous,
		Current:   current,
	}
}

// NewTradeEvent wraps a closed trade for publication.
func NewTradeEvent(pair, strategy string, profitRatio float64, profitAbs decimal.Decimal, exitReason string) *TradeEvent {
	return &TradeEvent{
		BaseEvent:   newBaseEvent(EventTypeTrade),
		Pair:        pair,
		Strategy:    strategy,
		ProfitRatio: profitRatio,
		ProfitAbs:   profitAbs,
		ExitReason:  exitReason,
	}
}

// NewRiskAlertEvent wraps a risk refusal or threshold breach.
func NewRiskAlertEvent(severity, pair, strategy, message string) *RiskAlertEvent {
	return &RiskAlertEvent{
		BaseEvent: newBaseEvent(EventTypeRiskAlert),
		Severity:  severity,
		Pair:      pair,
		Strategy:  strategy,
		Message:   message,
	}
}

// NewBreakerEvent wraps a circuit breaker state change.
func NewBreakerEvent(tripped bool, reason string) *BreakerEvent {
	return &BreakerEvent{BaseEvent: newBaseEvent(EventTypeBreaker), Tripped: tripped, Reason: reason}
}

// EventHandler processes a single event.
type EventHandler func(event Event) error

// Subscription represents an active event subscription.
type Subscription struct {
	ID        string
	EventType EventType
	Handler   EventHandler
	active    atomic.Bool
}

// IsActive reports whether the subscription still receives events.
func (s *Subscription) IsActive() bool {
	return s.active.Load()
}

// BusStats tracks event bus counters.
type BusStats struct {
	EventsPublished   int64 `json:"events_published"`
	EventsProcessed   int64 `json:"events_processed"`
	EventsDropped     int64 `json:"events_dropped"`
	ProcessingErrors  int64 `json:"processing_errors"`
	ActiveSubscribers int64 `json:"active_subscribers"`
}

// BusConfig configures the event bus worker pool.
type BusConfig struct {
	NumWorkers int `json:"numWorkers"`
	BufferSize int `json:"bufferSize"`
}

// DefaultBusConfig returns sensible defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		NumWorkers: 4,
		BufferSize: 4096,
	}
}

// EventBus routes events to subscribers through a worker pool. Publishing
// never blocks; events are dropped and counted when the buffer is full.
type EventBus struct {
	mu             sync.RWMutex
	subscribers    map[EventType][]*Subscription
	allSubscribers []*Subscription

	eventChan   chan Event
	workerCount int

	eventsPublished   atomic.Int64
	eventsProcessed   atomic.Int64
	eventsDropped     atomic.Int64
	processingErrors  atomic.Int64
	activeSubscribers atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewEventBus creates the bus and starts its workers.
func NewEventBus(logger *zap.Logger, config BusConfig) *EventBus {
	workerCount := config.NumWorkers
	if workerCount <= 0 {
		workerCount = 4
	}
	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = 4096
	}

	ctx, cancel := context.WithCancel(context.Background())

	eb := &EventBus{
		subscribers:    make(map[EventType][]*Subscription),
		allSubscribers: make([]*Subscription, 0),
		eventChan:      make(chan Event, bufferSize),
		workerCount:    workerCount,
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger.Named("events"),
	}

	for i := 0; i < workerCount; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}

	eb.logger.Info("event bus started",
		zap.Int("workers", workerCount),
		zap.Int("buffer_size", bufferSize),
	)

	return eb
}

func (eb *EventBus) worker() {
	defer eb.wg.Done()

	for {
		select {
		case <-eb.ctx.Done():
			return
		case event := <-eb.eventChan:
			eb.processEvent(event)
		}
	}
}

func (eb *EventBus) processEvent(event Event) {
	eb.mu.RLock()
	subs := eb.subscribers[event.GetType()]
	allSubs := eb.allSubscribers
	eb.mu.RUnlock()

	for _, sub := range subs {
		if sub.active.Load() {
			eb.executeHandler(sub, event)
		}
	}
	for _, sub := range allSubs {
		if sub.active.Load() {
			eb.executeHandler(sub, event)
		}
	}

	eb.eventsProcessed.Add(1)
}

// executeHandler runs a handler with panic recovery so one bad subscriber
// cannot take down a worker.
func (eb *EventBus) executeHandler(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.processingErrors.Add(1)
			eb.logger.Error("event handler panic",
				zap.String("subscription_id", sub.ID),
				zap.String("event_type", string(event.GetType())),
				zap.Any("panic", r),
			)
		}
	}()

	if err := sub.Handler(event); err != nil {
		eb.processingErrors.Add(1)
		eb.logger.Warn("event handler error",
			zap.String("subscription_id", sub.ID),
			zap.String("event_type", string(event.GetType())),
			zap.Error(err),
		)
	}
}

// Subscribe registers a handler for one event type.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscription{
		ID:        uuid.NewString(),
		EventType: eventType,
		Handler:   handler,
	}
	sub.active.Store(true)

	eb.subscribers[eventType] = append(eb.subscribers[eventType], sub)
	eb.activeSubscribers.Add(1)

	return sub
}

// SubscribeAll registers a handler for every event type.
func (eb *EventBus) SubscribeAll(handler EventHandler) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscription{
		ID:        uuid.NewString(),
		EventType: "*",
		Handler:   handler,
	}
	sub.active.Store(true)

	eb.allSubscribers = append(eb.allSubscribers, sub)
	eb.activeSubscribers.Add(1)

	return sub
}

// Unsubscribe deactivates a subscription.
func (eb *EventBus) Unsubscribe(sub *Subscription) {
	if sub.active.CompareAndSwap(true, false) {
		eb.activeSubscribers.Add(-1)
	}
}

// Publish enqueues an event without blocking. Full buffer drops the event.
func (eb *EventBus) Publish(event Event) {
	select {
	case eb.eventChan <- event:
		eb.eventsPublished.Add(1)
	default:
		eb.eventsDropped.Add(1)
		eb.logger.Warn("event dropped, buffer full",
			zap.String("event_type", string(event.GetType())),
		)
	}
}

// PublishSync delivers an event inline, bypassing the worker pool. Used by
// tests and shutdown paths that need ordering guarantees.
func (eb *EventBus) PublishSync(event Event) {
	eb.eventsPublished.Add(1)
	eb.processEvent(event)
}

// Stats returns the current counters.
func (eb *EventBus) Stats() BusStats {
	return BusStats{
		EventsPublished:   eb.eventsPublished.Load(),
		EventsProcessed:   eb.eventsProcessed.Load(),
		EventsDropped:     eb.eventsDropped.Load(),
		ProcessingErrors:  eb.processingErrors.Load(),
		ActiveSubscribers: eb.activeSubscribers.Load(),
	}
}

// Stop shuts the bus down, waiting briefly for in-flight events.
func (eb *EventBus) Stop() {
	eb.cancel()

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		eb.logger.Info("event bus stopped",
			zap.Int64("events_processed", eb.eventsProcessed.Load()),
			zap.Int64("events_dropped", eb.eventsDropped.Load()),
		)
	case <-time.After(5 * time.Second):
		eb.logger.Warn("event bus shutdown timed out")
	}
}
