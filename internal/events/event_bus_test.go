package events_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/events"
	"github.com/atlas-desktop/adaptive-engine/pkg/types"
)

func newTestBus(t *testing.T) *events.EventBus {
	t.Helper()
	bus := events.NewEventBus(zap.NewNop(), events.DefaultBusConfig())
	t.Cleanup(bus.Stop)
	return bus
}

func TestPublishSyncDeliversToSubscriber(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var got []events.Event
	bus.Subscribe(events.EventTypeDecision, func(e events.Event) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		return nil
	})

	bus.PublishSync(events.NewDecisionEvent(types.Decision{Pair: "BTC/USDT"}))
	bus.PublishSync(events.NewTradeEvent("BTC/USDT", "grid", 0.01, decimal.NewFromInt(10), "roi"))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("decision subscriber got %d events, want 1", len(got))
	}
	if got[0].GetType() != events.EventTypeDecision {
		t.Errorf("event type = %s", got[0].GetType())
	}
	if got[0].GetID() == "" || got[0].GetTimestamp().IsZero() {
		t.Error("event should carry an id and timestamp")
	}
}

func TestSubscribeAllSeesEveryType(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	seen := make(map[events.EventType]int)
	bus.SubscribeAll(func(e events.Event) error {
		mu.Lock()
		seen[e.GetType()]++
		mu.Unlock()
		return nil
	})

	bus.PublishSync(events.NewBreakerEvent(true, "extreme_volatility"))
	bus.PublishSync(events.NewRiskAlertEvent("warning", "ETH/USDT", "grid", "cooldown"))

	mu.Lock()
	defer mu.Unlock()
	if seen[events.EventTypeBreaker] != 1 || seen[events.EventTypeRiskAlert] != 1 {
		t.Errorf("seen = %v", seen)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	count := 0
	sub := bus.Subscribe(events.EventTypeTrade, func(events.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	bus.PublishSync(events.NewTradeEvent("BTC/USDT", "grid", 0.01, decimal.Zero, "roi"))
	bus.Unsubscribe(sub)
	bus.PublishSync(events.NewTradeEvent("BTC/USDT", "grid", 0.01, decimal.Zero, "roi"))

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("handler ran %d times, want 1", count)
	}
	if sub.IsActive() {
		t.Error("subscription should be inactive")
	}
}

func TestStatsCountErrors(t *testing.T) {
	bus := newTestBus(t)

	bus.Subscribe(events.EventTypeHeartbeat, func(events.Event) error {
		return errors.New("boom")
	})
	bus.PublishSync(events.NewRiskAlertEvent("info", "", "", "noop"))

	stats := bus.Stats()
	if stats.EventsPublished != 1 {
		t.Errorf("published = %d, want 1", stats.EventsPublished)
	}
	if stats.ActiveSubscribers != 1 {
		t.Errorf("active subscribers = %d, want 1", stats.ActiveSubscribers)
	}
	// The failing handler is registered for a different type, so no error
	// yet.
	if stats.ProcessingErrors != 0 {
		t.Errorf("errors = %d, want 0", stats.ProcessingErrors)
	}

	bus.PublishSync(&events.BaseEvent{ID: "x", Type: events.EventTypeHeartbeat})
	if got := bus.Stats().ProcessingErrors; got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestPanickingHandlerIsContained(t *testing.T) {
	bus := newTestBus(t)

	bus.Subscribe(events.EventTypeDecision, func(events.Event) error {
		panic("handler bug")
	})

	var mu sync.Mutex
	delivered := false
	bus.Subscribe(events.EventTypeDecision, func(events.Event) error {
		mu.Lock()
		delivered = true
		mu.Unlock()
		return nil
	})

	bus.PublishSync(events.NewDecisionEvent(types.Decision{Pair: "BTC/USDT"}))

	mu.Lock()
	defer mu.Unlock()
	if !delivered {
		t.Error("panic in one handler should not block the next")
	}
	if bus.Stats().ProcessingErrors != 1 {
		t.Errorf("errors = %d, want 1", bus.Stats().ProcessingErrors)
	}
}
