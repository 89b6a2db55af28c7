package risk

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/adaptive-engine/internal/regime"
)

// BreakerStatus reports the circuit breaker state.
type BreakerStatus struct {
	Tripped        bool    `json:"is_tripped"`
	Reason         string  `json:"reason,omitempty"`
	TrippedAt      string  `json:"tripped_at,omitempty"`
	MinutesToReset float64 `json:"minutes_until_reset,omitempty"`
}

// CircuitBreaker halts all new entries after an anomalous market event.
// Once tripped it stays tripped until Reset is called or the auto-reset
// window elapses.
type CircuitBreaker struct {
	logger *zap.Logger

	mu        sync.Mutex
	tripped   bool
	reason    string
	trippedAt time.Time
	autoReset time.Duration

	now func() time.Time
}

// NewCircuitBreaker creates a breaker with a 60 minute auto-reset window.
func NewCircuitBreaker(logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		logger:    logger.Named("breaker"),
		autoReset: 60 * time.Minute,
		now:       time.Now,
	}
}

// CheckAndTrip evaluates the anomaly conditions and returns whether trading
// is halted. A tripped breaker reports halted for any input until it resets.
func (cb *CircuitBreaker) CheckAndTrip(volatility regime.VolatilityState, priceChange1h, volumeSpike float64) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped {
		if cb.now().Sub(cb.trippedAt) > cb.autoReset {
			cb.resetLocked("auto-reset window elapsed")
		} else {
			return true
		}
	}

	absChange := priceChange1h
	if absChange < 0 {
		absChange = -absChange
	}

	switch {
	case volatility == regime.VolatilityExtreme:
		cb.tripLocked("extreme_volatility")
	case absChange > 0.10:
		cb.tripLocked(fmt.Sprintf("flash_crash_or_pump_%.1f%%", priceChange1h*100))
	case volumeSpike > 5.0:
		cb.tripLocked(fmt.Sprintf("volume_anomaly_%.2fx", volumeSpike))
	}

	return cb.tripped
}

// Trip halts trading with an explicit reason.
func (cb *CircuitBreaker) Trip(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.tripLocked(reason)
}

// Reset clears the breaker manually.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.resetLocked("manual reset")
}

// Tripped reports the current state without evaluating conditions.
func (cb *CircuitBreaker) Tripped() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.tripped && cb.now().Sub(cb.trippedAt) > cb.autoReset {
		cb.resetLocked("auto-reset window elapsed")
	}
	return cb.tripped
}

// Status returns the breaker state with the remaining auto-reset countdown.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.tripped {
		return BreakerStatus{Tripped: false}
	}
	remaining := cb.autoReset - cb.now().Sub(cb.trippedAt)
	if remaining < 0 {
		remaining = 0
	}
	return BreakerStatus{
		Tripped:        true,
		Reason:         cb.reason,
		TrippedAt:      cb.trippedAt.Format(time.RFC3339),
		MinutesToReset: remaining.Minutes(),
	}
}

func (cb *CircuitBreaker) tripLocked(reason string) {
	cb.tripped = true
	cb.reason = reason
	cb.trippedAt = cb.now()
	cb.logger.Warn("circuit breaker tripped", zap.String("reason", reason))
}

func (cb *CircuitBreaker) resetLocked(note string) {
	cb.tripped = false
	cb.reason = ""
	cb.trippedAt = time.Time{}
	cb.logger.Info("circuit breaker reset", zap.String("note", note))
}
