package transport

import (
	"time"

	"go.uber.org/zap"

	"github.com/example/facesaas-client/internal/apierr"
)

// Outcome is how a call ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeSimulated Outcome = "simulated"
)

// Event is the diagnostic record emitted for every dispatched call and for
// every simulated substitution.
type Event struct {
	Method  string
	Route   string
	Outcome Outcome
	Status  int
	Kind    apierr.Kind
	Latency time.Duration
}

// Observer receives events. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Observers fans an event out to several observers in order.
type Observers []Observer

// Observe forwards ev to every observer.
func (o Observers) Observe(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ev)
		}
	}
}

// LogObserver writes one structured log line per event.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver builds a LogObserver.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger.Named("calls")}
}

// Observe logs ev; successes at debug, failures at warn.
func (l *LogObserver) Observe(ev Event) {
	fields := []zap.Field{
		zap.String("method", ev.Method),
		zap.String("route", ev.Route),
		zap.String("outcome", string(ev.Outcome)),
		zap.Duration("latency", ev.Latency),
	}
	if ev.Status != 0 {
		fields = append(fields, zap.Int("status", ev.Status))
	}
	switch ev.Outcome {
	case OutcomeSuccess:
		l.logger.Debug("call completed", fields...)
	case OutcomeSimulated:
		l.logger.Info("served simulated result", fields...)
	default:
		fields = append(fields, zap.String("kind", string(ev.Kind)))
		l.logger.Warn("call failed", fields...)
	}
}
