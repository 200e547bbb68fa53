// Package connectivity tracks whether the face service is reachable. The
// state is advisory: it drives degraded-mode eligibility and status
// indicators, and never blocks a call.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State is the probe's view of the service.
type State int

const (
	Unknown State = iota
	Checking
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Pinger issues one lightweight liveness call.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

// Ping calls f(ctx).
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Listener is told about every state transition.
type Listener func(prev, next State)

// Snapshot is the probe state plus the details of the last completed check.
type Snapshot struct {
	State     State
	CheckedAt time.Time
	LastErr   error
}

// Option configures a Probe.
type Option func(*Probe)

// WithTimeout bounds each liveness call.
func WithTimeout(d time.Duration) Option {
	return func(p *Probe) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithListener registers a transition listener.
func WithListener(l Listener) Option {
	return func(p *Probe) {
		if l != nil {
			p.listeners = append(p.listeners, l)
		}
	}
}

// WithLogger sets the probe's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Probe) {
		if logger != nil {
			p.logger = logger.Named("connectivity")
		}
	}
}

// Probe owns the single connectivity state cell.
type Probe struct {
	pinger    Pinger
	timeout   time.Duration
	listeners []Listener
	logger    *zap.Logger
	flight    singleflight.Group

	mu        sync.RWMutex
	state     State
	checkedAt time.Time
	lastErr   error
}

// NewProbe builds a probe in the Unknown state.
func NewProbe(pinger Pinger, opts ...Option) *Probe {
	p := &Probe{
		pinger:  pinger,
		timeout: 5 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current state.
func (p *Probe) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Snapshot returns the state with the last check's time and error.
func (p *Probe) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{State: p.state, CheckedAt: p.checkedAt, LastErr: p.lastErr}
}

// Check runs one liveness call and returns the resulting state. Calls made
// while a check is in flight share its outcome instead of issuing another
// liveness call. A caller that gives up early gets its context error; the
// shared check still runs to completion and settles the state.
func (p *Probe) Check(ctx context.Context) (State, error) {
	ch := p.flight.DoChan("check", func() (any, error) {
		return p.run(context.WithoutCancel(ctx)), nil
	})
	select {
	case <-ctx.Done():
		return p.State(), ctx.Err()
	case res := <-ch:
		return res.Val.(State), nil
	}
}

func (p *Probe) run(ctx context.Context) State {
	p.transition(Checking, nil, false)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.pinger.Ping(ctx)

	next := Connected
	if err != nil {
		next = Disconnected
		p.logger.Warn("service unreachable", zap.Error(err))
	}
	p.transition(next, err, true)
	return next
}

func (p *Probe) transition(next State, err error, completed bool) {
	p.mu.Lock()
	prev := p.state
	p.state = next
	if completed {
		p.checkedAt = time.Now()
		p.lastErr = err
	}
	p.mu.Unlock()

	if prev == next {
		return
	}
	p.logger.Debug("connectivity changed", zap.Stringer("from", prev), zap.Stringer("to", next))
	for _, l := range p.listeners {
		l(prev, next)
	}
}

// Run checks immediately and then on every interval until ctx is done.
func (p *Probe) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := p.Check(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
