// Package client holds the domain facades of the face service: auth, images,
// faces and users. Every call goes through the shared transport, and the
// media operations fall back to the simulator while the service is down.
package client

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/example/facesaas-client/internal/apierr"
	"github.com/example/facesaas-client/internal/connectivity"
	"github.com/example/facesaas-client/internal/session"
	"github.com/example/facesaas-client/internal/simulator"
	"github.com/example/facesaas-client/internal/transport"
	"github.com/example/facesaas-client/internal/upload"
)

// Deps are the shared collaborators of every facade.
type Deps struct {
	Transport *transport.Transport
	Session   *session.Session
	// Probe may be nil; fallback is then never attempted.
	Probe *connectivity.Probe
	// Simulator may be nil to disable degraded mode.
	Simulator *simulator.Simulator
	// Validator defaults to upload.NewValidator().
	Validator *upload.Validator
	Logger    *zap.Logger
}

// Client bundles the facades.
type Client struct {
	Auth   *AuthClient
	Images *ImageClient
	Faces  *FaceClient
	Users  *UserClient
}

// New wires the facades around deps.
func New(deps Deps) *Client {
	c := &core{
		transport: deps.Transport,
		session:   deps.Session,
		probe:     deps.Probe,
		sim:       deps.Simulator,
		validator: deps.Validator,
		logger:    deps.Logger,
	}
	if c.validator == nil {
		c.validator = upload.NewValidator()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("client")

	return &Client{
		Auth:   &AuthClient{core: c},
		Images: &ImageClient{core: c},
		Faces:  &FaceClient{core: c},
		Users:  &UserClient{core: c},
	}
}

// CallOption tunes a single media call.
type CallOption func(*callOptions)

type callOptions struct {
	progress chan<- transport.Progress
}

// WithProgress streams the stages of the call to ch. Sends never block.
// Sending events count file bytes read into the request body as it is
// assembled; the body is buffered before it goes out, so they do not track
// bytes acknowledged on the wire.
func WithProgress(ch chan<- transport.Progress) CallOption {
	return func(o *callOptions) {
		o.progress = ch
	}
}

func applyOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

type core struct {
	transport *transport.Transport
	session   *session.Session
	probe     *connectivity.Probe
	sim       *simulator.Simulator
	validator *upload.Validator
	logger    *zap.Logger
}

// call dispatches req and decodes a 2xx body into out when out is non-nil.
func (c *core) call(ctx context.Context, operation string, req transport.Request, out any) error {
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(operation, out)
}

// shouldSimulate decides whether err may be replaced by a synthetic result.
// Network and timeout failures first reconcile the probe once, so a stale
// Connected state does not hide an outage.
func (c *core) shouldSimulate(ctx context.Context, err error) bool {
	if c.sim == nil || c.probe == nil || !apierr.IsRetryable(err) {
		return false
	}
	state := c.probe.State()
	if state != connectivity.Disconnected {
		switch apierr.KindOf(err) {
		case apierr.KindNetwork, apierr.KindTimeout:
			state, _ = c.probe.Check(ctx)
		}
	}
	return state == connectivity.Disconnected
}

// simulated records the substitution of a failed call.
func (c *core) simulated(req transport.Request, cause error, progress chan<- transport.Progress) {
	route := req.Route
	if route == "" {
		route = req.Path
	}
	c.transport.Notify(transport.Event{
		Method:  req.Method,
		Route:   route,
		Outcome: transport.OutcomeSimulated,
		Kind:    apierr.KindOf(cause),
	})
	transport.Emit(progress, transport.Progress{Stage: transport.StageSimulated})
}

// aborted reports a simulator interrupted by the caller.
func aborted(err error) error {
	return apierr.Wrap(apierr.KindUnknown, "request aborted", err)
}

func validThreshold(threshold float64) error {
	if threshold < 0 || threshold > 100 {
		return apierr.Validation("threshold must be between 0 and 100", nil)
	}
	return nil
}

// rejection turns an upload.Rejection (or read failure) into a Validation
// error that still unwraps to the rejection.
func rejection(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return aborted(err)
	}
	var rej *upload.Rejection
	if errors.As(err, &rej) {
		return apierr.Validation(rej.Message, rej)
	}
	return apierr.Wrap(apierr.KindUnknown, "could not prepare upload", err)
}
