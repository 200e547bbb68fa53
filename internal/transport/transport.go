// Package transport is the single configured HTTP client for the face
// service. It injects the bearer credential, enforces per-call timeouts,
// classifies every failure into an *apierr.Error and reports each call to
// an Observer.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/example/facesaas-client/internal/apierr"
	"github.com/example/facesaas-client/internal/logging"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultMediaTimeout = 60 * time.Second
)

// Credentials is the view of the session the transport needs. ClearIf must
// leave a credential other than token in place.
type Credentials interface {
	Token() (string, bool)
	ClearIf(ctx context.Context, token string) error
}

type credentialKey struct{}

// Config is fixed at construction.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	MediaTimeout time.Duration
	UserAgent    string
}

// Encoding selects how Request payloads are sent.
type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingJSON
	EncodingForm
	EncodingMultipart
)

// Part is one file of a multipart request.
type Part struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

// Request describes one call. It is built fresh per call and not modified
// by the transport.
type Request struct {
	Method string
	Path   string
	// Route is the path template used for metrics labels, e.g. /images/{id}.
	Route    string
	Encoding Encoding
	JSON     any
	Form     map[string]string
	Parts    []Part
	// Public calls do not require a credential.
	Public bool
	// Media selects the longer media timeout.
	Media bool
	// Timeout overrides the configured timeout when positive.
	Timeout  time.Duration
	Progress chan<- Progress
}

func (r Request) route() string {
	if r.Route != "" {
		return r.Route
	}
	return r.Path
}

// Response is a successful reply.
type Response struct {
	StatusCode int
	Body       []byte
	Latency    time.Duration
}

// Decode unmarshals the JSON body into v. A malformed body is reported as an
// Unknown error carrying the decode failure.
func (r *Response) Decode(operation string, v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return apierr.Wrap(apierr.KindUnknown, "malformed response from service",
			logging.NewOperationError(operation, "", err))
	}
	return nil
}

// Transport dispatches requests. It is safe for concurrent use.
type Transport struct {
	client   *resty.Client
	creds    Credentials
	observer Observer
	logger   *zap.Logger
	timeout  time.Duration
	media    time.Duration
}

// New builds a transport. observer may be nil.
func New(cfg Config, creds Credentials, observer Observer, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = Observers{}
	}
	t := &Transport{
		creds:    creds,
		observer: observer,
		logger:   logger.Named("transport"),
		timeout:  cfg.Timeout,
		media:    cfg.MediaTimeout,
	}
	if t.timeout <= 0 {
		t.timeout = DefaultTimeout
	}
	if t.media <= 0 {
		t.media = DefaultMediaTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetLogger(t.logger.Sugar())
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	client.OnBeforeRequest(t.injectCredential)
	t.client = client
	return t
}

// injectCredential sends the token Do captured for this call, so the 401
// handling below clears exactly the credential the service rejected.
func (t *Transport) injectCredential(_ *resty.Client, r *resty.Request) error {
	if token, _ := r.Context().Value(credentialKey{}).(string); token != "" {
		r.SetHeader("Authorization", "Bearer "+token)
	}
	return nil
}

// Do sends req and returns the response, or an *apierr.Error. An
// Unauthorized failure clears the credential the call was sent with before
// it is returned; a credential stored meanwhile is kept.
func (t *Transport) Do(ctx context.Context, req Request) (*Response, error) {
	token, ok := t.credential()
	if !req.Public && !ok {
		err := apierr.New(apierr.KindUnauthorized, "not signed in")
		t.Notify(Event{Method: req.Method, Route: req.route(), Outcome: OutcomeError, Kind: err.Kind})
		return nil, err
	}

	timeout := t.timeoutFor(req)
	callCtx, cancel := context.WithTimeout(context.WithValue(ctx, credentialKey{}, token), timeout)
	defer cancel()

	r := t.client.R().SetContext(callCtx)
	t.encode(r, req)

	start := time.Now()
	resp, err := r.Execute(req.Method, req.Path)
	elapsed := time.Since(start)

	if err == nil && resp.IsSuccess() {
		Emit(req.Progress, Progress{Stage: StageProcessing})
		t.Notify(Event{
			Method:  req.Method,
			Route:   req.route(),
			Outcome: OutcomeSuccess,
			Status:  resp.StatusCode(),
			Latency: elapsed,
		})
		return &Response{StatusCode: resp.StatusCode(), Body: resp.Body(), Latency: elapsed}, nil
	}

	failure := apierr.Failure{
		Err:     err,
		Aborted: ctx.Err() != nil,
		Elapsed: elapsed,
		Timeout: timeout,
	}
	if resp != nil && resp.RawResponse != nil {
		failure.Responded = true
		failure.Status = resp.StatusCode()
		failure.Body = resp.Body()
	}
	apiErr := apierr.Classify(failure)

	if apiErr.Kind == apierr.KindUnauthorized && t.creds != nil {
		if clearErr := t.creds.ClearIf(context.WithoutCancel(ctx), token); clearErr != nil {
			t.logger.Warn("failed to clear credential after unauthorized response", zap.Error(clearErr))
		}
	}

	t.Notify(Event{
		Method:  req.Method,
		Route:   req.route(),
		Outcome: OutcomeError,
		Status:  failure.Status,
		Kind:    apiErr.Kind,
		Latency: elapsed,
	})
	return nil, apiErr
}

// Notify forwards ev to the observer. Observer panics are recovered so the
// call result is never affected.
func (t *Transport) Notify(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("observer panicked", zap.Any("panic", r), zap.String("route", ev.Route))
		}
	}()
	t.observer.Observe(ev)
}

func (t *Transport) credential() (string, bool) {
	if t.creds == nil {
		return "", false
	}
	return t.creds.Token()
}

func (t *Transport) timeoutFor(req Request) time.Duration {
	switch {
	case req.Timeout > 0:
		return req.Timeout
	case req.Media:
		return t.media
	}
	return t.timeout
}

func (t *Transport) encode(r *resty.Request, req Request) {
	switch req.Encoding {
	case EncodingJSON:
		r.SetHeader("Content-Type", "application/json").SetBody(req.JSON)
	case EncodingForm:
		r.SetFormData(req.Form)
	case EncodingMultipart:
		var total int64
		for _, p := range req.Parts {
			total += int64(len(p.Data))
		}
		counter := &sentCounter{total: total, ch: req.Progress}
		for _, p := range req.Parts {
			body := &progressReader{r: bytes.NewReader(p.Data), counter: counter}
			r.SetMultipartField(p.Field, p.FileName, p.ContentType, body)
		}
		if len(req.Form) > 0 {
			r.SetMultipartFormData(req.Form)
		}
	}
}
