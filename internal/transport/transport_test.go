package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/example/facesaas-client/internal/apierr"
	"github.com/example/facesaas-client/internal/session"
)

func newSession(t *testing.T, token string) *session.Session {
	t.Helper()
	s := session.New(session.NewMemoryStore(), zap.NewNop())
	if token != "" {
		if err := s.Set(context.Background(), token); err != nil {
			t.Fatalf("set token: %v", err)
		}
	}
	return s
}

func newTransport(t *testing.T, baseURL string, s *session.Session, observer Observer) *Transport {
	t.Helper()
	return New(Config{BaseURL: baseURL, Timeout: time.Second, MediaTimeout: 2 * time.Second}, s, observer, zap.NewNop())
}

func TestDoInjectsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"email":"a@b.c"}`)
	}))
	defer srv.Close()

	tr := newTransport(t, srv.URL+"/api/v1", newSession(t, "tok123"), nil)
	resp, err := tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/profile"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("unexpected Authorization header %q", gotAuth)
	}
	var body struct {
		Email string `json:"email"`
	}
	if err := resp.Decode("test.decode", &body); err != nil || body.Email != "a@b.c" {
		t.Fatalf("unexpected decode result %+v (%v)", body, err)
	}
}

func TestDoFailsFastWithoutCredential(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	tr := newTransport(t, srv.URL, newSession(t, ""), nil)
	_, err := tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/profile"})
	if !apierr.IsKind(err, apierr.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatal("no request should reach the server without a credential")
	}

	if _, err := tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/health", Public: true}); err != nil {
		t.Fatalf("public call should be sent, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected one hit, got %d", hits)
	}
}

func TestDoClearsSessionOnUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Could not validate credentials"}`)
	}))
	defer srv.Close()

	s := newSession(t, "stale")
	tr := newTransport(t, srv.URL, s, nil)
	_, err := tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/profile"})

	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if apiErr.Message != "Could not validate credentials" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
	if _, ok := s.Token(); ok {
		t.Fatal("expected session to be cleared")
	}
}

func TestLateUnauthorizedKeepsNewerCredential(t *testing.T) {
	arrived := make(chan string, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- r.Header.Get("Authorization")
		<-release
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Token expired"}`)
	}))
	defer srv.Close()

	s := newSession(t, "old")
	tr := newTransport(t, srv.URL, s, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/profile"})
		errCh <- err
	}()

	if got := <-arrived; got != "Bearer old" {
		t.Fatalf("unexpected Authorization header %q", got)
	}
	if err := s.Set(context.Background(), "new"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	close(release)

	if err := <-errCh; !apierr.IsKind(err, apierr.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if token, ok := s.Token(); !ok || token != "new" {
		t.Fatalf("expected newer credential to survive, got %q (ok=%t)", token, ok)
	}
}

func TestDoClassifiesStatuses(t *testing.T) {
	cases := []struct {
		status    int
		kind      apierr.Kind
		retryable bool
	}{
		{http.StatusNotFound, apierr.KindNotFound, false},
		{http.StatusBadRequest, apierr.KindValidation, false},
		{http.StatusInternalServerError, apierr.KindServerError, true},
		{http.StatusServiceUnavailable, apierr.KindServerError, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		tr := newTransport(t, srv.URL, newSession(t, "tok"), nil)
		_, err := tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/images/my-images"})
		srv.Close()

		var apiErr *apierr.Error
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: expected *apierr.Error, got %T", tc.status, err)
		}
		if apiErr.Kind != tc.kind || apiErr.Retryable != tc.retryable || apiErr.Status != tc.status {
			t.Fatalf("status %d: unexpected error %+v", tc.status, apiErr)
		}
	}
}

func TestDoReportsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr := newTransport(t, url, newSession(t, "tok"), nil)
	_, err := tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/health", Public: true})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierr.KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if apiErr.Message != "cannot reach service" || !apiErr.Retryable {
		t.Fatalf("unexpected network error %+v", apiErr)
	}
}

func TestDoTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := newTransport(t, srv.URL, newSession(t, "tok"), nil)
	_, err := tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/users/profile", Timeout: 30 * time.Millisecond})
	if !apierr.IsKind(err, apierr.KindTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !apierr.IsRetryable(err) {
		t.Fatal("timeouts are retryable")
	}
}

func TestAbortedCallDoesNotClearSession(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	s := newSession(t, "tok")
	tr := newTransport(t, srv.URL, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := tr.Do(ctx, Request{Method: http.MethodGet, Path: "/users/profile"})
	if err == nil {
		t.Fatal("expected error for aborted call")
	}
	if apierr.IsRetryable(err) || apierr.KindOf(err) != apierr.KindUnknown {
		t.Fatalf("expected non-retryable unknown error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
	if _, ok := s.Token(); !ok {
		t.Fatal("aborted call must not clear the session")
	}
}

func TestDoEncodesFormAndJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
				t.Errorf("unexpected content type %q", ct)
			}
			if r.FormValue("username") != "ann@example.com" || r.FormValue("password") != "secret" {
				t.Errorf("unexpected form %v", r.Form)
			}
		case "/users/threshold":
			body, _ := io.ReadAll(r.Body)
			if strings.TrimSpace(string(body)) != `{"threshold":80}` {
				t.Errorf("unexpected json body %s", body)
			}
		}
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	tr := newTransport(t, srv.URL, newSession(t, "tok"), nil)
	_, err := tr.Do(context.Background(), Request{
		Method:   http.MethodPost,
		Path:     "/auth/login",
		Encoding: EncodingForm,
		Form:     map[string]string{"username": "ann@example.com", "password": "secret"},
		Public:   true,
	})
	if err != nil {
		t.Fatalf("form call failed: %v", err)
	}
	_, err = tr.Do(context.Background(), Request{
		Method:   http.MethodPatch,
		Path:     "/users/threshold",
		Encoding: EncodingJSON,
		JSON:     map[string]float64{"threshold": 80},
	})
	if err != nil {
		t.Fatalf("json call failed: %v", err)
	}
}

func TestDoSendsMultipartWithProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, header, err := r.FormFile("image1")
		if err != nil {
			t.Errorf("missing image1: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "first" || header.Filename != "a.png" {
				t.Errorf("unexpected part %q %q", header.Filename, data)
			}
		}
		if r.FormValue("threshold") != "75" {
			t.Errorf("unexpected threshold %q", r.FormValue("threshold"))
		}
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	progress := make(chan Progress, 16)
	tr := newTransport(t, srv.URL, newSession(t, "tok"), nil)
	_, err := tr.Do(context.Background(), Request{
		Method:   http.MethodPost,
		Path:     "/faces/compare",
		Encoding: EncodingMultipart,
		Media:    true,
		Parts: []Part{
			{Field: "image1", FileName: "a.png", ContentType: "image/png", Data: []byte("first")},
			{Field: "image2", FileName: "b.png", ContentType: "image/png", Data: []byte("second")},
		},
		Form:     map[string]string{"threshold": "75"},
		Progress: progress,
	})
	if err != nil {
		t.Fatalf("multipart call failed: %v", err)
	}
	close(progress)

	var last Progress
	var sawProcessing bool
	for p := range progress {
		if p.Stage == StageSending {
			last = p
		}
		if p.Stage == StageProcessing {
			sawProcessing = true
		}
	}
	if last.Sent != 11 || last.Total != 11 {
		t.Fatalf("expected 11 of 11 bytes sent, got %+v", last)
	}
	if !sawProcessing {
		t.Fatal("expected processing stage")
	}
}

func TestSendingProgressCompletesBeforeBodyLeaves(t *testing.T) {
	progress := make(chan Progress, 16)
	arrived := make(chan Progress, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var atArrival Progress
		for {
			select {
			case p := <-progress:
				if p.Stage == StageSending {
					atArrival = p
				}
				continue
			default:
			}
			break
		}
		arrived <- atArrival
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	tr := newTransport(t, srv.URL, newSession(t, "tok"), nil)
	_, err := tr.Do(context.Background(), Request{
		Method:   http.MethodPost,
		Path:     "/images/upload",
		Encoding: EncodingMultipart,
		Parts:    []Part{{Field: "file", FileName: "a.png", ContentType: "image/png", Data: []byte("0123456789")}},
		Progress: progress,
	})
	if err != nil {
		t.Fatalf("multipart call failed: %v", err)
	}
	if atArrival := <-arrived; atArrival.Sent != 10 || atArrival.Total != 10 {
		t.Fatalf("expected body fully counted before the request arrived, got %+v", atArrival)
	}
}

func TestObserversReceiveEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			_, _ = io.WriteString(w, `{"status":"ok"}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	summary := NewSummary()
	reg := prometheus.NewRegistry()
	metrics := NewMetricsObserver(reg)
	panicking := ObserverFunc(func(Event) { panic("observer bug") })

	tr := newTransport(t, srv.URL, newSession(t, "tok"), Observers{summary, metrics, panicking})

	if _, err := tr.Do(context.Background(), Request{Method: http.MethodGet, Path: "/health", Public: true}); err != nil {
		t.Fatalf("health failed: %v", err)
	}
	if _, err := tr.Do(context.Background(), Request{Method: http.MethodDelete, Path: "/images/abc", Route: "/images/{id}"}); !apierr.IsKind(err, apierr.KindServerError) {
		t.Fatalf("expected server error, got %v", err)
	}
	tr.Notify(Event{Method: http.MethodPost, Route: "/images/upload", Outcome: OutcomeSimulated})

	snap := summary.Snapshot()
	if snap.TotalRequests != 2 || snap.SuccessfulRequests != 1 || snap.SimulatedResults != 1 {
		t.Fatalf("unexpected summary %+v", snap)
	}
	if snap.FailuresByKind[string(apierr.KindServerError)] != 1 {
		t.Fatalf("expected one server error, got %+v", snap.FailuresByKind)
	}
	if snap.SuccessRate != 0.5 {
		t.Fatalf("expected success rate 0.5, got %f", snap.SuccessRate)
	}

	if v := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/health", "success", "")); v != 1 {
		t.Fatalf("requests_total[/health,success] = %f, want 1", v)
	}
	if v := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("/images/{id}", "error", "server_error")); v != 1 {
		t.Fatalf("requests_total[/images/{id},error] = %f, want 1", v)
	}
	if v := testutil.ToFloat64(metrics.ResponsesByStatus.WithLabelValues("/images/{id}", "500")); v != 1 {
		t.Fatalf("responses_total[500] = %f, want 1", v)
	}
	if v := testutil.ToFloat64(metrics.SimulatedTotal.WithLabelValues("/images/upload")); v != 1 {
		t.Fatalf("simulated_total = %f, want 1", v)
	}
}

func TestDecodeReportsMalformedBody(t *testing.T) {
	resp := &Response{Body: []byte("<html>")}
	var v map[string]any
	err := resp.Decode("users.profile", &v)
	if !apierr.IsKind(err, apierr.KindUnknown) {
		t.Fatalf("expected unknown error, got %v", err)
	}
}
