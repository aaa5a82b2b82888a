package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"hubhook/internal"
	"hubhook/pkg/hook"
	"hubhook/pkg/secrets"
)

const (
	testSecret   = "test-webhook-secret"
	testSecretID = "/GithubSecret"
	pushDoc      = `{"ref":"refs/heads/dci#84","after":"90aa35428f689dbeff1a59b010be25420fa6fdd4","repository":{"full_name":"samhstn/infra"}}`
	pushOK       = "Push from branch: refs/heads/dci#84, commit: 90aa35428f689dbeff1a59b010be25420fa6fdd4"
)

// recordingPublisher records every publish call.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []internal.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event internal.Event) error {
	return p.PublishForDrivers(ctx, topic, event, nil)
}

func (p *recordingPublisher) PublishForDrivers(_ context.Context, topic string, event internal.Event, _ []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func formBody(doc string) []byte {
	return []byte(strings.ReplaceAll(url.QueryEscape("payload="+doc), "+", "%20"))
}

func newTestDispatcher(t *testing.T, store secrets.Store, opts Options) *Dispatcher {
	t.Helper()
	if opts.SecretID == "" {
		opts.SecretID = testSecretID
	}
	opts.Logger = internal.NewLogger("test")
	dispatcher, err := NewDispatcher(store, opts)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher
}

func newTestHandler(t *testing.T, dispatcher *Dispatcher, maxBody int64) *GitHubHandler {
	t.Helper()
	handler, err := NewGitHubHandler(dispatcher, internal.NewLogger("test"), maxBody)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func postDelivery(handler http.Handler, event string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(string(body)))
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "72d3162e-cc78-11e3-81ab-4c9367dc0958")
	if signature != "" {
		req.Header.Set("X-Hub-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGitHubHandlerPing(t *testing.T) {
	handler := newTestHandler(t, newTestDispatcher(t, secrets.StaticStore(testSecret), Options{}), 0)
	body := formBody(`{"zen":"Design for failure."}`)

	rec := postDelivery(handler, "ping", body, hook.Sign(testSecret, body))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") != "72d3162e-cc78-11e3-81ab-4c9367dc0958" {
		t.Fatalf("expected delivery id as request id, got %q", rec.Header().Get("X-Request-Id"))
	}
}

func TestGitHubHandlerPush(t *testing.T) {
	handler := newTestHandler(t, newTestDispatcher(t, secrets.StaticStore(testSecret), Options{}), 0)
	body := formBody(pushDoc)

	rec := postDelivery(handler, "push", body, hook.Sign(testSecret, body))
	if rec.Code != http.StatusOK || rec.Body.String() != pushOK {
		t.Fatalf("expected 200 %q, got %d %q", pushOK, rec.Code, rec.Body.String())
	}
}

func TestGitHubHandlerMismatch(t *testing.T) {
	handler := newTestHandler(t, newTestDispatcher(t, secrets.StaticStore(testSecret), Options{}), 0)
	body := formBody(pushDoc)

	for _, signature := range []string{hook.Sign("wrong", body), ""} {
		rec := postDelivery(handler, "push", body, signature)
		if rec.Code != http.StatusInternalServerError || rec.Body.String() != "Err: x-hub-signature mismatch" {
			t.Fatalf("expected mismatch, got %d %q", rec.Code, rec.Body.String())
		}
	}
}

func TestGitHubHandlerMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t, newTestDispatcher(t, secrets.StaticStore(testSecret), Options{}), 0)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/github", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestGitHubHandlerBodyTooLarge(t *testing.T) {
	handler := newTestHandler(t, newTestDispatcher(t, secrets.StaticStore(testSecret), Options{}), 16)
	body := formBody(pushDoc)

	rec := postDelivery(handler, "push", body, hook.Sign(testSecret, body))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestGitHubHandlerSecretUnavailable(t *testing.T) {
	store := secrets.StoreFunc(func(ctx context.Context, id string) (string, error) {
		return "", errors.New("access denied")
	})
	handler := newTestHandler(t, newTestDispatcher(t, store, Options{}), 0)
	body := formBody(pushDoc)

	rec := postDelivery(handler, "push", body, hook.Sign(testSecret, body))
	if rec.Code != http.StatusBadGateway || rec.Body.String() != "Err: secret unavailable" {
		t.Fatalf("expected 502, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGitHubHandlerPublishesMatchingPush(t *testing.T) {
	rules, err := internal.NewRuleEngine(internal.RulesConfig{Rules: []internal.Rule{
		{When: `branch =~ "#[0-9]+$"`, Emit: internal.EmitList{"build.requested"}},
		{When: `branch == "main"`, Emit: internal.EmitList{"main"}},
	}})
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	publisher := &recordingPublisher{}
	dispatcher := newTestDispatcher(t, secrets.StaticStore(testSecret), Options{Rules: rules, Publisher: publisher})
	handler := newTestHandler(t, dispatcher, 0)
	body := formBody(pushDoc)

	rec := postDelivery(handler, "push", body, hook.Sign(testSecret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(publisher.topics) != 1 || publisher.topics[0] != "build.requested" {
		t.Fatalf("expected one publish to build.requested, got %v", publisher.topics)
	}
	event := publisher.events[0]
	if event.IssueNumber != "84" || event.RequestID != "72d3162e-cc78-11e3-81ab-4c9367dc0958" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestGitHubHandlerPublishFailureKeepsResponse(t *testing.T) {
	rules, err := internal.NewRuleEngine(internal.RulesConfig{Rules: []internal.Rule{
		{When: `issue_number != ""`, Emit: internal.EmitList{"build.requested"}},
	}})
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	publisher := &recordingPublisher{err: errors.New("broker down")}
	dispatcher := newTestDispatcher(t, secrets.StaticStore(testSecret), Options{Rules: rules, Publisher: publisher})
	handler := newTestHandler(t, dispatcher, 0)
	body := formBody(pushDoc)

	rec := postDelivery(handler, "push", body, hook.Sign(testSecret, body))
	if rec.Code != http.StatusOK || rec.Body.String() != pushOK {
		t.Fatalf("expected push response, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGitHubHandlerMismatchDoesNotPublish(t *testing.T) {
	rules, err := internal.NewRuleEngine(internal.RulesConfig{Rules: []internal.Rule{
		{When: `ref != ""`, Emit: internal.EmitList{"any"}},
	}})
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	publisher := &recordingPublisher{}
	dispatcher := newTestDispatcher(t, secrets.StaticStore(testSecret), Options{Rules: rules, Publisher: publisher})
	handler := newTestHandler(t, dispatcher, 0)
	body := formBody(pushDoc)

	postDelivery(handler, "push", body, hook.Sign("wrong", body))
	if len(publisher.topics) != 0 {
		t.Fatalf("expected no publish, got %v", publisher.topics)
	}
}

func TestDispatcherSecretLookup(t *testing.T) {
	var gotID string
	store := secrets.StoreFunc(func(ctx context.Context, id string) (string, error) {
		gotID = id
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected lookup deadline")
		}
		return testSecret, nil
	})
	dispatcher := newTestDispatcher(t, store, Options{SecretTimeout: time.Second})
	body := formBody(`{"zen":"x"}`)
	in := hook.NewInboundEvent(body, map[string]string{"x-github-event": "ping", "x-hub-signature": hook.Sign(testSecret, body)})

	resp, err := dispatcher.Dispatch(context.Background(), "req", in)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp != hook.ResponseOK {
		t.Fatalf("expected OK, got %+v", resp)
	}
	if gotID != testSecretID {
		t.Fatalf("expected secret id %q, got %q", testSecretID, gotID)
	}
}

func TestDispatcherSecretError(t *testing.T) {
	store := secrets.StoreFunc(func(ctx context.Context, id string) (string, error) {
		return "", secrets.ErrNotFound
	})
	dispatcher := newTestDispatcher(t, store, Options{})

	_, err := dispatcher.Dispatch(context.Background(), "", hook.NewInboundEvent(nil, nil))
	if !errors.Is(err, ErrSecretUnavailable) || !errors.Is(err, secrets.ErrNotFound) {
		t.Fatalf("expected wrapped secret error, got %v", err)
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	if _, err := NewDispatcher(nil, Options{SecretID: testSecretID}); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewDispatcher(secrets.StaticStore(testSecret), Options{}); err == nil {
		t.Fatalf("expected error for empty secret id")
	}
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK || string(body) != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", rec.Code, body)
	}
}
