// Package webhook adapts GitHub deliveries arriving over HTTP or API Gateway to the
// verifier in pkg/hook.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"hubhook/internal"
	"hubhook/pkg/hook"
	"hubhook/pkg/secrets"
)

// ErrSecretUnavailable wraps failures of the secret store.
var ErrSecretUnavailable = errors.New("secret unavailable")

// ResponseSecretUnavailable is written by the HTTP adapter when the secret cannot be fetched.
var ResponseSecretUnavailable = hook.Response{StatusCode: 502, Body: "Err: secret unavailable"}

// Options configures a Dispatcher.
type Options struct {
	// SecretID names the shared secret in the store.
	SecretID string
	// SecretTimeout bounds each secret lookup; zero leaves it to the caller's context.
	SecretTimeout time.Duration
	// Rules and Publisher are optional; without both, verified pushes are not published.
	Rules     *internal.RuleEngine
	Publisher internal.Publisher
	Logger    *log.Logger
}

// Dispatcher fetches the secret, answers the delivery and publishes verified pushes that
// match a routing rule. It holds no per-request state.
type Dispatcher struct {
	store         secrets.Store
	secretID      string
	secretTimeout time.Duration
	rules         *internal.RuleEngine
	publisher     internal.Publisher
	logger        *log.Logger
}

// NewDispatcher creates a Dispatcher reading the secret from store.
func NewDispatcher(store secrets.Store, opts Options) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("secret store is required")
	}
	if opts.SecretID == "" {
		return nil, errors.New("secret id is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		store:         store,
		secretID:      opts.SecretID,
		secretTimeout: opts.SecretTimeout,
		rules:         opts.Rules,
		publisher:     opts.Publisher,
		logger:        logger,
	}, nil
}

// Dispatch answers one delivery. A non-nil error means the secret could not be fetched;
// every other outcome, including a signature mismatch, is a Response.
func (d *Dispatcher) Dispatch(ctx context.Context, requestID string, in hook.InboundEvent) (hook.Response, error) {
	logger := internal.WithRequestID(d.logger, requestID)

	secret, err := d.secret(ctx)
	if err != nil {
		internal.IncSecretError()
		return hook.Response{}, fmt.Errorf("%w: %w", ErrSecretUnavailable, err)
	}

	resp, event := hook.Process(in, secret)
	internal.IncResponse(strconv.Itoa(resp.StatusCode))
	if resp == hook.ResponseSignatureMismatch {
		internal.IncSignatureMismatch()
		logger.Printf("signature mismatch event=%s", in.Header(hook.EventHeader))
		return resp, nil
	}

	if event == nil {
		logger.Printf("rejected event=%s status=%d", in.Header(hook.EventHeader), resp.StatusCode)
		return resp, nil
	}
	logger.Printf("event=%s status=%d", event.Name, resp.StatusCode)
	if event.Kind == hook.KindPush {
		d.publish(ctx, logger, requestID, event)
	}
	return resp, nil
}

func (d *Dispatcher) secret(ctx context.Context) (string, error) {
	if d.secretTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.secretTimeout)
		defer cancel()
	}
	return d.store.GetSecret(ctx, d.secretID)
}

// publish fans a verified push out to the topics its rules select. Failures are logged only;
// they never change the response.
func (d *Dispatcher) publish(ctx context.Context, logger *log.Logger, requestID string, event *hook.Event) {
	if d.rules == nil || d.publisher == nil {
		return
	}
	published := internal.NewPushEvent(requestID, *event.Push, event.Document)
	matches := d.rules.EvaluateWithLogger(published, logger)
	if len(matches) == 0 {
		return
	}
	logger.Printf("push branch=%s after=%s topics=%v", published.Branch, published.After, matches)
	for _, match := range matches {
		if err := d.publisher.PublishForDrivers(ctx, match.Topic, published, match.Drivers); err != nil {
			logger.Printf("publish %s failed: %v", match.Topic, err)
		}
	}
}
