package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"chatdesk-backend/internal/model"
	"chatdesk-backend/internal/service/subscription"
	"chatdesk-backend/pkg/logger"

	"go.uber.org/zap"
)

// DefaultTimeout bounds an outbound call when the subscription does not
// configure its own timeoutMs.
const DefaultTimeout = 10 * time.Second

// maxReplyBody caps how much of a downstream reply is retained for
// diagnostics and function-route passthrough.
const maxReplyBody = 64 * 1024

type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeUpstreamError  Outcome = "upstream_error"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeNetworkFailure Outcome = "network_failure"
)

type ErrorCode string

const (
	ErrorCodeNoRoute     ErrorCode = "route_not_configured"
	ErrorCodeTimeout     ErrorCode = "upstream_timeout"
	ErrorCodeUnreachable ErrorCode = "upstream_unreachable"
	ErrorCodeInternal    ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Registry is the slice of the subscription registry the dispatcher needs.
type Registry interface {
	ActiveEventSubscriptions(ctx context.Context, tenantID, eventType string) ([]model.SubscriptionItem, error)
	FunctionRoute(ctx context.Context, tenantID, functionName string) (model.SubscriptionItem, error)
	RecordDispatch(ctx context.Context, subscriptionID string, success bool) error
}

// CredentialStore resolves the secret attached to an outbound endpoint.
// The production implementation is store-backed; the dispatcher never
// caches or logs the returned value.
type CredentialStore interface {
	OutboundAuth(ctx context.Context, subscriptionID string) (string, error)
}

type Attempt struct {
	SubscriptionID string
	EndpointURL    string
	Outcome        Outcome
	StatusCode     int
	Body           []byte
	Duration       time.Duration
	Err            error
}

type Report struct {
	TenantID  string
	EventType string
	Attempts  []Attempt
}

// Succeeded counts attempts classified as success.
func (r Report) Succeeded() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Outcome == OutcomeSuccess {
			n++
		}
	}
	return n
}

// eventEnvelope is the enriched payload shape sent to every subscriber:
// the original payload plus tenant context and a dispatch timestamp.
type eventEnvelope struct {
	Event     string          `json:"event"`
	TenantID  string          `json:"tenantId"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type Dispatcher struct {
	registry       Registry
	credentials    CredentialStore
	client         *http.Client
	defaultTimeout time.Duration
	log            *logger.Logger
	now            func() time.Time
}

type Config struct {
	Registry       Registry
	Credentials    CredentialStore
	Client         *http.Client
	DefaultTimeout time.Duration
	Logger         *logger.Logger
	Now            func() time.Time
}

func New(cfg Config) *Dispatcher {
	client := cfg.Client
	if client == nil {
		// Per-call deadlines come from the request context; the client
		// itself stays unbounded so one slow subscription's timeout does
		// not cap another's.
		client = &http.Client{}
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		registry:       cfg.Registry,
		credentials:    cfg.Credentials,
		client:         client,
		defaultTimeout: timeout,
		log:            log,
		now:            now,
	}
}

// Dispatch fans the event out to every active subscription of the tenant.
// Attempts run concurrently and independently; one endpoint failing or
// stalling never blocks delivery to another. The inbound caller has been
// acknowledged before this runs, so failures are absorbed into the report
// and the statistics counters.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID, eventType string, payload json.RawMessage) (Report, error) {
	report := Report{TenantID: tenantID, EventType: eventType}

	subs, err := d.registry.ActiveEventSubscriptions(ctx, tenantID, eventType)
	if err != nil {
		return report, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		d.log.Debug("no subscriptions for event",
			zap.String("tenant_id", tenantID),
			zap.String("event_type", eventType),
		)
		return report, nil
	}

	body, err := json.Marshal(eventEnvelope{
		Event:     eventType,
		TenantID:  tenantID,
		Timestamp: d.now().UTC().Format(time.RFC3339),
		Data:      payload,
	})
	if err != nil {
		return report, fmt.Errorf("marshal envelope: %w", err)
	}

	attempts := make([]Attempt, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub model.SubscriptionItem) {
			defer wg.Done()
			attempts[i] = d.deliver(ctx, sub, body)
		}(i, sub)
	}
	wg.Wait()

	for _, attempt := range attempts {
		d.record(ctx, tenantID, eventType, attempt)
	}

	report.Attempts = attempts
	return report, nil
}

type FunctionReply struct {
	SubscriptionID string
	StatusCode     int
	Body           []byte
}

// CallFunction routes a synchronous function call to its single configured
// endpoint and returns the downstream reply verbatim. The caller is
// blocked waiting, so a missing route, a timeout, or an unreachable
// endpoint all surface as typed errors instead of being absorbed.
func (d *Dispatcher) CallFunction(ctx context.Context, tenantID, functionName string, payload json.RawMessage) (FunctionReply, error) {
	route, err := d.registry.FunctionRoute(ctx, tenantID, functionName)
	if err != nil {
		if errors.Is(err, subscription.ErrNoRoute) {
			return FunctionReply{}, newError(ErrorCodeNoRoute, "no route configured for function "+functionName, err)
		}
		return FunctionReply{}, newError(ErrorCodeInternal, "failed to load function route", err)
	}

	body, err := json.Marshal(eventEnvelope{
		Event:     functionName,
		TenantID:  tenantID,
		Timestamp: d.now().UTC().Format(time.RFC3339),
		Data:      payload,
	})
	if err != nil {
		return FunctionReply{}, newError(ErrorCodeInternal, "failed to encode payload", err)
	}

	attempt := d.deliver(ctx, route, body)
	d.record(ctx, tenantID, functionName, attempt)

	switch attempt.Outcome {
	case OutcomeTimeout:
		return FunctionReply{}, newError(ErrorCodeTimeout, "function endpoint timed out", attempt.Err)
	case OutcomeNetworkFailure:
		return FunctionReply{}, newError(ErrorCodeUnreachable, "function endpoint unreachable", attempt.Err)
	}

	// Upstream errors propagate as replies: the caller sees the downstream
	// status and body, not a dispatcher-synthesised failure.
	return FunctionReply{
		SubscriptionID: attempt.SubscriptionID,
		StatusCode:     attempt.StatusCode,
		Body:           attempt.Body,
	}, nil
}

func (d *Dispatcher) deliver(ctx context.Context, sub model.SubscriptionItem, body []byte) Attempt {
	attempt := Attempt{
		SubscriptionID: sub.SubscriptionID,
		EndpointURL:    sub.EndpointURL,
	}

	timeout := d.defaultTimeout
	if sub.TimeoutMs > 0 {
		timeout = time.Duration(sub.TimeoutMs) * time.Millisecond
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, sub.EndpointURL, bytes.NewReader(body))
	if err != nil {
		attempt.Outcome = OutcomeNetworkFailure
		attempt.Err = err
		return attempt
	}
	req.Header.Set("Content-Type", "application/json")

	if d.credentials != nil {
		token, err := d.credentials.OutboundAuth(ctx, sub.SubscriptionID)
		if err != nil {
			attempt.Outcome = OutcomeNetworkFailure
			attempt.Err = fmt.Errorf("resolve outbound auth: %w", err)
			return attempt
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	attempt.Duration = time.Since(start)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			attempt.Outcome = OutcomeTimeout
		} else {
			attempt.Outcome = OutcomeNetworkFailure
		}
		attempt.Err = err
		return attempt
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode
	reply, _ := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	attempt.Body = reply

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		attempt.Outcome = OutcomeSuccess
	} else {
		attempt.Outcome = OutcomeUpstreamError
	}
	return attempt
}

// record updates the persistent counters and the process metrics for one
// attempt. Counter failures are logged, never propagated: statistics must
// not fail a dispatch that already ran.
func (d *Dispatcher) record(ctx context.Context, tenantID, target string, attempt Attempt) {
	observeDispatch(string(attempt.Outcome), attempt.Duration)

	if err := d.registry.RecordDispatch(ctx, attempt.SubscriptionID, attempt.Outcome == OutcomeSuccess); err != nil {
		d.log.Error("failed to record dispatch stats",
			zap.String("subscription_id", attempt.SubscriptionID),
			zap.Error(err),
		)
	}

	if attempt.Outcome == OutcomeSuccess {
		d.log.Debug("dispatched event",
			zap.String("tenant_id", tenantID),
			zap.String("target", target),
			zap.String("subscription_id", attempt.SubscriptionID),
			zap.Duration("duration", attempt.Duration),
		)
		return
	}

	d.log.Warn("dispatch attempt failed",
		zap.String("tenant_id", tenantID),
		zap.String("target", target),
		zap.String("subscription_id", attempt.SubscriptionID),
		zap.String("outcome", string(attempt.Outcome)),
		zap.Int("status", attempt.StatusCode),
		zap.Error(attempt.Err),
	)
}
