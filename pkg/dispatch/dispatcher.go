// Package dispatch routes actions to their capability servers over
// HTTP and normalizes every outcome, transport failures included, into
// the uniform result envelope.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/harun/toolwire/pkg/protocol"
)

// Config is the read-only client configuration for an orchestration
// run: one base URL per tool plus a bounded request timeout.
type Config struct {
	// Endpoints maps a tool name to its server's base URL
	Endpoints map[string]string

	// Timeout bounds each HTTP request; defaults to 15s
	Timeout time.Duration
}

// Observer receives the outcome of each dispatch. A nil observer
// disables observation.
type Observer interface {
	ObserveDispatch(tool, status string, duration time.Duration)
}

// Dispatcher sends single actions to capability servers. At-most-once
// delivery: no retries at this layer.
type Dispatcher struct {
	cfg      Config
	client   *http.Client
	observer Observer
}

// New creates a dispatcher for the given configuration.
func New(cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// SetObserver attaches a dispatch observer. Call before dispatching.
func (d *Dispatcher) SetObserver(o Observer) {
	d.observer = o
}

// Dispatch sends one action to the endpoint registered for its tool
// and returns the server's envelope. A missing endpoint mapping is a
// local ConfigError and nothing is sent; transport failures become
// ConnectionError or Timeout envelopes.
func (d *Dispatcher) Dispatch(ctx context.Context, action protocol.Action) protocol.Envelope {
	start := time.Now()
	env := d.dispatch(ctx, action)
	if d.observer != nil {
		status := "ok"
		if !env.OK {
			status = env.ErrorType()
		}
		d.observer.ObserveDispatch(action.Tool, status, time.Since(start))
	}
	return env
}

func (d *Dispatcher) dispatch(ctx context.Context, action protocol.Action) protocol.Envelope {
	baseURL, ok := d.cfg.Endpoints[action.Tool]
	if !ok {
		return protocol.Failure(protocol.ErrConfig,
			fmt.Sprintf("no endpoint configured for tool %q", action.Tool))
	}

	requestID, err := gonanoid.New()
	if err != nil {
		return protocol.Failure(protocol.ErrConfig,
			fmt.Sprintf("failed to generate request id: %v", err))
	}

	payload := protocol.ToolRequest{
		Action:    action.Name,
		Args:      action.Args,
		RequestID: requestID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return protocol.Failure(protocol.ErrParse,
			fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(body))
	if err != nil {
		return protocol.Failure(protocol.ErrConfig,
			fmt.Sprintf("invalid endpoint for tool %q: %v", action.Tool, err))
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug().
		Str("request_id", requestID).
		Str("tool", action.Tool).
		Str("action", action.Name).
		Str("endpoint", baseURL).
		Msg("Dispatching action")

	resp, err := d.client.Do(req)
	if err != nil {
		return transportFailure(err)
	}
	defer resp.Body.Close()

	var env protocol.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return protocol.Failure(protocol.ErrParse,
			fmt.Sprintf("endpoint for tool %q returned a malformed envelope: %v", action.Tool, err))
	}

	return env
}

// transportFailure maps a client error to a Timeout or ConnectionError
// envelope so callers never special-case transport vs application
// errors.
func transportFailure(err error) protocol.Envelope {
	var urlErr interface{ Timeout() bool }
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return protocol.Failure(protocol.ErrTimeout, fmt.Sprintf("request timed out: %v", err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return protocol.Failure(protocol.ErrTimeout, fmt.Sprintf("request timed out: %v", err))
	}
	return protocol.Failure(protocol.ErrConnection, fmt.Sprintf("endpoint unreachable: %v", err))
}
