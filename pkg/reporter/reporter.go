// Package reporter ships captured failures to the ingestion endpoint on a
// fire-and-forget basis. Report never blocks and never returns an error;
// when the queue is full or the server is unreachable the event is dropped.
// Telemetry loss is always preferable to slowing down or re-breaking the
// caller's error path.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/razaq-yassine/errorscope/pkg/boundary"
)

const (
	defaultQueueSize = 64
	defaultTimeout   = 3 * time.Second
)

// Event is the submission payload. Identity, category, severity, and
// fingerprint are assigned server-side and cannot be supplied here.
type Event struct {
	ErrorType        string         `json:"error_type"`
	TechnicalMessage string         `json:"technical_message,omitempty"`
	UserMessage      string         `json:"user_message,omitempty"`
	StackTrace       string         `json:"stack_trace,omitempty"`
	UserID           string         `json:"user_id,omitempty"`
	SessionID        string         `json:"session_id,omitempty"`
	Environment      string         `json:"environment,omitempty"`
	Source           string         `json:"source,omitempty"`
	Details          map[string]any `json:"details,omitempty"`
}

// Reporter delivers events from a bounded queue on a single background
// worker. Safe for concurrent use.
type Reporter struct {
	endpoint    string
	client      *http.Client
	environment string

	queue chan Event
	done  chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithQueueSize sets the queue capacity. Events beyond it are dropped.
func WithQueueSize(n int) Option {
	return func(r *Reporter) {
		if n > 0 {
			r.queue = make(chan Event, n)
		}
	}
}

// WithTimeout bounds each delivery attempt. There are no retries.
func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.client.Timeout = d
		}
	}
}

// WithEnvironment stamps every event with a deployment tag.
func WithEnvironment(env string) Option {
	return func(r *Reporter) { r.environment = env }
}

// WithHTTPClient replaces the default client, keeping its timeout unless
// the supplied client sets its own.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Reporter) {
		if c != nil {
			if c.Timeout == 0 {
				c.Timeout = defaultTimeout
			}
			r.client = c
		}
	}
}

// New creates a Reporter posting to endpoint, which should be the full
// submit URL, e.g. "https://errors.example.com/api/v1/errors/log".
func New(endpoint string, opts ...Option) *Reporter {
	r := &Reporter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
		queue:    make(chan Event, defaultQueueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Report enqueues an event for delivery. Never blocks; drops when the
// queue is full or the reporter is closed.
func (r *Reporter) Report(e Event) {
	if e.Environment == "" {
		e.Environment = r.environment
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
	}
}

// ReportFailure adapts a captured boundary failure into an event, letting
// a Reporter serve directly as a boundary.Sink.
func (r *Reporter) ReportFailure(f boundary.Failure) {
	r.Report(Event{
		ErrorType:        f.ErrorType,
		TechnicalMessage: f.Message,
		StackTrace:       f.StackTrace,
		Source:           f.Boundary,
		Details: map[string]any{
			"support_reference": f.Reference,
			"captured_at":       f.OccurredAt.Format(time.RFC3339Nano),
		},
	})
}

// Close stops accepting events, drains what is already queued, and waits
// for the worker to finish. Safe to call more than once.
func (r *Reporter) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done
	})
}

func (r *Reporter) run() {
	defer close(r.done)
	for e := range r.queue {
		r.deliver(e)
	}
}

// deliver posts one event. All failures are swallowed; the response body
// is ignored beyond closing it.
func (r *Reporter) deliver(e Event) {
	body, err := json.Marshal(e)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
