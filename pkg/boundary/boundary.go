// Package boundary isolates rendering failures to the smallest practical
// region of a page. A Boundary wraps one region's render function; when the
// function returns an error or panics, the boundary swaps in a fallback
// view, records the failure, and hands it to a reporting sink without ever
// letting the failure escape to sibling regions or the surrounding handler.
package boundary

import (
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State of a boundary: rendering normally or showing its fallback.
type State int

const (
	StateOK State = iota
	StateFailed
)

func (s State) String() string {
	if s == StateFailed {
		return "failed"
	}
	return "ok"
}

// Failure is a captured rendering failure. The raw error text stays
// operator-side; end users only ever see the Reference.
type Failure struct {
	ErrorType  string
	Message    string
	StackTrace string
	Boundary   string
	Reference  string
	OccurredAt time.Time
}

// Sink receives captured failures. Implementations must not block the
// caller; the boundary additionally shields itself from a panicking sink.
type Sink interface {
	ReportFailure(f Failure)
}

// RenderFunc produces a region's content. Returning an error or panicking
// trips the enclosing boundary.
type RenderFunc func(w io.Writer) error

// Fallback renders the replacement content for a failed region.
type Fallback func(w io.Writer, f Failure)

// Boundary supervises one region. Safe for concurrent use; a failure seen
// by one renderer is visible to all until Reset is called.
type Boundary struct {
	name     string
	sink     Sink
	fallback Fallback

	mu      sync.Mutex
	state   State
	failure Failure
}

// Option configures a Boundary.
type Option func(*Boundary)

// WithSink sets the sink that receives captured failures. Without a sink
// failures are contained but not reported.
func WithSink(s Sink) Option {
	return func(b *Boundary) { b.sink = s }
}

// WithFallback overrides the built-in section fallback.
func WithFallback(f Fallback) Option {
	return func(b *Boundary) { b.fallback = f }
}

// New creates a boundary named for the region it guards. The name travels
// with every reported failure so operators can locate the broken region.
func New(name string, opts ...Option) *Boundary {
	b := &Boundary{
		name:     name,
		fallback: SectionFallback,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Render runs fn and writes its output to w. If the boundary has already
// failed, or fn fails now, the fallback is written instead. Render itself
// never returns an error and never panics; containment is the whole point.
//
// Output buffering: fn writes into a scratch buffer so a half-written
// region is discarded rather than flushed alongside the fallback.
func (b *Boundary) Render(w io.Writer, fn RenderFunc) {
	b.mu.Lock()
	if b.state == StateFailed {
		f := b.failure
		b.mu.Unlock()
		b.fallback(w, f)
		return
	}
	b.mu.Unlock()

	var buf bounded
	if err := b.attempt(&buf, fn); err != nil {
		f := b.capture(err)
		b.fallback(w, f)
		b.report(f)
		return
	}
	w.Write(buf.b)
}

// attempt runs fn, converting a panic into an error.
func (b *Boundary) attempt(w io.Writer, fn RenderFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return fn(w)
}

// capture records the failure and flips the boundary to failed.
func (b *Boundary) capture(err error) Failure {
	f := Failure{
		ErrorType:  errorType(err),
		Message:    err.Error(),
		Boundary:   b.name,
		Reference:  uuid.New().String(),
		OccurredAt: time.Now().UTC(),
	}
	var pe *panicError
	if ok := asPanicError(err, &pe); ok {
		f.StackTrace = string(pe.stack)
	}

	b.mu.Lock()
	b.state = StateFailed
	b.failure = f
	b.mu.Unlock()
	return f
}

// report hands the failure to the sink. A nil, slow, or panicking sink
// must never produce a second failure in the render path.
func (b *Boundary) report(f Failure) {
	if b.sink == nil {
		return
	}
	defer func() { recover() }()
	b.sink.ReportFailure(f)
}

// State returns the boundary's current state.
func (b *Boundary) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failure returns the captured failure, if any.
func (b *Boundary) Failure() (Failure, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failure, b.state == StateFailed
}

// Reset clears the failed state so the region can be retried without
// rebuilding the page.
func (b *Boundary) Reset() {
	b.mu.Lock()
	b.state = StateOK
	b.failure = Failure{}
	b.mu.Unlock()
}

// panicError wraps a recovered panic value as an error.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func asPanicError(err error, target **panicError) bool {
	pe, ok := err.(*panicError)
	if ok {
		*target = pe
	}
	return ok
}

// errorType derives a short machine name for the failure, e.g. the
// concrete error type without its package path.
func errorType(err error) string {
	if _, ok := err.(*panicError); ok {
		return "RenderPanic"
	}
	t := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	if i := strings.LastIndexByte(t, '.'); i >= 0 {
		t = t[i+1:]
	}
	return t
}

// bounded is a tiny grow-only buffer capped at 1 MiB so a runaway renderer
// cannot exhaust memory before its error surfaces.
type bounded struct {
	b []byte
}

const maxRegionBytes = 1 << 20

func (w *bounded) Write(p []byte) (int, error) {
	if len(w.b)+len(p) > maxRegionBytes {
		return 0, fmt.Errorf("region output exceeds %d bytes", maxRegionBytes)
	}
	w.b = append(w.b, p...)
	return len(p), nil
}
