// Package conn implements the Debug Connection (C2): request/response
// correlation, per-request timeouts, and event dispatch on top of the
// framed transport in internal/wire.
//
// Architecture overview
// ─────────────────────
//
//  ┌────────────────────────────┐
//  │  Connection                │
//  │   readLoop goroutine       │──► dispatches events to listeners
//  │     reads wire.Envelope ───┤──► resolves/rejects pending[seq]
//  │   pending: seq → *pending  │    (request_seq correlation)
//  │   seq counter (1, 2, 3...) │
//  └────────────────────────────┘
//
// All mutable Connection state (pending map, sequence counter, listener
// map) is protected by a single mutex, the same "serialise to one logical
// owner" discipline the teacher applies to Instance state.
package conn

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/ianremillard/scriptdbg/internal/wire"
)

// Error kinds surfaced on a Future or the connection's error channel
// (spec.md §7).
var (
	ErrConnectionClosed = errors.New("conn: connection closed")
	ErrTimeout          = errors.New("conn: request timed out")
)

// RemoteError wraps the debuggee's own `error` string from a response
// envelope (spec.md §7 RemoteError).
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "conn: remote error: " + e.Message }

// DefaultRequestTimeout is the default per-request wall-clock timeout
// (spec.md §4.2).
const DefaultRequestTimeout = 10 * time.Second

// Future is the Go analogue of spec.md §9's "future-and-completion-source
// pair": sendRequest returns one, and the caller receives exactly one
// Result on Done once the request settles (response, timeout, or
// connection close).
type Future struct {
	done chan Result
}

// Result is the single value delivered on a Future's Done channel.
type Result struct {
	Body []byte
	Err  error
}

// Done returns the channel the caller should receive from; it is closed
// after sending exactly one Result.
func (f *Future) Done() <-chan Result { return f.done }

// Wait blocks until the future settles and returns its Result.
func (f *Future) Wait() Result { return <-f.done }

type pendingRequest struct {
	resultCh chan Result
	timer    *time.Timer
}

// EventListener receives every inbound event envelope whose inner `type`
// matches the channel it was registered for, plus the synthetic "end" and
// "error" channels (spec.md §4.2).
type EventListener func(payload []byte)

// Connection owns a single framed duplex stream 1:1 and is itself owned
// 1:1 by a Session (spec.md §3 Lifecycles).
type Connection struct {
	nc             net.Conn
	fr             *wire.FrameReader
	fw             *wire.FrameWriter
	requestTimeout time.Duration

	mu        sync.Mutex
	seq       uint32
	pending   map[uint32]*pendingRequest
	listeners map[string][]EventListener
	closed    bool
}

// Option configures a Connection at construction time.
type Option func(*Connection)

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Connection) { c.requestTimeout = d }
}

// New wraps nc (already-dialed TCP or any net.Conn-like duplex stream)
// and starts the read loop. The caller must not read from nc directly
// afterward; all reads funnel through the Connection's readLoop.
func New(nc net.Conn, opts ...Option) *Connection {
	c := &Connection{
		nc:             nc,
		fr:             wire.NewFrameReader(nc),
		fw:             wire.NewFrameWriter(nc),
		requestTimeout: DefaultRequestTimeout,
		pending:        make(map[uint32]*pendingRequest),
		listeners:      make(map[string][]EventListener),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// On registers a listener for a named event channel. Recognized
// synthetic channels: "end" (stream ended, payload nil) and "error"
// (transport error, payload is the error's message as a string). All
// other channel names are event envelope inner `type` values dispatched
// verbatim (spec.md §4.2).
func (c *Connection) On(channel string, l EventListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[channel] = append(c.listeners[channel], l)
}

func (c *Connection) emit(channel string, payload []byte) {
	c.mu.Lock()
	ls := append([]EventListener(nil), c.listeners[channel]...)
	c.mu.Unlock()
	for _, l := range ls {
		l(payload)
	}
}

// Close requests orderly shutdown of the underlying stream; idempotent.
// It runs the same teardown path readLoop takes on a stream error, so an
// explicit Close() also rejects every pending future with
// ErrConnectionClosed and emits "end" exactly once.
func (c *Connection) Close() error {
	return c.teardown(nil)
}

// SendEnvelope emits a non-request envelope, auto-tagged with
// version=RequestVersion and the supplied type. No response is awaited
// and the envelope never enters the pending map (spec.md §9 "fire and
// forget envelopes").
func (c *Connection) SendEnvelope(envType string, fields map[string]interface{}) error {
	body, err := wire.EncodeEnvelope(envType, fields)
	if err != nil {
		return fmt.Errorf("conn: encode %s envelope: %w", envType, err)
	}
	return c.fw.WriteFrame(body)
}

// SendRequest emits a "request" envelope with a fresh, monotonically
// increasing request_seq and returns a Future that resolves with the
// response body or fails with a RemoteError, ErrConnectionClosed, or
// ErrTimeout (spec.md §4.2).
func (c *Connection) SendRequest(command string, args interface{}) (*Future, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.seq++
	seq := c.seq

	resultCh := make(chan Result, 1)
	pr := &pendingRequest{resultCh: resultCh}
	pr.timer = time.AfterFunc(c.requestTimeout, func() { c.timeoutRequest(seq) })
	c.pending[seq] = pr
	c.mu.Unlock()

	env := wire.NewRequestEnvelope(seq, command, args)
	body, err := wire.Marshal(env)
	if err != nil {
		c.removePending(seq, true)
		return nil, fmt.Errorf("conn: encode request %s: %w", command, err)
	}
	if err := c.fw.WriteFrame(body); err != nil {
		c.settlePending(seq, Result{Err: fmt.Errorf("conn: write request %s: %w", command, err)})
		return nil, err
	}

	return &Future{done: resultCh}, nil
}

// removePending deletes seq from the pending map. If stopTimer is true the
// request's timer is also stopped; every current caller passes true,
// both when abandoning a request that failed to encode and when
// settling one through settlePending.
func (c *Connection) removePending(seq uint32, stopTimer bool) *pendingRequest {
	c.mu.Lock()
	pr := c.pending[seq]
	delete(c.pending, seq)
	c.mu.Unlock()
	if pr != nil && stopTimer && pr.timer != nil {
		pr.timer.Stop()
	}
	return pr
}

// settlePending resolves the pending request for seq exactly once, if it
// is still outstanding (it may already have been removed by a timeout or
// teardown).
func (c *Connection) settlePending(seq uint32, res Result) {
	pr := c.removePending(seq, true)
	if pr == nil {
		return // already settled (timed out, or connection already closed)
	}
	pr.resultCh <- res
	close(pr.resultCh)
}

func (c *Connection) timeoutRequest(seq uint32) {
	c.settlePending(seq, Result{Err: ErrTimeout})
}

// readLoop is the sole reader of the underlying stream. It decodes
// envelopes, correlates responses against pending, and dispatches
// events, until the stream ends or a framing/decode error occurs.
func (c *Connection) readLoop() {
	for {
		body, err := c.fr.ReadFrame()
		if err != nil {
			c.teardown(err)
			return
		}

		var env wire.Envelope
		if err := wire.Unmarshal(body, &env); err != nil {
			c.emit("error", []byte(err.Error()))
			c.teardown(err)
			return
		}

		switch env.Type {
		case wire.TypeResponse:
			c.handleResponse(env)
		case wire.TypeEvent:
			c.handleEvent(env)
		default:
			// Forward-compat: ignore unrecognized inbound types.
			log.Printf("conn: ignoring inbound envelope of type %q", env.Type)
		}
	}
}

func (c *Connection) handleResponse(env wire.Envelope) {
	if env.Error != "" {
		c.settlePending(env.RequestSeq, Result{Err: &RemoteError{Message: env.Error}})
		return
	}
	c.settlePending(env.RequestSeq, Result{Body: []byte(env.Body)})
}

func (c *Connection) handleEvent(env wire.Envelope) {
	var hdr wire.EventHeader
	if err := wire.Unmarshal(env.Event, &hdr); err != nil {
		log.Printf("conn: malformed event envelope: %v", err)
		return
	}
	c.emit(hdr.Type, []byte(env.Event))
}

// teardown runs exactly once per Connection, whether triggered by an
// explicit Close() (cause nil) or by readLoop observing a stream error:
// snapshot and clear pending, close the stream, emit "error" (for a cause
// other than nil or io.EOF) and "end", then reject every pending future
// with ErrConnectionClosed. It alone sets c.closed, so Close()
// can never short-circuit this path by setting the flag itself. Clearing
// pending before rejecting matters because a rejecter that synchronously
// triggers another send must not find its own entry still present
// (spec.md §4.2 Teardown).
func (c *Connection) teardown(cause error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	snapshot := c.pending
	c.pending = make(map[uint32]*pendingRequest)
	c.mu.Unlock()

	closeErr := c.nc.Close()

	if cause != nil && cause != io.EOF {
		c.emit("error", []byte(cause.Error()))
	}
	c.emit("end", nil)

	for _, pr := range snapshot {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		pr.resultCh <- Result{Err: ErrConnectionClosed}
		close(pr.resultCh)
	}

	return closeErr
}
