// Package scriptdbg is the public entry point for connecting to a remote
// script-engine debug agent: dial a TCP address, get back a Session (or
// a HostSession for the host-extended dialect), and drive it with the
// operations in session.go.
//
// The three layers described in the design (framed transport, request/
// response correlation, high-level session operations) live in
// internal/wire, internal/conn, and internal/session respectively; this
// package only wires them together behind a small dial surface, the way
// aistore's top-level api package is a thin façade over cmn/cluster.
package scriptdbg

import (
	"fmt"
	"net"
	"time"

	"github.com/ianremillard/scriptdbg/internal/conn"
	"github.com/ianremillard/scriptdbg/internal/session"
)

// Re-exported types callers need without reaching into internal/.
type (
	Session      = session.Session
	HostSession  = session.HostSession
	ProtocolInfo = session.ProtocolInfo
	Variable     = session.Variable
	StackFrame   = session.StackFrame
	Scope        = session.Scope
	Breakpoint   = session.Breakpoint
	Node         = session.Node
	InspectOptions = session.InspectOptions
	StoppedEvent = session.StoppedEvent
	ContextEvent = session.ContextEvent
	LogEvent     = session.LogEvent
	StatNode     = session.StatNode
)

// Re-exported event channel and stop/context reason constants.
const (
	EventStopped         = session.EventStopped
	EventContext         = session.EventContext
	EventEnd             = session.EventEnd
	EventLog             = session.EventLog
	EventStat            = session.EventStat
	EventProfilerCapture = session.EventProfilerCapture

	StopReasonEntry      = session.StopReasonEntry
	StopReasonException  = session.StopReasonException
	StopReasonBreakpoint = session.StopReasonBreakpoint
	StopReasonPause      = session.StopReasonPause
	StopReasonStep       = session.StopReasonStep
	StopReasonStepIn     = session.StopReasonStepIn
	StopReasonStepOut    = session.StopReasonStepOut

	ContextReasonNew    = session.ContextReasonNew
	ContextReasonExited = session.ContextReasonExited
)

// Inspect materialises a remote Handle into a concrete value tree
// (spec.md §4.3).
func Inspect(s *Session, v Variable, opts InspectOptions) *Node {
	return session.Inspect(s, v, opts)
}

// DialOptions configures Dial/DialHost.
type DialOptions struct {
	// RequestTimeout overrides the connection's default per-request
	// timeout (10s); zero keeps the default.
	RequestTimeout time.Duration
	// DialTimeout bounds the TCP handshake itself; zero means no timeout.
	DialTimeout time.Duration
}

func (o DialOptions) connOptions() []conn.Option {
	if o.RequestTimeout <= 0 {
		return nil
	}
	return []conn.Option{conn.WithRequestTimeout(o.RequestTimeout)}
}

// Dial connects to a debug agent at addr ("host:port") and returns a base
// Session (spec.md §4.3 core operations only; no host-extended dialect).
func Dial(addr string, opts DialOptions) (*Session, error) {
	nc, err := dial(addr, opts.DialTimeout)
	if err != nil {
		return nil, err
	}
	c := conn.New(nc, opts.connOptions()...)
	return session.New(c), nil
}

// DialHost connects to a debug agent and returns a HostSession, the
// host-extended dialect (protocol handshake tracking, log/stat/profiler
// events, versioned feature gates; spec.md §4.3). localInfo may be nil to
// track the debuggee's protocol version without echoing a handshake.
func DialHost(addr string, localInfo *ProtocolInfo, opts DialOptions) (*HostSession, error) {
	nc, err := dial(addr, opts.DialTimeout)
	if err != nil {
		return nil, err
	}
	c := conn.New(nc, opts.connOptions()...)
	return session.NewHost(c, localInfo), nil
}

func dial(addr string, timeout time.Duration) (net.Conn, error) {
	var nc net.Conn
	var err error
	if timeout > 0 {
		nc, err = net.DialTimeout("tcp", addr, timeout)
	} else {
		nc, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("scriptdbg: dial %s: %w", addr, err)
	}
	return nc, nil
}
