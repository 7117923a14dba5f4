// Package session implements the Debug Session (C3): the high-level
// operations a caller drives (stack/scope/variable/evaluate/step/
// breakpoint), built entirely on top of a conn.Connection.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ianremillard/scriptdbg/internal/conn"
)

// Commands sent as "request" envelopes (spec.md §6).
const (
	cmdContinue    = "continue"
	cmdPause       = "pause"
	cmdNext        = "next"
	cmdStepIn      = "stepIn"
	cmdStepOut     = "stepOut"
	cmdEvaluate    = "evaluate"
	cmdStackTrace  = "stackTrace"
	cmdScopes      = "scopes"
	cmdVariables   = "variables"
	cmdSetBreakpoints = "setBreakpoints" // host-extended, protocol v>=6 only
)

// Evaluate contexts (spec.md §4.3).
const (
	ContextWatch     = "watch"
	ContextRepl      = "repl"
	ContextHover     = "hover"
	ContextClipboard = "clipboard"
	ContextVariables = "variables"
)

// Event channel names surfaced by the base Session (spec.md §4.3).
const (
	EventStopped = "stopped"
	EventContext = "context"
	EventEnd     = "end"
)

// Event type strings observed from the debuggee (spec.md §6).
const (
	wireStoppedEvent = "StoppedEvent"
	wireThreadEvent  = "ThreadEvent"
	wireTerminated   = "terminated"
)

// ErrNotReady is returned by GetTopStack when the debuggee reports an
// empty stack, i.e. there is no frame to select (spec.md §7).
var ErrNotReady = errors.New("session: not ready")

// StoppedEvent payload (spec.md §4.3).
type StoppedEvent struct {
	Thread int    `json:"thread"`
	Reason string `json:"reason"`
}

// Stopped reasons (spec.md §4.3).
const (
	StopReasonEntry     = "entry"
	StopReasonException = "exception"
	StopReasonBreakpoint = "breakpoint"
	StopReasonPause     = "pause"
	StopReasonStep      = "step"
	StopReasonStepIn    = "stepIn"
	StopReasonStepOut   = "stepOut"
)

// ContextEvent payload (spec.md §4.3), bridged from the debuggee's thread event.
type ContextEvent struct {
	Thread int    `json:"thread"`
	Reason string `json:"reason"`
}

// Context reasons (spec.md §4.3).
const (
	ContextReasonNew    = "new"
	ContextReasonExited = "exited"
)

// Listener receives a decoded Session-level event payload.
type Listener func(payload interface{})

// Session is the base (non-host-extended) debug session. It bridges the
// debuggee's own event names (StoppedEvent, ThreadEvent, terminated)
// onto the stable channel names a caller subscribes to (stopped,
// context, end), per spec.md §4.3 and §9's "emitter-based fan-out"
// design note.
type Session struct {
	Conn *conn.Connection

	mu        sync.Mutex
	listeners map[string][]Listener
}

// New creates a Session on top of an already-constructed Connection and
// wires the base event bridge (stopped/context/end).
func New(c *conn.Connection) *Session {
	s := &Session{Conn: c, listeners: make(map[string][]Listener)}
	s.wireBaseEvents()
	return s
}

// On registers a listener for a Session-level channel (EventStopped,
// EventContext, EventEnd, or any channel a host-extended session adds).
func (s *Session) On(channel string, l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[channel] = append(s.listeners[channel], l)
}

// emit fans a decoded payload out to every listener on channel.
func (s *Session) emit(channel string, payload interface{}) {
	s.mu.Lock()
	ls := append([]Listener(nil), s.listeners[channel]...)
	s.mu.Unlock()
	for _, l := range ls {
		l(payload)
	}
}

func (s *Session) wireBaseEvents() {
	s.Conn.On(wireStoppedEvent, func(payload []byte) {
		var ev StoppedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		s.emit(EventStopped, ev)
	})
	s.Conn.On(wireThreadEvent, func(payload []byte) {
		var ev ContextEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		s.emit(EventContext, ev)
	})
	s.Conn.On(wireTerminated, func(payload []byte) {
		s.emit(EventEnd, nil)
	})
	s.Conn.On("end", func(payload []byte) {
		s.emit(EventEnd, nil)
	})
}

// Continue resumes execution (spec.md §4.3).
func (s *Session) Continue() ([]byte, error) { return s.request(cmdContinue, nil) }

// Pause requests the debuggee halt at its next safe point.
func (s *Session) Pause() ([]byte, error) { return s.request(cmdPause, nil) }

// StepNext steps over the current line.
func (s *Session) StepNext() ([]byte, error) { return s.request(cmdNext, nil) }

// StepIn steps into a call on the current line.
func (s *Session) StepIn() ([]byte, error) { return s.request(cmdStepIn, nil) }

// StepOut steps out of the current function.
func (s *Session) StepOut() ([]byte, error) { return s.request(cmdStepOut, nil) }

type evaluateArgs struct {
	FrameId    int    `json:"frameId"`
	Context    string `json:"context"`
	Expression string `json:"expression"`
}

type evaluateResponse struct {
	Result             string `json:"result"`
	Type               string `json:"type"`
	VariablesReference int    `json:"variablesReference"`
	IndexedVariables   *int   `json:"indexedVariables,omitempty"`
}

// Evaluate sends an "evaluate" request and returns a Variable built from
// the response (name forced to "result"; spec.md §4.3). An empty context
// defaults to ContextWatch.
func (s *Session) Evaluate(frameId int, expr string, evalContext string) (Variable, error) {
	if evalContext == "" {
		evalContext = ContextWatch
	}
	body, err := s.request(cmdEvaluate, evaluateArgs{FrameId: frameId, Context: evalContext, Expression: expr})
	if err != nil {
		return Variable{}, err
	}
	var resp evaluateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Variable{}, fmt.Errorf("session: decode evaluate response: %w", err)
	}
	return NewVariable(VariableInfo{
		Name:               "result",
		Value:              resp.Result,
		Type:               resp.Type,
		VariablesReference: resp.VariablesReference,
		IndexedVariables:   resp.IndexedVariables,
	}), nil
}

type stackTraceResponse struct {
	StackFrames []StackFrame `json:"stackFrames"`
}

// TraceStack returns stack frames in debuggee order (top first; spec.md §4.3).
func (s *Session) TraceStack() ([]StackFrame, error) {
	body, err := s.request(cmdStackTrace, nil)
	if err != nil {
		return nil, err
	}
	var resp stackTraceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("session: decode stackTrace response: %w", err)
	}
	return resp.StackFrames, nil
}

// GetTopStack returns the first (topmost) frame, or ErrNotReady if the
// stack is empty.
func (s *Session) GetTopStack() (StackFrame, error) {
	frames, err := s.TraceStack()
	if err != nil {
		return StackFrame{}, err
	}
	if len(frames) == 0 {
		return StackFrame{}, ErrNotReady
	}
	return frames[0], nil
}

type scopesArgs struct {
	FrameId int `json:"frameId"`
}

type scopesResponse struct {
	Scopes []Scope `json:"scopes"`
}

// GetScopes returns the scopes visible in frameId.
func (s *Session) GetScopes(frameId int) ([]Scope, error) {
	body, err := s.request(cmdScopes, scopesArgs{FrameId: frameId})
	if err != nil {
		return nil, err
	}
	var resp scopesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("session: decode scopes response: %w", err)
	}
	return resp.Scopes, nil
}

// VariablesFilter selects which children of an indexed (array-like)
// reference to fetch (spec.md §4.3).
type VariablesFilter struct {
	Filter string `json:"filter,omitempty"` // "indexed" or "" (named)
	Start  int    `json:"start,omitempty"`
	Count  int    `json:"count,omitempty"`
}

type variablesArgs struct {
	VariablesReference int `json:"variablesReference"`
	Filter             string `json:"filter,omitempty"`
	Start              int    `json:"start,omitempty"`
	Count              int    `json:"count,omitempty"`
}

type variablesResponse struct {
	Variables []VariableInfo `json:"variables"`
}

// InspectVariable fetches the direct children of ref, optionally filtered
// to an indexed range (spec.md §4.3).
func (s *Session) InspectVariable(ref int, filter VariablesFilter) ([]Variable, error) {
	body, err := s.request(cmdVariables, variablesArgs{
		VariablesReference: ref,
		Filter:             filter.Filter,
		Start:              filter.Start,
		Count:              filter.Count,
	})
	if err != nil {
		return nil, err
	}
	var resp variablesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("session: decode variables response: %w", err)
	}
	out := make([]Variable, len(resp.Variables))
	for i, vi := range resp.Variables {
		out[i] = NewVariable(vi)
	}
	return out, nil
}

// Resume emits a fire-and-forget "resume" envelope; no response is awaited.
func (s *Session) Resume() error {
	return s.Conn.SendEnvelope("resume", nil)
}

// SetBreakpoints emits a fire-and-forget "breakpoints" envelope. An empty
// (non-nil) slice still pushes an empty array; pass nil to clear via the
// wire's null representation (spec.md §4.3 args shape).
func (s *Session) SetBreakpoints(path string, bps []Breakpoint) error {
	var bpsField interface{}
	if bps == nil {
		bpsField = nil
	} else {
		bpsField = bps
	}
	return s.Conn.SendEnvelope("breakpoints", map[string]interface{}{
		"breakpoints": map[string]interface{}{
			"path":        path,
			"breakpoints": bpsField,
		},
	})
}

// SetStopOnException emits a fire-and-forget "stopOnException" envelope.
func (s *Session) SetStopOnException(enabled bool) error {
	return s.Conn.SendEnvelope("stopOnException", map[string]interface{}{
		"stopOnException": enabled,
	})
}

// request sends a request and waits for it to settle, translating a
// conn.Result into (body, error).
func (s *Session) request(command string, args interface{}) ([]byte, error) {
	f, err := s.Conn.SendRequest(command, args)
	if err != nil {
		return nil, err
	}
	res := f.Wait()
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Body, nil
}
