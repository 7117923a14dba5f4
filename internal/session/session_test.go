package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/scriptdbg/internal/conn"
	"github.com/ianremillard/scriptdbg/internal/wire"
)

// testDebuggee is a scripted peer on the other end of a net.Pipe; tests
// register canned responses per command and can inject raw events.
type testDebuggee struct {
	t  *testing.T
	fr *wire.FrameReader
	fw *wire.FrameWriter

	mu           sync.Mutex
	responses    map[string]string      // command -> raw JSON body
	refResponses map[int]string         // variablesReference -> raw JSON body, for "variables" requests
	lastArgs     map[string]interface{} // command -> decoded args of the latest such request

	// envelopes receives every non-request frame this debuggee reads
	// (fire-and-forget envelopes the client sends, e.g. a handshake
	// echo), decoded as a generic map, for tests that need to observe
	// what the client sent without racing serve()'s own frame reads.
	envelopes chan map[string]interface{}
}

func newTestDebuggee(t *testing.T, nc net.Conn) *testDebuggee {
	return &testDebuggee{
		t:            t,
		fr:           wire.NewFrameReader(nc),
		fw:           wire.NewFrameWriter(nc),
		responses:    map[string]string{},
		refResponses: map[int]string{},
		lastArgs:     map[string]interface{}{},
		envelopes:    make(chan map[string]interface{}, 16),
	}
}

func (d *testDebuggee) on(command, rawBody string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses[command] = rawBody
}

// onRef registers a canned "variables" response keyed by the requested
// variablesReference, so a scripted debuggee can answer differently
// depending on which handle is being expanded (e.g. to script a cycle).
func (d *testDebuggee) onRef(ref int, rawBody string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refResponses[ref] = rawBody
}

func (d *testDebuggee) serve() {
	for {
		body, err := d.fr.ReadFrame()
		if err != nil {
			return
		}
		var env wire.Envelope
		if err := wire.Unmarshal(body, &env); err != nil || env.Request == nil {
			var generic map[string]interface{}
			if err := wire.Unmarshal(body, &generic); err == nil {
				select {
				case d.envelopes <- generic:
				default:
				}
			}
			continue
		}
		d.mu.Lock()
		d.lastArgs[env.Request.Command] = env.Request.Args
		d.mu.Unlock()
		raw, ok := "", false
		if env.Request.Command == "variables" {
			if ref, refOK := requestedVariablesRef(env.Request.Args); refOK {
				d.mu.Lock()
				raw, ok = d.refResponses[ref]
				d.mu.Unlock()
			}
		}
		if !ok {
			d.mu.Lock()
			raw, ok = d.responses[env.Request.Command]
			d.mu.Unlock()
		}
		if !ok {
			raw = "{}"
		}
		resp, _ := wire.Marshal(map[string]interface{}{
			"type": "response", "version": 1,
			"request_seq": env.Request.RequestSeq,
			"body":        rawJSON(raw),
		})
		d.fw.WriteFrame(resp)
	}
}

func (d *testDebuggee) sendEvent(eventType string, fields map[string]interface{}) {
	payload := map[string]interface{}{"type": eventType}
	for k, v := range fields {
		payload[k] = v
	}
	data, _ := wire.Marshal(map[string]interface{}{"type": "event", "version": 1, "event": payload})
	d.fw.WriteFrame(data)
}

// requestedVariablesRef extracts the variablesReference field from a
// decoded "variables" request's Args (a map[string]interface{} once
// round-tripped through JSON into an interface{}).
func requestedVariablesRef(args interface{}) (int, bool) {
	m, ok := args.(map[string]interface{})
	if !ok {
		return 0, false
	}
	n, ok := m["variablesReference"].(float64)
	if !ok {
		return 0, false
	}
	return int(n), true
}

type rawJSON string

func (r rawJSON) MarshalJSON() ([]byte, error) { return []byte(r), nil }

func newTestSession(t *testing.T) (*Session, *testDebuggee) {
	t.Helper()
	clientSide, debuggeeSide := net.Pipe()
	d := newTestDebuggee(t, debuggeeSide)
	go d.serve()
	c := conn.New(clientSide)
	t.Cleanup(func() { c.Close() })
	return New(c), d
}

func TestEvaluatePrimitive(t *testing.T) {
	s, d := newTestSession(t)
	d.on("evaluate", `{"result":"2","type":"integer","variablesReference":0}`)

	v, err := s.Evaluate(0, "1+1", "")
	require.NoError(t, err)
	assert.Equal(t, "result", v.Name)
	assert.Equal(t, TypeInteger, v.Type)
	assert.True(t, v.Primitive)
	assert.Equal(t, int64(2), v.PrimitiveValue)
}

func TestEvaluateDefaultsContextToWatch(t *testing.T) {
	s, d := newTestSession(t)
	d.on("evaluate", `{"result":"1","type":"integer","variablesReference":0}`)
	_, err := s.Evaluate(0, "1", "")
	require.NoError(t, err)

	d.mu.Lock()
	args, _ := d.lastArgs["evaluate"].(map[string]interface{})
	d.mu.Unlock()
	assert.Equal(t, ContextWatch, args["context"])
}

func TestEvaluateObjectThenInspect(t *testing.T) {
	s, d := newTestSession(t)
	d.on("evaluate", `{"result":"[object Object]","type":"object","variablesReference":7}`)
	d.on("variables", `{"variables":[{"name":"a","value":"1","type":"integer","variablesReference":0},{"name":"b","value":"2","type":"integer","variablesReference":0}]}`)

	v, err := s.Evaluate(0, "({a:1,b:2})", "")
	require.NoError(t, err)
	assert.Equal(t, 7, v.Ref)
	assert.False(t, v.Primitive)
	assert.Equal(t, TypeObject, v.Type)

	node := Inspect(s, v, InspectOptions{})
	assert.Equal(t, 7, node.Ref)
	require.Len(t, node.Map, 2)
	assert.Equal(t, int64(1), node.Map["a"].Value)
	assert.Equal(t, int64(2), node.Map["b"].Value)
}

func TestTraceStackOrder(t *testing.T) {
	s, d := newTestSession(t)
	d.on("stackTrace", `{"stackFrames":[{"id":1,"name":"inner","fileName":"a.js","lineNumber":10},{"id":2,"name":"outer","fileName":"a.js","lineNumber":1}]}`)

	frames, err := s.TraceStack()
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "inner", frames[0].Name)

	top, err := s.GetTopStack()
	require.NoError(t, err)
	assert.Equal(t, "inner", top.Name)
}

func TestGetTopStackEmptyIsNotReady(t *testing.T) {
	s, d := newTestSession(t)
	d.on("stackTrace", `{"stackFrames":[]}`)
	_, err := s.GetTopStack()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestStoppedEventBridged(t *testing.T) {
	s, d := newTestSession(t)

	received := make(chan interface{}, 1)
	s.On(EventStopped, func(payload interface{}) { received <- payload })

	d.sendEvent("StoppedEvent", map[string]interface{}{"thread": 1, "reason": "breakpoint"})

	select {
	case payload := <-received:
		ev, ok := payload.(StoppedEvent)
		require.True(t, ok)
		assert.Equal(t, "breakpoint", ev.Reason)
		assert.Equal(t, 1, ev.Thread)
	case <-time.After(2 * time.Second):
		t.Fatal("stopped event not bridged")
	}
}

func TestContextEventBridgedFromThreadEvent(t *testing.T) {
	s, d := newTestSession(t)

	received := make(chan interface{}, 1)
	s.On(EventContext, func(payload interface{}) { received <- payload })

	d.sendEvent("ThreadEvent", map[string]interface{}{"thread": 3, "reason": "new"})

	select {
	case payload := <-received:
		ev := payload.(ContextEvent)
		assert.Equal(t, ContextReasonNew, ev.Reason)
		assert.Equal(t, 3, ev.Thread)
	case <-time.After(2 * time.Second):
		t.Fatal("context event not bridged")
	}
}

func TestEndBridgedFromTerminated(t *testing.T) {
	s, d := newTestSession(t)
	_ = d

	received := make(chan struct{}, 1)
	s.On(EventEnd, func(payload interface{}) { received <- struct{}{} })

	d.sendEvent("terminated", nil)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("end event not bridged")
	}
}

func TestIndexedArrayInspect(t *testing.T) {
	s, d := newTestSession(t)
	count := 5
	d.on("variables", `{"variables":[{"name":"0","value":"10","type":"integer","variablesReference":0},{"name":"1","value":"20","type":"integer","variablesReference":0},{"name":"2","value":"30","type":"integer","variablesReference":0},{"name":"3","value":"40","type":"integer","variablesReference":0},{"name":"4","value":"50","type":"integer","variablesReference":0}]}`)

	v := NewVariable(VariableInfo{Name: "arr", Type: TypeObject, VariablesReference: 9, IndexedVariables: &count})
	assert.True(t, v.IsArray)
	assert.Equal(t, 5, v.IndexedCount)

	node := Inspect(s, v, InspectOptions{})
	require.Len(t, node.Seq, 5)
	assert.Equal(t, int64(10), node.Seq[0].Value)
	assert.Equal(t, int64(50), node.Seq[4].Value)

	d.mu.Lock()
	args, _ := d.lastArgs["variables"].(map[string]interface{})
	d.mu.Unlock()
	assert.Equal(t, "indexed", args["filter"])
	assert.Equal(t, float64(5), args["count"])
}
