// Package wire defines the envelope types and byte-level framing used to
// carry them over a duplex stream, per the debug agent's wire protocol.
//
// Every JSON envelope on the wire is preceded by an 8-character lowercase
// hex length (of the JSON body including its trailing newline) and a
// newline; see FrameReader/FrameWriter for the framing state machine.
package wire

import (
	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in encoding/json replacement; the envelope stream is a
// high-frequency hot path (every stepped line, every variable fetch).
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope types recognized on the wire (spec.md §3).
const (
	TypeRequest          = "request"
	TypeResponse         = "response"
	TypeEvent            = "event"
	TypeResume           = "resume"
	TypeBreakpoints      = "breakpoints"
	TypeStopOnException  = "stopOnException"
	TypeProtocol         = "protocol"
	TypeMinecraftCommand = "minecraftCommand"
	TypeStartProfiler    = "startProfiler"
	TypeStopProfiler     = "stopProfiler"
)

// RequestVersion is the envelope `version` field sent by this client.
const RequestVersion = 1

// RequestBody is the nested `request` object of a "request" envelope.
type RequestBody struct {
	RequestSeq uint32      `json:"request_seq"`
	Command    string      `json:"command"`
	Args       interface{} `json:"args,omitempty"`
}

// Envelope is the generic outer JSON object every inbound wire message
// shares, and is also used to build outbound "request" envelopes.
//
// Request envelopes populate Request. Response envelopes populate
// RequestSeq/Error/Body. Event envelopes populate Event (the inner
// object, left raw so the dispatch key can be peeled off before deciding
// the concrete payload type). Outbound fire-and-forget envelopes (resume,
// breakpoints, stopOnException, protocol, minecraftCommand,
// startProfiler, stopProfiler) do not use this struct; see EncodeEnvelope.
type Envelope struct {
	Type    string       `json:"type"`
	Version int          `json:"version"`
	Request *RequestBody `json:"request,omitempty"`

	// Response fields.
	RequestSeq uint32              `json:"request_seq,omitempty"`
	Error      string              `json:"error,omitempty"`
	Body       jsoniter.RawMessage `json:"body,omitempty"`

	// Event fields: the inner object carries its own "type" plus payload.
	Event jsoniter.RawMessage `json:"event,omitempty"`
}

// EventHeader is the minimal shape needed to dispatch an inbound event
// envelope's inner object by its own `type` field (spec.md §4.2).
type EventHeader struct {
	Type string `json:"type"`
}

// Marshal serialises v using the envelope codec (jsoniter, stdlib-compatible).
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserialises data using the envelope codec.
func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// NewRequestEnvelope builds a "request" envelope ready to frame and send.
func NewRequestEnvelope(seq uint32, command string, args interface{}) Envelope {
	return Envelope{
		Type:    TypeRequest,
		Version: RequestVersion,
		Request: &RequestBody{RequestSeq: seq, Command: command, Args: args},
	}
}

// EncodeEnvelope builds a fire-and-forget (non-request, non-response)
// envelope: `{"type":envType,"version":1, ...fields}` with fields merged
// in at the top level, the shape every non-request command in spec.md §4.3
// uses (e.g. `{"breakpoints":{...}}`, `{"stopOnException":bool}`).
func EncodeEnvelope(envType string, fields map[string]interface{}) ([]byte, error) {
	merged := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		merged[k] = v
	}
	merged["type"] = envType
	merged["version"] = RequestVersion
	return json.Marshal(merged)
}
