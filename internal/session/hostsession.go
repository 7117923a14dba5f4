package session

import (
	"fmt"
	"sync"

	"github.com/ianremillard/scriptdbg/internal/conn"
)

// Wire event type strings the host-extended dialect adds (spec.md §6).
const (
	wirePrintEvent      = "PrintEvent"
	wireProtocolEvent   = "ProtocolEvent"
	wireStatEvent       = "StatEvent"
	wireStatEvent2      = "StatEvent2"
	wireProfilerCapture = "ProfilerCapture"
)

// Additional Session-level event channels the host-extended dialect adds
// (spec.md §4.3).
const (
	EventLog             = "log"
	EventStat            = "stat"
	EventProfilerCapture = "profilerCapture"
)

// Protocol version feature-gate thresholds (spec.md §4.3).
const (
	protocolVersionTargetModuleUUID = 2
	protocolVersionPasscode         = 4
	protocolVersionMinecraftNested  = 5
	protocolVersionBreakpointsRequest = 6
)

// Severity levels for a LogEvent (spec.md §4.3: "0-4 severity enum").
const (
	LogSeverityTrace = 0
	LogSeverityDebug = 1
	LogSeverityInfo  = 2
	LogSeverityWarn  = 3
	LogSeverityError = 4
)

// LogEvent is the payload of the host-extended "log" channel.
type LogEvent struct {
	Severity int    `json:"severity"`
	Message  string `json:"message"`
}

// StatNode is the payload shape of "stat" events (bridged from the
// debuggee's StatEvent/StatEvent2). Only the shape is specified here —
// the tree merge itself is an out-of-scope caller concern (spec.md §1,
// §6: "the statistics-tree merge used by the host-specific extension").
type StatNode struct {
	Name     string             `json:"name"`
	Tick     int64              `json:"tick"`
	Label    string             `json:"label,omitempty"`
	Values   map[string]float64 `json:"values,omitempty"`
	Children []StatNode         `json:"children,omitempty"`
}

// ProfilerCaptureEvent is the payload of the "profilerCapture" channel.
type ProfilerCaptureEvent struct {
	CapturesPath     string `json:"captures_path"`
	TargetModuleUUID string `json:"target_module_uuid,omitempty"`
}

// protocolEventPayload is the debuggee's own handshake event shape.
type protocolEventPayload struct {
	Version int `json:"version"`
}

// ProtocolInfo is the locally-configured handshake echo a caller supplies
// up front (spec.md §4.3 item 2): on receipt of the debuggee's protocol
// handshake event, the session echoes this back, gated by the debuggee's
// reported version.
type ProtocolInfo struct {
	Version          int
	TargetModuleUUID string
	Passcode         string
}

// HostSession is the host-extended dialect of Session (spec.md §4.3):
// it tracks the debuggee's protocol version, echoes the handshake,
// surfaces log/stat/profilerCapture events, and feature-gates
// minecraftCommand/profiler/breakpoints operations by that version.
type HostSession struct {
	*Session

	localInfo *ProtocolInfo

	mu              sync.Mutex
	protocolVersion int
}

// NewHost creates a host-extended session. localInfo may be nil, in which
// case no handshake echo is ever sent (the debuggee's protocol version is
// still tracked).
func NewHost(c *conn.Connection, localInfo *ProtocolInfo) *HostSession {
	hs := &HostSession{Session: New(c), localInfo: localInfo}
	hs.wireHostEvents()
	return hs
}

// ProtocolVersion returns the most recently observed protocol version; 0
// until the first handshake event arrives (spec.md §3 Protocol Dialect State).
func (hs *HostSession) ProtocolVersion() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.protocolVersion
}

func (hs *HostSession) wireHostEvents() {
	hs.Conn.On(wirePrintEvent, func(payload []byte) {
		var ev LogEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		hs.emit(EventLog, ev)
	})
	hs.Conn.On(wireStatEvent, hs.handleStat)
	hs.Conn.On(wireStatEvent2, hs.handleStat)
	hs.Conn.On(wireProfilerCapture, func(payload []byte) {
		var ev ProfilerCaptureEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		hs.emit(EventProfilerCapture, ev)
	})
	hs.Conn.On(wireProtocolEvent, func(payload []byte) {
		var ev protocolEventPayload
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		hs.mu.Lock()
		hs.protocolVersion = ev.Version
		hs.mu.Unlock()

		if hs.localInfo != nil {
			hs.sendHandshake(ev.Version)
		}
	})
}

func (hs *HostSession) handleStat(payload []byte) {
	var ev StatNode
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	hs.emit(EventStat, ev)
}

// sendHandshake echoes the locally-configured ProtocolInfo back to the
// debuggee, including target_module_uuid/passcode only once the
// debuggee's reported version feature-gates them (spec.md §4.3 item 4).
func (hs *HostSession) sendHandshake(remoteVersion int) {
	fields := map[string]interface{}{
		"version": hs.localInfo.Version,
	}
	if remoteVersion >= protocolVersionTargetModuleUUID {
		fields["target_module_uuid"] = hs.localInfo.TargetModuleUUID
	}
	if remoteVersion >= protocolVersionPasscode {
		fields["passcode"] = hs.localInfo.Passcode
	}
	hs.Conn.SendEnvelope("protocol", fields)
}

// MinecraftCommand sends a host command, flattened or nested depending on
// the debuggee's protocol version (spec.md §4.3 item 4): v>=4 uses the
// flattened shape, v>=5 nests it under "command". Returns an error below v4.
func (hs *HostSession) MinecraftCommand(command, dimensionType string) error {
	v := hs.ProtocolVersion()
	if v < protocolVersionPasscode {
		return fmt.Errorf("session: minecraftCommand requires protocol v>=%d, got v%d", protocolVersionPasscode, v)
	}
	if v >= protocolVersionMinecraftNested {
		return hs.Conn.SendEnvelope("minecraftCommand", map[string]interface{}{
			"command": map[string]interface{}{
				"command":        command,
				"dimension_type": dimensionType,
			},
		})
	}
	return hs.Conn.SendEnvelope("minecraftCommand", map[string]interface{}{
		"command":        command,
		"dimension_type": dimensionType,
	})
}

// StartProfiler begins a profiler capture (spec.md §4.3 item 4, v>=5 only).
func (hs *HostSession) StartProfiler(targetModuleUUID string) error {
	if v := hs.ProtocolVersion(); v < protocolVersionMinecraftNested {
		return fmt.Errorf("session: startProfiler requires protocol v>=%d, got v%d", protocolVersionMinecraftNested, v)
	}
	return hs.Conn.SendEnvelope("startProfiler", map[string]interface{}{
		"profiler": map[string]interface{}{
			"target_module_uuid": targetModuleUUID,
		},
	})
}

// StopProfiler ends a profiler capture (spec.md §4.3 item 4, v>=5 only).
func (hs *HostSession) StopProfiler(capturesPath, targetModuleUUID string) error {
	if v := hs.ProtocolVersion(); v < protocolVersionMinecraftNested {
		return fmt.Errorf("session: stopProfiler requires protocol v>=%d, got v%d", protocolVersionMinecraftNested, v)
	}
	return hs.Conn.SendEnvelope("stopProfiler", map[string]interface{}{
		"profiler": map[string]interface{}{
			"captures_path":      capturesPath,
			"target_module_uuid": targetModuleUUID,
		},
	})
}

type setBreakpointsResponse struct {
	Breakpoints []BreakpointVerification `json:"breakpoints"`
}

// SetBreakpoints overrides the base Session's fire-and-forget envelope
// once protocolVersion >= 6: it becomes an awaitable request that returns
// per-breakpoint verification status. Below v6 it falls back to the base
// envelope and synthesises a verified status for every breakpoint
// (spec.md §4.3 item 4, and the "Open question" in §9: the request-based
// path is authoritative on v>=6 — the envelope is never also sent).
func (hs *HostSession) SetBreakpoints(path string, bps []Breakpoint) ([]BreakpointVerification, error) {
	if hs.ProtocolVersion() >= protocolVersionBreakpointsRequest {
		body, err := hs.request(cmdSetBreakpoints, map[string]interface{}{
			"path":        path,
			"breakpoints": bps,
		})
		if err != nil {
			return nil, err
		}
		var resp setBreakpointsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("session: decode setBreakpoints response: %w", err)
		}
		return resp.Breakpoints, nil
	}

	if err := hs.Session.SetBreakpoints(path, bps); err != nil {
		return nil, err
	}
	out := make([]BreakpointVerification, len(bps))
	for i := range out {
		out[i] = BreakpointVerification{Verified: true}
	}
	return out, nil
}
