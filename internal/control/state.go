// Package control implements the per-role control-plane state machine of
// spec.md section 4.5: RUNNING/NEGOTIATING/SWAPPING, carrying JSON
// control messages over the existing encrypted data channel. The state
// transition table and message shapes are ported from
// original_source/tests/test_control_sm.py, the authoritative behavior
// source since core/policy_engine.py in the same tree is an unrelated
// stub with an incompatible signature (see DESIGN.md).
package control

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kamalbura/research-sub001/internal/protoerr"
)

// Role distinguishes which side of the link this State instance runs on.
// The GCS is always the rekey initiator (spec.md section 4.5).
type Role int

const (
	RoleGCS Role = iota
	RoleDrone
)

// Phase is one of the three shared states.
type Phase int

const (
	Running Phase = iota
	Negotiating
	Swapping
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "RUNNING"
	case Negotiating:
		return "NEGOTIATING"
	case Swapping:
		return "SWAPPING"
	default:
		return "UNKNOWN"
	}
}

// Message is the JSON control payload, carried with a 0x02 type-prefix
// byte inside the AEAD plaintext when packet typing is enabled.
type Message struct {
	Type   string `json:"type"`
	Suite  string `json:"suite,omitempty"`
	Rid    string `json:"rid,omitempty"`
	TMs    int64  `json:"t_ms,omitempty"`
	Reason string `json:"reason,omitempty"`
	Result string `json:"result,omitempty"`
}

// Stats are the rekey telemetry fields of spec.md section 3's Control
// State record.
type Stats struct {
	RekeysOK       int
	RekeysFail     int
	LastRekeyMs    int64
	LastRekeySuite string
}

// SafeGuard lets the drone refuse an incoming prepare_rekey, e.g. because
// a policy layer vetoes the target suite. A nil SafeGuard always allows.
type SafeGuard func(suiteID string) (ok bool, reason string)

// SuiteKnown reports whether a suite id is resolvable; injected so this
// package does not depend on internal/suite directly.
type SuiteKnown func(suiteID string) bool

// nowFunc is overridable in tests; production code uses time.Now.
type nowFunc func() time.Time

// State is one role's control-plane state machine.
type State struct {
	mu sync.Mutex

	role         Role
	phase        Phase
	currentSuite string

	pendingSuite string
	pendingRid   string

	outbox []Message
	stats  Stats

	safeGuard  SafeGuard
	suiteKnown SuiteKnown
	now        nowFunc
}

// New constructs a control State for one role, starting RUNNING on
// currentSuite.
func New(role Role, currentSuite string, suiteKnown SuiteKnown, guard SafeGuard) *State {
	return &State{
		role:         role,
		phase:        Running,
		currentSuite: currentSuite,
		suiteKnown:   suiteKnown,
		safeGuard:    guard,
		now:          time.Now,
	}
}

func (s *State) nowMs() int64 { return s.now().UnixMilli() }

func (s *State) queue(msg Message) { s.outbox = append(s.outbox, msg) }

// Drain returns and clears every message queued for transmission.
func (s *State) Drain() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outbox
	s.outbox = nil
	return out
}

// Phase reports the current state, for status display.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Stats returns a snapshot of the rekey telemetry.
func (s *State) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// RequestPrepare is the GCS-only entry point for "operator/policy
// requests suite S" (spec.md section 4.5, first row). It queues
// prepare_rekey and moves to NEGOTIATING.
func (s *State) RequestPrepare(suiteID string) (rid string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role != RoleGCS {
		return "", fmt.Errorf("control: only the gcs role initiates rekeys")
	}
	if s.phase != Running {
		return "", protoerr.ErrBusy
	}
	if !s.suiteKnown(suiteID) {
		return "", protoerr.ErrUnknownSuite
	}
	rid = uuid.NewString()
	s.pendingSuite = suiteID
	s.pendingRid = rid
	s.phase = Negotiating
	s.queue(Message{Type: "prepare_rekey", Suite: suiteID, Rid: rid, TMs: s.nowMs()})
	return rid, nil
}

// Result tells the caller what the data-plane orchestration layer should
// do after HandleControl processes one inbound message.
type Result struct {
	StartHandshake bool
	TargetSuite    string
	Rid            string
	Notes          string
}

// HandleControl dispatches one inbound control message per spec.md
// section 4.5's transition table.
func (s *State) HandleControl(msg Message) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Type {
	case "prepare_rekey":
		return s.handlePrepareRekey(msg)
	case "prepare_ok":
		return s.handlePrepareOK(msg)
	case "prepare_fail":
		return s.handlePrepareFail(msg)
	case "commit_rekey":
		return s.handleCommitRekey(msg)
	case "status":
		return s.handleStatus(msg)
	default:
		return Result{}, protoerr.ErrOtherPacketType
	}
}

// handlePrepareRekey: RUNNING(drone) receives prepare_rekey(S, rid).
func (s *State) handlePrepareRekey(msg Message) (Result, error) {
	if s.role != RoleDrone || s.phase != Running {
		return Result{}, protoerr.ErrBusy
	}
	ok, reason := true, ""
	if s.safeGuard != nil {
		ok, reason = s.safeGuard(msg.Suite)
	}
	if !s.suiteKnown(msg.Suite) {
		ok, reason = false, "unknown suite"
	}
	if !ok {
		s.queue(Message{Type: "prepare_fail", Rid: msg.Rid, Reason: reason, TMs: s.nowMs()})
		return Result{Notes: "refused: " + reason}, nil
	}
	s.pendingSuite = msg.Suite
	s.pendingRid = msg.Rid
	s.phase = Negotiating
	s.queue(Message{Type: "prepare_ok", Rid: msg.Rid, TMs: s.nowMs()})
	return Result{}, nil
}

// handlePrepareOK: NEGOTIATING(gcs) receives prepare_ok(rid).
func (s *State) handlePrepareOK(msg Message) (Result, error) {
	if s.role != RoleGCS || s.phase != Negotiating || msg.Rid != s.pendingRid {
		return Result{}, protoerr.ErrBusy
	}
	s.phase = Swapping
	s.queue(Message{Type: "commit_rekey", Rid: msg.Rid, TMs: s.nowMs()})
	return Result{StartHandshake: true, TargetSuite: s.pendingSuite, Rid: msg.Rid}, nil
}

// handlePrepareFail: NEGOTIATING(gcs) receives prepare_fail(rid).
func (s *State) handlePrepareFail(msg Message) (Result, error) {
	if s.role != RoleGCS || s.phase != Negotiating || msg.Rid != s.pendingRid {
		return Result{}, protoerr.ErrBusy
	}
	s.stats.RekeysFail++
	s.phase = Running
	s.pendingSuite, s.pendingRid = "", ""
	return Result{Notes: "peer refused: " + msg.Reason}, nil
}

// handleCommitRekey: NEGOTIATING(drone) receives commit_rekey(rid).
func (s *State) handleCommitRekey(msg Message) (Result, error) {
	if s.role != RoleDrone || s.phase != Negotiating || msg.Rid != s.pendingRid {
		return Result{}, protoerr.ErrBusy
	}
	s.phase = Swapping
	return Result{StartHandshake: true, TargetSuite: s.pendingSuite, Rid: msg.Rid}, nil
}

// handleStatus is informational only; the peer who completed the swap
// tells the other side the final outcome. Both roles may receive it.
func (s *State) handleStatus(msg Message) (Result, error) {
	return Result{Notes: fmt.Sprintf("peer reports rekey %s for suite %s", msg.Result, msg.Suite)}, nil
}

// RecordRekeyResult is called by the off-path handshake worker
// (internal/transport) when it returns, per the SWAPPING row of spec.md
// section 4.5's table: on success, atomically swap context and queue
// status(ok); on failure, queue status(fail) and keep the current
// context. Either way the state returns to RUNNING.
func (s *State) RecordRekeyResult(rid string, ok bool, newSuite string, elapsedMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Swapping {
		return
	}
	if ok {
		s.stats.RekeysOK++
		s.stats.LastRekeyMs = elapsedMs
		s.stats.LastRekeySuite = newSuite
		s.currentSuite = newSuite
		s.queue(Message{Type: "status", Rid: rid, Result: "ok", Suite: newSuite, TMs: s.nowMs()})
	} else {
		s.stats.RekeysFail++
		s.queue(Message{Type: "status", Rid: rid, Result: "fail", Suite: s.currentSuite, TMs: s.nowMs()})
	}
	s.phase = Running
	s.pendingSuite, s.pendingRid = "", ""
}

// Encode/Decode are thin json wrappers kept here so callers never import
// encoding/json directly just to talk to the control plane.
func Encode(msg Message) ([]byte, error) { return json.Marshal(msg) }
func Decode(b []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(b, &msg)
	return msg, err
}
