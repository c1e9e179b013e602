package provisioner

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/cdb"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// Phase is a provisioning session state.
type Phase int

// Session phases in the order a successful session visits them.
const (
	PhaseIdle Phase = iota
	PhaseAwaitBeacon
	PhaseAdmitting
	PhaseAwaitAdmitted
	PhaseDone
	PhaseTimedOut
)

var phaseNames = [...]string{"idle", "await_beacon", "admitting", "await_admitted", "done", "timed_out"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeDone     Outcome = "done"
	OutcomeTimedOut Outcome = "timed_out"
)

// Reasons attached to a timed-out session.
const (
	ReasonNoBeacon          = "no_beacon"
	ReasonAdmissionRejected = "admission_rejected"
	ReasonNotAdmitted       = "not_admitted"
	ReasonCancelled         = "cancelled"
)

// SessionResult is the outcome of one provisioning session.
type SessionResult struct {
	Outcome Outcome
	// Phase is the state in which the session stopped waiting or failed.
	Phase   Phase
	Reason  string
	Beacon  *mesh.Beacon
	Added   *mesh.NodeAdded
	Err     error
	Elapsed time.Duration
}

// session runs one discovery, admission and handoff cycle.
type session struct {
	e     *Engine
	phase Phase
}

func (s *session) enter(p Phase) {
	s.e.logger.Debug("session phase", "from", s.phase, "to", p)
	s.phase = p
	if s.e.onPhase != nil {
		s.e.onPhase(p)
	}
}

func (s *session) timedOut(reason string, err error) SessionResult {
	at := s.phase
	s.enter(PhaseTimedOut)
	return SessionResult{Outcome: OutcomeTimedOut, Phase: at, Reason: reason, Err: err}
}

// run executes the session. It blocks for at most BeaconTimeout plus
// NodeAddedTimeout of waiting, plus the radio call in ADMITTING.
func (s *session) run(ctx context.Context) SessionResult {
	e := s.e
	start := e.now()
	res := s.cycle(ctx)
	res.Elapsed = e.now().Sub(start)
	return res
}

func (s *session) cycle(ctx context.Context) SessionResult {
	e := s.e

	// Events from an earlier tick are stale.
	e.beacons.reset()
	e.admitted.reset()

	s.enter(PhaseAwaitBeacon)
	beacon, ok := e.beacons.wait(ctx, e.cfg.BeaconTimeout)
	if !ok {
		if ctx.Err() != nil {
			return s.timedOut(ReasonCancelled, ctx.Err())
		}
		e.logger.Debug("no unprovisioned beacon", "timeout", e.cfg.BeaconTimeout)
		return s.timedOut(ReasonNoBeacon, nil)
	}
	e.logger.Info("unprovisioned beacon", "uuid", beacon.UUID, "oob", beacon.OOB)

	s.enter(PhaseAdmitting)
	req := mesh.AdmitRequest{
		UUID:      beacon.UUID,
		NetIdx:    e.netIdx(),
		Authority: e.cfg.SelfAddress,
	}
	if addr, err := e.db.NextAddress(1); err == nil {
		req.Address = addr
	} else {
		e.logger.Warn("no free unicast address, letting radio choose", "error", err)
	}

	if err := e.radio.ProvisionAdv(ctx, req); err != nil {
		e.logger.Warn("admission rejected", "uuid", beacon.UUID, "error", err)
		res := s.timedOut(ReasonAdmissionRejected, err)
		res.Beacon = &beacon
		return res
	}

	s.enter(PhaseAwaitAdmitted)
	added, ok := e.admitted.wait(ctx, e.cfg.NodeAddedTimeout)
	if !ok {
		reason := ReasonNotAdmitted
		if ctx.Err() != nil {
			reason = ReasonCancelled
		}
		e.logger.Info("admission not confirmed", "uuid", beacon.UUID, "timeout", e.cfg.NodeAddedTimeout)
		res := s.timedOut(reason, ctx.Err())
		res.Beacon = &beacon
		return res
	}

	s.enter(PhaseDone)
	e.logger.Info("node admitted", "addr", added.Address, "uuid", added.UUID, "elements", added.NumElements)
	s.record(ctx, beacon, added)

	return SessionResult{
		Outcome: OutcomeDone,
		Phase:   PhaseDone,
		Beacon:  &beacon,
		Added:   &added,
	}
}

// record writes the unconfigured Node record for an admitted device.
// Configuration happens on the next tick.
func (s *session) record(ctx context.Context, beacon mesh.Beacon, added mesh.NodeAdded) {
	e := s.e

	id := added.UUID
	if id == (mesh.UUID{}) {
		id = beacon.UUID
	} else if id != beacon.UUID {
		e.logger.Warn("admitted uuid differs from beacon", "beacon_uuid", beacon.UUID, "added_uuid", id)
	}

	node := &cdb.Node{
		Address:     added.Address,
		UUID:        id,
		NetIdx:      added.NetIdx,
		NumElements: added.NumElements,
	}
	err := e.db.AddNode(ctx, node)
	switch {
	case err == nil:
		e.observer.NodeAdmitted(NodeEvent{
			Address:     node.Address,
			UUID:        node.UUID,
			NumElements: node.NumElements,
		})
	case errors.Is(err, cdb.ErrAddressInUse):
		e.logger.Warn("admitted address already recorded", "addr", added.Address, "error", err)
	default:
		e.logger.Error("recording admitted node", "addr", added.Address, "error", err)
	}
}
