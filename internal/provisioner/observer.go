package provisioner

import (
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// TickReport summarises one scheduler tick.
type TickReport struct {
	Seq      uint64
	Started  time.Time
	Duration time.Duration
	Pass     PassReport
	Session  SessionResult
}

// PassReport summarises one configuration pass.
type PassReport struct {
	// Visited counts unconfigured nodes the walker attempted.
	Visited int
	// Configured counts nodes that reached the configured state.
	Configured int
	// Failed counts nodes left unconfigured for the next tick.
	Failed int
	// NoAppKey is set when the pass was skipped for lack of an application key.
	NoAppKey bool
}

// NodeEvent describes an admission or configuration outcome.
type NodeEvent struct {
	Address     mesh.Address
	UUID        mesh.UUID
	NumElements uint8
	Self        bool
	// Bound and BindFailures are only set for configuration events.
	Bound        int
	BindFailures int
}

// Observer receives engine progress. Methods run on the worker goroutine
// and must not block for long.
type Observer interface {
	TickCompleted(TickReport)
	NodeAdmitted(NodeEvent)
	NodeConfigured(NodeEvent)
}

type noopObserver struct{}

func (noopObserver) TickCompleted(TickReport) {}
func (noopObserver) NodeAdmitted(NodeEvent)   {}
func (noopObserver) NodeConfigured(NodeEvent) {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) TickCompleted(r TickReport) {
	for _, ob := range o {
		ob.TickCompleted(r)
	}
}

func (o Observers) NodeAdmitted(e NodeEvent) {
	for _, ob := range o {
		ob.NodeAdmitted(e)
	}
}

func (o Observers) NodeConfigured(e NodeEvent) {
	for _, ob := range o {
		ob.NodeConfigured(e)
	}
}
