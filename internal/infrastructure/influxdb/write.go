package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementTicks = "mesh_ticks"
	MeasurementNodes = "mesh_nodes"
)

// TickSample is one scheduler tick.
type TickSample struct {
	Time     time.Time
	Duration time.Duration

	// Session outcome, phase it stopped in, and timeout reason if any.
	Outcome string
	Phase   string
	Reason  string

	Visited    int
	Configured int
	Failed     int
	NoAppKey   bool
}

// NodeSample is an admission or configuration of one node.
type NodeSample struct {
	Time time.Time
	// Event is "admitted" or "configured".
	Event       string
	Address     string
	UUID        string
	NumElements int
	Self        bool

	Bound        int
	BindFailures int
}

// WriteTick records a tick in mesh_ticks.
//
// Tags: outcome, phase. Fields: duration_ms, reason, visited, configured,
// failed, no_app_key.
func (c *Client) WriteTick(s TickSample) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]any{
		"duration_ms": float64(s.Duration) / float64(time.Millisecond),
		"visited":     s.Visited,
		"configured":  s.Configured,
		"failed":      s.Failed,
		"no_app_key":  s.NoAppKey,
	}
	if s.Reason != "" {
		fields["reason"] = s.Reason
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementTicks,
		map[string]string{
			"outcome": s.Outcome,
			"phase":   s.Phase,
		},
		fields,
		c.stamp(s.Time),
	))
}

// WriteNodeEvent records a node admission or configuration in mesh_nodes.
//
// Tags: event, address, self. Fields: uuid, elements, bound, bind_failures.
func (c *Client) WriteNodeEvent(s NodeSample) {
	if !c.IsConnected() {
		return
	}

	self := "false"
	if s.Self {
		self = "true"
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementNodes,
		map[string]string{
			"event":   s.Event,
			"address": s.Address,
			"self":    self,
		},
		map[string]any{
			"uuid":          s.UUID,
			"elements":      s.NumElements,
			"bound":         s.Bound,
			"bind_failures": s.BindFailures,
		},
		c.stamp(s.Time),
	))
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, c.now()))
}

func (c *Client) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return c.now()
	}
	return t
}
