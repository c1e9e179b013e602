package telemetry

import (
	"time"

	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-mesh/internal/provisioner"
)

// Event types for mesh_nodes points.
const (
	EventAdmitted   = "admitted"
	EventConfigured = "configured"
)

// MetricsWriter is satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteTick(influxdb.TickSample)
	WriteNodeEvent(influxdb.NodeSample)
}

// EventPublisher is satisfied by *mqtt.Client.
type EventPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Logger is the subset of logging.Logger the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
}

// NodeMessage is the JSON payload of the mesh_node_added and
// mesh_node_configured core events.
type NodeMessage struct {
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	Site         string    `json:"site,omitempty"`
	Address      string    `json:"address"`
	UUID         string    `json:"uuid"`
	Elements     int       `json:"elements"`
	Self         bool      `json:"self,omitempty"`
	Bound        int       `json:"bound,omitempty"`
	BindFailures int       `json:"bind_failures,omitempty"`
}

// Recorder fans provisioner events out to metrics and core events.
type Recorder struct {
	metrics MetricsWriter
	events  EventPublisher
	site    string
	logger  Logger
	now     func() time.Time
}

// Options configures a Recorder.
type Options struct {
	Metrics MetricsWriter
	Events  EventPublisher
	SiteID  string
	Logger  Logger
}

// New creates a Recorder.
func New(opts Options) *Recorder {
	return &Recorder{
		metrics: opts.Metrics,
		events:  opts.Events,
		site:    opts.SiteID,
		logger:  opts.Logger,
		now:     time.Now,
	}
}

// TickCompleted implements provisioner.Observer.
func (r *Recorder) TickCompleted(rep provisioner.TickReport) {
	if r.metrics == nil {
		return
	}
	r.metrics.WriteTick(influxdb.TickSample{
		Time:       rep.Started,
		Duration:   rep.Duration,
		Outcome:    string(rep.Session.Outcome),
		Phase:      rep.Session.Phase.String(),
		Reason:     rep.Session.Reason,
		Visited:    rep.Pass.Visited,
		Configured: rep.Pass.Configured,
		Failed:     rep.Pass.Failed,
		NoAppKey:   rep.Pass.NoAppKey,
	})
}

// NodeAdmitted implements provisioner.Observer.
func (r *Recorder) NodeAdmitted(ev provisioner.NodeEvent) {
	r.node(EventAdmitted, mqtt.CoreEventNodeAdded, ev)
}

// NodeConfigured implements provisioner.Observer.
func (r *Recorder) NodeConfigured(ev provisioner.NodeEvent) {
	r.node(EventConfigured, mqtt.CoreEventNodeConfigured, ev)
}

func (r *Recorder) node(kind, coreEvent string, ev provisioner.NodeEvent) {
	now := r.now().UTC()

	if r.metrics != nil {
		r.metrics.WriteNodeEvent(influxdb.NodeSample{
			Time:         now,
			Event:        kind,
			Address:      ev.Address.String(),
			UUID:         ev.UUID.String(),
			NumElements:  int(ev.NumElements),
			Self:         ev.Self,
			Bound:        ev.Bound,
			BindFailures: ev.BindFailures,
		})
	}

	if r.events == nil {
		return
	}
	msg := NodeMessage{
		Type:         coreEvent,
		Timestamp:    now,
		Site:         r.site,
		Address:      ev.Address.String(),
		UUID:         ev.UUID.String(),
		Elements:     int(ev.NumElements),
		Self:         ev.Self,
		Bound:        ev.Bound,
		BindFailures: ev.BindFailures,
	}
	if err := r.events.PublishJSON(mqtt.Topics{}.CoreEvent(coreEvent), msg, false); err != nil && r.logger != nil {
		r.logger.Warn("publishing core event failed", "event", coreEvent, "addr", ev.Address, "error", err)
	}
}
