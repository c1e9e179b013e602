package blemesh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

const (
	// defaultRequestTimeout bounds a call when neither ctx nor options do.
	defaultRequestTimeout = 10 * time.Second

	// requestQoS is used for requests, responses and events.
	requestQoS = 1
)

// Bridge is the provisioner's radio. It turns Radio calls into CBOR
// requests for graylogic-meshd and routes the daemon's responses and
// events back.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt    MQTTClient
	topics  mqtt.Topics
	timeout time.Duration

	pending   map[string]chan Response
	pendingMu sync.Mutex

	sink   mesh.EventSink
	sinkMu sync.RWMutex

	health   Health
	healthMu sync.RWMutex

	stats bridgeStats

	done     chan struct{}
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the subset of the broker client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Logger is the structured logger used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	MQTTClient MQTTClient

	// RequestTimeout bounds every daemon round trip. Default: 10s.
	RequestTimeout time.Duration

	// TopicPrefix is the daemon's topic root. Default: graylogic.
	TopicPrefix string

	// Logger is optional.
	Logger Logger
}

type bridgeStats struct {
	requests  atomic.Uint64
	timeouts  atomic.Uint64
	failures  atomic.Uint64
	events    atomic.Uint64
	malformed atomic.Uint64
}

// Stats is a point-in-time copy of bridge counters.
type Stats struct {
	Requests  uint64
	Timeouts  uint64
	Failures  uint64
	Events    uint64
	Malformed uint64
	Pending   int
}

// New creates a bridge. Call Start to subscribe before making calls.
func New(opts Options) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Bridge{
		mqtt:    opts.MQTTClient,
		topics:  mqtt.Topics{Prefix: opts.TopicPrefix},
		timeout: timeout,
		pending: make(map[string]chan Response),
		done:    make(chan struct{}),
		logger:  opts.Logger,
	}, nil
}

// Start subscribes to daemon responses, events and health.
func (b *Bridge) Start(_ context.Context) error {
	subs := []struct {
		topic   string
		handler func(string, []byte)
	}{
		{b.topics.AllResponses(), b.handleResponse},
		{b.topics.AllEvents(), b.handleEvent},
		{b.topics.Health(), b.handleHealth},
	}
	for _, s := range subs {
		if err := b.mqtt.Subscribe(s.topic, requestQoS, s.handler); err != nil {
			return fmt.Errorf("subscribe to %s: %w", s.topic, err)
		}
		b.logDebug("subscribed", "topic", s.topic)
	}

	b.logInfo("mesh bridge started", "request_timeout", b.timeout)
	return nil
}

// Stop unsubscribes and fails every pending call with ErrClosed.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		for _, topic := range []string{b.topics.AllResponses(), b.topics.AllEvents(), b.topics.Health()} {
			if err := b.mqtt.Unsubscribe(topic); err != nil {
				b.logDebug("unsubscribe failed", "topic", topic, "error", err)
			}
		}

		b.pendingMu.Lock()
		n := len(b.pending)
		clear(b.pending)
		b.pendingMu.Unlock()

		b.logInfo("mesh bridge stopped", "abandoned_requests", n)
	})
}

// SetEventSink implements provisioner.Radio.
func (b *Bridge) SetEventSink(sink mesh.EventSink) {
	b.sinkMu.Lock()
	b.sink = sink
	b.sinkMu.Unlock()
}

// SetLogger sets the logger for this bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	b.pendingMu.Lock()
	pending := len(b.pending)
	b.pendingMu.Unlock()

	return Stats{
		Requests:  b.stats.requests.Load(),
		Timeouts:  b.stats.timeouts.Load(),
		Failures:  b.stats.failures.Load(),
		Events:    b.stats.events.Load(),
		Malformed: b.stats.malformed.Load(),
		Pending:   pending,
	}
}

// call publishes one request and waits for its response.
//
// The wait ends at the earliest of ctx, the bridge request timeout and
// Stop. A daemon-side error is returned as ErrRemote; the node status in a
// successful response is left to the caller.
func (b *Bridge) call(ctx context.Context, op string, body, out any) (Response, error) {
	select {
	case <-b.done:
		return Response{}, ErrClosed
	default:
	}
	if !b.mqtt.IsConnected() {
		return Response{}, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req := Request{ID: uuid.NewString(), Op: op}
	if deadline, ok := ctx.Deadline(); ok {
		req.Deadline = deadline.UTC()
	}
	if body != nil {
		raw, err := Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("encoding %s body: %w", op, err)
		}
		req.Body = raw
	}
	payload, err := Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encoding %s request: %w", op, err)
	}

	ch := make(chan Response, 1)
	b.pendingMu.Lock()
	b.pending[req.ID] = ch
	b.pendingMu.Unlock()
	defer b.forget(req.ID)

	b.stats.requests.Add(1)
	if err := b.mqtt.Publish(b.topics.Request(req.ID), payload, requestQoS, false); err != nil {
		b.stats.failures.Add(1)
		return Response{}, fmt.Errorf("publishing %s request: %w", op, err)
	}
	b.logDebug("request sent", "op", op, "id", req.ID)

	var resp Response
	select {
	case resp = <-ch:
	case <-b.done:
		return Response{}, ErrClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			b.stats.timeouts.Add(1)
			return Response{}, fmt.Errorf("%w: %s after %v", ErrTimeout, op, b.timeout)
		}
		return Response{}, ctx.Err()
	}

	if resp.Error != "" || resp.Code != "" {
		b.stats.failures.Add(1)
		return resp, remoteError(op, resp)
	}
	if out != nil {
		if len(resp.Body) == 0 {
			return resp, fmt.Errorf("%w: %s response has no body", ErrMalformed, op)
		}
		if err := Unmarshal(resp.Body, out); err != nil {
			return resp, fmt.Errorf("%s response body: %w", op, err)
		}
	}
	return resp, nil
}

func (b *Bridge) forget(id string) {
	b.pendingMu.Lock()
	delete(b.pending, id)
	b.pendingMu.Unlock()
}

func remoteError(op string, resp Response) error {
	if resp.Code == CodeAlreadyProvisioned {
		return mesh.ErrAlreadyProvisioned
	}
	msg := resp.Error
	if msg == "" {
		msg = resp.Code
	} else if resp.Code != "" {
		msg = resp.Code + ": " + msg
	}
	return fmt.Errorf("%w: %s: %s", ErrRemote, op, msg)
}

// handleResponse delivers a daemon response to the waiting call.
func (b *Bridge) handleResponse(topic string, payload []byte) {
	var resp Response
	if err := Unmarshal(payload, &resp); err != nil {
		b.stats.malformed.Add(1)
		b.logWarn("dropping malformed response", "topic", topic, "error", err)
		return
	}
	if resp.ID == "" {
		resp.ID = lastSegment(topic)
	}

	b.pendingMu.Lock()
	ch, ok := b.pending[resp.ID]
	b.pendingMu.Unlock()
	if !ok {
		b.logDebug("response for unknown request", "id", resp.ID)
		return
	}

	select {
	case ch <- resp:
	default:
		b.logDebug("duplicate response", "id", resp.ID)
	}
}

// handleEvent decodes a daemon event and forwards it to the sink.
func (b *Bridge) handleEvent(topic string, payload []byte) {
	b.sinkMu.RLock()
	sink := b.sink
	b.sinkMu.RUnlock()

	switch kind := lastSegment(topic); kind {
	case mqtt.EventBeacon:
		var ev mesh.Beacon
		if err := Unmarshal(payload, &ev); err != nil {
			b.malformedEvent(kind, err)
			return
		}
		if ev.UUID == (mesh.UUID{}) {
			b.malformedEvent(kind, errors.New("missing uuid"))
			return
		}
		b.stats.events.Add(1)
		if sink != nil {
			sink.OnUnprovisionedBeacon(ev)
		}

	case mqtt.EventNodeAdded:
		var ev mesh.NodeAdded
		if err := Unmarshal(payload, &ev); err != nil {
			b.malformedEvent(kind, err)
			return
		}
		if !ev.Address.IsUnicast() || ev.NumElements == 0 {
			b.malformedEvent(kind, fmt.Errorf("address %s with %d elements", ev.Address, ev.NumElements))
			return
		}
		b.stats.events.Add(1)
		if sink != nil {
			sink.OnNodeAdded(ev)
		}

	default:
		b.logDebug("ignoring event", "topic", topic)
	}
}

func (b *Bridge) malformedEvent(kind string, err error) {
	b.stats.malformed.Add(1)
	b.logWarn("dropping malformed event", "kind", kind, "error", err)
}

func lastSegment(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}
