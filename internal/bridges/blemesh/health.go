package blemesh

import (
	"context"
	"fmt"
	"time"
)

// Ping round-trips a ping request to the daemon.
func (b *Bridge) Ping(ctx context.Context) (Pong, error) {
	var pong Pong
	if _, err := b.call(ctx, OpPing, nil, &pong); err != nil {
		return Pong{}, err
	}
	return pong, nil
}

// HealthCheck reports whether the daemon answers a ping.
func (b *Bridge) HealthCheck(ctx context.Context) error {
	if _, err := b.Ping(ctx); err != nil {
		return fmt.Errorf("mesh daemon: %w", err)
	}
	return nil
}

// DaemonHealth returns the last health document the daemon published.
// The zero value means none has been seen.
func (b *Bridge) DaemonHealth() Health {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.health
}

func (b *Bridge) handleHealth(topic string, payload []byte) {
	var h Health
	if err := Unmarshal(payload, &h); err != nil {
		b.stats.malformed.Add(1)
		b.logWarn("dropping malformed health", "topic", topic, "error", err)
		return
	}
	if h.Timestamp.IsZero() {
		h.Timestamp = time.Now().UTC()
	}

	b.healthMu.Lock()
	prev := b.health.Status
	b.health = h
	b.healthMu.Unlock()

	if prev == h.Status {
		return
	}
	switch h.Status {
	case HealthOnline:
		b.logInfo("mesh daemon online", "adapter", h.Adapter)
	default:
		b.logWarn("mesh daemon unhealthy", "status", h.Status, "reason", h.Reason)
	}
}
