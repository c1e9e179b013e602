//go:build integration

package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// Integration tests against a running broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func connectIntegration(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect(%s) error = %v", clientID, err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestIntegration_Connect(t *testing.T) {
	client := connectIntegration(t, "graylogic-mesh-int-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999
	cfg.Reconnect.InitialDelay = 0

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := connectIntegration(t, "graylogic-mesh-int-subs")
	handler := func(string, []byte) error { return nil }

	for _, topic := range []string{Topics{}.AllResponses(), Topics{}.AllEvents()} {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != 2 {
		t.Errorf("SubscriptionCount() = %d, want 2", client.SubscriptionCount())
	}

	if err := client.Unsubscribe(Topics{}.AllEvents()); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(Topics{}.AllEvents()) {
		t.Error("HasSubscription() = true after Unsubscribe")
	}
}

func TestIntegration_RequestResponseRoundtrip(t *testing.T) {
	daemon := connectIntegration(t, "graylogic-mesh-int-daemon")
	provisioner := connectIntegration(t, "graylogic-mesh-int-prov")

	received := make(chan []byte, 1)
	var once sync.Once
	if err := provisioner.Subscribe(Topics{}.AllResponses(), 1, func(_ string, p []byte) error {
		once.Do(func() { received <- p })
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := daemon.Publish(Topics{}.Response("req-1"), []byte("ok"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case p := <-received:
		if string(p) != "ok" {
			t.Errorf("payload = %q, want ok", p)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for response")
	}
}

func TestIntegration_PublishAfterClose(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "graylogic-mesh-int-closed"
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close() //nolint:errcheck // Testing post-close behaviour

	if err := client.Publish("graylogic/test", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close error = %v, want ErrNotConnected", err)
	}
}
