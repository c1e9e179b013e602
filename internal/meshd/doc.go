// Package meshd manages graylogic-meshd, the radio daemon that owns the
// Bluetooth adapter and exposes the mesh stack over MQTT.
//
// When the daemon is managed the provisioner starts it through the
// process supervisor, waits for its first pong, and keeps a watchdog
// running that checks the adapter, the process state and the broker
// round trip. An external daemon is only pinged.
package meshd
