// Package mesh defines the Bluetooth mesh primitives shared by the
// provisioning engine, the configuration database and the radio bridge.
//
// It holds addresses, key indexes and key material, model identifiers,
// the Composition Data Page 0 codec, Foundation status codes and
// unprovisioned beacon OOB flags. It performs no I/O.
//
// # Key material
//
// Key is a 128-bit secret. Its String and LogValue methods redact the
// value so a key passed to a logger by accident never reaches the log:
//
//	logger.Info("app key ready", "app_key", key) // app_key=[redacted]
//
// Hex returns the real value and must only be used behind an explicit
// operator opt-in.
package mesh
