// Package logging provides structured logging for the Gray Logic mesh provisioner.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same format and default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("provisioner").Info("node configured", "addr", addr)
//
// # Security
//
// Never log network or application keys directly. mesh.Key redacts itself
// when passed as a log attribute; use Key.Hex only behind mesh.expose_keys.
package logging
