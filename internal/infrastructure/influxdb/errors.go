package influxdb

import "errors"

// Sentinel errors for InfluxDB operations. Check with errors.Is.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when InfluxDB is turned off in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
