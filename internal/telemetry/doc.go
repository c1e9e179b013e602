// Package telemetry turns provisioner progress into InfluxDB points and
// Gray Logic Core events.
//
// Recorder implements provisioner.Observer. Either sink may be nil.
package telemetry
