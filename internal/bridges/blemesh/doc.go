// Package blemesh is the provisioner's radio: a bridge to graylogic-meshd,
// the daemon that owns the Bluetooth adapter and runs the mesh stack.
//
// Every radio operation is a CBOR request on graylogic/request/mesh/{id}
// answered on graylogic/response/mesh/{id}. Request IDs are random UUIDs
// and each call waits on its own channel until the answer, the request
// timeout, or Stop.
//
// The daemon also publishes unprovisioned beacons and node-added reports
// on graylogic/event/mesh/{kind}; these are decoded and handed to the
// registered mesh.EventSink. Malformed payloads are counted and dropped.
//
// A Response carries two kinds of failure. Error/Code mean the daemon
// could not perform the request and surface as ErrRemote. Status is the
// remote node's own Config status and is returned to the caller as-is.
package blemesh
