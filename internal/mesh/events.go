package mesh

import (
	"errors"
	"time"
)

// ErrAlreadyProvisioned is returned by a radio when the local device is
// already part of a network. The provisioner treats it as success.
var ErrAlreadyProvisioned = errors.New("mesh: already provisioned")

// Beacon is an unprovisioned device beacon as reported by the radio.
type Beacon struct {
	UUID     UUID      `cbor:"1,keyasint"`
	OOB      OOBInfo   `cbor:"2,keyasint"`
	URIHash  uint32    `cbor:"3,keyasint,omitempty"`
	RSSI     int8      `cbor:"4,keyasint,omitempty"`
	Received time.Time `cbor:"5,keyasint,omitempty"`
}

// NodeAdded reports that provisioning finished and the device now owns
// NumElements consecutive unicast addresses starting at Address.
type NodeAdded struct {
	NetIdx      KeyIndex `cbor:"1,keyasint"`
	UUID        UUID     `cbor:"2,keyasint"`
	Address     Address  `cbor:"3,keyasint"`
	NumElements uint8    `cbor:"4,keyasint"`
}

// EventSink receives asynchronous radio notifications.
// Implementations must return quickly; they run on the radio's delivery goroutine.
type EventSink interface {
	OnUnprovisionedBeacon(Beacon)
	OnNodeAdded(NodeAdded)
}

// LocalProvisioning carries what the radio needs to join the local
// device to the network it creates.
type LocalProvisioning struct {
	NetIdx  KeyIndex `cbor:"1,keyasint"`
	NetKey  Key      `cbor:"2,keyasint"`
	IVIndex uint32   `cbor:"3,keyasint"`
	Address Address  `cbor:"4,keyasint"`
	DevKey  Key      `cbor:"5,keyasint"`
	UUID    UUID     `cbor:"6,keyasint"`
}

// AdmitRequest asks the radio to provision a remote device over the
// advertising bearer.
type AdmitRequest struct {
	UUID   UUID     `cbor:"1,keyasint"`
	NetIdx KeyIndex `cbor:"2,keyasint"`
	// Authority is the provisioner's own address.
	Authority Address `cbor:"3,keyasint"`
	// Address is the primary address to assign. Zero lets the radio choose.
	Address Address `cbor:"4,keyasint,omitempty"`
	// Attention is how long the device should identify itself.
	Attention time.Duration `cbor:"5,keyasint,omitempty"`
}
