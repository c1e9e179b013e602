package blemesh

import (
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// Request operations understood by graylogic-meshd.
const (
	OpPing           = "ping"
	OpProvisionLocal = "provision_local"
	OpProvisionAdv   = "provision_adv"
	OpAppKeyAdd      = "app_key_add"
	OpCompositionGet = "composition_get"
	OpModelAppBind   = "model_app_bind"
)

// Error codes the daemon reports in Response.Code.
const (
	CodeAlreadyProvisioned = "already_provisioned"
	CodeBusy               = "busy"
	CodeUnsupported        = "unsupported"
)

// Request is published to graylogic/request/mesh/{id}.
type Request struct {
	ID   string          `cbor:"1,keyasint"`
	Op   string          `cbor:"2,keyasint"`
	Body cbor.RawMessage `cbor:"3,keyasint,omitempty"`
	// Deadline tells the daemon when the provisioner stops waiting.
	Deadline time.Time `cbor:"4,keyasint,omitempty"`
}

// Response is published by the daemon to graylogic/response/mesh/{id}.
//
// Status carries the remote node's Config status for node operations.
// Error and Code are set when the daemon could not perform the request.
type Response struct {
	ID     string          `cbor:"1,keyasint"`
	Status mesh.Status     `cbor:"2,keyasint"`
	Error  string          `cbor:"3,keyasint,omitempty"`
	Code   string          `cbor:"4,keyasint,omitempty"`
	Body   cbor.RawMessage `cbor:"5,keyasint,omitempty"`
}

// AppKeyAdd is the body of an app_key_add request.
type AppKeyAdd struct {
	NetIdx mesh.KeyIndex `cbor:"1,keyasint"`
	Target mesh.Address  `cbor:"2,keyasint"`
	AppIdx mesh.KeyIndex `cbor:"3,keyasint"`
	Key    mesh.Key      `cbor:"4,keyasint"`
}

// CompositionGet is the body of a composition_get request.
type CompositionGet struct {
	Target mesh.Address `cbor:"1,keyasint"`
	Page   uint8        `cbor:"2,keyasint"`
}

// CompositionStatus is the body of a composition_get response.
type CompositionStatus struct {
	Page uint8  `cbor:"1,keyasint"`
	Data []byte `cbor:"2,keyasint"`
}

// ModelAppBind is the body of a model_app_bind request.
type ModelAppBind struct {
	Target  mesh.Address  `cbor:"1,keyasint"`
	Element mesh.Address  `cbor:"2,keyasint"`
	AppIdx  mesh.KeyIndex `cbor:"3,keyasint"`
	Model   mesh.ModelID  `cbor:"4,keyasint"`
}

// Pong is the body of a ping response.
type Pong struct {
	Version string        `cbor:"1,keyasint"`
	Adapter string        `cbor:"2,keyasint"`
	Uptime  time.Duration `cbor:"3,keyasint"`
}

// Health is the retained document the daemon publishes on graylogic/health/mesh.
type Health struct {
	Status    string    `cbor:"1,keyasint"`
	Adapter   string    `cbor:"2,keyasint,omitempty"`
	Reason    string    `cbor:"3,keyasint,omitempty"`
	Timestamp time.Time `cbor:"4,keyasint"`
}

// Daemon health states.
const (
	HealthOnline   = "online"
	HealthDegraded = "degraded"
	HealthOffline  = "offline"
)
