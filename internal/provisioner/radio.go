package provisioner

import (
	"context"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// Radio is the mesh stack the engine drives. Calls block until the
// radio answers or ctx expires.
//
// Status-returning calls report transport problems as an error and a
// node's own refusal as a non-success mesh.Status.
type Radio interface {
	// ProvisionLocal joins the local device to the network.
	// Returns mesh.ErrAlreadyProvisioned if it is already a member.
	ProvisionLocal(ctx context.Context, req mesh.LocalProvisioning) error

	// ProvisionAdv starts provisioning a remote device. Completion is
	// reported later through EventSink.OnNodeAdded.
	ProvisionAdv(ctx context.Context, req mesh.AdmitRequest) error

	// AddAppKey sends Config AppKey Add to target.
	AddAppKey(ctx context.Context, netIdx mesh.KeyIndex, target mesh.Address, appIdx mesh.KeyIndex, key mesh.Key) (mesh.Status, error)

	// CompositionData fetches a composition page from target and returns
	// its payload without the page octet.
	CompositionData(ctx context.Context, target mesh.Address, page uint8) ([]byte, error)

	// BindModel sends Config Model App Bind for one model on one element.
	BindModel(ctx context.Context, target, element mesh.Address, appIdx mesh.KeyIndex, model mesh.ModelID) (mesh.Status, error)

	// SetEventSink registers the receiver of beacons and node-added events.
	SetEventSink(sink mesh.EventSink)
}
