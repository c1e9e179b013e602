package blemesh

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// ProvisionLocal joins the daemon's own device to the network.
func (b *Bridge) ProvisionLocal(ctx context.Context, req mesh.LocalProvisioning) error {
	_, err := b.call(ctx, OpProvisionLocal, req, nil)
	return err
}

// ProvisionAdv asks the daemon to start admitting a device. The daemon
// answers once the attempt is under way; completion arrives as a
// node_added event.
func (b *Bridge) ProvisionAdv(ctx context.Context, req mesh.AdmitRequest) error {
	resp, err := b.call(ctx, OpProvisionAdv, req, nil)
	if err != nil {
		return err
	}
	return mesh.CheckStatus(OpProvisionAdv, resp.Status)
}

// AddAppKey sends Config AppKey Add through the daemon.
func (b *Bridge) AddAppKey(ctx context.Context, netIdx mesh.KeyIndex, target mesh.Address, appIdx mesh.KeyIndex, key mesh.Key) (mesh.Status, error) {
	resp, err := b.call(ctx, OpAppKeyAdd, AppKeyAdd{
		NetIdx: netIdx,
		Target: target,
		AppIdx: appIdx,
		Key:    key,
	}, nil)
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}

// CompositionData fetches a composition page. A node refusal is returned
// as a *mesh.StatusError.
func (b *Bridge) CompositionData(ctx context.Context, target mesh.Address, page uint8) ([]byte, error) {
	resp, err := b.call(ctx, OpCompositionGet, CompositionGet{Target: target, Page: page}, nil)
	if err != nil {
		return nil, err
	}
	if err := mesh.CheckStatus(OpCompositionGet, resp.Status); err != nil {
		return nil, err
	}

	var out CompositionStatus
	if err := Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("%s response body: %w", OpCompositionGet, err)
	}
	if out.Page != page {
		return nil, fmt.Errorf("%w: asked for page %d, got %d", ErrMalformed, page, out.Page)
	}
	return out.Data, nil
}

// BindModel sends Config Model App Bind through the daemon.
func (b *Bridge) BindModel(ctx context.Context, target, element mesh.Address, appIdx mesh.KeyIndex, model mesh.ModelID) (mesh.Status, error) {
	resp, err := b.call(ctx, OpModelAppBind, ModelAppBind{
		Target:  target,
		Element: element,
		AppIdx:  appIdx,
		Model:   model,
	}, nil)
	if err != nil {
		return 0, err
	}
	return resp.Status, nil
}
