package provisioner

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-mesh/internal/cdb"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh"
)

// configurePass visits every unconfigured node once.
//
// Without an application key the pass is skipped before any radio call.
// A node that fails stays unconfigured and is visited again next tick.
func (e *Engine) configurePass(ctx context.Context) PassReport {
	var report PassReport

	appKey, err := e.db.AppKey(e.cfg.AppIdx)
	if err != nil {
		e.logger.Error("skipping configuration pass",
			"app_idx", e.cfg.AppIdx,
			"error", fmt.Errorf("%w: %w", ErrNoAppKey, err),
		)
		report.NoAppKey = true
		return report
	}

	e.db.ForEach(cdb.Unconfigured, func(n *cdb.Node) cdb.IterAction {
		if ctx.Err() != nil {
			return cdb.IterStop
		}
		report.Visited++

		var ev NodeEvent
		var err error
		if e.db.IsSelf(n.Address) {
			ev, err = e.configureSelf(ctx, n, appKey)
		} else {
			ev, err = e.configureNode(ctx, n, appKey)
		}

		if err != nil {
			report.Failed++
			e.logger.Warn("node configuration failed, will retry",
				"addr", n.Address,
				"refused", isStatus(err),
				"error", err,
			)
			return cdb.IterContinue
		}

		report.Configured++
		e.observer.NodeConfigured(ev)
		return cdb.IterContinue
	})

	return report
}

// configureSelf configures the local device. Its models are known
// statically, so there is no composition fetch and nothing to bind.
func (e *Engine) configureSelf(ctx context.Context, n *cdb.Node, appKey cdb.AppKey) (NodeEvent, error) {
	status, err := e.radio.AddAppKey(ctx, appKey.NetIdx, n.Address, appKey.AppIdx, appKey.Key)
	if err != nil {
		return NodeEvent{}, fmt.Errorf("adding app key locally: %w", err)
	}
	if err := mesh.CheckStatus("app key add", status); err != nil {
		return NodeEvent{}, err
	}

	if n.Composition == nil {
		if err := e.db.SetComposition(ctx, n.Address, mesh.ProvisionerComposition(e.cfg.CompanyID)); err != nil {
			e.logger.Warn("storing local composition", "error", err)
		}
	}

	if err := e.db.MarkConfigured(ctx, n.Address); err != nil {
		return NodeEvent{}, fmt.Errorf("persisting configured flag: %w", err)
	}

	e.logger.Info("local node configured", "addr", n.Address)
	return NodeEvent{Address: n.Address, UUID: n.UUID, NumElements: n.NumElements, Self: true}, nil
}

// configureNode distributes the application key to a remote node and
// binds it to every model except the Configuration Server and Client.
//
// Bind failures are counted and logged; the node is still marked
// configured once every model has been attempted.
func (e *Engine) configureNode(ctx context.Context, n *cdb.Node, appKey cdb.AppKey) (NodeEvent, error) {
	status, err := e.radio.AddAppKey(ctx, appKey.NetIdx, n.Address, appKey.AppIdx, appKey.Key)
	if err != nil {
		return NodeEvent{}, fmt.Errorf("adding app key: %w", err)
	}
	if err := mesh.CheckStatus("app key add", status); err != nil {
		return NodeEvent{}, err
	}

	raw, err := e.radio.CompositionData(ctx, n.Address, 0)
	if err != nil {
		return NodeEvent{}, fmt.Errorf("fetching composition: %w", err)
	}
	comp, err := mesh.ParseCompositionPage0(raw)
	if err != nil {
		return NodeEvent{}, fmt.Errorf("parsing composition: %w", err)
	}
	elements := comp.Elements
	if err := e.db.SetComposition(ctx, n.Address, comp); err != nil {
		if errors.Is(err, cdb.ErrAddressInUse) && len(elements) > int(n.NumElements) {
			// Elements past the admitted range belong to another node.
			e.logger.Warn("composition exceeds admitted range, binding admitted elements only",
				"addr", n.Address,
				"admitted", n.NumElements,
				"reported", len(elements),
				"error", err,
			)
			elements = elements[:max(int(n.NumElements), 1)]
		} else {
			e.logger.Warn("storing composition", "addr", n.Address, "error", err)
		}
	}

	ev := NodeEvent{
		Address:     n.Address,
		UUID:        n.UUID,
		NumElements: uint8(len(elements)),
	}

	for i, el := range elements {
		elemAddr := n.Address + mesh.Address(i)
		for _, model := range el.Models() {
			if model.IsFoundationConfig() {
				continue
			}
			if err := e.bind(ctx, n.Address, elemAddr, appKey.AppIdx, model); err != nil {
				ev.BindFailures++
				e.logger.Warn("model bind failed",
					"addr", n.Address,
					"element", elemAddr,
					"model", model,
					"error", err,
				)
				continue
			}
			ev.Bound++
		}
	}

	// A shutdown mid-walk would otherwise mark a half-bound node as done.
	if err := ctx.Err(); err != nil {
		return NodeEvent{}, err
	}

	if err := e.db.MarkConfigured(ctx, n.Address); err != nil {
		return NodeEvent{}, fmt.Errorf("persisting configured flag: %w", err)
	}

	level := e.logger.Info
	if ev.BindFailures > 0 {
		level = e.logger.Warn
	}
	level("node configured",
		"addr", n.Address,
		"elements", len(elements),
		"bound", ev.Bound,
		"bind_failures", ev.BindFailures,
	)
	return ev, nil
}

func (e *Engine) bind(ctx context.Context, target, elem mesh.Address, appIdx mesh.KeyIndex, model mesh.ModelID) error {
	status, err := e.radio.BindModel(ctx, target, elem, appIdx, model)
	if err != nil {
		return err
	}
	return mesh.CheckStatus("model app bind", status)
}

// isStatus reports whether err is a node refusal rather than a transport failure.
func isStatus(err error) bool {
	var se *mesh.StatusError
	return errors.As(err, &se)
}
