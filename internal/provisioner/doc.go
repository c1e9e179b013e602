// Package provisioner is the autonomous provisioning and configuration
// engine.
//
// An Engine owns the configuration database handle, a Radio, and two
// single-value signal slots fed by radio callbacks. Start brings the
// network up; afterwards a single worker goroutine runs ticks forever:
//
//  1. Configuration pass: every unconfigured node gets the application
//     key, and for remote nodes the key is bound to every model except
//     the Configuration Server and Client. Bind failures are counted but
//     do not hold a node back.
//  2. One provisioning session:
//     IDLE → AWAIT_BEACON → ADMITTING → AWAIT_ADMITTED → DONE,
//     or TIMED_OUT when either wait expires or admission is rejected.
//     An admitted node is recorded unconfigured and picked up by the
//     next tick's pass.
//
// After each tick the next one is scheduled TickInterval later. There
// is no backoff and no per-node attempt counter; a failed node or a
// missed device simply gets another chance on the next tick.
//
// # Concurrency
//
// OnUnprovisionedBeacon and OnNodeAdded never block and never touch the
// database. Only the worker writes to the database. Status and the
// database's snapshot readers are safe from any goroutine.
//
// # Usage
//
//	engine, err := provisioner.New(provisioner.Options{
//	    Config: cfg,
//	    DB:     cdb.New(cdb.NewSQLiteStore(db.DB), cfg.SelfAddress),
//	    Radio:  bridge,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Stop()
package provisioner
