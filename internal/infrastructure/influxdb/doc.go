// Package influxdb writes provisioning telemetry to InfluxDB v2.
//
// Two measurements are written:
//
//	mesh_ticks  one point per scheduler tick (session outcome, walker counts)
//	mesh_nodes  one point per node admitted or configured
//
// Writes are non-blocking and batched by the client library according to
// batch_size and flush_interval. Asynchronous write failures are delivered
// to the SetOnError callback.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTick(influxdb.TickSample{Outcome: "done", Visited: 1})
package influxdb
