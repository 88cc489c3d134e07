// Package influxdb records authentication telemetry in InfluxDB.
//
// Every login, refresh, logout and revocation is written as a point in the
// auth_events measurement so operators can chart login failure rates,
// refresh races and mass revocations over time.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAuthEvent(influxdb.AuthEventPoint{Event: "login", Outcome: "success", UserID: id})
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Asynchronous write errors are delivered to the SetOnError callback.
package influxdb
