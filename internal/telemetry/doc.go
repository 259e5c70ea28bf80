// Package telemetry records normalized purifier readings to InfluxDB.
//
// The recorder consumes merged device statuses from the shadow session's
// event stream and writes their numeric readings (pm2.5, humidity,
// temperature, AQI, fan speed, filter wear) as points in the air_quality
// measurement, tagged by device.
//
// Writes go through the InfluxDB v2 non-blocking write API: points are
// batched and flushed on an interval, so recording never stalls event
// processing. Async write failures surface through SetOnError.
//
// The sink is optional; when influxdb.enabled is false, Connect returns
// ErrDisabled and the daemon runs without it.
package telemetry
