// Package sensorhub is the backend for a classroom IoT telemetry dashboard.
//
// # Overview
//
// The server ingests temperature/humidity telemetry from ESP32-class devices,
// maintains bounded per-device history, derives online/offline status from
// message liveness, evaluates threshold rules, and raises deduplicated
// alerts. State is queryable over a REST API and streamed to dashboards over
// WebSocket.
//
// Packages:
//   - engine: the state engine owning devices, history, thresholds and alerts
//   - transport/mqtt, transport/natsio, transport/ws: ingestion and control
//   - httpapi: the REST query surface
//   - simulator: a mock device fleet for broker-less development
//   - obs: OpenTelemetry bootstrap
//
// # Quick Start
//
//	cfg, err := sensorhub.LoadConfig("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng := engine.New(cfg.Engine.ToEngine())
//	mon := engine.NewMonitor(eng)
//	mon.Start()
//	defer mon.Stop()
//
// See cmd/sensorhub for the full wiring.
package sensorhub
