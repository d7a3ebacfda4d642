// Package obs bootstraps OpenTelemetry providers for the sensorhub server.
//
// Traces, metrics and logs share one OTLP endpoint; each signal can be
// switched off or redirected to the console independently. Everything is
// opt-in: with Enabled unset the server runs with no-op providers.
package obs

import "time"

// Config configures the observability bootstrap.
// Environment variable names follow the OTel specification.
type Config struct {
	// Enabled controls whether any provider is built.
	Enabled *bool `yaml:"enabled" default:"false" env:"OTEL_ENABLED"`

	// ServiceName identifies this process in telemetry backends.
	ServiceName string `yaml:"serviceName" default:"sensorhub" env:"OTEL_SERVICE_NAME"`

	// Version is the service version (e.g., git commit or semantic version).
	Version string `yaml:"version" env:"OTEL_SERVICE_VERSION"`

	// Environment is the deployment environment (e.g., production).
	Environment string `yaml:"environment" default:"development" env:"OTEL_DEPLOYMENT_ENVIRONMENT"`

	// Endpoint is the OTLP collector endpoint.
	// gRPC expects "host:port"; HTTP expects a full URL.
	Endpoint string `yaml:"endpoint" default:"localhost:4317" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Protocol selects the OTLP transport: "grpc" or "http".
	Protocol string `yaml:"protocol" default:"grpc" env:"OTEL_EXPORTER_OTLP_PROTOCOL" validate:"oneof=grpc http"`

	// Insecure disables TLS for the OTLP connection.
	Insecure *bool `yaml:"insecure" default:"true" env:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Timeout bounds exporter operations.
	Timeout time.Duration `yaml:"timeout" default:"10s" validate:"gte=0"`

	// Traces selects the trace exporter: "otlp", "console" or "none".
	Traces string `yaml:"traces" default:"otlp" env:"OTEL_TRACES_EXPORTER" validate:"oneof=otlp console none"`

	// Metrics selects the metric exporter: "otlp", "console" or "none".
	Metrics string `yaml:"metrics" default:"none" env:"OTEL_METRICS_EXPORTER" validate:"oneof=otlp console none"`

	// MetricInterval is the periodic reader export interval.
	MetricInterval time.Duration `yaml:"metricInterval" default:"60s" validate:"gt=0"`

	// Logs selects the log exporter: "otlp", "console" or "none".
	Logs string `yaml:"logs" default:"none" env:"OTEL_LOGS_EXPORTER" validate:"oneof=otlp console none"`
}

// IsEnabled returns true if the bootstrap is enabled. Defaults to false.
func (c *Config) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// IsInsecure returns true if TLS is disabled. Defaults to true.
func (c *Config) IsInsecure() bool {
	return c == nil || c.Insecure == nil || *c.Insecure
}

// useHTTP reports whether the HTTP OTLP transport was selected.
func (c *Config) useHTTP() bool {
	return c != nil && c.Protocol == "http"
}
