// Package alert evaluates threshold rules against telemetry readings and
// stores the resulting alerts with cooldown-based deduplication.
package alert

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/iotlab/sensorhub/model"
)

// Evaluate applies the threshold's bounds to a reading and returns the
// resulting alerts. It is a pure function: no clock, no I/O, no state.
//
// A disabled threshold suppresses all alerting regardless of values. Each
// bound check is independent and strict: a reading exactly at a bound does
// not alert. The alert timestamp is the reading's timestamp.
func Evaluate(r model.TelemetryReading, t model.Threshold) []model.Alert {
	if !t.Enabled {
		return nil
	}

	var alerts []model.Alert

	if t.TemperatureMax != nil && r.Temperature > *t.TemperatureMax {
		alerts = append(alerts, model.Alert{
			ID:        newAlertID(r.DeviceID, "temp-high", r.TS),
			DeviceID:  r.DeviceID,
			Type:      model.AlertTemperatureHigh,
			Value:     r.Temperature,
			Threshold: *t.TemperatureMax,
			Timestamp: r.TS,
			Message: fmt.Sprintf("Temperature %s°C exceeds maximum threshold %s°C",
				formatValue(r.Temperature), formatValue(*t.TemperatureMax)),
		})
	}
	if t.TemperatureMin != nil && r.Temperature < *t.TemperatureMin {
		alerts = append(alerts, model.Alert{
			ID:        newAlertID(r.DeviceID, "temp-low", r.TS),
			DeviceID:  r.DeviceID,
			Type:      model.AlertTemperatureLow,
			Value:     r.Temperature,
			Threshold: *t.TemperatureMin,
			Timestamp: r.TS,
			Message: fmt.Sprintf("Temperature %s°C below minimum threshold %s°C",
				formatValue(r.Temperature), formatValue(*t.TemperatureMin)),
		})
	}
	if t.HumidityMax != nil && r.Humidity > *t.HumidityMax {
		alerts = append(alerts, model.Alert{
			ID:        newAlertID(r.DeviceID, "humid-high", r.TS),
			DeviceID:  r.DeviceID,
			Type:      model.AlertHumidityHigh,
			Value:     r.Humidity,
			Threshold: *t.HumidityMax,
			Timestamp: r.TS,
			Message: fmt.Sprintf("Humidity %s%% exceeds maximum threshold %s%%",
				formatValue(r.Humidity), formatValue(*t.HumidityMax)),
		})
	}
	if t.HumidityMin != nil && r.Humidity < *t.HumidityMin {
		alerts = append(alerts, model.Alert{
			ID:        newAlertID(r.DeviceID, "humid-low", r.TS),
			DeviceID:  r.DeviceID,
			Type:      model.AlertHumidityLow,
			Value:     r.Humidity,
			Threshold: *t.HumidityMin,
			Timestamp: r.TS,
			Message: fmt.Sprintf("Humidity %s%% below minimum threshold %s%%",
				formatValue(r.Humidity), formatValue(*t.HumidityMin)),
		})
	}

	return alerts
}

// newAlertID derives a per-occurrence unique id. The random suffix keeps two
// evaluations of identical input at different instants from colliding; the
// dedup window, not the id, is what prevents duplicate alerts from
// accumulating.
func newAlertID(deviceID, tag string, ts int64) string {
	return fmt.Sprintf("%s-%s-%d-%s", deviceID, tag, ts, uuid.NewString()[:8])
}

// formatValue renders a float the way the dashboard does: no trailing zeros,
// so 30.0 prints as "30" and 35.5 as "35.5".
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
