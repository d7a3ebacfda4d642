package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab/sensorhub/engine"
	"github.com/iotlab/sensorhub/model"
)

func newTestServer(t *testing.T) (*engine.Engine, *httptest.Server) {
	t.Helper()

	eng := engine.New(engine.Config{})
	srv := httptest.NewServer(New(eng, Config{}).Handler())
	t.Cleanup(srv.Close)

	return eng, srv
}

func doJSON(t *testing.T, method, url, body string) (int, envelope) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))

	return resp.StatusCode, env
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestServer(t)

	code, env := doJSON(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.NotZero(t, env.Timestamp)
}

func TestDeviceEndpoints(t *testing.T) {
	eng, srv := newTestServer(t)

	eng.IngestTelemetry(model.TelemetryReading{
		DeviceID: "ESP32_001", TS: 1000, Temperature: 25, Humidity: 60,
	})

	t.Run("list", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet, srv.URL+"/api/devices", "")
		assert.Equal(t, http.StatusOK, code)

		var devices []model.Device
		remarshal(t, env.Data, &devices)
		require.Len(t, devices, 1)
		assert.Equal(t, "ESP32_001", devices[0].ID)
		assert.Equal(t, model.StatusOnline, devices[0].Status)
	})

	t.Run("get unknown returns 404", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet, srv.URL+"/api/devices/nope", "")
		assert.Equal(t, http.StatusNotFound, code)
		assert.False(t, env.Success)
		assert.NotEmpty(t, env.Error)
	})

	t.Run("admin upsert", func(t *testing.T) {
		code, env := doJSON(t, http.MethodPost, srv.URL+"/api/devices/ESP32_009",
			`{"name":"Lab Sensor","status":"offline"}`)
		assert.Equal(t, http.StatusOK, code)

		var d model.Device
		remarshal(t, env.Data, &d)
		assert.Equal(t, "Lab Sensor", d.Name)
		assert.Equal(t, model.StatusOffline, d.Status)
	})

	t.Run("upsert rejects bad status", func(t *testing.T) {
		code, _ := doJSON(t, http.MethodPost, srv.URL+"/api/devices/x",
			`{"status":"sleeping"}`)
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("delete removes device and history", func(t *testing.T) {
		code, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/devices/ESP32_001", "")
		assert.Equal(t, http.StatusOK, code)

		code, _ = doJSON(t, http.MethodGet, srv.URL+"/api/devices/ESP32_001", "")
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("control without transport returns 503", func(t *testing.T) {
		code, _ := doJSON(t, http.MethodPost, srv.URL+"/api/devices/ESP32_009/control",
			`{"command":"LED_ON"}`)
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})

	t.Run("control rejects unknown command", func(t *testing.T) {
		code, _ := doJSON(t, http.MethodPost, srv.URL+"/api/devices/ESP32_009/control",
			`{"command":"REBOOT"}`)
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestHistoryEndpoints(t *testing.T) {
	eng, srv := newTestServer(t)

	for ts := int64(1000); ts <= 5000; ts += 1000 {
		eng.AppendHistory("ESP32_001", model.DataPoint{Timestamp: ts, Temperature: 20, Humidity: 50})
	}

	t.Run("newest first with limit", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet,
			srv.URL+"/api/history/ESP32_001?limit=2", "")
		assert.Equal(t, http.StatusOK, code)

		var resp historyResponse
		remarshal(t, env.Data, &resp)
		assert.Equal(t, 5, resp.Total)
		require.Len(t, resp.Points, 2)
		assert.Equal(t, int64(5000), resp.Points[0].Timestamp)
		assert.Equal(t, int64(4000), resp.Points[1].Timestamp)
	})

	t.Run("pagination", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet,
			srv.URL+"/api/history/ESP32_001?limit=2&page=3", "")
		assert.Equal(t, http.StatusOK, code)

		var resp historyResponse
		remarshal(t, env.Data, &resp)
		require.Len(t, resp.Points, 1)
		assert.Equal(t, int64(1000), resp.Points[0].Timestamp)
	})

	t.Run("time range filter", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet,
			srv.URL+"/api/history/ESP32_001?from=2000&to=4000", "")
		assert.Equal(t, http.StatusOK, code)

		var resp historyResponse
		remarshal(t, env.Data, &resp)
		assert.Equal(t, 3, resp.Total)
	})

	t.Run("invalid limit rejected", func(t *testing.T) {
		code, _ := doJSON(t, http.MethodGet,
			srv.URL+"/api/history/ESP32_001?limit=abc", "")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("append", func(t *testing.T) {
		code, env := doJSON(t, http.MethodPost, srv.URL+"/api/history/ESP32_002",
			`{"timestamp":9000,"temperature":22.5,"humidity":48}`)
		assert.Equal(t, http.StatusOK, code)
		assert.Len(t, eng.History("ESP32_002", 0), 1)

		var p model.DataPoint
		remarshal(t, env.Data, &p)
		assert.Equal(t, int64(9000), p.Timestamp)
	})

	t.Run("append rejects missing fields", func(t *testing.T) {
		for _, body := range []string{
			`{}`,
			`{"temperature":22.5,"humidity":48}`,
			`{"timestamp":9000,"humidity":48}`,
			`{"timestamp":9000,"temperature":22.5}`,
		} {
			code, env := doJSON(t, http.MethodPost, srv.URL+"/api/history/ESP32_002", body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Contains(t, env.Error, "Missing required fields")
		}
		// nothing beyond the earlier append landed
		assert.Len(t, eng.History("ESP32_002", 0), 1)
	})
}

func TestCombinedHistoryEndpoint(t *testing.T) {
	eng, srv := newTestServer(t)

	eng.AppendHistory("ESP32_001", model.DataPoint{Timestamp: 1000, Temperature: 20, Humidity: 50})
	eng.AppendHistory("ESP32_001", model.DataPoint{Timestamp: 3000, Temperature: 21, Humidity: 51})
	eng.AppendHistory("ESP32_002", model.DataPoint{Timestamp: 2000, Temperature: 22, Humidity: 52})
	eng.AppendHistory("ESP32_002", model.DataPoint{Timestamp: 4000, Temperature: 23, Humidity: 53})

	t.Run("merges devices newest first", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet, srv.URL+"/api/history", "")
		assert.Equal(t, http.StatusOK, code)

		var resp combinedHistoryResponse
		remarshal(t, env.Data, &resp)
		assert.Equal(t, 4, resp.Total)
		require.Len(t, resp.Points, 4)
		assert.Equal(t, int64(4000), resp.Points[0].Timestamp)
		assert.Equal(t, "ESP32_002", resp.Points[0].DeviceID)
		assert.Equal(t, int64(3000), resp.Points[1].Timestamp)
		assert.Equal(t, "ESP32_001", resp.Points[1].DeviceID)
		assert.Equal(t, int64(1000), resp.Points[3].Timestamp)
	})

	t.Run("deviceId filter", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet,
			srv.URL+"/api/history?deviceId=ESP32_001", "")
		assert.Equal(t, http.StatusOK, code)

		var resp combinedHistoryResponse
		remarshal(t, env.Data, &resp)
		assert.Equal(t, 2, resp.Total)
		for _, p := range resp.Points {
			assert.Equal(t, "ESP32_001", p.DeviceID)
		}
	})

	t.Run("time range and pagination", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet,
			srv.URL+"/api/history?from=2000&to=4000&limit=2&page=2", "")
		assert.Equal(t, http.StatusOK, code)

		var resp combinedHistoryResponse
		remarshal(t, env.Data, &resp)
		assert.Equal(t, 3, resp.Total)
		require.Len(t, resp.Points, 1)
		assert.Equal(t, int64(2000), resp.Points[0].Timestamp)
	})

	t.Run("invalid page rejected", func(t *testing.T) {
		code, _ := doJSON(t, http.MethodGet, srv.URL+"/api/history?page=0", "")
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestThresholdEndpoints(t *testing.T) {
	_, srv := newTestServer(t)

	t.Run("get falls back to defaults", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet, srv.URL+"/api/thresholds/ESP32_001", "")
		assert.Equal(t, http.StatusOK, code)

		var th model.Threshold
		remarshal(t, env.Data, &th)
		require.NotNil(t, th.TemperatureMax)
		assert.InDelta(t, 35.0, *th.TemperatureMax, 1e-9)
		assert.True(t, th.Enabled)
	})

	t.Run("partial update", func(t *testing.T) {
		code, env := doJSON(t, http.MethodPost, srv.URL+"/api/thresholds/ESP32_001",
			`{"temperatureMax":30}`)
		assert.Equal(t, http.StatusOK, code)

		var th model.Threshold
		remarshal(t, env.Data, &th)
		assert.InDelta(t, 30.0, *th.TemperatureMax, 1e-9)
		// untouched bound keeps its default
		assert.InDelta(t, 15.0, *th.TemperatureMin, 1e-9)
	})

	t.Run("inconsistent bounds rejected", func(t *testing.T) {
		code, env := doJSON(t, http.MethodPost, srv.URL+"/api/thresholds/ESP32_001",
			`{"temperatureMax":10}`)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, env.Error, "temperature")

		// stored value unchanged
		_, env = doJSON(t, http.MethodGet, srv.URL+"/api/thresholds/ESP32_001", "")
		var th model.Threshold
		remarshal(t, env.Data, &th)
		assert.InDelta(t, 30.0, *th.TemperatureMax, 1e-9)
	})

	t.Run("reset restores defaults", func(t *testing.T) {
		code, env := doJSON(t, http.MethodPost, srv.URL+"/api/thresholds/ESP32_001/reset", "")
		assert.Equal(t, http.StatusOK, code)

		var th model.Threshold
		remarshal(t, env.Data, &th)
		assert.InDelta(t, 35.0, *th.TemperatureMax, 1e-9)
	})

	t.Run("delete removes custom entry", func(t *testing.T) {
		code, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/thresholds/ESP32_001", "")
		assert.Equal(t, http.StatusOK, code)

		code, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/thresholds/ESP32_001", "")
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestAlertEndpoints(t *testing.T) {
	eng, srv := newTestServer(t)

	// A hot reading against default thresholds raises temperature_high
	eng.IngestTelemetry(model.TelemetryReading{
		DeviceID: "ESP32_001", TS: 1000, Temperature: 40, Humidity: 60,
	})

	var alertID string

	t.Run("list with filters", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet,
			srv.URL+"/api/alerts?deviceId=ESP32_001&acknowledged=false", "")
		assert.Equal(t, http.StatusOK, code)

		var alerts []model.Alert
		remarshal(t, env.Data, &alerts)
		require.Len(t, alerts, 1)
		assert.Equal(t, model.AlertTemperatureHigh, alerts[0].Type)
		alertID = alerts[0].ID
	})

	t.Run("get", func(t *testing.T) {
		code, env := doJSON(t, http.MethodGet, srv.URL+"/api/alerts/"+alertID, "")
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, env.Success)
	})

	t.Run("ack is idempotent and silent on unknown", func(t *testing.T) {
		code, env := doJSON(t, http.MethodPost, srv.URL+"/api/alerts/"+alertID+"/ack", "")
		assert.Equal(t, http.StatusOK, code)

		var a model.Alert
		remarshal(t, env.Data, &a)
		assert.True(t, a.Acknowledged)

		code, env = doJSON(t, http.MethodPost, srv.URL+"/api/alerts/unknown/ack", "")
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, env.Success)
	})

	t.Run("create requires deviceId and type", func(t *testing.T) {
		code, _ := doJSON(t, http.MethodPost, srv.URL+"/api/alerts", `{"value":1}`)
		assert.Equal(t, http.StatusBadRequest, code)

		code, env := doJSON(t, http.MethodPost, srv.URL+"/api/alerts",
			`{"deviceId":"ESP32_002","type":"humidity_low","value":10,"threshold":30,"message":"manual"}`)
		assert.Equal(t, http.StatusCreated, code)

		var a model.Alert
		remarshal(t, env.Data, &a)
		assert.NotEmpty(t, a.ID)
		assert.NotZero(t, a.Timestamp)
	})

	t.Run("clear", func(t *testing.T) {
		code, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/alerts/"+alertID, "")
		assert.Equal(t, http.StatusOK, code)

		code, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/alerts/"+alertID, "")
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestCORSHeaders(t *testing.T) {
	eng := engine.New(engine.Config{})
	srv := httptest.NewServer(New(eng, Config{CORSOrigin: "http://localhost:5173"}).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/devices", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

// remarshal converts the envelope's generic data field into a typed value.
func remarshal(t *testing.T, data any, dst any) {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}
