package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab/sensorhub/engine"
	"github.com/iotlab/sensorhub/model"
)

func newTestHub(t *testing.T) (*engine.Engine, *Hub, *websocket.Conn) {
	t.Helper()

	eng := engine.New(engine.Config{})
	hub := NewHub(eng)
	eng.SetEvents(hub)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return eng, hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))

	return msg
}

// readMessageOfType skips interleaved broadcasts until the wanted type shows
// up.
func readMessageOfType(t *testing.T, conn *websocket.Conn, msgType string) Message {
	t.Helper()

	for range 10 {
		msg := readMessage(t, conn)
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message received", msgType)

	return Message{}
}

func TestConnectPushesDeviceList(t *testing.T) {
	_, _, conn := newTestHub(t)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeDeviceList, msg.Type)
}

func TestGetDevicesRequest(t *testing.T) {
	eng, _, conn := newTestHub(t)
	readMessage(t, conn) // initial device_list

	eng.UpsertDevice("ESP32_001", "Classroom Sensor 1", model.StatusOffline)

	require.NoError(t, conn.WriteJSON(Message{Type: TypeGetDevices}))

	msg := readMessageOfType(t, conn, TypeDeviceList)
	var devices []model.Device
	require.NoError(t, json.Unmarshal(msg.Data, &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, "ESP32_001", devices[0].ID)
}

func TestEngineEventsAreBroadcast(t *testing.T) {
	eng, _, conn := newTestHub(t)
	readMessage(t, conn) // initial device_list

	eng.IngestTelemetry(model.TelemetryReading{
		DeviceID: "ESP32_001", TS: 1000, Temperature: 40, Humidity: 60,
	})

	types := map[string]bool{}
	for range 3 {
		msg := readMessage(t, conn)
		types[msg.Type] = true
	}

	// Hot reading produces telemetry, a status flip to online, and an alert
	assert.True(t, types[TypeTelemetry])
	assert.True(t, types[TypeStatus])
	assert.True(t, types[TypeAlert])
}

func TestInboundTelemetryReachesEngine(t *testing.T) {
	eng, _, conn := newTestHub(t)
	readMessage(t, conn) // initial device_list

	data, err := json.Marshal(model.TelemetryReading{
		DeviceID: "ESP32_002", TS: 2000, Temperature: 22, Humidity: 50,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{Type: TypeTelemetry, DeviceID: "ESP32_002", Data: data}))

	require.Eventually(t, func() bool {
		_, err := eng.GetDevice("ESP32_002")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	d, err := eng.GetDevice("ESP32_002")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnline, d.Status)
}

func TestMalformedMessageIsDropped(t *testing.T) {
	eng, _, conn := newTestHub(t)
	readMessage(t, conn) // initial device_list

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	// Connection stays usable and engine state is untouched
	require.NoError(t, conn.WriteJSON(Message{Type: TypeGetDevices}))
	msg := readMessageOfType(t, conn, TypeDeviceList)
	assert.Equal(t, TypeDeviceList, msg.Type)
	assert.Empty(t, eng.ListDevices())
}
