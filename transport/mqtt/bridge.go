// Package mqtt bridges the MQTT device topic tree to the state engine.
//
// Devices publish under <prefix>/<deviceId>/telemetry and .../ack; the
// server publishes control commands to <prefix>/<deviceId>/control and a
// retained status message under <prefix>/server/status with an offline
// last-will.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/iotlab/sensorhub/engine"
	"github.com/iotlab/sensorhub/model"
)

const (
	kindTelemetry = "telemetry"
	kindAck       = "ack"

	connectTimeout = 10 * time.Second
	disconnectWait = 250 // milliseconds, for paho
)

// Config carries the bridge settings.
type Config struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

func (c Config) withDefaults() Config {
	if c.BrokerURL == "" {
		c.BrokerURL = "tcp://localhost:1883"
	}
	if c.ClientID == "" {
		c.ClientID = "iot-dashboard-server"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "iot/classroom"
	}
	if c.QoS == 0 {
		c.QoS = 1
	}

	return c
}

// statusPayload is the retained server status message.
type statusPayload struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Bridge connects the engine to an MQTT broker. It implements
// engine.CommandSender for the outbound control path.
type Bridge struct {
	cfg    Config
	eng    *engine.Engine
	client paho.Client
}

// NewBridge creates a Bridge. Call Connect to establish the session.
func NewBridge(eng *engine.Engine, cfg Config) *Bridge {
	return &Bridge{cfg: cfg.withDefaults(), eng: eng}
}

// Connect dials the broker, announces the server online and subscribes to
// the device topics. Reconnects and resubscribes are handled by paho.
func (b *Bridge) Connect(ctx context.Context) error {
	will, _ := json.Marshal(statusPayload{Status: "offline", Timestamp: time.Now().UnixMilli()})

	opts := paho.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetBinaryWill(b.statusTopic(), will, b.cfg.QoS, true).
		SetOnConnectHandler(func(c paho.Client) {
			log.Printf("mqtt: connected to %s", b.cfg.BrokerURL)
			b.subscribe(c)
			b.publishStatus(c, "online")
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	b.client = paho.NewClient(opts)

	token := b.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect %s: %w", b.cfg.BrokerURL, err)
	}

	return nil
}

func (b *Bridge) subscribe(c paho.Client) {
	for _, kind := range []string{kindTelemetry, kindAck} {
		topic := b.cfg.TopicPrefix + "/+/" + kind
		if token := c.Subscribe(topic, b.cfg.QoS, b.handleMessage); token.Wait() && token.Error() != nil {
			log.Printf("mqtt: subscribe %s: %v", topic, token.Error())
		} else {
			log.Printf("mqtt: subscribed to %s", topic)
		}
	}
}

func (b *Bridge) handleMessage(_ paho.Client, m paho.Message) {
	b.dispatch(m.Topic(), m.Payload())
}

// dispatch decodes one inbound message and hands the typed value to the
// engine. Malformed topics or payloads are logged and dropped.
func (b *Bridge) dispatch(topic string, payload []byte) {
	deviceID, kind, ok := parseTopic(b.cfg.TopicPrefix, topic)
	if !ok {
		log.Printf("mqtt: invalid topic format: %s", topic)
		return
	}

	switch kind {
	case kindTelemetry:
		var r model.TelemetryReading
		if err := json.Unmarshal(payload, &r); err != nil {
			log.Printf("mqtt: bad telemetry payload on %s: %v", topic, err)
			return
		}
		r.DeviceID = deviceID
		if r.TS == 0 {
			r.TS = time.Now().UnixMilli()
		}
		b.eng.IngestTelemetry(r)

	case kindAck:
		var ack model.AckResponse
		if err := json.Unmarshal(payload, &ack); err != nil {
			log.Printf("mqtt: bad ack payload on %s: %v", topic, err)
			return
		}
		b.eng.HandleAck(deviceID, ack)

	default:
		log.Printf("mqtt: unknown message kind %q on %s", kind, topic)
	}
}

// SendCommand implements engine.CommandSender.
func (b *Bridge) SendCommand(ctx context.Context, deviceID string, cmd model.ControlCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("mqtt: marshal command: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/control", b.cfg.TopicPrefix, deviceID)
	token := b.client.Publish(topic, b.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}

	return nil
}

// Disconnect announces the server offline and closes the session.
func (b *Bridge) Disconnect() {
	if b.client == nil {
		return
	}
	b.publishStatus(b.client, "offline")
	b.client.Disconnect(disconnectWait)
	log.Printf("mqtt: disconnected")
}

func (b *Bridge) publishStatus(c paho.Client, status string) {
	payload, _ := json.Marshal(statusPayload{Status: status, Timestamp: time.Now().UnixMilli()})
	if token := c.Publish(b.statusTopic(), b.cfg.QoS, true, payload); token.Wait() && token.Error() != nil {
		log.Printf("mqtt: publish server status: %v", token.Error())
	}
}

func (b *Bridge) statusTopic() string {
	return b.cfg.TopicPrefix + "/server/status"
}

// parseTopic extracts the device id and message kind from
// <prefix>/<deviceId>/<kind>. The server's own status topic does not match.
func parseTopic(prefix, topic string) (deviceID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", "", false
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	return parts[0], parts[1], true
}
