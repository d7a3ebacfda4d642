// Package natsio bridges NATS subjects to the state engine, for deployments
// that run NATS instead of an MQTT broker.
//
// Devices publish under <prefix>.<deviceId>.telemetry and ...ack; the server
// publishes control commands to <prefix>.<deviceId>.control and its own
// lifecycle under <prefix>.server.status.
package natsio

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/iotlab/sensorhub/engine"
	"github.com/iotlab/sensorhub/model"
)

const (
	kindTelemetry = "telemetry"
	kindAck       = "ack"

	reconnectWait = 2 * time.Second
)

// Config carries the bridge settings.
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "iot-dashboard-server"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "iot.classroom"
	}

	return c
}

// statusPayload is the server lifecycle message.
type statusPayload struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Bridge connects the engine to a NATS server. It implements
// engine.CommandSender for the outbound control path.
type Bridge struct {
	cfg  Config
	eng  *engine.Engine
	conn *nats.Conn
	subs []*nats.Subscription
}

// NewBridge creates a Bridge. Call Connect to establish the session.
func NewBridge(eng *engine.Engine, cfg Config) *Bridge {
	return &Bridge{cfg: cfg.withDefaults(), eng: eng}
}

// Connect dials the server, announces the server online and subscribes to
// the device subjects.
func (b *Bridge) Connect(_ context.Context) error {
	conn, err := nats.Connect(b.cfg.URL,
		nats.Name(b.cfg.Name),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("natsio: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("natsio: reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("natsio: connect %s: %w", b.cfg.URL, err)
	}
	b.conn = conn
	log.Printf("natsio: connected to %s", conn.ConnectedUrl())

	for _, kind := range []string{kindTelemetry, kindAck} {
		subject := b.cfg.SubjectPrefix + ".*." + kind
		sub, err := conn.Subscribe(subject, func(m *nats.Msg) {
			b.dispatch(m.Subject, m.Data)
		})
		if err != nil {
			conn.Close()
			return fmt.Errorf("natsio: subscribe %s: %w", subject, err)
		}
		b.subs = append(b.subs, sub)
		log.Printf("natsio: subscribed to %s", subject)
	}

	b.publishStatus("online")

	return nil
}

// dispatch decodes one inbound message and hands the typed value to the
// engine. Malformed subjects or payloads are logged and dropped.
func (b *Bridge) dispatch(subject string, payload []byte) {
	deviceID, kind, ok := parseSubject(b.cfg.SubjectPrefix, subject)
	if !ok {
		log.Printf("natsio: invalid subject format: %s", subject)
		return
	}

	switch kind {
	case kindTelemetry:
		var r model.TelemetryReading
		if err := json.Unmarshal(payload, &r); err != nil {
			log.Printf("natsio: bad telemetry payload on %s: %v", subject, err)
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
			log.Printf("natsio: bad ack payload on %s: %v", subject, err)
			return
		}
		b.eng.HandleAck(deviceID, ack)

	default:
		log.Printf("natsio: unknown message kind %q on %s", kind, subject)
	}
}

// SendCommand implements engine.CommandSender.
func (b *Bridge) SendCommand(_ context.Context, deviceID string, cmd model.ControlCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("natsio: marshal command: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.control", b.cfg.SubjectPrefix, deviceID)
	if err := b.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("natsio: publish %s: %w", subject, err)
	}

	return nil
}

// Disconnect announces the server offline, drains the subscriptions and
// closes the connection.
func (b *Bridge) Disconnect() {
	if b.conn == nil {
		return
	}
	b.publishStatus("offline")
	if err := b.conn.Drain(); err != nil {
		log.Printf("natsio: drain: %v", err)
		b.conn.Close()
	}
	log.Printf("natsio: disconnected")
}

func (b *Bridge) publishStatus(status string) {
	payload, _ := json.Marshal(statusPayload{Status: status, Timestamp: time.Now().UnixMilli()})
	if err := b.conn.Publish(b.cfg.SubjectPrefix+".server.status", payload); err != nil {
		log.Printf("natsio: publish server status: %v", err)
	}
}

// parseSubject extracts the device id and message kind from
// <prefix>.<deviceId>.<kind>.
func parseSubject(prefix, subject string) (deviceID, kind string, ok bool) {
	rest, found := strings.CutPrefix(subject, prefix+".")
	if !found {
		return "", "", false
	}

	parts := strings.Split(rest, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	return parts[0], parts[1], true
}
