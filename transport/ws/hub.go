package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/iotlab/sensorhub/engine"
	"github.com/iotlab/sensorhub/model"
)

const broadcastBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard clients connect from a different origin in development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub maintains the set of active clients and fans engine events out to them.
// It implements engine.Events; the event methods never block because the
// broadcast channel is buffered and drops on overflow.
type Hub struct {
	eng *engine.Engine

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a Hub bound to the engine. Call Run to start the fan-out
// loop and register the hub as the engine's event sink.
func NewHub(eng *engine.Engine) *Hub {
	return &Hub{
		eng:        eng,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("ws: client connected: %s", client.conn.RemoteAddr())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("ws: client disconnected: %s", client.conn.RemoteAddr())
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client, drop it rather than stall the loop
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends the fan-out loop and closes all client connections.
// Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ServeHTTP upgrades the connection and starts the client's pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	// Mirror the dashboard handshake: push the device list unprompted
	client.sendMessage(TypeDeviceList, "", h.eng.ListDevices())
}

// TelemetryReceived implements engine.Events.
func (h *Hub) TelemetryReceived(r model.TelemetryReading) {
	h.publish(TypeTelemetry, r.DeviceID, r)
}

// DeviceStatusChanged implements engine.Events.
func (h *Hub) DeviceStatusChanged(d model.Device) {
	h.publish(TypeStatus, d.ID, d)
}

// AlertRaised implements engine.Events.
func (h *Hub) AlertRaised(a model.Alert) {
	h.publish(TypeAlert, a.DeviceID, a)
}

func (h *Hub) publish(msgType, deviceID string, data any) {
	raw, err := json.Marshal(outMessage{Type: msgType, DeviceID: deviceID, Data: data})
	if err != nil {
		log.Printf("ws: marshal %s: %v", msgType, err)
		return
	}

	select {
	case h.broadcast <- raw:
	default:
		log.Printf("ws: broadcast buffer full, dropping %s", msgType)
	}
}

// handleMessage dispatches one inbound client message. Malformed payloads
// are logged and dropped.
func (h *Hub) handleMessage(c *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("ws: malformed message from %s: %v", c.conn.RemoteAddr(), err)
		return
	}

	switch msg.Type {
	case TypeGetDevices:
		c.sendMessage(TypeDeviceList, "", h.eng.ListDevices())

	case TypeControl:
		var p controlPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || msg.DeviceID == "" {
			log.Printf("ws: bad control message from %s", c.conn.RemoteAddr())
			return
		}
		if _, err := h.eng.SendCommand(context.Background(), msg.DeviceID, model.Command(p.Command)); err != nil {
			log.Printf("ws: control %s for %s: %v", p.Command, msg.DeviceID, err)
		}

	case TypeTelemetry:
		var r model.TelemetryReading
		if err := json.Unmarshal(msg.Data, &r); err != nil || r.DeviceID == "" {
			log.Printf("ws: bad telemetry message from %s", c.conn.RemoteAddr())
			return
		}
		h.eng.IngestTelemetry(r)

	case TypeAck:
		var ack model.AckResponse
		if err := json.Unmarshal(msg.Data, &ack); err != nil || msg.DeviceID == "" {
			log.Printf("ws: bad ack message from %s", c.conn.RemoteAddr())
			return
		}
		h.eng.HandleAck(msg.DeviceID, ack)

	default:
		log.Printf("ws: unknown message type %q from %s", msg.Type, c.conn.RemoteAddr())
	}
}
