// Package main runs the IoT telemetry dashboard server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iotlab/sensorhub"
	"github.com/iotlab/sensorhub/engine"
	"github.com/iotlab/sensorhub/httpapi"
	"github.com/iotlab/sensorhub/obs"
	"github.com/iotlab/sensorhub/simulator"
	"github.com/iotlab/sensorhub/transport/mqtt"
	"github.com/iotlab/sensorhub/transport/natsio"
	"github.com/iotlab/sensorhub/transport/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML/JSON config file (optional)")
	flag.Parse()

	if err := run(configPath); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Observability is opt-in; without it the engine's meters are no-ops.
	providers, err := obs.Setup(ctx, cfg.Telemetry)
	if err != nil && !errors.Is(err, obs.ErrDisabled) {
		return fmt.Errorf("telemetry setup: %w", err)
	}
	if providers != nil {
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				log.Printf("telemetry shutdown: %v", err)
			}
		}()
	}

	eng := engine.New(cfg.Engine.ToEngine())
	hub := ws.NewHub(eng)
	eng.SetEvents(hub)
	go hub.Run()
	defer hub.Stop()

	monitor := engine.NewMonitor(eng)
	monitor.Start()
	defer monitor.Stop()

	if cfg.MQTT.IsEnabled() {
		bridge := mqtt.NewBridge(eng, mqtt.Config{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		})
		if err := bridge.Connect(ctx); err != nil {
			// Keep serving: the dashboard and simulator work without a broker
			log.Printf("mqtt bridge unavailable: %v", err)
		} else {
			eng.RegisterCommandSender(bridge)
			defer bridge.Disconnect()
		}
	}

	if cfg.NATS.IsEnabled() {
		bridge := natsio.NewBridge(eng, natsio.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		})
		if err := bridge.Connect(ctx); err != nil {
			log.Printf("nats bridge unavailable: %v", err)
		} else {
			eng.RegisterCommandSender(bridge)
			defer bridge.Disconnect()
		}
	}

	if cfg.Simulator.IsEnabled() {
		fleet := simulator.NewFleet(eng, simulator.WithInterval(cfg.Simulator.Interval))
		eng.RegisterCommandSender(fleet)
		fleet.Start()
		defer fleet.Stop()
		log.Printf("simulator started: %v", fleet.DeviceIDs())
	}

	api := httpapi.New(eng, httpapi.Config{CORSOrigin: cfg.Server.CORSOrigin},
		httpapi.WithWebSocket(hub))

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("http server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	return srv.Shutdown(shutdownCtx)
}

func loadConfig(path string) (*sensorhub.Config, error) {
	if path != "" {
		return sensorhub.LoadConfig(path)
	}

	return sensorhub.LoadEnvConfig()
}
