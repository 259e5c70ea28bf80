// aircloudd - resilient device-shadow client daemon
//
// aircloudd maintains a session against the vendor cloud's MQTT-over-WebSocket
// shadow broker, tracks the configured purifiers, and exposes the canonical
// device state over a local REST API and WebSocket event stream.
//
// The daemon survives credential expiry, connection loss, and broker outages
// without operator intervention; callers only ever see the local API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rowanhart/aircloud/internal/api"
	"github.com/rowanhart/aircloud/internal/infrastructure/config"
	"github.com/rowanhart/aircloud/internal/infrastructure/logging"
	"github.com/rowanhart/aircloud/internal/infrastructure/mqtt"
	"github.com/rowanhart/aircloud/internal/shadow"
	"github.com/rowanhart/aircloud/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting aircloudd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to InfluxDB (optional)
	var recorder *telemetry.Recorder
	if cfg.InfluxDB.Enabled {
		recorder, err = telemetry.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := recorder.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		recorder.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create the shadow session. The dialer adapter turns each set of
	// presigned credentials into one single-shot MQTT connection.
	session := shadow.NewSession(shadow.Config{
		Supplier: shadow.NewHTTPSupplier(cfg.Cloud.CredentialsURL, cfg.Cloud.AuthToken),
		Dialer:   &mqttDialer{log: log.Component("mqtt")},
		Logger:   log.Component("shadow"),

		ConnectTimeout:        cfg.GetConnectTimeout(),
		RequestTimeout:        cfg.GetRequestTimeout(),
		ReconnectInitialDelay: cfg.GetReconnectInitialDelay(),
		ReconnectMaxDelay:     cfg.GetReconnectMaxDelay(),
		BreakerThreshold:      cfg.Session.BreakerThreshold,
		BreakerCoolDown:       cfg.GetBreakerCoolDown(),
		CredentialRotation:    cfg.GetCredentialRotation(),

		SuppressGetStateEvents: !cfg.Session.SurfaceGetResponsesEnabled(),
		EventBuffer:            cfg.Session.EventBuffer,
	})

	// Register demand before connecting so the first connection subscribes
	// the authorized device immediately.
	for _, dev := range cfg.Devices {
		if subErr := session.SubscribeDevice(dev.ID); subErr != nil {
			return fmt.Errorf("subscribing device %s: %w", dev.ID, subErr)
		}
	}

	// WebSocket hub is created here rather than inside the API server so the
	// event drain can broadcast on it.
	hub := api.NewHub(cfg.WebSocket, log.Component("api"))
	go hub.Run(ctx)

	// Drain session events: log, broadcast, record telemetry.
	go drainEvents(ctx, session, hub, recorder, log)

	// First connect. Failure is not fatal: with device demand registered the
	// session keeps retrying on its backoff schedule, and the local API stays
	// up to report state in the meantime.
	if connErr := session.Connect(ctx); connErr != nil {
		log.Warn("initial connect failed, session will retry", "error", connErr)
	}
	defer func() {
		log.Info("disconnecting shadow session")
		session.Disconnect()
	}()

	// Start the local API
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.Component("api"),
		Session:     session,
		Devices:     cfg.Devices,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Shadow session
	// 3. InfluxDB (if enabled)

	log.Info("aircloudd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AIRCLOUD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AIRCLOUD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// drainEvents consumes the session's event channel until shutdown, fanning
// each event out to the log, the WebSocket hub, and the telemetry recorder.
//
// The session drops events rather than blocking when this drain falls
// behind, so nothing here may wait on slow consumers; hub broadcasts and
// telemetry writes are both non-blocking.
func drainEvents(ctx context.Context, session *shadow.Session, hub *api.Hub, recorder *telemetry.Recorder, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			handleEvent(ev, hub, recorder, log)
		}
	}
}

// handleEvent dispatches a single session event.
func handleEvent(ev shadow.Event, hub *api.Hub, recorder *telemetry.Recorder, log *logging.Logger) {
	switch ev.Type {
	case shadow.EventConnected:
		log.Info("shadow session connected")
		hub.Broadcast(api.ChannelSessionConnected, map[string]any{
			"time": ev.Time,
		})

	case shadow.EventDisconnected:
		if ev.Err != nil {
			log.Warn("shadow session disconnected", "error", ev.Err)
		} else {
			log.Info("shadow session disconnected")
		}
		payload := map[string]any{"time": ev.Time}
		if ev.Err != nil {
			payload["error"] = ev.Err.Error()
		}
		hub.Broadcast(api.ChannelSessionDisconnected, payload)

	case shadow.EventStateChanged:
		if ev.Status == nil {
			return
		}
		log.Debug("device state changed", "device_id", ev.DeviceID)
		hub.Broadcast(api.ChannelStateChanged, map[string]any{
			"device_id": ev.DeviceID,
			"status":    ev.Status,
			"time":      ev.Time,
		})
		if recorder != nil {
			recorder.RecordStatus(ev.DeviceID, *ev.Status)
		}

	case shadow.EventError:
		log.Error("shadow session error", "error", ev.Err)
		payload := map[string]any{"time": ev.Time}
		if ev.Err != nil {
			payload["error"] = ev.Err.Error()
		}
		hub.Broadcast(api.ChannelSessionError, payload)
	}
}

// mqttDialer adapts the infrastructure MQTT package to the shadow session's
// Dialer interface. Each Dial consumes one set of presigned credentials; the
// returned connection never reconnects on its own.
type mqttDialer struct {
	log *logging.Logger
}

// Dial implements shadow.Dialer.
func (d *mqttDialer) Dial(ctx context.Context, creds shadow.Credentials, opts shadow.DialOptions) (shadow.Conn, error) {
	return mqtt.Dial(ctx, mqtt.Options{
		BrokerURL:        creds.BrokerURL,
		ClientID:         creds.ClientID,
		ConnectTimeout:   opts.ConnectTimeout,
		OnMessage:        opts.OnMessage,
		OnConnectionLost: opts.OnLost,
		Logger:           d.log,
	})
}
