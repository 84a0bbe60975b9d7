// Command land-detector reads vehicle telemetry over MAVLink, decides whether
// the multicopter is flying, landed or in free-fall, and reports the result
// over MQTT, MAVLink, status LEDs and HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/redis/go-redis/v9"

	"github.com/sweeney/land-detector/internal/detector"
	"github.com/sweeney/land-detector/internal/gpio"
	"github.com/sweeney/land-detector/internal/mavlink"
	"github.com/sweeney/land-detector/internal/mqtt"
	"github.com/sweeney/land-detector/internal/multicopter"
	"github.com/sweeney/land-detector/internal/params"
	"github.com/sweeney/land-detector/internal/status"
	"github.com/sweeney/land-detector/internal/telemetry"
	"github.com/sweeney/land-detector/internal/web"
)

// MAVLink identity of this process when writing to the vehicle
const (
	outSystemID    = 1
	outComponentID = 196
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "land-detector: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paramStore, paramSource, err := openParams(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Print params mode
	if cfg.PrintParams {
		b, err := params.Marshal(paramStore.Snapshot())
		if err != nil {
			return fmt.Errorf("encode parameters: %w", err)
		}
		os.Stdout.Write(b)
		return nil
	}
	go paramStore.Run(ctx, cfg.ParamRefresh)

	gate, _ := parseGate(cfg.Gate)
	clock := telemetry.NewClock()
	inputs := telemetry.NewStore()

	var publishers detector.Publishers

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(cfg.Broker, cfg.ClientID, logger)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()
	publishers = append(publishers, publisher)

	// Initialize MAVLink
	if cfg.MAVLink != "" {
		endpoint, err := parseEndpoint(cfg.MAVLink)
		if err != nil {
			return err
		}
		node, err := gomavlib.NewNode(gomavlib.NodeConf{
			Endpoints:      []gomavlib.EndpointConf{endpoint},
			Dialect:        common.Dialect,
			OutVersion:     gomavlib.V2,
			OutSystemID:    outSystemID,
			OutComponentID: outComponentID,
		})
		if err != nil {
			return fmt.Errorf("init mavlink: %w", err)
		}
		defer node.Close()

		receiver := mavlink.NewReceiver(node.Events(), inputs, clock.NowUs, uint8(cfg.SystemID), uint8(cfg.AutopilotComponent), logger)
		go receiver.Run(ctx)
		publishers = append(publishers, mavlink.NewReporter(node))
	} else {
		logger.Warn("mavlink disabled, detector will see no telemetry")
	}

	// Initialize LEDs
	var indicator gpio.Indicator
	if cfg.LEDChip != "" {
		leds, err := gpio.NewRealIndicator(cfg.LEDChip, cfg.LEDLanded, cfg.LEDFreefall)
		if err != nil {
			logger.Warn("status LEDs unavailable", "error", err)
		} else {
			defer leds.Close()
			indicator = leds
		}
	}

	engineCfg := detector.DefaultConfig()
	engineCfg.PublishInterval = cfg.PublishInterval
	engineCfg.Gate = gate
	engine := detector.New(multicopter.New(), inputs, paramStore, publishers, engineCfg, logger)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:            cfg.Tick.Milliseconds(),
		PublishIntervalMs: cfg.PublishInterval.Milliseconds(),
		HeartbeatMs:       cfg.Heartbeat.Milliseconds(),
		MAVLink:           cfg.MAVLink,
		Broker:            cfg.Broker,
		ParamSource:       paramSource,
		HTTPAddr:          cfg.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Warn("failed to publish startup event", "error", err)
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTPAddr)
	}

	logger.Info("started",
		"session", snap.SessionID,
		"tick", cfg.Tick,
		"mavlink", cfg.MAVLink,
		"broker", cfg.Broker,
		"params", paramSource,
		"heartbeat", cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(engine, publisher, publisher, indicator, tracker, cfg.Heartbeat, clock, time.Now, ticker.C, sigCh, logger)
}

// openParams builds the parameter store from the configured source and
// loads it once. A file that cannot be read is fatal; an unreachable redis
// is not, the defaults stay in use until it answers.
func openParams(ctx context.Context, cfg config, logger *slog.Logger) (*params.Store, string, error) {
	switch {
	case cfg.ParamsFile != "":
		store := params.NewStore(params.Default(), params.FileSource{Path: cfg.ParamsFile}, logger)
		if err := store.Refresh(ctx); err != nil {
			return nil, "", fmt.Errorf("load %s: %w", cfg.ParamsFile, err)
		}
		return store, "file:" + cfg.ParamsFile, nil

	case cfg.Redis != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis})
		store := params.NewStore(params.Default(), params.NewRedisSource(client, cfg.RedisKey), logger)
		if err := store.Refresh(ctx); err != nil {
			logger.Warn("redis parameters unavailable, using defaults", "addr", cfg.Redis, "error", err)
		}
		return store, "redis:" + cfg.Redis + "/" + cfg.RedisKey, nil

	default:
		return params.NewStore(params.Default(), nil, logger), "defaults", nil
	}
}

// syncSystemPublisher is implemented by publishers that can wait for
// delivery; used for the final SHUTDOWN event.
type syncSystemPublisher interface {
	PublishSystemSync(event mqtt.SystemEvent, timeout time.Duration) error
}

const shutdownPublishTimeout = 2 * time.Second

func runLoop(engine *detector.Engine, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, indicator gpio.Indicator, tracker *status.Tracker, heartbeat time.Duration, clock telemetry.Clock, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, logger *slog.Logger) error {
	var lastHeartbeat time.Time
	var shownState detector.State
	indicatorOK := true

	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s.String())
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			var err error
			if sp, ok := publisher.(syncSystemPublisher); ok {
				err = sp.PublishSystemSync(event, shutdownPublishTimeout)
			} else {
				err = publisher.PublishSystem(event)
			}
			if err != nil {
				logger.Warn("failed to publish shutdown event", "error", err)
			} else {
				logger.Info("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			if lastHeartbeat.IsZero() {
				lastHeartbeat = t
			}
			out := engine.Update(clock.At(t))

			if indicator != nil && (out.State != shownState || !indicatorOK) {
				if err := indicator.Show(out.State); err != nil {
					if indicatorOK {
						logger.Warn("indicator update failed", "error", err)
					}
					indicatorOK = false
				} else {
					indicatorOK = true
					shownState = out.State
				}
			}

			// Update status tracker for HTTP/heartbeat consumers
			if tracker != nil {
				tracker.Update(out, engine.Stats(), engine.Parameters())
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
			}

			// Check for heartbeat
			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				stats := engine.Stats()
				logger.Info("heartbeat",
					"state", out.State.String(),
					"takeoffs", stats.Takeoffs,
					"landings", stats.Landings,
					"freefalls", stats.Freefalls,
					"flight_time", stats.FlightTime)

				hbEvent := mqtt.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						tracker.SetNetwork(net)
					}
					hbEvent.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					logger.Warn("heartbeat publish error", "error", err)
				}
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
