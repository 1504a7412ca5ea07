package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/eviqo/mqtt-bridge/internal/bridge"
	"github.com/eviqo/mqtt-bridge/internal/discovery"
	"github.com/eviqo/mqtt-bridge/internal/infrastructure/config"
	"github.com/eviqo/mqtt-bridge/internal/infrastructure/httpfetch"
	"github.com/eviqo/mqtt-bridge/internal/infrastructure/logging"
	"github.com/eviqo/mqtt-bridge/internal/infrastructure/mqtt"
	"github.com/eviqo/mqtt-bridge/internal/protocol"
	"github.com/eviqo/mqtt-bridge/internal/registry"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		showVersion     = flag.Bool("version", false, "print version information and exit")
		debug           = flag.Bool("debug", false, "enable debug logging, overriding EVIQO_LOG_LEVEL")
		removeDiscovery = flag.Bool("remove-discovery", false, "retract published Home Assistant discovery documents and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("eviqo-mqtt-bridge %s (%s) built %s\n", version, commit, date)
		return
	}

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, JSON: true, Output: "stdout"})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *removeDiscovery {
		if err := runRemoveDiscovery(ctx, cfg, logger); err != nil {
			logger.Error("remove-discovery failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bridge exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	mqttClient, err := connectMQTT(cfg, logger)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	b, err := bridge.New(bridge.Options{
		Email:               cfg.Email,
		Password:            cfg.Password,
		CookieFetcher:       httpfetch.New(0),
		MQTT:                mqttClient,
		TopicPrefix:         cfg.TopicPrefix,
		DiscoveryPrefix:     cfg.DiscoveryPrefix,
		HandshakeTimeout:    0,
		PollInterval:        cfg.PollInterval,
		WSReconnectInterval: cfg.WSReconnectInterval,
		Logger:              logger,
	})
	if err != nil {
		return fmt.Errorf("bridge configuration: %w", err)
	}

	return b.Run(ctx)
}

// runRemoveDiscovery connects just long enough to enumerate devices and
// their pages, then retracts every discovery topic this bridge could
// ever have published for them, per spec.md §4.4's teardown tooling.
func runRemoveDiscovery(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	mqttClient, err := connectMQTT(cfg, logger)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer mqttClient.Close()

	session, devices, err := protocol.Connect(ctx, protocol.Options{
		Email:         cfg.Email,
		Password:      cfg.Password,
		CookieFetcher: httpfetch.New(0),
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("session connect: %w", err)
	}
	defer session.Close()

	topics := discovery.Topics{TopicPrefix: cfg.TopicPrefix, DiscoveryPrefix: cfg.DiscoveryPrefix}
	publisher := discovery.NewPublisher(mqttClient, topics, logger)

	var errs []error
	for _, device := range devices {
		deviceID := string(device.DeviceID)
		page, err := session.FetchDevicePage(ctx, deviceID)
		if err != nil {
			errs = append(errs, fmt.Errorf("device %s: fetch page: %w", deviceID, err))
			continue
		}
		reg := registry.Build(page, logger)
		if err := publisher.RemoveDevice(deviceID, reg); err != nil {
			errs = append(errs, fmt.Errorf("device %s: remove discovery: %w", deviceID, err))
			continue
		}
		logger.Info("removed discovery documents", "deviceId", deviceID)
	}
	return errors.Join(errs...)
}

func connectMQTT(cfg *config.Config, logger *logging.Logger) (*mqtt.Client, error) {
	clientID := "eviqo-mqtt-bridge-" + uuid.NewString()
	client, err := mqtt.Connect(mqtt.Options{
		URL:               cfg.MQTTURL,
		ClientID:          clientID,
		AvailabilityTopic: cfg.TopicPrefix + "/bridge/status",
		OnlinePayload:     []byte("online"),
		OfflinePayload:    []byte("offline"),
		AvailabilityQoS:   1,
	})
	if err != nil {
		return nil, err
	}
	client.SetLogger(logger)
	return client, nil
}
