package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/fitlink/internal/device"
	"github.com/srg/fitlink/internal/device/goble"
	"github.com/srg/fitlink/internal/device/simulated"
	"github.com/srg/fitlink/internal/groutine"
	"github.com/srg/fitlink/internal/planapi"
	"github.com/srg/fitlink/internal/publish"
	"github.com/srg/fitlink/internal/telemetry"
	"github.com/srg/fitlink/pkg/config"
)

const simulatedTickInterval = time.Second

// runtime wires a coordinator from the config.
type runtime struct {
	coord     *telemetry.Coordinator
	publisher *publish.Publisher
	tracker   *simulated.Peripheral
	cancel    context.CancelFunc
	logger    *logrus.Logger
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *logrus.Logger, sinks ...telemetry.Sink) (*runtime, error) {
	ctx, cancel := context.WithCancel(ctx)
	rt := &runtime{cancel: cancel, logger: logger}

	provider, err := rt.provider(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}

	if cfg.MQTT.Enabled {
		pub, err := newPublisher(ctx, cfg, logger)
		if err != nil {
			cancel()
			return nil, err
		}
		rt.publisher = pub
		sinks = append(sinks, pub)
	}

	coord, err := telemetry.New(telemetry.Options{
		Provider: provider,
		Plans: planapi.New(planapi.Options{
			BaseURL: cfg.Plan.BaseURL,
			Token:   cfg.Plan.Token,
			Timeout: cfg.Plan.Timeout,
			Logger:  logger,
		}),
		Profile:  cfg.Profile,
		Selector: cfg.Bluetooth.Selector,
		Sinks:    sinks,
		Logger:   logger,
		Session:  cfg.SessionOptions(),
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.coord = coord
	return rt, nil
}

func (rt *runtime) provider(ctx context.Context, cfg *config.Config) (device.CentralProvider, error) {
	if !cfg.Simulate {
		return goble.Provider(rt.logger), nil
	}

	service, characteristic, err := cfg.Bluetooth.Selector.Normalized()
	if err != nil {
		return nil, err
	}
	tcfg := simulated.TrackerConfig{
		StepService:        service,
		StepCharacteristic: characteristic,
		Seed:               time.Now().UnixNano(),
	}
	rt.tracker = simulated.NewTracker(tcfg)
	groutine.Go(ctx, "simulated-tracker-feed", func(ctx context.Context) {
		simulated.Feed(ctx, rt.tracker, tcfg, simulatedTickInterval, rt.logger)
	})
	rt.logger.WithField("device", rt.tracker.Name()).Info("Using simulated tracker")
	return simulated.NewCentral(rt.tracker).Provider(), nil
}

func newPublisher(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*publish.Publisher, error) {
	enc, err := publish.ParseEncoding(cfg.MQTT.Encoding)
	if err != nil {
		return nil, err
	}
	client, err := publish.Connect(publish.BrokerConfig{
		URL:      cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}
	return publish.New(ctx, client, publish.Options{
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Encoding:    enc,
		QoS:         byte(cfg.MQTT.QoS),
		Logger:      logger,
	}), nil
}

// Close disconnects the device, flushes the publisher and stops the
// simulated feed.
func (rt *runtime) Close() {
	if rt.coord != nil {
		if err := rt.coord.Close(); err != nil {
			rt.logger.WithField("error", err).Warn("Disconnect reported errors")
		}
	}
	if rt.publisher != nil {
		rt.publisher.Close()
	}
	rt.cancel()
}
