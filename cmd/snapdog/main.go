// Command snapdog is the entry point: it loads configuration, builds every
// package, runs the startup orchestrator, and blocks until a termination
// signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/snapdog-io/integration-core/internal/clientstore"
	"github.com/snapdog-io/integration-core/internal/commandbus"
	"github.com/snapdog-io/integration-core/internal/config"
	"github.com/snapdog-io/integration-core/internal/coordinator"
	"github.com/snapdog-io/integration-core/internal/decoder"
	"github.com/snapdog-io/integration-core/internal/domain"
	"github.com/snapdog-io/integration-core/internal/knx"
	"github.com/snapdog-io/integration-core/internal/logging"
	"github.com/snapdog-io/integration-core/internal/mqtt"
	"github.com/snapdog-io/integration-core/internal/publisher"
	"github.com/snapdog-io/integration-core/internal/resilience"
	"github.com/snapdog-io/integration-core/internal/snapcast"
	"github.com/snapdog-io/integration-core/internal/startup"
	"github.com/snapdog-io/integration-core/internal/zonestore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("SNAPDOG_CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment != "Production")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy := resilience.Policy{
		MaxRetries: cfg.Resilience.MaxRetries,
		BaseDelay:  cfg.Resilience.BaseDelay,
		MaxDelay:   cfg.Resilience.MaxDelay,
		UseJitter:  cfg.Resilience.UseJitter,
	}

	zones := make([]domain.Zone, 0, len(cfg.Zones))
	for _, z := range cfg.Zones {
		zones = append(zones, domain.Zone{Index: domain.ZoneIndex(z.Index), Name: z.Name})
	}
	clients := make([]domain.Client, 0, len(cfg.Clients))
	configuredMacs := make(map[domain.ClientIndex]domain.MacAddress, len(cfg.Clients))
	for _, c := range cfg.Clients {
		mac := domain.NormalizeMac(c.Mac)
		clients = append(clients, domain.Client{Index: domain.ClientIndex(c.Index), Name: c.Name, MacAddress: mac})
		if c.Mac != "" {
			configuredMacs[domain.ClientIndex(c.Index)] = mac
		}
	}

	zoneStore := zonestore.New(zones, logger)
	clientStore := clientstore.New(clients, logger)

	repo := snapcast.NewRepository(configuredMacs, logger)

	wsURL := cfg.Snapcast.WebSocketURL
	if wsURL == "" {
		wsURL = fmt.Sprintf("ws://%s:%d/jsonrpc", cfg.Snapcast.Address, cfg.Snapcast.JSONRPCPort)
	}
	rpc := snapcast.NewClient(wsURL, policy, cfg.Resilience.RequestTimeout, logger)
	svc := snapcast.NewService(repo, rpc, clientStore, zoneStore, logger)
	svc.RegisterNotificationHandlers()
	reconciler := snapcast.NewReconciler(svc, zoneStore, logger)

	bus := commandbus.New(zoneStore, clientStore, svc, logger)

	mqttTransport := mqtt.New(cfg.MQTT.BrokerAddress, cfg.MQTT.BrokerPort, cfg.MQTT.ClientID,
		cfg.MQTT.Username, cfg.MQTT.Password, cfg.MQTT.KeepAlive, policy, logger)
	mqttTransport.OnMessage(func(m mqtt.Message) {
		cmd, err := decoder.DecodeMQTTTopic(cfg.MQTT.BaseTopic, m.Topic, m.Payload)
		if err != nil {
			logger.Warn("mqtt command decode failed", zap.String("topic", m.Topic), zap.Error(err))
			return
		}
		if cmd == nil {
			return
		}
		if res := bus.Dispatch(ctx, cmd); !res.IsOk() {
			logger.Warn("mqtt command dispatch failed", zap.String("topic", m.Topic), zap.Error(res.Error()))
		}
	})

	knxBindings := make([]decoder.KNXBinding, 0, len(cfg.KNX.Bindings))
	for _, b := range cfg.KNX.Bindings {
		binding := decoder.KNXBinding{GroupAddress: b.GroupAddress, DPT: b.DPT, Command: b.Command}
		if b.Entity == "client" {
			binding.Entity = domain.EntityClient
			binding.ClientIndex = domain.ClientIndex(b.Index)
		} else {
			binding.Entity = domain.EntityZone
			binding.ZoneIndex = domain.ZoneIndex(b.Index)
		}
		knxBindings = append(knxBindings, binding)
	}
	decoder.RegisterKNXBindings(knxBindings)

	knxStatusBindings := make([]decoder.KNXStatusBinding, 0, len(cfg.KNX.StatusBindings))
	for _, b := range cfg.KNX.StatusBindings {
		binding := decoder.KNXStatusBinding{GroupAddress: b.GroupAddress, DPT: b.DPT, Field: b.Field}
		if b.Entity == "client" {
			binding.Entity = domain.EntityClient
			binding.ClientIndex = domain.ClientIndex(b.Index)
		} else {
			binding.Entity = domain.EntityZone
			binding.ZoneIndex = domain.ZoneIndex(b.Index)
		}
		knxStatusBindings = append(knxStatusBindings, binding)
	}
	decoder.RegisterKNXStatusBindings(knxStatusBindings)

	knxTransport := knx.New(cfg.KNX.Gateway, cfg.KNX.Port, policy, logger)
	knxTransport.OnTelegram(func(t knx.Telegram) {
		cmd, err := decoder.DecodeKNXTelegram(t)
		if err != nil {
			logger.Warn("knx command decode failed", zap.String("groupAddress", t.GroupAddress), zap.Error(err))
			return
		}
		if cmd == nil {
			return
		}
		if res := bus.Dispatch(ctx, cmd); !res.IsOk() {
			logger.Warn("knx command dispatch failed", zap.String("groupAddress", t.GroupAddress), zap.Error(res.Error()))
		}
	})

	mqttPublisher := publisher.NewMQTTPublisher(cfg.MQTT.BaseTopic, true, mqttTransport, policy, logger)
	knxPublisher := publisher.NewKNXPublisher(cfg.KNX.Enabled, knxTransport, policy, logger)

	coord := coordinator.New(zoneStore, clientStore, []coordinator.Publisher{mqttPublisher, knxPublisher}, logger)

	orch := startup.New(logger, cfg.Environment, cfg.RequiredDirectories).
		WithPort("snapcast", cfg.Snapcast.JSONRPCPort).
		WithDependency("snapcast", fmt.Sprintf("%s:%d", cfg.Snapcast.Address, cfg.Snapcast.JSONRPCPort)).
		WithDependency("mqtt", fmt.Sprintf("%s:%d", cfg.MQTT.BrokerAddress, cfg.MQTT.BrokerPort))

	if err := orch.Preflight(ctx); err != nil {
		return fmt.Errorf("startup preflight failed: %w", err)
	}

	integrations := []startup.Integration{
		{
			Name:     "snapcast",
			Critical: true,
			Initialize: func(ctx context.Context) error {
				if err := startup.ExecuteWithRetry(ctx, logger, "snapcast connect", rpc.Connect); err != nil {
					return err
				}
				if res := svc.Initialize(ctx); !res.IsOk() {
					return res.Error()
				}
				return nil
			},
		},
		{
			Name:     "mqtt",
			Critical: true,
			Initialize: func(ctx context.Context) error {
				return startup.ExecuteWithRetry(ctx, logger, "mqtt connect", mqttTransport.Connect)
			},
		},
		{
			Name:     "knx",
			Critical: false,
			Initialize: func(ctx context.Context) error {
				if !cfg.KNX.Enabled {
					return nil
				}
				return startup.ExecuteWithRetry(ctx, logger, "knx connect", knxTransport.Connect)
			},
		},
	}

	outcome, err := orch.BringUp(ctx, integrations)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	if outcome.Degraded {
		logger.Warn("starting in degraded mode", zap.Strings("disabled", outcome.Disabled))
	}

	if err := reconciler.Start(ctx); err != nil {
		return fmt.Errorf("start reconciler: %w", err)
	}
	defer reconciler.Stop()

	coord.Start(ctx)
	defer coord.Stop()

	mqttPublisher.Start(ctx)
	defer mqttPublisher.Stop()
	knxPublisher.Start(ctx)
	defer knxPublisher.Stop()

	if err := orch.PublishInitialState(ctx, func(ctx context.Context) error {
		for _, z := range zoneStore.All() {
			if err := mqttPublisher.PublishZoneState(ctx, z); err != nil {
				logger.Warn("initial zone publish failed", zap.Int("zone", int(z.Index)), zap.Error(err))
			}
		}
		for _, c := range clientStore.All() {
			if err := mqttPublisher.PublishClientState(ctx, c); err != nil {
				logger.Warn("initial client publish failed", zap.Int("client", int(c.Index)), zap.Error(err))
			}
		}
		return mqttPublisher.PublishSystemStatus(ctx, "online")
	}); err != nil {
		logger.Warn("initial state publish failed", zap.Error(err))
	}

	subscribeFilters := map[string]mqtt.QoS{cfg.MQTT.BaseTopic + "/#": mqtt.QoSAtLeastOnce}
	if err := mqttTransport.Subscribe(ctx, subscribeFilters); err != nil {
		logger.Warn("mqtt subscribe failed", zap.Error(err))
	}

	logger.Info("snapdog started", zap.Strings("connected", outcome.Connected))

	<-ctx.Done()
	logger.Info("shutdown signal received")

	_, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mqttTransport.Close()
	if err := knxTransport.Close(); err != nil {
		logger.Warn("knx transport close failed", zap.Error(err))
	}
	if err := rpc.Close(); err != nil {
		logger.Warn("snapcast rpc close failed", zap.Error(err))
	}

	return nil
}
