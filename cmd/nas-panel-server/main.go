// Command nas-panel-server runs the telemetry daemon: an embedded MQTT
// 3.1.1 broker (or a forwarder to a foreign broker), a fixed-interval
// probe scheduler, and the wiring between them. Grounded on
// _examples/hlindberg-mezquit's cobra root-command layout, adapted to
// this daemon's config/test/generate-config flag set (spec.md §6).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nas-panel/panel-server/internal/applog"
	"github.com/nas-panel/panel-server/internal/broker"
	"github.com/nas-panel/panel-server/internal/config"
	"github.com/nas-panel/panel-server/internal/externalbroker"
	"github.com/nas-panel/panel-server/internal/probe"
	"github.com/nas-panel/panel-server/internal/schedule"
)

var (
	configPath   string
	testOnce     bool
	verbose      bool
	generatePath string
)

var rootCmd = &cobra.Command{
	Use:   "nas-panel-server",
	Short: "Telemetry daemon with an embedded MQTT broker",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")
	flags.BoolVar(&testOnce, "test", false, "run a single collection cycle, print the document, and exit without starting the broker")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	flags.StringVar(&generatePath, "generate-config", "", "write a default configuration to the given path and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := applog.NewVerbose(verbose)

	if generatePath != "" {
		if err := config.GenerateDefault(generatePath); err != nil {
			log.Error("failed to generate configuration", "error", err)
			return err
		}
		log.Info("wrote default configuration", "path", generatePath)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		return err
	}

	system := probe.NewSystem(cfg.Server.Hostname, cfg.Server.IP)

	if testOnce {
		return runTestCycle(log, system, cfg)
	}

	return runDaemon(log, system, cfg)
}

func runTestCycle(log *applog.Logger, system *probe.System, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	doc, err := system.Collect(ctx)
	if err != nil {
		log.Error("collection failed", "error", err)
		return err
	}
	doc.Custom = probe.CollectCustom(ctx, cfg.Probes())

	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func runDaemon(log *applog.Logger, system *probe.System, cfg *config.Config) error {
	var pub schedule.Publisher

	var embedded *broker.Broker
	var external *externalbroker.Client

	switch cfg.MQTT.Type {
	case config.MQTTTypeExternal:
		external = externalbroker.New(externalbroker.Config{
			Host:      cfg.MQTT.Host,
			Port:      cfg.MQTT.Port,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			KeepAlive: time.Duration(cfg.MQTT.KeepAlive) * time.Second,
		}, log)
		if err := external.Connect(); err != nil {
			log.Error("failed to connect to external broker", "error", err)
			return err
		}
		pub = external
	default:
		embedded = broker.New(broker.Config{Address: fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port)}, log)
		if err := embedded.Start(); err != nil {
			log.Error("failed to start broker", "error", err)
			return err
		}
		pub = embedded
	}

	sched := schedule.New(schedule.Config{
		Interval: time.Duration(cfg.Collection.Interval * float64(time.Second)),
		Topic:    cfg.MQTT.Topic,
		QoS:      byte(cfg.MQTT.QoS),
	}, log, system, cfg.Probes(), pub)
	sched.Start()

	log.Info("nas-panel-server started", "mqtt_type", cfg.MQTT.Type, "interval", cfg.Collection.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	sched.Stop()
	if embedded != nil {
		_ = embedded.Stop()
	}
	if external != nil {
		external.Disconnect(250 * time.Millisecond)
	}
	return nil
}
