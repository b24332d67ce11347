package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/deyectl/deyectl/internal/adapter/actor"
	"github.com/deyectl/deyectl/internal/adapter/deye"
	"github.com/deyectl/deyectl/internal/adapter/forecastsolar"
	"github.com/deyectl/deyectl/internal/adapter/openmeteo"
	"github.com/deyectl/deyectl/internal/config"
	"github.com/deyectl/deyectl/internal/core/actor"
	"github.com/deyectl/deyectl/internal/core/port"
	"github.com/deyectl/deyectl/internal/server"
	"github.com/deyectl/deyectl/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	logger.Info("deyectl starting", zap.String("version", versioninfo.Short()))

	// runtime-editable settings
	store := config.NewStore(cfg.SettingsFile)
	if err := store.Load(); err != nil {
		logger.Error("could not load settings file, using defaults", zap.Error(err))
	}

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	gateway, err := inverterGateway(cfg, logger)
	if err != nil {
		panic(err)
	}

	weather := openmeteo.NewClient(logger)
	solar := forecastsolar.NewClient(cfg.Solar.Declination, cfg.Solar.Azimuth, logger)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, store, func() *adactor.GatewayActor {
			return adactor.NewGatewayActor(gateway, logger)
		}, func() *actor.ForecastActor {
			return actor.NewForecastActor(store, weather, solar, logger)
		}, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid, store, weather)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => DEYECTL_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("DEYECTL_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("deyectl")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if cfg.MQTT.Enabled() {
		// check and fix base topic
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func inverterGateway(cfg *config.Config, logger *zap.Logger) (port.InverterGateway, error) {
	switch cfg.Inverter.Transport {
	case config.TransportCloud:
		return deye.NewCloudGateway(cfg.Inverter, logger), nil
	case config.TransportModbus:
		return deye.NewLocalGateway(cfg.Inverter, logger)
	default:
		return nil, fmt.Errorf("unknown inverter transport %q", cfg.Inverter.Transport)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		if !cfg.MQTT.Enabled() {
			return adactor.NewTestMQTTActor(cfg, logger)
		}
		return adactor.NewMQTTActor(cfg, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("inverter.transport", "cloud")
	viper.SetDefault("inverter.api_base_url", "https://eu1-developer.deyecloud.com")
	viper.SetDefault("inverter.modbus_port", 502)
	viper.SetDefault("inverter.modbus_id", 1)
	viper.SetDefault("mqtt.base_topic", "deyectl")
	viper.SetDefault("scheduler.interval_seconds", 30)
	viper.SetDefault("scheduler.settle_delay_seconds", 30)
	viper.SetDefault("scheduler.auto_start", true)
	viper.SetDefault("solar.declination", 30)
	viper.SetDefault("solar.azimuth", 0)
	viper.SetDefault("settings_file", "deyectl_settings.json")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Inverter.AppSecret = "*redacted*"
	cfg.Inverter.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
