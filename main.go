package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/vwireiot/vwire-go/adapters"
	"github.com/vwireiot/vwire-go/application"
)

var Flags = []cli.Flag{
	FlagLogLevel,
	FlagLogWriter,
	FlagConfig,
	FlagAuthToken,
	FlagDeviceID,
	FlagServer,
	FlagPort,
	FlagTransport,
	FlagInsecureSkipVerify,
	FlagCACert,
	FlagReconnectInterval,
	FlagMaxReconnectAttempts,
	FlagConnectTimeout,
}

func main() {
	var logger zerolog.Logger

	app := cli.App{
		Name:    "vwire-client",
		Version: "v0.1.0",
		Flags:   Flags,
		Before: func(ctx *cli.Context) error {
			var logWriter io.Writer
			if ctx.String(FlagLogWriter.Name) == "console" {
				logWriter = zerolog.ConsoleWriter{
					Out:        os.Stderr,
					TimeFormat: time.RFC3339Nano,
				}
			} else if ctx.String(FlagLogWriter.Name) == "json" {
				logWriter = os.Stderr
			}

			logger = zerolog.New(logWriter).With().Timestamp().
				Str("service", "vwire-client").
				Str("module", "main").
				Logger()

			level, err := zerolog.ParseLevel(ctx.String(FlagLogLevel.Name))
			if err != nil {
				return err
			}

			zerolog.SetGlobalLevel(level)

			return nil
		},
		Action: func(ctx *cli.Context) error {
			logger.Info().Msg("client starting...")

			appCtx, cancel := context.WithCancel(logger.WithContext(context.Background()))
			go func() {
				c := make(chan os.Signal, 1)
				signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

				<-c

				logger.Warn().Msg("interrupt signal received")
				cancel()
			}()

			cfg, err := buildConfig(ctx)
			if err != nil {
				return err
			}
			if cfg.Debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			logger.Info().Stringer("config", cfg).Msg("configuration loaded")

			mqttClient, err := adapters.NewMQTTClient(adapters.MQTTClientParams{
				AuthToken: ctx.String(FlagAuthToken.Name),
				DeviceID:  ctx.String(FlagDeviceID.Name),
				Config:    cfg,
				Log:       logger.With().Str("module", "mqtt-client").Logger(),
			})
			if err != nil {
				return err
			}

			session, err := application.NewDeviceSession(application.DeviceSessionParams{
				AuthToken:  ctx.String(FlagAuthToken.Name),
				DeviceID:   ctx.String(FlagDeviceID.Name),
				Config:     cfg,
				MQTTClient: mqttClient,
				Log:        logger.With().Str("module", "device-session").Logger(),
			})
			if err != nil {
				return err
			}

			connectTimeout := time.Duration(ctx.Int(FlagConnectTimeout.Name)) * time.Second
			if err := session.Connect(connectTimeout); err != nil {
				// Run keeps retrying on the reconnect interval.
				logger.Warn().Err(err).Msg("initial connect failed")
			}

			logger.Info().Msg("client started")
			err = session.Run(appCtx)
			if err != nil {
				return err
			}

			logger.Info().Msg("client terminating...")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Err(err).Msg("client terminated")
	}
}

func buildConfig(ctx *cli.Context) (application.Config, error) {
	cfg := application.DefaultConfig()

	if path := ctx.String(FlagConfig.Name); path != "" {
		loaded, err := application.LoadConfig(path)
		if err != nil {
			return application.Config{}, err
		}
		cfg = loaded
	}

	if ctx.IsSet(FlagServer.Name) {
		cfg.Server = ctx.String(FlagServer.Name)
	}
	if ctx.IsSet(FlagPort.Name) {
		cfg.Port = ctx.Int(FlagPort.Name)
	}
	if ctx.IsSet(FlagTransport.Name) {
		transport, err := application.ParseTransportMode(ctx.String(FlagTransport.Name))
		if err != nil {
			return application.Config{}, err
		}
		cfg.Transport = transport
	}
	if ctx.IsSet(FlagInsecureSkipVerify.Name) {
		cfg.VerifySSL = !ctx.Bool(FlagInsecureSkipVerify.Name)
	}
	if ctx.IsSet(FlagCACert.Name) {
		cfg.CACert = ctx.String(FlagCACert.Name)
	}
	if ctx.IsSet(FlagReconnectInterval.Name) {
		cfg.ReconnectInterval = ctx.Int(FlagReconnectInterval.Name)
	}
	if ctx.IsSet(FlagMaxReconnectAttempts.Name) {
		cfg.MaxReconnectAttempts = ctx.Int(FlagMaxReconnectAttempts.Name)
	}

	return cfg, nil
}
