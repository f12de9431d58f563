package main

import "github.com/urfave/cli/v2"

var FlagLogLevel = &cli.StringFlag{
	Name:     "log-level",
	EnvVars:  []string{"LOG_LEVEL"},
	Value:    "info",
	Required: false,
}

var FlagLogWriter = &cli.StringFlag{
	Name:     "log-writer",
	EnvVars:  []string{"LOG_WRITER"},
	Value:    "console",
	Required: false,
}

var FlagConfig = &cli.StringFlag{
	Name:     "config",
	Usage:    "path to a YAML config file",
	EnvVars:  []string{"VWIRE_CONFIG"},
	Required: false,
}

var FlagAuthToken = &cli.StringFlag{
	Name:     "auth-token",
	Usage:    "device auth token from the vwire dashboard",
	EnvVars:  []string{"VWIRE_AUTH_TOKEN"},
	Required: true,
}

var FlagDeviceID = &cli.StringFlag{
	Name:     "device-id",
	Usage:    "system-generated device id used in MQTT topics",
	EnvVars:  []string{"VWIRE_DEVICE_ID"},
	Required: true,
}

var FlagServer = &cli.StringFlag{
	Name:     "server",
	EnvVars:  []string{"VWIRE_SERVER"},
	Required: false,
}

var FlagPort = &cli.IntFlag{
	Name:     "port",
	EnvVars:  []string{"VWIRE_PORT"},
	Required: false,
}

var FlagTransport = &cli.StringFlag{
	Name:     "transport",
	Usage:    "one of: [tcp, tls, ws, wss]",
	EnvVars:  []string{"VWIRE_TRANSPORT"},
	Required: false,
}

var FlagInsecureSkipVerify = &cli.BoolFlag{
	Name:     "insecure-skip-verify",
	Usage:    "disable TLS certificate verification",
	EnvVars:  []string{"VWIRE_INSECURE_SKIP_VERIFY"},
	Required: false,
}

var FlagCACert = &cli.StringFlag{
	Name:     "ca-cert",
	Usage:    "path to a custom CA certificate (PEM)",
	EnvVars:  []string{"VWIRE_CA_CERT"},
	Required: false,
}

var FlagReconnectInterval = &cli.IntFlag{
	Name:     "reconnect-interval",
	Usage:    "seconds between reconnection attempts",
	EnvVars:  []string{"VWIRE_RECONNECT_INTERVAL"},
	Required: false,
}

var FlagMaxReconnectAttempts = &cli.IntFlag{
	Name:     "max-reconnect-attempts",
	Usage:    "maximum reconnection attempts, 0 = unlimited",
	EnvVars:  []string{"VWIRE_MAX_RECONNECT_ATTEMPTS"},
	Required: false,
}

var FlagConnectTimeout = &cli.IntFlag{
	Name:     "connect-timeout",
	Usage:    "initial connect timeout in seconds",
	EnvVars:  []string{"VWIRE_CONNECT_TIMEOUT"},
	Value:    30,
	Required: false,
}
