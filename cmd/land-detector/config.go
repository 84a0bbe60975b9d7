package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/spf13/pflag"

	"github.com/sweeney/land-detector/internal/detector"
	"github.com/sweeney/land-detector/internal/gpio"
	"github.com/sweeney/land-detector/internal/mavlink"
	"github.com/sweeney/land-detector/internal/params"
)

// config holds the daemon settings. Detector parameters are not here; they
// come from the parameter store.
type config struct {
	Tick            time.Duration
	PublishInterval time.Duration
	Heartbeat       time.Duration
	Gate            string

	MAVLink            string
	SystemID           int
	AutopilotComponent int

	Broker   string
	ClientID string

	ParamsFile   string
	Redis        string
	RedisKey     string
	ParamRefresh time.Duration
	PrintParams  bool

	HTTPAddr string

	LEDChip     string
	LEDLanded   int
	LEDFreefall int

	LogLevel string
}

// envPrefix is prepended to upper-cased flag names for environment overrides.
const envPrefix = "LAND_DETECTOR_"

// parseFlags reads args into a config. Flags not given on the command line
// may be set from LAND_DETECTOR_<FLAG> environment variables.
func parseFlags(args []string) (config, error) {
	var c config
	fs := pflag.NewFlagSet("land-detector", pflag.ContinueOnError)

	fs.DurationVar(&c.Tick, "tick", 20*time.Millisecond, "Detector update period")
	fs.DurationVar(&c.PublishInterval, "publish-interval", time.Second, "Republish unchanged output after this long")
	fs.DurationVar(&c.Heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	fs.StringVar(&c.Gate, "landed-gate", "debounced", `Landed trigger input: "debounced" or "raw" maybe-landed`)

	fs.StringVar(&c.MAVLink, "mavlink", "udp:0.0.0.0:14550", `MAVLink endpoint ("udp:ADDR", "udpclient:ADDR", "tcp:ADDR", "tcpclient:ADDR", "serial:DEV:BAUD", empty to disable)`)
	fs.IntVar(&c.SystemID, "system-id", 1, "Vehicle MAVLink system id (0 accepts any)")
	fs.IntVar(&c.AutopilotComponent, "autopilot-component", mavlink.DefaultAutopilotComponent, "Component id whose HEARTBEAT gives arming and mode (0 accepts any)")

	fs.StringVar(&c.Broker, "broker", "tcp://localhost:1883", "MQTT broker address")
	fs.StringVar(&c.ClientID, "client-id", "land-detector", "MQTT client id")

	fs.StringVar(&c.ParamsFile, "params", "", "YAML detector parameter file")
	fs.StringVar(&c.Redis, "redis", "", "Redis address for detector parameters (host:port)")
	fs.StringVar(&c.RedisKey, "redis-key", params.DefaultRedisKey, "Redis hash holding detector parameters")
	fs.DurationVar(&c.ParamRefresh, "param-refresh", 5*time.Second, "Parameter reload interval (0 to load once)")
	fs.BoolVar(&c.PrintParams, "print-params", false, "Print effective detector parameters as YAML and exit")

	fs.StringVar(&c.HTTPAddr, "http", ":80", "HTTP status address (empty to disable)")

	fs.StringVar(&c.LEDChip, "led-chip", "", "GPIO chip for status LEDs, e.g. "+gpio.DefaultChip+" (empty to disable)")
	fs.IntVar(&c.LEDLanded, "led-landed", gpio.PinLanded, "BCM pin for the landed LED")
	fs.IntVar(&c.LEDFreefall, "led-freefall", gpio.PinFreefall, "BCM pin for the free-fall LED")

	fs.StringVar(&c.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if err := applyEnv(fs); err != nil {
		return config{}, err
	}
	if c.Tick <= 0 {
		return config{}, fmt.Errorf("--tick must be positive")
	}
	if c.ParamsFile != "" && c.Redis != "" {
		return config{}, fmt.Errorf("--params and --redis are mutually exclusive")
	}
	if _, err := parseGate(c.Gate); err != nil {
		return config{}, err
	}
	if c.SystemID < 0 || c.SystemID > 255 {
		return config{}, fmt.Errorf("--system-id must be 0-255")
	}
	if c.AutopilotComponent < 0 || c.AutopilotComponent > 255 {
		return config{}, fmt.Errorf("--autopilot-component must be 0-255")
	}
	return c, nil
}

// applyEnv sets every flag not given on the command line from its
// environment variable, if present.
func applyEnv(fs *pflag.FlagSet) error {
	var errs []string
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		v, ok := os.LookupEnv(name)
		if !ok {
			return
		}
		if err := fs.Set(f.Name, v); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseGate(s string) (detector.LandedGate, error) {
	switch s {
	case "debounced":
		return detector.GateDebounced, nil
	case "raw":
		return detector.GateRaw, nil
	default:
		return 0, fmt.Errorf("unknown landed gate %q", s)
	}
}

// parseEndpoint turns a KIND:ADDRESS string into a gomavlib endpoint.
func parseEndpoint(s string) (gomavlib.EndpointConf, error) {
	kind, addr, ok := strings.Cut(s, ":")
	if !ok || addr == "" {
		return nil, fmt.Errorf("invalid mavlink endpoint %q", s)
	}
	switch kind {
	case "udp":
		return gomavlib.EndpointUDPServer{Address: addr}, nil
	case "udpclient":
		return gomavlib.EndpointUDPClient{Address: addr}, nil
	case "tcp":
		return gomavlib.EndpointTCPServer{Address: addr}, nil
	case "tcpclient":
		return gomavlib.EndpointTCPClient{Address: addr}, nil
	case "serial":
		i := strings.LastIndex(addr, ":")
		if i < 0 {
			return nil, fmt.Errorf("serial endpoint %q needs DEVICE:BAUD", s)
		}
		baud, err := strconv.Atoi(addr[i+1:])
		if err != nil || baud <= 0 {
			return nil, fmt.Errorf("serial endpoint %q: invalid baud rate", s)
		}
		return gomavlib.EndpointSerial{Device: addr[:i], Baud: baud}, nil
	default:
		return nil, fmt.Errorf("unknown mavlink endpoint kind %q", kind)
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
