// Command smartpark is the controller for a two-slot car park.
//
// Each 200ms cycle it reads the entry, exit and slot presence sensors,
// opens or closes the two barriers, switches the slot indicators, and
// reports slot arrivals and departures to the cloud broker over mutual
// TLS MQTT. Commands arrive on a second topic. See [printUsage] for the
// command line and [config.DefaultSearchPaths] for where config.yaml is
// looked up.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/smartpark/internal/buildinfo"
	"github.com/nugget/smartpark/internal/clock"
	"github.com/nugget/smartpark/internal/command"
	"github.com/nugget/smartpark/internal/config"
	"github.com/nugget/smartpark/internal/connwatch"
	"github.com/nugget/smartpark/internal/controller"
	"github.com/nugget/smartpark/internal/gate"
	"github.com/nugget/smartpark/internal/mqtt"
	"github.com/nugget/smartpark/internal/netlink"
	"github.com/nugget/smartpark/internal/sensor"
	"github.com/nugget/smartpark/internal/slot"
	"github.com/nugget/smartpark/internal/telemetry"
)

func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// invocation is a parsed command line.
type invocation struct {
	configPath string
	output     string // "text" or "json"
	command    string
	args       []string
	help       bool
}

// parseArgs reads flags up to the first bare word, which names the
// command; everything after it belongs to the command. Flags accept both
// "-flag value" and "-flag=value".
func parseArgs(args []string) (invocation, error) {
	inv := invocation{output: "text"}

	for i := 0; i < len(args); i++ {
		a := args[i]
		if inv.command != "" {
			inv.args = append(inv.args, a)
			continue
		}
		if !strings.HasPrefix(a, "-") {
			inv.command = a
			continue
		}

		name, value, hasValue := strings.Cut(a, "=")
		switch name {
		case "-h", "-help", "--help":
			inv.help = true
			return inv, nil
		case "-config", "-o", "--output":
		default:
			return inv, fmt.Errorf("unknown flag: %s", a)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return inv, fmt.Errorf("flag %s needs a value", name)
			}
			i++
			value = args[i]
		}
		if name == "-config" {
			inv.configPath = value
		} else {
			inv.output = value
		}
	}

	if inv.output != "text" && inv.output != "json" {
		return inv, fmt.Errorf("unknown output format: %q (expected text or json)", inv.output)
	}
	return inv, nil
}

// run is everything main does, minus the process. Logs go to stdout and
// any failure is returned for main to print.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	inv, err := parseArgs(args)
	if err != nil {
		return err
	}
	if inv.help {
		return printUsage(stdout)
	}

	switch inv.command {
	case "serve":
		return runServe(ctx, stdout, stderr, inv.configPath)
	case "init":
		dir := "."
		if len(inv.args) > 0 {
			dir = inv.args[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, inv.output)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", inv.command)
	}
}

// runVersion reports the running build.
func runVersion(w io.Writer, output string) error {
	b := buildinfo.Current()
	if output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	}
	fmt.Fprintln(w, b.String())
	for _, f := range b.Fields() {
		fmt.Fprintf(w, "  %-9s %s\n", f[0], f[1])
	}
	return nil
}

const usage = `smartpark runs the gates, slot indicators and cloud link of a two-slot car park.

Usage:
  smartpark [-config path] serve      run the control loop until SIGINT/SIGTERM
  smartpark init [dir]                write an example config.yaml into dir (default .)
  smartpark [-o text|json] version    print the build

Flags:
  -config path   config file; searched for when omitted
  -o, --output   version output format, text or json (default text)
`

// printUsage writes the help text, including where config is searched.
func printUsage(w io.Writer) error {
	fmt.Fprint(w, usage)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config is read from the first of:")
	for _, p := range config.DefaultSearchPaths() {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}

// runServe wires the controller and runs it until SIGINT or SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting SmartPark", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already checked by Validate.
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = config.NewLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"endpoint", cfg.MQTT.Endpoint,
		"port", cfg.MQTT.Port,
		"client_id", cfg.MQTT.ClientID,
		"driver", cfg.Hardware.Driver,
	)

	trust, err := cfg.MQTT.LoadTrustMaterial()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Hardware ---
	hwParts, err := openHardware(cfg.Hardware, logger)
	if err != nil {
		return err
	}
	defer hwParts.Close()

	// --- Broker session ---
	link := netlink.New(cfg.Network.Interface)
	transport, err := mqtt.NewTransport(link, mqtt.Options{
		TLS:       cfg.MQTT.TLS,
		KeepAlive: uint16(cfg.MQTT.KeepAliveSec),
		Proxy:     cfg.MQTT.Proxy,
	}, logger)
	if err != nil {
		return err
	}
	defer transport.Close()

	var handler command.Handler = command.LogHandler{Logger: logger}
	if hwParts.sim != nil {
		handler = newSimInputs(hwParts.sim, cfg.Hardware, handler, logger)
	}
	receiver := command.NewReceiver(handler, logger)
	session := connwatch.New(transport, connwatch.Config{
		Endpoint:       cfg.MQTT.Endpoint,
		Port:           cfg.MQTT.Port,
		ClientID:       cfg.MQTT.ClientID,
		Topics:         []string{cfg.MQTT.SubscribeTopic},
		Trust:          trust,
		AssociateRetry: time.Duration(cfg.Network.AssociateRetryMs) * time.Millisecond,
		ConnectRetry:   time.Duration(cfg.Network.ConnectRetryMs) * time.Millisecond,
	}, receiver, clock.System{}, logger)

	// --- Control cycle ---
	hc := cfg.Hardware
	cc := cfg.Controller
	angles := gate.Angles{Open: hc.GateOpenAngle, Closed: hc.GateClosedAngle}

	ctrl := controller.New(controller.Parts{
		Session: session,
		Sampler: sensor.NewSampler(hwParts.io, sensor.Pins{
			Entry: hc.EntrySensorPin,
			Exit:  hc.ExitSensorPin,
			Slot1: hc.Slot1SensorPin,
			Slot2: hc.Slot2SensorPin,
		}),
		Debouncer: sensor.NewDebouncer(cc.DebounceSamples),
		Entry:     gate.New("entry", hwParts.entry, angles, logger),
		Exit:      gate.New("exit", hwParts.exit, angles, logger),
		Slots: []*slot.Monitor{
			slot.New(slot.Config{ID: cc.Slot1ID, IndicatorPin: hc.Slot1LEDPin, VehicleID: cc.VehicleID}, hwParts.io, logger),
			slot.New(slot.Config{ID: cc.Slot2ID, IndicatorPin: hc.Slot2LEDPin, VehicleID: cc.VehicleID}, hwParts.io, logger),
		},
		Publisher: telemetry.NewPublisher(session, cfg.MQTT.PublishTopic, logger),
	}, clock.System{}, time.Duration(cc.CycleMs)*time.Millisecond, logger)

	err = ctrl.Run(ctx)
	if ctx.Err() != nil {
		logger.Info("shutdown signal received")
	}
	st := session.Status()
	logger.Info("SmartPark stopped", "session_state", st.State, "uptime", buildinfo.Uptime().String())
	return err
}

// loadConfig finds and loads the config file. It returns the parsed
// config and the path it was loaded from.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
