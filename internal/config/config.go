// Package config handles SmartPark configuration loading.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/smartpark/config.yaml, /etc/smartpark/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "smartpark", "config.yaml"))
	}

	paths = append(paths, "/etc/smartpark/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Hardware driver names accepted in [HardwareConfig.Driver].
const (
	DriverGPIOCdev = "gpiocdev"
	DriverSim      = "sim"
)

// Config holds all SmartPark configuration.
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Network    NetworkConfig    `yaml:"network"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	Controller ControllerConfig `yaml:"controller"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"`
}

// MQTTConfig defines the cloud broker session. The endpoint, client ID
// and certificate paths are deployment constants; nothing here takes
// part in the per-cycle control logic.
type MQTTConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Port           int    `yaml:"port"`
	ClientID       string `yaml:"client_id"`
	PublishTopic   string `yaml:"publish_topic"`
	SubscribeTopic string `yaml:"subscribe_topic"`
	// TLS enables mutual TLS with the files below. Disable only for a
	// local bench broker.
	TLS      bool   `yaml:"tls"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// KeepAliveSec is the MQTT keep-alive in seconds (default 15).
	KeepAliveSec int `yaml:"keep_alive_sec"`
	// Proxy is an optional socks5:// URL used to reach the broker.
	Proxy string `yaml:"proxy"`
}

// Configured reports whether enough MQTT settings exist to attempt a
// broker connection.
func (c MQTTConfig) Configured() bool {
	return c.Endpoint != "" && c.ClientID != ""
}

// NetworkConfig controls link association and the flat retry delays of
// the connection protocol.
type NetworkConfig struct {
	// Interface is the link that must be up before the broker is dialled.
	// Empty means any non-loopback interface that is up with an address.
	Interface        string `yaml:"interface"`
	AssociateRetryMs int    `yaml:"associate_retry_ms"`
	ConnectRetryMs   int    `yaml:"connect_retry_ms"`
}

// HardwareConfig maps sensors, indicators and gate servos to physical
// lines. Pin numbers are GPIO line offsets on GPIOChip.
type HardwareConfig struct {
	Driver   string `yaml:"driver"`
	GPIOChip string `yaml:"gpio_chip"`
	// PullUp enables the internal pull-up on the four sensor inputs.
	PullUp bool `yaml:"pull_up"`

	EntrySensorPin int `yaml:"entry_sensor_pin"`
	ExitSensorPin  int `yaml:"exit_sensor_pin"`
	Slot1SensorPin int `yaml:"slot1_sensor_pin"`
	Slot2SensorPin int `yaml:"slot2_sensor_pin"`
	Slot1LEDPin    int `yaml:"slot1_led_pin"`
	Slot2LEDPin    int `yaml:"slot2_led_pin"`

	// PWMChip is the sysfs PWM chip directory, e.g. /sys/class/pwm/pwmchip0.
	PWMChip         string `yaml:"pwm_chip"`
	EntryServoPWM   int    `yaml:"entry_servo_pwm"`
	ExitServoPWM    int    `yaml:"exit_servo_pwm"`
	GateOpenAngle   int    `yaml:"gate_open_angle"`
	GateClosedAngle int    `yaml:"gate_closed_angle"`
}

// ControllerConfig tunes the control cycle.
type ControllerConfig struct {
	CycleMs int `yaml:"cycle_ms"`
	// DebounceSamples is the number of identical consecutive samples
	// required before a sensor change is accepted. 1 disables filtering.
	DebounceSamples int `yaml:"debounce_samples"`
	// VehicleID is reported for every slot transition. Vehicle identity
	// is not sensed; this is a fixed placeholder.
	VehicleID string `yaml:"vehicle_id"`
	Slot1ID   string `yaml:"slot1_id"`
	Slot2ID   string `yaml:"slot2_id"`
}

// Load reads configuration from a YAML file. Values not present in the
// file keep their [Default] values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration of the reference installation.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Port:           8883,
			ClientID:       "SmartParkingESP32",
			PublishTopic:   "esp32/SmartParking/status",
			SubscribeTopic: "esp32/SmartParking/commands",
			TLS:            true,
			KeepAliveSec:   15,
		},
		Network: NetworkConfig{
			AssociateRetryMs: 500,
			ConnectRetryMs:   1000,
		},
		Hardware: HardwareConfig{
			Driver:          DriverGPIOCdev,
			GPIOChip:        "gpiochip0",
			EntrySensorPin:  17,
			ExitSensorPin:   27,
			Slot1SensorPin:  22,
			Slot2SensorPin:  23,
			Slot1LEDPin:     24,
			Slot2LEDPin:     25,
			PWMChip:         "/sys/class/pwm/pwmchip0",
			EntryServoPWM:   0,
			ExitServoPWM:    1,
			GateOpenAngle:   90,
			GateClosedAngle: 0,
		},
		Controller: ControllerConfig{
			CycleMs:         200,
			DebounceSamples: 1,
			VehicleID:       "abc-123",
			Slot1ID:         "slot1",
			Slot2ID:         "slot2",
		},
	}
}

// Validate checks the loaded configuration for values the controller
// cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat))
	}

	if !c.MQTT.Configured() {
		errs = append(errs, errors.New("mqtt.endpoint and mqtt.client_id are required"))
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port))
	}
	if c.MQTT.PublishTopic == "" || c.MQTT.SubscribeTopic == "" {
		errs = append(errs, errors.New("mqtt.publish_topic and mqtt.subscribe_topic are required"))
	}
	if c.MQTT.TLS && (c.MQTT.CAFile == "" || c.MQTT.CertFile == "" || c.MQTT.KeyFile == "") {
		errs = append(errs, errors.New("mqtt.ca_file, mqtt.cert_file and mqtt.key_file are required when mqtt.tls is enabled"))
	}
	if c.MQTT.KeepAliveSec < 0 || c.MQTT.KeepAliveSec > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.keep_alive_sec %d out of range", c.MQTT.KeepAliveSec))
	}
	if c.MQTT.Proxy != "" {
		if _, err := url.Parse(c.MQTT.Proxy); err != nil {
			errs = append(errs, fmt.Errorf("mqtt.proxy: %w", err))
		}
	}

	if c.Network.AssociateRetryMs <= 0 || c.Network.ConnectRetryMs <= 0 {
		errs = append(errs, errors.New("network retry intervals must be positive"))
	}

	switch c.Hardware.Driver {
	case DriverGPIOCdev, DriverSim:
	default:
		errs = append(errs, fmt.Errorf("unknown hardware.driver %q (valid: %s, %s)", c.Hardware.Driver, DriverGPIOCdev, DriverSim))
	}

	if c.Controller.CycleMs <= 0 {
		errs = append(errs, fmt.Errorf("controller.cycle_ms %d must be positive", c.Controller.CycleMs))
	}
	if c.Controller.Slot1ID == "" || c.Controller.Slot2ID == "" {
		errs = append(errs, errors.New("controller slot IDs must not be empty"))
	}

	return errors.Join(errs...)
}

// TrustMaterial holds the PEM-encoded certificates and key installed into
// the broker transport before every handshake.
type TrustMaterial struct {
	CA   []byte
	Cert []byte
	Key  []byte
}

// LoadTrustMaterial reads the CA certificate, device certificate and
// device private key. It returns empty material when TLS is disabled.
func (c MQTTConfig) LoadTrustMaterial() (TrustMaterial, error) {
	if !c.TLS {
		return TrustMaterial{}, nil
	}

	var tm TrustMaterial
	for _, f := range []struct {
		path string
		dst  *[]byte
	}{
		{c.CAFile, &tm.CA},
		{c.CertFile, &tm.Cert},
		{c.KeyFile, &tm.Key},
	} {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return TrustMaterial{}, fmt.Errorf("read trust material %s: %w", f.path, err)
		}
		*f.dst = data
	}
	return tm, nil
}
