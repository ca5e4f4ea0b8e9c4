// Package config holds the cc608 settings. Values come from an optional
// YAML file, then CC608_* environment variables, then command-line
// flags, each layer overriding the previous one.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/zsiec/cc608/internal/ingest/srt"
	"github.com/zsiec/cc608/internal/output"
)

var ErrInvalid = errors.New("config: invalid setting")

// Config is the complete cc608 configuration.
type Config struct {
	Format   string `yaml:"format"`
	Encoding string `yaml:"encoding"`
	// Changes suppresses snapshots identical to the previous one.
	Changes bool `yaml:"changes"`
	// Field is the A/53 caption field read from MPEG-TS (1 or 2).
	Field  int  `yaml:"field"`
	Strict bool `yaml:"strict"`
	// HTTPAddr serves /metrics, /ws and /api/streams when set.
	HTTPAddr string     `yaml:"http_addr"`
	SRT      SRTConfig  `yaml:"srt"`
	MQTT     MQTTConfig `yaml:"mqtt"`
}

// SRTConfig enables live mode.
type SRTConfig struct {
	Listen    string            `yaml:"listen"`
	LatencyMs int               `yaml:"latency_ms"`
	Pull      []srt.PullRequest `yaml:"pull"`
}

// Live reports whether any SRT input is configured.
func (s SRTConfig) Live() bool {
	return s.Listen != "" || len(s.Pull) > 0
}

// MQTTConfig publishes snapshots to a broker when Broker is set.
type MQTTConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
	QoS    byte   `yaml:"qos"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Format:   string(output.FormatText),
		Encoding: "utf-8",
		Field:    1,
		SRT:      SRTConfig{LatencyMs: 120},
		MQTT:     MQTTConfig{Topic: "cc608"},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from CC608_* variables looked up through
// getenv. Malformed numeric or boolean values are errors.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"CC608_FORMAT":      &c.Format,
		"CC608_ENCODING":    &c.Encoding,
		"CC608_HTTP_ADDR":   &c.HTTPAddr,
		"CC608_SRT_ADDR":    &c.SRT.Listen,
		"CC608_MQTT_BROKER": &c.MQTT.Broker,
		"CC608_MQTT_TOPIC":  &c.MQTT.Topic,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	if v := getenv("CC608_FIELD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CC608_FIELD=%q", ErrInvalid, v)
		}
		c.Field = n
	}
	for key, dst := range map[string]*bool{"CC608_CHANGES": &c.Changes, "CC608_STRICT": &c.Strict} {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
			}
			*dst = b
		}
	}
	return nil
}

// Validate checks every setting that can be checked without I/O.
func (c Config) Validate() error {
	if _, err := output.ParseFormat(c.Format); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := output.ParseEncoding(c.Encoding); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Field != 1 && c.Field != 2 {
		return fmt.Errorf("%w: field must be 1 or 2, got %d", ErrInvalid, c.Field)
	}
	if c.SRT.LatencyMs < 0 {
		return fmt.Errorf("%w: srt.latency_ms must not be negative", ErrInvalid)
	}
	for i, p := range c.SRT.Pull {
		if p.Address == "" {
			return fmt.Errorf("%w: srt.pull[%d] has no address", ErrInvalid, i)
		}
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalid)
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return fmt.Errorf("%w: mqtt.topic is required with a broker", ErrInvalid)
	}
	return nil
}
