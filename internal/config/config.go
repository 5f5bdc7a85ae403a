// Package config loads and validates the daemon's configuration: a YAML
// document with environment-variable overrides, built on
// github.com/spf13/viper for hierarchical merge-and-override semantics.
// Grounded on the original config_manager.py for the exact key set,
// defaults, and NAS_PANEL_* environment variable names, and on
// _examples/hlindberg-mezquit's cobra-based CLI, whose config-flag
// plumbing (internal/config) this package plugs into (spec.md §4.8).
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/nas-panel/panel-server/internal/probe"
)

// MQTTType selects whether the daemon runs its own broker or forwards to
// a foreign one.
type MQTTType string

const (
	MQTTTypeBuiltin  MQTTType = "builtin"
	MQTTTypeExternal MQTTType = "external"
)

// Server holds the reported hostname/IP, "auto" resolving at collection
// time (probe.System handles the actual resolution).
type Server struct {
	Hostname string `mapstructure:"hostname"`
	IP       string `mapstructure:"ip"`
}

// MQTT holds both embedded-broker bind settings and external-broker
// client settings; which half applies depends on Type.
type MQTT struct {
	Type      MQTTType `mapstructure:"type"`
	Host      string   `mapstructure:"host"`
	Port      int      `mapstructure:"port"`
	Topic     string   `mapstructure:"topic"`
	QoS       int      `mapstructure:"qos"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	ClientID  string   `mapstructure:"client_id"`
	KeepAlive int      `mapstructure:"keep_alive"`
}

// Collection holds the scheduler's tick interval, in seconds.
type Collection struct {
	Interval float64 `mapstructure:"interval"`
}

// CustomCollector mirrors one entry of custom_collectors[] in the YAML
// document, fields matching probe.CustomProbe's constructor arguments.
type CustomCollector struct {
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"`
	Unit      string `mapstructure:"unit"`
	Path      string `mapstructure:"path"`
	Command   string `mapstructure:"command"`
	Variable  string `mapstructure:"variable"`
	Default   string `mapstructure:"default"`
	Transform string `mapstructure:"transform"`
}

// Config is the fully resolved, validated configuration.
type Config struct {
	Server           Server            `mapstructure:"server"`
	MQTT             MQTT              `mapstructure:"mqtt"`
	Collection       Collection        `mapstructure:"collection"`
	CustomCollectors []CustomCollector `mapstructure:"custom_collectors"`
}

// envMappings is the NAS_PANEL_* environment override table from
// config_manager.py's env_mappings, reproduced as viper key bindings.
var envMappings = map[string]string{
	"server.hostname": "NAS_PANEL_HOSTNAME",
	"server.ip":       "NAS_PANEL_IP",
	"mqtt.host":       "NAS_PANEL_MQTT_HOST",
	"mqtt.port":       "NAS_PANEL_MQTT_PORT",
	"mqtt.topic":      "NAS_PANEL_MQTT_TOPIC",
	"mqtt.qos":        "NAS_PANEL_MQTT_QOS",
	"collection.interval": "NAS_PANEL_INTERVAL",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("server.hostname", "auto")
	v.SetDefault("server.ip", "auto")
	v.SetDefault("mqtt.type", string(MQTTTypeBuiltin))
	v.SetDefault("mqtt.host", "0.0.0.0")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.topic", "nas/panel/data")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.client_id", "nas-panel-server")
	v.SetDefault("mqtt.keep_alive", 60)
	v.SetDefault("collection.interval", 5)
	v.SetDefault("custom_collectors", []map[string]any{})

	for key, env := range envMappings {
		_ = v.BindEnv(key, env)
	}
	return v
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides, and validates the result. An empty path yields a
// defaults-plus-environment configuration, matching config_manager.py's
// behavior when no config file is found.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces spec.md §6's rules. It returns a single error
// joining every violation found, rather than stopping at the first.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.MQTT.Type != MQTTTypeBuiltin && cfg.MQTT.Type != MQTTTypeExternal {
		errs = append(errs, fmt.Errorf("mqtt.type must be %q or %q, got %q", MQTTTypeBuiltin, MQTTTypeExternal, cfg.MQTT.Type))
	}
	if cfg.MQTT.Port < 1 || cfg.MQTT.Port > 65535 {
		errs = append(errs, fmt.Errorf("mqtt.port must be between 1 and 65535, got %d", cfg.MQTT.Port))
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1, or 2, got %d", cfg.MQTT.QoS))
	}
	if cfg.Collection.Interval <= 0 {
		errs = append(errs, fmt.Errorf("collection.interval must be a positive number, got %v", cfg.Collection.Interval))
	}
	for i, c := range cfg.CustomCollectors {
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, fmt.Errorf("custom_collectors[%d] must have a name", i))
		}
		switch c.Type {
		case "file", "command", "env":
		default:
			errs = append(errs, fmt.Errorf("custom_collectors[%d] has invalid type %q", i, c.Type))
		}
	}

	return errors.Join(errs...)
}

// Probes converts the configured custom collectors into probe.CustomProbe
// values ready for the scheduler.
func (c *Config) Probes() []probe.CustomProbe {
	probes := make([]probe.CustomProbe, 0, len(c.CustomCollectors))
	for _, cc := range c.CustomCollectors {
		probes = append(probes, probe.CustomProbe{
			Name:      cc.Name,
			Type:      cc.Type,
			Unit:      cc.Unit,
			Path:      cc.Path,
			Command:   cc.Command,
			Variable:  cc.Variable,
			Default:   cc.Default,
			Transform: cc.Transform,
		})
	}
	return probes
}
