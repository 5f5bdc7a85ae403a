package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultDocument is the config.yaml body written by --generate-config,
// matching config_manager.py's DEFAULT_CONFIG verbatim.
func defaultDocument() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"hostname": "auto",
			"ip":       "auto",
		},
		"mqtt": map[string]any{
			"type":  string(MQTTTypeBuiltin),
			"host":  "0.0.0.0",
			"port":  1883,
			"topic": "nas/panel/data",
			"qos":   1,
		},
		"collection": map[string]any{
			"interval": 5,
		},
		"custom_collectors": []any{},
	}
}

// GenerateDefault writes a default configuration document to path.
func GenerateDefault(path string) error {
	data, err := yaml.Marshal(defaultDocument())
	if err != nil {
		return fmt.Errorf("config: marshal default: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
