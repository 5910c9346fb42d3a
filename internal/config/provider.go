package config

import (
	"fmt"
	"os"
)

// ProviderConfig holds one DNS provider instance: its type, a name to tell
// instances apart, and provider-specific connection settings.
type ProviderConfig struct {
	Name     string            `yaml:"name"`
	Type     string            `yaml:"type"`
	Settings map[string]string `yaml:"settings"`
}

// Validate checks the required fields.
func (p ProviderConfig) Validate() error {
	if p.Type == "" {
		return fmt.Errorf("provider config: missing required field 'type'")
	}
	return nil
}

// expandEnv expands ${ENV_VAR} references in setting values.
func (p *ProviderConfig) expandEnv() {
	for k, v := range p.Settings {
		p.Settings[k] = os.ExpandEnv(v)
	}
}
