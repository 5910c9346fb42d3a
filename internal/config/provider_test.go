package config

import (
	"testing"
)

func TestProviderConfig_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_API_KEY", "key-from-env")

	content := `providers:
  - type: ionos
    settings:
      base_url: "https://api.hosting.ionos.com"
      api_key: "${TEST_API_KEY}"
hosts:
  - identity: home
    bootstrap: vpn.example.com
`
	cfg, err := LoadFromPath(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settings := cfg.Providers[0].Settings
	if settings["api_key"] != "key-from-env" {
		t.Errorf("expected api_key 'key-from-env', got %q", settings["api_key"])
	}
	// Non-env values should remain unchanged.
	if settings["base_url"] != "https://api.hosting.ionos.com" {
		t.Errorf("expected base_url unchanged, got %q", settings["base_url"])
	}
}

func TestProviderConfig_EnvVarUnset(t *testing.T) {
	content := `providers:
  - type: ionos
    settings:
      api_key: "${UNSET_VAR_THAT_DOES_NOT_EXIST}"
      description: "literal-value"
hosts:
  - identity: home
    bootstrap: vpn.example.com
`
	cfg, err := LoadFromPath(writeConfig(t, content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settings := cfg.Providers[0].Settings
	// Unset env var expands to empty string.
	if settings["api_key"] != "" {
		t.Errorf("expected api_key '' for unset env var, got %q", settings["api_key"])
	}
	// Literal values without ${} stay as-is.
	if settings["description"] != "literal-value" {
		t.Errorf("expected description 'literal-value', got %q", settings["description"])
	}
}

func TestProviderConfig_Validate(t *testing.T) {
	if err := (ProviderConfig{Type: "ionos"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := (ProviderConfig{Name: "x"}).Validate(); err == nil {
		t.Error("expected error for missing type, got nil")
	}
}
