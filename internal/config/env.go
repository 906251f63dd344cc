package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
)

// Environment variables that carry a settings document from an orchestrator.
const (
	EnvSettingsJSON    = "TERRAIN_SETTINGS_JSON"
	EnvSettingsYAMLB64 = "TERRAIN_SETTINGS_YAML_B64"
)

// FromEnvironment writes a settings document passed through the environment
// to path. It reports false when neither variable is set. Keys missing from
// the payload keep their default values.
func FromEnvironment(path string) (bool, error) {
	jsonPayload := os.Getenv(EnvSettingsJSON)
	yamlPayload := os.Getenv(EnvSettingsYAMLB64)

	if jsonPayload == "" && yamlPayload == "" {
		return false, nil
	}
	if path == "" {
		return false, errors.New("settings provided through the environment but no settings path supplied")
	}

	s := Default()
	if jsonPayload != "" {
		if err := decodeStrict([]byte(jsonPayload), true, &s); err != nil {
			return false, fmt.Errorf("%w: decode %s: %w", ErrIO, EnvSettingsJSON, err)
		}
	} else {
		data, err := base64.StdEncoding.DecodeString(yamlPayload)
		if err != nil {
			return false, fmt.Errorf("%w: decode %s: %w", ErrIO, EnvSettingsYAMLB64, err)
		}
		if err := decodeStrict(data, false, &s); err != nil {
			return false, fmt.Errorf("%w: parse %s: %w", ErrIO, EnvSettingsYAMLB64, err)
		}
	}

	if err := s.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := Save(path, s); err != nil {
		return false, err
	}
	return true, nil
}
