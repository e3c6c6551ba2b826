// Package config loads YAML configuration files with environment variable
// expansion.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load reads filename, expands ${VAR} references, decodes it over target and
// validates the result. Keys missing from the file keep the values already
// in target.
func Load[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", filename, err)
	}
	return Decode(data, filename, target)
}

// LoadOptional is Load that accepts a missing file, validating the defaults
// already in target instead.
func LoadOptional[T any](filename string, target *T) (found bool, err error) {
	err = Load(filename, target)
	if errors.Is(err, os.ErrNotExist) {
		return false, validate(target)
	}
	return err == nil, err
}

// Decode is Load for configuration already in memory; name is used in errors.
func Decode[T any](data []byte, name string, target *T) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("config: parse %s: %w", name, err)
	}
	return validate(target)
}

func validate[T any](target *T) error {
	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config: validation failed: %w", err)
		}
	}
	return nil
}
