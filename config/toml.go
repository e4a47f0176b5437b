package config

import (
	"github.com/BurntSushi/toml"
)

// Load decodes and validates a TOML config file.
func Load(path string) (*Value, error) {
	var v Value
	if err := DecodeTOMLFile(path, &v); err != nil {
		return nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Parse decodes and validates TOML text.
func Parse(data string) (*Value, error) {
	var v Value
	if err := DecodeTOML(data, &v); err != nil {
		return nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// DecodeTOMLFile decodes TOML config
func DecodeTOMLFile(path string, result interface{}) error {
	if _, err := toml.DecodeFile(path, result); err != nil {
		return err
	}

	return nil
}

// DecodeTOML decodes TOML config
func DecodeTOML(data string, result interface{}) error {
	if _, err := toml.Decode(data, result); err != nil {
		return err
	}

	return nil
}
