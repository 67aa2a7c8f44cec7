package config

import "errors"

var (
	// ErrInvalidFile is returned when the YAML file cannot be decoded.
	ErrInvalidFile = errors.New("invalid config file")
	// ErrInvalidValue is returned for a setting outside its range.
	ErrInvalidValue = errors.New("invalid config value")
	// ErrInvalidEnv is returned when a SUCCESSION_* variable does not parse.
	ErrInvalidEnv = errors.New("invalid environment variable")
)
