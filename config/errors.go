package config

import "fmt"

// ConfigurationError reports a configuration value that cannot be used to
// start a run. It is always detected at startup, before any training work.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}
