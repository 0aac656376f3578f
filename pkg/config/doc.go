// Package config loads and validates sieve configuration.
//
// Configuration is read from a YAML file (gopkg.in/yaml.v3) decoded over
// the defaults, then overridden by SIEVE_* environment variables, then
// validated. Validation collects every problem into a ValidationError.
//
// # Loading
//
//	cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//	if err != nil {
//	    return err
//	}
//
// # Environment Variables
//
// Variables follow SIEVE_SECTION_FIELD, for example:
//
//	SIEVE_SERVER_LISTEN_ADDRESS=0.0.0.0:8080
//	SIEVE_STORAGE_BACKEND=memory
//	SIEVE_LIMITS_CAPTURE_CAPACITY=120
//	SIEVE_TELEMETRY_LOGGING_LEVEL=debug
//
// # Global Configuration
//
// Initialize stores the process configuration; GetConfig returns it.
// Watcher reloads the file on change (github.com/fsnotify/fsnotify) and
// notifies registered callbacks, which is how the log level follows edits
// without a restart. Settings consumed at startup, such as the listen
// address or storage backend, still require a restart.
package config
