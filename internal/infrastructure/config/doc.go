// Package config provides layered configuration for the widget host.
//
// Values come from Default, then an optional TOML file, then environment
// variables. Environment names are listed on the struct tags; nested names
// such as HOST_DESKWIDGETS_DATA_DIR are accepted as well.
//
// Configuration Sections:
//   - Host: data directory, instance name, developer mode
//   - Logging: level and output format
//   - Widgets: default window size, process-wide scopes, autogrant list
//   - Gate: circuit breaker and notification throttling
//   - Diagnostics: local HTTP diagnostics (off by default)
//
// Example Usage:
//
//	cfg, err := config.Load("/etc/deskwidgets.toml")
//	if err != nil {
//	    return err
//	}
//
// Environment Variables:
//   - DESKWIDGETS_DATA_DIR, DESKWIDGETS_INSTANCE, DESKWIDGETS_DEV
//   - LOG_LEVEL, LOG_DEV
//   - DESKWIDGETS_GLOBAL_SCOPES, DESKWIDGETS_CONSENT_AUTOGRANT
//   - GATE_BREAKER_MAX_FAILURES, GATE_BREAKER_TIMEOUT, GATE_NOTIFY_INTERVAL
//   - DIAG_ENABLED, DIAG_ADDR
package config
