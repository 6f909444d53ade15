// Package config loads Courier's server configuration: request limits,
// subscriber queue sizing, retention and logging. Values come from Default,
// then an optional JSON or YAML file, then COURIER_* environment variables;
// CLI flags are applied last by the caller.
//
//	cfg, err := config.Load("/etc/courier.yaml")
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	limits, err := cfg.Limits()
package config
