// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, logging, metrics and debug introspection for hioload-net.
//
// Provides:
//   - YAML configuration with defaults, validation and reload listeners
//   - zap logger construction
//   - Prometheus collectors for the readiness multiplexer
//   - Debug probe registration and state export
package control
