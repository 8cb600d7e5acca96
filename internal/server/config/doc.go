// Package config defines the kvgate-server configuration.
//
//   - spec.go: ServerConfig and its sections
//   - default.go: default values
//   - verify.go: validation
//   - sanitize.go: password masking for logs
//   - live.go: the hot-reloadable view shared with the request path
//
// Values are loaded by internal/infra/confloader from a YAML file and
// KVGATE_ environment variables on top of Default().
package config
