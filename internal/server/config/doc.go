// Package config provides the filebay-server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: defaults for optional keys
//   - verify.go: required keys and value checks
//   - sanitize.go: credential masking for logs
//
// Values are loaded through internal/infra/confloader from a YAML file and
// FILEBAY_ environment variables on top of Default().
package config
