// Package config provides the memgate configuration.
//
//   - spec.go: Config struct definition
//   - default.go: default values
//   - load.go: loading through internal/infra/confloader
//   - verify.go: per-binary validation
//   - sanitize.go: secret masking for display and logs
package config
