// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config file. Environment
// variables use the LINGUA_ prefix and take precedence over file values.
package config
