// Package config handles application configuration management.
//
// The config package loads configuration from YAML files and environment
// variables using viper, applies defaults, and validates the result. The
// loaded Config is immutable and passed explicitly to the components that
// need it: the sandbox backend, the job queue, and the server surface.
package config
