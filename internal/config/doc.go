// Package config loads and validates the YAML configuration file and
// supports hot reload of the sections that are safe to change at runtime.
package config
