// Package config resolves scan settings from flags and YAML profiles and
// defines the user-facing configuration error type.
package config
