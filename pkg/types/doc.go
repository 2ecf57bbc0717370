// Package types defines the core data structures shared across Ferret packages.
package types
