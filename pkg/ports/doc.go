// Package ports parses port specs and orders them by popularity rank so
// likely hits surface early in a scan.
package ports
