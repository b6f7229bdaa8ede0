// Package types defines the records exchanged with the data-capture backend,
// the client configuration, and the standard errors shared by the capture
// client packages.
package types
