// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrUnavailable indicates a backing store could not be reached.
// Adapters wrap it so callers can match with errors.Is regardless of
// the backend in use.
var ErrUnavailable = errors.New("store unavailable")
