// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the resource is busy or was modified concurrently.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates a request that can never succeed as given.
var ErrValidation = errors.New("validation")
