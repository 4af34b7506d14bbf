// Package faults defines the typed failures shared by the cache manager and
// the fetch gateway: cache failures for blob-store operations and network
// failures for fetches, each carrying an optional wrapped cause.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Kind discriminates the failure variants.
type Kind string

const (
	// KindCache marks blob-store operation failures (open, put, delete, bulk-add).
	KindCache Kind = "cache"

	// KindNetwork marks fetch failures (transport errors or non-success status).
	KindNetwork Kind = "network"
)

// Failure is a tagged failure with an optional cause chain.
type Failure struct {
	// Kind is the failure variant.
	Kind Kind

	// Op names the failing operation (e.g. "open", "put", "fetch").
	Op string

	// Status is the HTTP status for network failures, 0 when unknown.
	Status int

	// Message is a short human-readable description.
	Message string

	// Err is the wrapped causing error, if any.
	Err error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	switch {
	case f.Kind == KindNetwork && f.Status > 0:
		return fmt.Sprintf("network failure (%s, status %d): %s", f.Op, f.Status, f.Message)
	case f.Kind == KindNetwork:
		return fmt.Sprintf("network failure (%s): %s", f.Op, f.Message)
	default:
		return fmt.Sprintf("cache failure (%s): %s", f.Op, f.Message)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Chain renders the failure and its full cause chain, outermost first.
func (f *Failure) Chain() string {
	parts := []string{f.Error()}
	for err := f.Err; err != nil; err = errors.Unwrap(err) {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, ": caused by: ")
}

// Cache builds a cache failure for the given blob-store operation.
func Cache(op, message string, err error) *Failure {
	return &Failure{Kind: KindCache, Op: op, Message: message, Err: err}
}

// Network builds a network failure. Status may be 0 when the transport
// failed before any response was received.
func Network(op string, status int, message string, err error) *Failure {
	return &Failure{Kind: KindNetwork, Op: op, Status: status, Message: message, Err: err}
}

// IsCache reports whether err is (or wraps) a cache failure.
func IsCache(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == KindCache
}

// IsNetwork reports whether err is (or wraps) a network failure.
func IsNetwork(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == KindNetwork
}

// StatusOf returns the HTTP status carried by a network failure, or 0 when
// err is not a network failure or the status is unknown.
func StatusOf(err error) int {
	var f *Failure
	if errors.As(err, &f) && f.Kind == KindNetwork {
		return f.Status
	}
	return 0
}
