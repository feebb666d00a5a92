package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the expected outcome for hosts that map to no routable tenant.
	ErrNotFound = errors.New("tenant domain not found")

	// ErrCacheMiss is returned by shared cache implementations for absent keys.
	ErrCacheMiss = errors.New("cache miss")

	ErrDomainExists = errors.New("domain already registered")
	ErrTenantExists = errors.New("tenant slug already in use")
)

// StateError reports an illegal registry transition. It is a programmer error
// and is never retried.
type StateError struct {
	Op     string
	Domain string
	From   string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal transition %q for domain %s in state %s", e.Op, e.Domain, e.From)
}

// ResolverError wraps a backend failure that halted resolution.
type ResolverError struct {
	Op  string
	Err error
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("resolver %s: %v", e.Op, e.Err)
}

func (e *ResolverError) Unwrap() error {
	return e.Err
}
