// Package chomperr defines the sentinel error kinds shared across chomp's
// subsystems so callers can classify failures with errors.Is/errors.As
// instead of matching on message text.
package chomperr

import "errors"

var (
	// ErrConfigInvalid covers a missing config file, a schema violation, or
	// an unknown adapter name.
	ErrConfigInvalid = errors.New("chomp: invalid configuration")

	// ErrDependencyUnreachable covers a failed cache or storage ping at boot.
	ErrDependencyUnreachable = errors.New("chomp: dependency unreachable")

	// ErrClaimExhausted is returned when the claim retry policy gives up
	// without acquiring a lease. It is not logged as an error: the worker
	// exits 0.
	ErrClaimExhausted = errors.New("chomp: claim retries exhausted")

	// ErrTransformRejected is returned by the transformer engine's static
	// safety check when an expression references a forbidden name.
	ErrTransformRejected = errors.New("chomp: transformer expression rejected")

	// ErrFieldMissing marks a field whose value remained null after the
	// fetch+transform pipeline ran.
	ErrFieldMissing = errors.New("chomp: field value missing")

	// ErrAdapterNotImplemented is returned by storage adapter variants that
	// are named in the interface but have no backing driver wired.
	ErrAdapterNotImplemented = errors.New("chomp: storage adapter not implemented")

	// ErrRPCPoolExhausted is returned when every endpoint for a chain failed.
	ErrRPCPoolExhausted = errors.New("chomp: rpc pool exhausted")
)
