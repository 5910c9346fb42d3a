package dns

import "errors"

var (
	// ErrProviderInit is returned when zone discovery fails.
	ErrProviderInit = errors.New("provider initialization failed")
	// ErrProviderRefresh is returned when fetching records fails. The
	// previous cache is left in place.
	ErrProviderRefresh = errors.New("provider refresh failed")
	// ErrProviderUpdate is returned when either phase of a bulk update fails.
	ErrProviderUpdate = errors.New("provider update failed")
	// ErrNoMatchingNames is returned when none of the names to update is
	// known to the provider.
	ErrNoMatchingNames = errors.New("no matching names")
	// ErrUnresolvedName is returned when no provider has the requested
	// address for a name.
	ErrUnresolvedName = errors.New("unresolved name")
)
