package common

import "errors"

// Sentinel errors, tested with errors.Is. CheckWarn (utils.go) is the usual
// way these get logged and swallowed.
var (
	// ErrAddressUnavailable: unicast could not reach the target — the
	// liveness-probe negative signal.
	ErrAddressUnavailable = errors.New("address unavailable")

	// ErrAddressInUse: listener bind failed because the port is taken.
	ErrAddressInUse = errors.New("address in use")

	// ErrDecodeFailure: incoming bytes matched no event tag.
	ErrDecodeFailure = errors.New("decode failure")

	// ErrRegistryUnreachable: a Process's heartbeat found the Registry dead.
	ErrRegistryUnreachable = errors.New("registry unreachable")

	// ErrRegistryUnreachableAtStart: a Process could not register at startup.
	ErrRegistryUnreachableAtStart = errors.New("registry unreachable at start")
)
