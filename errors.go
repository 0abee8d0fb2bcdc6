package mxauth

import "errors"

var (
	// ErrInvalidHomeserver is an exported constant or variable used by the authentication engine.
	ErrInvalidHomeserver = errors.New("invalid homeserver address")
	// ErrFlowNotNegotiated is an exported constant or variable used by the authentication engine.
	ErrFlowNotNegotiated = errors.New("login flow not negotiated")
	// ErrAccountCreationNotStarted is an exported constant or variable used by the authentication engine.
	ErrAccountCreationNotStarted = errors.New("account creation not started")
	// ErrNoPendingThreePID is an exported constant or variable used by the authentication engine.
	ErrNoPendingThreePID = errors.New("no pending threepid request")
	// ErrMissingVerificationURL is an exported constant or variable used by the authentication engine.
	ErrMissingVerificationURL = errors.New("threepid response missing submit url")
	// ErrThreePIDValidationFailed is an exported constant or variable used by the authentication engine.
	ErrThreePIDValidationFailed = errors.New("threepid validation code rejected")
	// ErrDecodingFailure is an exported constant or variable used by the authentication engine.
	ErrDecodingFailure = errors.New("response decoding failed")
	// ErrTransportFailure is an exported constant or variable used by the authentication engine.
	ErrTransportFailure = errors.New("homeserver transport failure")
	// ErrSubmissionInFlight is an exported constant or variable used by the authentication engine.
	ErrSubmissionInFlight = errors.New("stage submission already in flight")
	// ErrLoginTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrLoginTokenInvalid = errors.New("invalid login token")
	// ErrLoginTokenExpired is an exported constant or variable used by the authentication engine.
	ErrLoginTokenExpired = errors.New("login token expired")
	// ErrNoPersistedAttempt is an exported constant or variable used by the authentication engine.
	ErrNoPersistedAttempt = errors.New("persisted registration attempt not found")
	// ErrPendingStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrPendingStoreUnavailable = errors.New("pending attempt store unavailable")
	// ErrServiceNotReady is an exported constant or variable used by the authentication engine.
	ErrServiceNotReady = errors.New("service not initialized")
)
