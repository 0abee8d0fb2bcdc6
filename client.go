package mxauth

import "context"

// HomeserverClient is the transport interface the engine drives. The default
// HTTP implementation lives in the restclient subpackage; tests substitute
// their own.
//
// Register must return a [*RegistrationFlowError] when the homeserver answers
// with a 401-style body carrying a renewed authentication session; any other
// failure is treated as opaque and surfaced unchanged.
type HomeserverClient interface {
	// GetLoginFlows fetches the supported login flows for the homeserver.
	GetLoginFlows(ctx context.Context) ([]LoginFlow, error)

	// IsUsernameAvailable checks whether the username can still be
	// registered. Malformed or disallowed usernames fail with an error,
	// never a default availability.
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)

	// Register performs one registration request with the accumulated
	// authentication payload.
	Register(ctx context.Context, params RegistrationParameters) (*Credentials, error)

	// Login performs a direct login request (password, token, or JWT).
	Login(ctx context.Context, params LoginParameters) (*Credentials, error)

	// RequestToken asks the homeserver to open a 3PID verification session
	// (email message or SMS).
	RequestToken(ctx context.Context, threePID ThreePID, clientSecret string, sendAttempt uint) (*TokenResponse, error)

	// RawRequest issues a request against an absolute URL outside the
	// client-server API prefix. Used only for the server-issued 3PID code
	// submission endpoint.
	RawRequest(ctx context.Context, method, url string, body map[string]any) (map[string]any, error)
}

// ClientFactory builds a [HomeserverClient] for a normalized homeserver URL.
// Flow negotiation calls it every time the transport target changes, passing
// the service's configured transport settings.
type ClientFactory func(homeserver string, transport TransportConfig) (HomeserverClient, error)

// RegistrationFlowError is the partial-completion outcome of a registration
// request: the homeserver rejected the call with a renewed authentication
// session describing the stages still required. It is not a failure of the
// attempt.
type RegistrationFlowError struct {
	AuthSession AuthenticationSession
}

// Error describes the error operation and its observable behavior.
//
// Error does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *RegistrationFlowError) Error() string {
	return "registration requires additional stages"
}
