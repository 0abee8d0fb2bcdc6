package mxauth

// Session is the authenticated session handed to the rest of the
// application once registration or login completes.
type Session struct {
	Credentials Credentials
	Homeserver  string
}

// UserID describes the userid operation and its observable behavior.
//
// UserID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.Credentials.UserID
}

// SessionCreator materializes a [Session] from final homeserver credentials.
// It is a pure function of its inputs: calling it twice with the same
// credentials yields two distinct session instances.
type SessionCreator struct{}

// CreateSession describes the createsession operation and its observable behavior.
//
// CreateSession may return an error when input validation, dependency calls, or security checks fail.
// CreateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (SessionCreator) CreateSession(credentials Credentials, homeserver string) *Session {
	if credentials.Homeserver == "" {
		credentials.Homeserver = homeserver
	}
	return &Session{
		Credentials: credentials,
		Homeserver:  homeserver,
	}
}
