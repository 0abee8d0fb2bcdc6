package mxauth

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// pendingAuthData is the mutable state of one in-flight registration or
// login attempt. Exactly one instance is live per attempt; negotiation
// restarts replace it wholesale instead of mutating it in place, so stale
// wizard references never observe a half-reset attempt.
type pendingAuthData struct {
	// invalidated is set when the owning service rebinds to a new attempt.
	// Wizards still holding this instance fail instead of submitting the
	// discarded session against the old transport target.
	invalidated atomic.Bool

	attemptID  string
	homeserver string

	// clientSecret correlates 3PID verification requests. Random, stable
	// for the attempt's lifetime.
	clientSecret string

	// sendAttempt increments after every token request and never resets
	// within an attempt, so homeserver replay detection keeps working
	// across resends.
	sendAttempt uint

	// currentSession is the server-issued authentication session id. Set
	// iff the homeserver has returned at least one partial-completion
	// response.
	currentSession string

	// isRegistrationStarted is true once username and password have been
	// accepted by the homeserver. This flag, not currentSession, gates
	// dummy-stage auto-submission.
	isRegistrationStarted bool

	currentThreePID *ThreePIDData
}

func newPendingAuthData(homeserver string) *pendingAuthData {
	return &pendingAuthData{
		attemptID:    uuid.NewString(),
		homeserver:   homeserver,
		clientSecret: uuid.NewString(),
	}
}

func (p *pendingAuthData) invalidate() {
	if p != nil {
		p.invalidated.Store(true)
	}
}

func (p *pendingAuthData) isInvalidated() bool {
	return p != nil && p.invalidated.Load()
}
