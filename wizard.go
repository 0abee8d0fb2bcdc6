package mxauth

import (
	"context"
	"errors"
	"time"
)

// RegistrationWizard drives account creation on the negotiated homeserver.
//
// Common scenario to register an account successfully:
//   - Call RegistrationFlow to check that the application supports all the
//     mandatory registration stages.
//   - Call CreateAccount to start the account creation.
//   - Fulfil the remaining mandatory stages with PerformReCaptcha,
//     AcceptTerms, Dummy, AddThreePID, etc.
//
// The wizard borrows the pending attempt from its owning
// [AuthenticationService]; it must not be used after the service negotiates
// a new flow.
type RegistrationWizard struct {
	client         HomeserverClient
	sessionCreator SessionCreator
	pending        *pendingAuthData
	metrics        *Metrics

	// defaultDeviceDisplayName is used when CreateAccount is called with an
	// empty device name.
	defaultDeviceDisplayName string

	// threePIDValidationDelay is waited before replaying the registration
	// request after a successful code submission, giving the homeserver
	// time to observe the validated session.
	threePIDValidationDelay time.Duration
}

func newRegistrationWizard(client HomeserverClient, pending *pendingAuthData, metrics *Metrics, cfg RegistrationConfig) *RegistrationWizard {
	return &RegistrationWizard{
		client:                   client,
		pending:                  pending,
		metrics:                  metrics,
		defaultDeviceDisplayName: cfg.InitialDeviceDisplayName,
		threePIDValidationDelay:  cfg.ThreePIDValidationDelay,
	}
}

// guardAttempt fails once the owning service has rebound to a new attempt,
// so a retained wizard cannot submit the discarded session against the old
// transport target.
func (w *RegistrationWizard) guardAttempt() error {
	if w.pending.isInvalidated() {
		return ErrFlowNotNegotiated
	}
	return nil
}

// IsRegistrationStarted reports whether username and password have been sent
// to the homeserver with success, i.e. [RegistrationWizard.CreateAccount]
// completed at least once for this attempt.
func (w *RegistrationWizard) IsRegistrationStarted() bool {
	return w.pending.isRegistrationStarted
}

// CurrentThreePID returns the address of the 3PID waiting for validation, or
// "" when none is pending. For phone numbers the server-formatted MSISDN is
// preferred.
func (w *RegistrationWizard) CurrentThreePID() string {
	data := w.pending.currentThreePID
	if data == nil {
		return ""
	}

	if data.ThreePID.Kind == ThreePIDMSISDN && data.Response.FormattedPhone != "" {
		return data.Response.FormattedPhone
	}
	return data.ThreePID.Address
}

// RegistrationFlow probes the homeserver for the registration stages it
// requires. Useful to ensure the application implements every mandatory
// stage before asking the user for credentials; if not, the web fallback
// (see [AuthenticationService.RegistrationFallbackURL]) is the way out.
func (w *RegistrationWizard) RegistrationFlow(ctx context.Context) (*RegistrationResult, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}
	return w.performRegistrationRequest(ctx, RegistrationParameters{}, 0)
}

// RegistrationAvailable checks whether the desired username is available on
// the current homeserver. It may also fail when the username does not follow
// server policy, e.g. usernames with only digits may be rejected.
func (w *RegistrationWizard) RegistrationAvailable(ctx context.Context, username string) (bool, error) {
	if err := w.guardAttempt(); err != nil {
		return false, err
	}
	return w.client.IsUsernameAvailable(ctx, username)
}

// CreateAccount is the first stage call of any attempt: it submits the
// desired username and password. On any completed round-trip, full or
// partial, the attempt is marked started, which arms dummy-stage
// auto-submission. An empty device name falls back to the configured
// [RegistrationConfig.InitialDeviceDisplayName].
func (w *RegistrationWizard) CreateAccount(ctx context.Context, username, password, initialDeviceDisplayName string) (*RegistrationResult, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}

	if initialDeviceDisplayName == "" {
		initialDeviceDisplayName = w.defaultDeviceDisplayName
	}

	params := RegistrationParameters{
		Username:                 username,
		Password:                 password,
		InitialDeviceDisplayName: initialDeviceDisplayName,
	}

	result, err := w.performRegistrationRequest(ctx, params, 0)
	if err != nil {
		return nil, err
	}

	w.pending.isRegistrationStarted = true
	w.metrics.Inc(MetricRegistrationStarted)
	return result, nil
}

// PerformReCaptcha submits the "m.login.recaptcha" stage.
func (w *RegistrationWizard) PerformReCaptcha(ctx context.Context, response string) (*RegistrationResult, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}

	session := w.pending.currentSession
	if session == "" {
		return nil, ErrAccountCreationNotStarted
	}

	params := RegistrationParameters{Auth: captchaParameters(session, response)}
	return w.performRegistrationRequest(ctx, params, 0)
}

// AcceptTerms submits the "m.login.terms" stage.
func (w *RegistrationWizard) AcceptTerms(ctx context.Context) (*RegistrationResult, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}

	session := w.pending.currentSession
	if session == "" {
		return nil, ErrAccountCreationNotStarted
	}

	params := RegistrationParameters{Auth: &AuthenticationParameters{Type: StageTypeTerms, Session: session}}
	return w.performRegistrationRequest(ctx, params, 0)
}

// Dummy submits the "m.login.dummy" stage. It can be mandatory when the
// server offers no other stage; in that case the account cannot be created
// by username and password alone.
func (w *RegistrationWizard) Dummy(ctx context.Context) (*RegistrationResult, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}

	session := w.pending.currentSession
	if session == "" {
		return nil, ErrAccountCreationNotStarted
	}

	params := RegistrationParameters{Auth: &AuthenticationParameters{Type: StageTypeDummy, Session: session}}
	return w.performRegistrationRequest(ctx, params, 0)
}

// performRegistrationRequest is the shared submission primitive of the state
// machine. A non-zero delay suspends once before the round-trip. The
// cancellation gate sits between the suspension point and any mutation of
// the pending attempt.
func (w *RegistrationWizard) performRegistrationRequest(ctx context.Context, params RegistrationParameters, delay time.Duration) (*RegistrationResult, error) {
	if err := sleepCtx(ctx, delay); err != nil {
		return nil, err
	}

	w.metrics.Inc(MetricStageSubmitted)
	start := time.Now()
	credentials, err := w.client.Register(ctx, params)
	w.metrics.Observe(MetricRegisterLatency, time.Since(start))

	if err != nil {
		var flowErr *RegistrationFlowError
		if errors.As(err, &flowErr) {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			w.pending.currentSession = flowErr.AuthSession.Session
			fr := flowResult(flowErr.AuthSession)
			return &RegistrationResult{FlowResult: &fr}, nil
		}
		w.metrics.Inc(MetricStageFailure)
		return nil, err
	}

	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	session := w.sessionCreator.CreateSession(*credentials, w.pending.homeserver)
	w.metrics.Inc(MetricSessionCreated)
	return &RegistrationResult{Session: session}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
