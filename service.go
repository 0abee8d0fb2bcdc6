package mxauth

import (
	"context"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	internalprogress "github.com/Physolia/mxauth/internal/progress"
)

// AuthenticationService is the root façade of the library. It owns the
// negotiated transport target, the pending attempt shared by both wizards,
// the progress-event dispatcher, and the metrics sink.
//
// Common scenario:
//   - Call LoginFlow with the user-typed homeserver to negotiate the
//     transport target and learn the supported login flows.
//   - Obtain a RegistrationWizard or LoginWizard and drive it.
//   - Call Close when the service is no longer needed.
//
// All methods are safe for concurrent use. Stage submissions are additionally
// single-flight: a second submission while one is in flight fails with
// [ErrSubmissionInFlight] instead of queueing.
type AuthenticationService struct {
	cfg            Config
	clientFactory  ClientFactory
	fixedClient    HomeserverClient
	sessionCreator SessionCreator
	metrics        *Metrics
	dispatcher     *progressDispatcher
	pendingStore   *pendingAttemptStore

	mu                 sync.Mutex
	client             HomeserverClient
	pending            *pendingAuthData
	registrationWizard *RegistrationWizard
	loginWizard        *LoginWizard

	busy atomic.Bool
}

// RegistrationStep is one unit of work executed under the service's
// single-flight guard, typically a closure over one wizard method.
type RegistrationStep func(ctx context.Context, wizard *RegistrationWizard) (*RegistrationResult, error)

// LoginFlow negotiates the transport target. The input is normalized (scheme
// defaulted to https, trailing slash removed) and the homeserver is probed
// for its supported login flows. An empty input falls back to the configured
// default homeserver.
//
// Negotiation is destructive: any pending registration attempt is discarded
// and both wizards are rebuilt against the new target, with a fresh attempt
// id and client secret.
func (s *AuthenticationService) LoginFlow(ctx context.Context, homeserver string) (*LoginFlowResult, error) {
	if s == nil {
		return nil, ErrServiceNotReady
	}

	if homeserver == "" {
		homeserver = s.cfg.Homeserver.Default
	}

	normalized, err := normalizeHomeserver(homeserver)
	if err != nil {
		s.metrics.Inc(MetricFlowNegotiationFailure)
		return nil, err
	}

	client, err := s.buildClient(normalized)
	if err != nil {
		s.metrics.Inc(MetricFlowNegotiationFailure)
		return nil, err
	}

	flows, err := client.GetLoginFlows(ctx)
	if err != nil {
		s.metrics.Inc(MetricFlowNegotiationFailure)
		return nil, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	s.mu.Lock()
	s.pending.invalidate()
	s.client = client
	s.pending = newPendingAuthData(normalized)
	s.registrationWizard = newRegistrationWizard(client, s.pending, s.metrics, s.cfg.Registration)
	s.loginWizard = newLoginWizard(client, s.pending, s.metrics, s.emit)
	s.mu.Unlock()

	s.metrics.Inc(MetricFlowNegotiated)
	return buildLoginFlowResult(normalized, flows), nil
}

func (s *AuthenticationService) buildClient(homeserver string) (HomeserverClient, error) {
	if s.fixedClient != nil {
		return s.fixedClient, nil
	}
	return s.clientFactory(homeserver, s.cfg.Transport)
}

// RegistrationWizard returns the wizard bound to the current attempt, or
// [ErrFlowNotNegotiated] before the first successful LoginFlow call.
func (s *AuthenticationService) RegistrationWizard() (*RegistrationWizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registrationWizard == nil {
		return nil, ErrFlowNotNegotiated
	}
	return s.registrationWizard, nil
}

// LoginWizard returns the wizard bound to the current attempt, or
// [ErrFlowNotNegotiated] before the first successful LoginFlow call.
func (s *AuthenticationService) LoginWizard() (*LoginWizard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loginWizard == nil {
		return nil, ErrFlowNotNegotiated
	}
	return s.loginWizard, nil
}

// IsRegistrationStarted reports whether the current attempt has sent its
// username and password to the homeserver with success.
func (s *AuthenticationService) IsRegistrationStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending != nil && s.pending.isRegistrationStarted
}

// RunRegistrationStep executes one stage submission under the single-flight
// guard, emits progress events around it, and auto-submits a mandatory dummy
// stage when the flow requires one and account creation has started.
//
// A dummy auto-submission failure is returned to the caller unchanged; the
// partial flow result it would have completed is not a substitute for knowing
// the attempt is stuck.
//
// When ctx is cancelled the step result is discarded, the pending attempt is
// left untouched by the gate inside the wizard, and no completion event is
// emitted.
func (s *AuthenticationService) RunRegistrationStep(ctx context.Context, step RegistrationStep) (*RegistrationResult, error) {
	wizard, err := s.RegistrationWizard()
	if err != nil {
		return nil, err
	}

	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInFlight
	}
	defer s.busy.Store(false)

	s.emit(ctx, internalprogress.Event{EventType: internalprogress.EventStartLoading})
	defer s.emit(ctx, internalprogress.Event{EventType: internalprogress.EventStopLoading})

	result, err := step(ctx, wizard)

	if err == nil && result != nil && result.FlowResult != nil &&
		result.FlowResult.HasMandatoryDummy() &&
		wizard.IsRegistrationStarted() && s.cfg.Registration.AutoDummy {
		s.metrics.Inc(MetricDummyAutoSubmitted)
		result, err = wizard.Dummy(ctx)
	}

	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	if err != nil {
		s.emit(ctx, internalprogress.Event{
			EventType: internalprogress.EventStageFailure,
			Error:     err.Error(),
		})
		return nil, err
	}

	switch {
	case result.Completed():
		s.emit(ctx, internalprogress.Event{
			EventType:    internalprogress.EventSessionCreated,
			UserID:       result.Session.UserID(),
			IsNewAccount: true,
		})
	case result.FlowResult != nil:
		s.emit(ctx, internalprogress.Event{
			EventType: internalprogress.EventMissingStagesChanged,
			Missing:   stageIdentifiers(result.FlowResult.MissingStages),
			Completed: stageIdentifiers(result.FlowResult.CompletedStages),
		})
	}

	return result, nil
}

// CancelPendingRegistration abandons the in-flight attempt but keeps the
// negotiated homeserver: the pending data is replaced with a fresh attempt id
// and client secret and both wizards are rebound. Any persisted copy of the
// abandoned attempt is deleted best-effort.
func (s *AuthenticationService) CancelPendingRegistration(ctx context.Context) error {
	s.mu.Lock()

	if s.pending == nil {
		s.mu.Unlock()
		return ErrFlowNotNegotiated
	}

	stale := s.pending.attemptID
	s.pending.invalidate()
	s.pending = newPendingAuthData(s.pending.homeserver)
	s.registrationWizard = newRegistrationWizard(s.client, s.pending, s.metrics, s.cfg.Registration)
	s.loginWizard = newLoginWizard(s.client, s.pending, s.metrics, s.emit)
	s.mu.Unlock()

	if s.pendingStore != nil {
		if err := s.pendingStore.Delete(ctx, stale); err != nil {
			log.Print("mxauth: failed to delete persisted attempt: ", err)
		}
	}

	return nil
}

// Reset drops everything: the negotiated homeserver, the transport client,
// the pending attempt, and both wizards. The service returns to its
// pre-negotiation state.
func (s *AuthenticationService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.invalidate()
	s.client = nil
	s.pending = nil
	s.registrationWizard = nil
	s.loginWizard = nil
}

// MakeSessionFromSSO materializes a session from credentials obtained through
// an SSO completion outside this library (web view redirect). The negotiated
// homeserver is attached to the session and a session_created progress event
// is emitted for an existing account.
func (s *AuthenticationService) MakeSessionFromSSO(ctx context.Context, credentials Credentials) (*Session, error) {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return nil, ErrFlowNotNegotiated
	}
	homeserver := s.pending.homeserver
	s.mu.Unlock()

	s.metrics.Inc(MetricSessionCreated)
	session := s.sessionCreator.CreateSession(credentials, homeserver)

	s.emit(ctx, internalprogress.Event{
		EventType:    internalprogress.EventSessionCreated,
		UserID:       session.UserID(),
		IsNewAccount: false,
	})
	return session, nil
}

// RegistrationFallbackURL returns the homeserver's static web registration
// page, the escape hatch when the application does not implement every
// mandatory stage.
func (s *AuthenticationService) RegistrationFallbackURL() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return "", ErrFlowNotNegotiated
	}
	return s.pending.homeserver + "/_matrix/static/client/register/", nil
}

// StageFallbackURL returns the web fallback page for a single stage of the
// current authentication session. It requires a server session, i.e. account
// creation must have produced at least one partial response.
func (s *AuthenticationService) StageFallbackURL(stageType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return "", ErrFlowNotNegotiated
	}
	if s.pending.currentSession == "" {
		return "", ErrAccountCreationNotStarted
	}

	return s.pending.homeserver +
		"/_matrix/client/v3/auth/" + url.PathEscape(stageType) +
		"/fallback/web?session=" + url.QueryEscape(s.pending.currentSession), nil
}

// PersistPendingRegistration saves the current attempt to the configured
// store and returns the attempt id the caller must keep to restore it later.
func (s *AuthenticationService) PersistPendingRegistration(ctx context.Context) (string, error) {
	if s.pendingStore == nil {
		return "", ErrPendingStoreUnavailable
	}

	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()

	if pending == nil {
		return "", ErrFlowNotNegotiated
	}

	if err := s.pendingStore.Save(ctx, pending); err != nil {
		return "", err
	}
	return pending.attemptID, nil
}

// RestorePendingRegistration loads a previously persisted attempt and rebinds
// the service to it, rebuilding the transport client for the attempt's
// homeserver. When attemptID is empty the id attached to ctx via
// [WithAttemptID] is used.
func (s *AuthenticationService) RestorePendingRegistration(ctx context.Context, attemptID string) error {
	if s.pendingStore == nil {
		return ErrPendingStoreUnavailable
	}

	if attemptID == "" {
		attemptID = attemptIDFromContext(ctx)
	}
	if attemptID == "" {
		return ErrNoPersistedAttempt
	}

	pending, err := s.pendingStore.Load(ctx, attemptID)
	if err != nil {
		return err
	}

	client, err := s.buildClient(pending.homeserver)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.pending.invalidate()
	s.client = client
	s.pending = pending
	s.registrationWizard = newRegistrationWizard(client, pending, s.metrics, s.cfg.Registration)
	s.loginWizard = newLoginWizard(client, pending, s.metrics, s.emit)
	s.mu.Unlock()

	return nil
}

// ClearPersistedRegistration deletes a persisted attempt without touching the
// live one.
func (s *AuthenticationService) ClearPersistedRegistration(ctx context.Context, attemptID string) error {
	if s.pendingStore == nil {
		return ErrPendingStoreUnavailable
	}
	if attemptID == "" {
		attemptID = attemptIDFromContext(ctx)
	}
	if attemptID == "" {
		return ErrNoPersistedAttempt
	}

	return s.pendingStore.Delete(ctx, attemptID)
}

// MetricsSnapshot returns a point-in-time copy of every counter and
// histogram. Exporters in metrics/export consume this.
func (s *AuthenticationService) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// EventsDropped reports how many progress events were discarded because the
// dispatcher buffer was full.
func (s *AuthenticationService) EventsDropped() uint64 {
	return s.dispatcher.Dropped()
}

// Close drains and stops the progress dispatcher. The service must not be
// used afterwards. Close is idempotent.
func (s *AuthenticationService) Close() {
	s.dispatcher.Close()
}

func (s *AuthenticationService) emit(ctx context.Context, event internalprogress.Event) {
	if s.dispatcher == nil {
		return
	}

	event.Timestamp = time.Now().UTC()

	s.mu.Lock()
	if s.pending != nil {
		event.AttemptID = s.pending.attemptID
		event.Homeserver = s.pending.homeserver
	}
	s.mu.Unlock()

	s.dispatcher.Emit(ctx, event)
}

func stageIdentifiers(stages []Stage) []string {
	if len(stages) == 0 {
		return nil
	}

	ids := make([]string, 0, len(stages))
	for _, stage := range stages {
		ids = append(ids, stage.Type)
	}
	return ids
}
