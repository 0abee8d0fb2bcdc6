package mxauth

import (
	"context"
	"time"
)

// AddThreePID submits the "m.login.email.identity" or "m.login.msisdn"
// stage. The homeserver sends a validation email or SMS to the given
// address; any previously pending 3PID is discarded first.
func (w *RegistrationWizard) AddThreePID(ctx context.Context, threePID ThreePID) (*RegistrationResult, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}

	w.pending.currentThreePID = nil
	return w.sendThreePID(ctx, threePID)
}

// SendAgainThreePID asks the homeserver to resend the validation message for
// the currently pending 3PID.
func (w *RegistrationWizard) SendAgainThreePID(ctx context.Context) (*RegistrationResult, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}

	data := w.pending.currentThreePID
	if data == nil {
		return nil, ErrNoPendingThreePID
	}
	return w.sendThreePID(ctx, data.ThreePID)
}

// ValidateThreePIDCode submits the code received by SMS to the server-issued
// submission endpoint. When the code is accepted, the stored registration
// request is replayed to complete the msisdn stage.
func (w *RegistrationWizard) ValidateThreePIDCode(ctx context.Context, code string) (*RegistrationResult, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}

	data := w.pending.currentThreePID
	if data == nil {
		return nil, ErrNoPendingThreePID
	}
	if data.Response.SubmitURL == "" {
		return nil, ErrMissingVerificationURL
	}

	body := map[string]any{
		"client_secret": w.pending.clientSecret,
		"sid":           data.Response.SessionID,
		"token":         code,
	}

	// The submit URL is absolute and outside the client-server API prefix.
	response, err := w.client.RawRequest(ctx, "POST", data.Response.SubmitURL, body)
	if err != nil {
		return nil, err
	}

	if success, ok := response["success"].(bool); !ok || !success {
		w.metrics.Inc(MetricThreePIDValidationFailure)
		return nil, ErrThreePIDValidationFailed
	}

	// The code was correct; replay the stored parameters the same way a
	// validated email does, after a grace delay.
	return w.performRegistrationRequest(ctx, data.Params, w.threePIDValidationDelay)
}

// CheckEmailValidated polls the homeserver while waiting for the user to
// click the validation link. A non-zero delay suspends once before the
// request; callers invoke this repeatedly until it stops returning a flow
// response with the email stage still missing.
func (w *RegistrationWizard) CheckEmailValidated(ctx context.Context, delay time.Duration) (*RegistrationResult, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}

	data := w.pending.currentThreePID
	if data == nil {
		return nil, ErrNoPendingThreePID
	}

	w.metrics.Inc(MetricEmailValidationPoll)
	return w.performRegistrationRequest(ctx, data.Params, delay)
}

func (w *RegistrationWizard) sendThreePID(ctx context.Context, threePID ThreePID) (*RegistrationResult, error) {
	session := w.pending.currentSession
	if session == "" {
		return nil, ErrAccountCreationNotStarted
	}

	response, err := w.client.RequestToken(ctx, threePID, w.pending.clientSecret, w.pending.sendAttempt)
	if err != nil {
		return nil, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	w.pending.sendAttempt++
	w.metrics.Inc(MetricThreePIDTokenRequested)

	creds := ThreePIDCredentials{
		ClientSecret: w.pending.clientSecret,
		SessionID:    response.SessionID,
	}

	var auth *AuthenticationParameters
	switch threePID.Kind {
	case ThreePIDMSISDN:
		auth = msisdnIdentityParameters(session, creds)
	default:
		auth = emailIdentityParameters(session, creds)
	}

	params := RegistrationParameters{Auth: auth}
	w.pending.currentThreePID = &ThreePIDData{
		ThreePID: threePID,
		Response: *response,
		Params:   params,
	}

	// Send the session id for the first time.
	return w.performRegistrationRequest(ctx, params, 0)
}
