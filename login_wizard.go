package mxauth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	internalprogress "github.com/Physolia/mxauth/internal/progress"
)

// LoginWizard performs direct login against the negotiated homeserver:
// password, token (after SSO), or JWT for homeservers running the Synapse
// JWT extension.
type LoginWizard struct {
	client         HomeserverClient
	sessionCreator SessionCreator
	pending        *pendingAuthData
	metrics        *Metrics

	// emit delivers stage-progress events through the owning service's
	// dispatcher. Nil when the wizard is used standalone.
	emit func(ctx context.Context, event internalprogress.Event)
}

func newLoginWizard(client HomeserverClient, pending *pendingAuthData, metrics *Metrics, emit func(ctx context.Context, event internalprogress.Event)) *LoginWizard {
	return &LoginWizard{
		client:  client,
		pending: pending,
		metrics: metrics,
		emit:    emit,
	}
}

func (w *LoginWizard) guardAttempt() error {
	if w.pending.isInvalidated() {
		return ErrFlowNotNegotiated
	}
	return nil
}

// LoginWithPassword performs an "m.login.password" login.
func (w *LoginWizard) LoginWithPassword(ctx context.Context, username, password, initialDeviceDisplayName string) (*Session, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}

	params := LoginParameters{
		Type:                     StageTypePassword,
		User:                     username,
		Password:                 password,
		InitialDeviceDisplayName: initialDeviceDisplayName,
	}
	return w.performLogin(ctx, params)
}

// LoginWithToken performs an "m.login.token" login, typically with the
// one-time token minted at the end of an SSO redirect.
func (w *LoginWizard) LoginWithToken(ctx context.Context, token string) (*Session, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}

	params := LoginParameters{
		Type:  StageTypeToken,
		Token: token,
	}
	return w.performLogin(ctx, params)
}

// LoginWithJWT performs an "org.matrix.login.jwt" login. The token's
// registered claims are checked locally first so an expired or not-yet-valid
// token fails fast without a round-trip; the signature is the homeserver's
// to verify.
func (w *LoginWizard) LoginWithJWT(ctx context.Context, token string) (*Session, error) {
	if err := w.guardAttempt(); err != nil {
		return nil, err
	}

	if err := checkJWTWindow(token, time.Now()); err != nil {
		w.metrics.Inc(MetricLoginFailure)
		return nil, err
	}

	params := LoginParameters{
		Type:  StageTypeJWT,
		Token: token,
	}
	return w.performLogin(ctx, params)
}

func (w *LoginWizard) performLogin(ctx context.Context, params LoginParameters) (*Session, error) {
	credentials, err := w.client.Login(ctx, params)
	if err != nil {
		w.metrics.Inc(MetricLoginFailure)
		return nil, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	w.metrics.Inc(MetricLoginSuccess)
	w.metrics.Inc(MetricSessionCreated)
	session := w.sessionCreator.CreateSession(*credentials, w.pending.homeserver)

	if w.emit != nil {
		w.emit(ctx, internalprogress.Event{
			EventType:    internalprogress.EventSessionCreated,
			UserID:       session.UserID(),
			IsNewAccount: false,
		})
	}
	return session, nil
}

func checkJWTWindow(token string, now time.Time) error {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: %v", ErrLoginTokenInvalid, err)
	}

	if claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time) {
		return ErrLoginTokenExpired
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return ErrLoginTokenInvalid
	}
	return nil
}
