package mxauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestLoginWizard(t *testing.T, client *mockHomeserverClient) *LoginWizard {
	t.Helper()

	pending := newPendingAuthData("https://example.org")
	return newLoginWizard(client, pending, NewMetrics(MetricsConfig{Enabled: true}), nil)
}

func signedTestJWT(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return token
}

func TestLoginWithPasswordMaterializesSession(t *testing.T) {
	client := &mockHomeserverClient{
		loginFn: func(_ context.Context, params LoginParameters) (*Credentials, error) {
			if params.Type != StageTypePassword {
				t.Fatalf("expected password login type, got %q", params.Type)
			}
			if params.User != "alice" || params.Password != "correct-horse" {
				t.Fatalf("unexpected credentials %q / %q", params.User, params.Password)
			}
			return &Credentials{UserID: "@alice:example.org", AccessToken: "tok", DeviceID: "DEV"}, nil
		},
	}
	wizard := newTestLoginWizard(t, client)

	session, err := wizard.LoginWithPassword(context.Background(), "alice", "correct-horse", "laptop")
	if err != nil {
		t.Fatalf("LoginWithPassword failed: %v", err)
	}
	if session.UserID() != "@alice:example.org" {
		t.Fatalf("unexpected user id %q", session.UserID())
	}
	if session.Homeserver != "https://example.org" {
		t.Fatalf("expected negotiated homeserver, got %q", session.Homeserver)
	}
}

func TestLoginWithTokenSendsTokenType(t *testing.T) {
	client := &mockHomeserverClient{
		loginFn: func(_ context.Context, params LoginParameters) (*Credentials, error) {
			if params.Type != StageTypeToken {
				t.Fatalf("expected token login type, got %q", params.Type)
			}
			if params.Token != "sso-token" {
				t.Fatalf("expected token to be forwarded, got %q", params.Token)
			}
			return &Credentials{UserID: "@alice:example.org", AccessToken: "tok"}, nil
		},
	}
	wizard := newTestLoginWizard(t, client)

	if _, err := wizard.LoginWithToken(context.Background(), "sso-token"); err != nil {
		t.Fatalf("LoginWithToken failed: %v", err)
	}
}

func TestLoginWithJWTExpiredFailsWithoutTransportCall(t *testing.T) {
	client := &mockHomeserverClient{}
	wizard := newTestLoginWizard(t, client)

	token := signedTestJWT(t, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})

	if _, err := wizard.LoginWithJWT(context.Background(), token); !errors.Is(err, ErrLoginTokenExpired) {
		t.Fatalf("expected ErrLoginTokenExpired, got %v", err)
	}
	if client.loginCalls != 0 {
		t.Fatalf("expected no transport call for expired token, got %d", client.loginCalls)
	}
}

func TestLoginWithJWTNotYetValidRejected(t *testing.T) {
	client := &mockHomeserverClient{}
	wizard := newTestLoginWizard(t, client)

	token := signedTestJWT(t, jwt.RegisteredClaims{
		NotBefore: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * time.Hour)),
	})

	if _, err := wizard.LoginWithJWT(context.Background(), token); !errors.Is(err, ErrLoginTokenInvalid) {
		t.Fatalf("expected ErrLoginTokenInvalid, got %v", err)
	}
	if client.loginCalls != 0 {
		t.Fatalf("expected no transport call, got %d", client.loginCalls)
	}
}

func TestLoginWithJWTMalformedRejected(t *testing.T) {
	client := &mockHomeserverClient{}
	wizard := newTestLoginWizard(t, client)

	if _, err := wizard.LoginWithJWT(context.Background(), "not-a-jwt"); !errors.Is(err, ErrLoginTokenInvalid) {
		t.Fatalf("expected ErrLoginTokenInvalid, got %v", err)
	}
	if client.loginCalls != 0 {
		t.Fatalf("expected no transport call, got %d", client.loginCalls)
	}
}

func TestLoginWithJWTValidWindowReachesTransport(t *testing.T) {
	client := &mockHomeserverClient{
		loginFn: func(_ context.Context, params LoginParameters) (*Credentials, error) {
			if params.Type != StageTypeJWT {
				t.Fatalf("expected jwt login type, got %q", params.Type)
			}
			return &Credentials{UserID: "@alice:example.org", AccessToken: "tok"}, nil
		},
	}
	wizard := newTestLoginWizard(t, client)

	token := signedTestJWT(t, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	session, err := wizard.LoginWithJWT(context.Background(), token)
	if err != nil {
		t.Fatalf("LoginWithJWT failed: %v", err)
	}
	if session == nil || session.UserID() != "@alice:example.org" {
		t.Fatal("expected materialized session")
	}
	if client.loginCalls != 1 {
		t.Fatalf("expected one transport call, got %d", client.loginCalls)
	}
}

func TestLoginFailureSurfacesError(t *testing.T) {
	loginErr := errors.New("M_FORBIDDEN")
	client := &mockHomeserverClient{
		loginFn: func(context.Context, LoginParameters) (*Credentials, error) {
			return nil, loginErr
		},
	}
	wizard := newTestLoginWizard(t, client)

	if _, err := wizard.LoginWithPassword(context.Background(), "alice", "wrong", ""); !errors.Is(err, loginErr) {
		t.Fatalf("expected login error to surface, got %v", err)
	}
}
