package mxauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockHomeserverClient struct {
	mu sync.Mutex

	loginFlows    []LoginFlow
	loginFlowsErr error

	availability map[string]bool

	registerFn     func(ctx context.Context, params RegistrationParameters) (*Credentials, error)
	loginFn        func(ctx context.Context, params LoginParameters) (*Credentials, error)
	requestTokenFn func(ctx context.Context, threePID ThreePID, clientSecret string, sendAttempt uint) (*TokenResponse, error)
	rawRequestFn   func(ctx context.Context, method, url string, body map[string]any) (map[string]any, error)

	getLoginFlowsCalls int
	availableCalls     int
	registerCalls      int
	loginCalls         int
	requestTokenCalls  int
	rawRequestCalls    int

	lastRegisterParams RegistrationParameters
	lastSendAttempts   []uint
	lastRawURL         string
}

func (m *mockHomeserverClient) GetLoginFlows(context.Context) ([]LoginFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getLoginFlowsCalls++
	if m.loginFlowsErr != nil {
		return nil, m.loginFlowsErr
	}
	return m.loginFlows, nil
}

func (m *mockHomeserverClient) IsUsernameAvailable(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.availableCalls++
	available, ok := m.availability[username]
	if !ok {
		return false, errors.New("unexpected username")
	}
	return available, nil
}

func (m *mockHomeserverClient) Register(ctx context.Context, params RegistrationParameters) (*Credentials, error) {
	m.mu.Lock()
	m.registerCalls++
	m.lastRegisterParams = params
	fn := m.registerFn
	m.mu.Unlock()

	if fn == nil {
		return nil, errors.New("register not stubbed")
	}
	return fn(ctx, params)
}

func (m *mockHomeserverClient) Login(ctx context.Context, params LoginParameters) (*Credentials, error) {
	m.mu.Lock()
	m.loginCalls++
	fn := m.loginFn
	m.mu.Unlock()

	if fn == nil {
		return nil, errors.New("login not stubbed")
	}
	return fn(ctx, params)
}

func (m *mockHomeserverClient) RequestToken(ctx context.Context, threePID ThreePID, clientSecret string, sendAttempt uint) (*TokenResponse, error) {
	m.mu.Lock()
	m.requestTokenCalls++
	m.lastSendAttempts = append(m.lastSendAttempts, sendAttempt)
	fn := m.requestTokenFn
	m.mu.Unlock()

	if fn == nil {
		return nil, errors.New("requestToken not stubbed")
	}
	return fn(ctx, threePID, clientSecret, sendAttempt)
}

func (m *mockHomeserverClient) RawRequest(ctx context.Context, method, url string, body map[string]any) (map[string]any, error) {
	m.mu.Lock()
	m.rawRequestCalls++
	m.lastRawURL = url
	fn := m.rawRequestFn
	m.mu.Unlock()

	if fn == nil {
		return nil, errors.New("rawRequest not stubbed")
	}
	return fn(ctx, method, url, body)
}

func flowErrorOf(session string, completed []string, flows ...[]string) *RegistrationFlowError {
	auth := AuthenticationSession{
		Session:   session,
		Completed: completed,
	}
	for _, stages := range flows {
		auth.Flows = append(auth.Flows, AuthFlow{Stages: stages})
	}
	return &RegistrationFlowError{AuthSession: auth}
}

func newTestWizard(t *testing.T, client *mockHomeserverClient) *RegistrationWizard {
	t.Helper()

	pending := newPendingAuthData("https://example.org")
	return newRegistrationWizard(client, pending, NewMetrics(MetricsConfig{Enabled: true}), RegistrationConfig{})
}

func TestCreateAccountAppliesConfiguredDeviceName(t *testing.T) {
	client := &mockHomeserverClient{
		registerFn: func(context.Context, RegistrationParameters) (*Credentials, error) {
			return &Credentials{UserID: "@alice:example.org", AccessToken: "tok"}, nil
		},
	}
	pending := newPendingAuthData("https://example.org")
	wizard := newRegistrationWizard(client, pending, NewMetrics(MetricsConfig{}), RegistrationConfig{
		InitialDeviceDisplayName: "My Device",
	})

	if _, err := wizard.CreateAccount(context.Background(), "alice", "pw", ""); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if got := client.lastRegisterParams.InitialDeviceDisplayName; got != "My Device" {
		t.Fatalf("expected configured device name in register payload, got %q", got)
	}

	// An explicit device name wins over the configured default.
	if _, err := wizard.CreateAccount(context.Background(), "alice", "pw", "laptop"); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if got := client.lastRegisterParams.InitialDeviceDisplayName; got != "laptop" {
		t.Fatalf("expected explicit device name to win, got %q", got)
	}
}

func TestCreateAccountPartialResponseStoresSession(t *testing.T) {
	client := &mockHomeserverClient{
		registerFn: func(context.Context, RegistrationParameters) (*Credentials, error) {
			return nil, flowErrorOf("sess-1", nil,
				[]string{StageTypeTerms, StageTypeDummy})
		},
	}
	wizard := newTestWizard(t, client)

	result, err := wizard.CreateAccount(context.Background(), "alice", "correct-horse", "laptop")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if result.Completed() {
		t.Fatal("expected partial result, got completed session")
	}
	if wizard.pending.currentSession != "sess-1" {
		t.Fatalf("expected session sess-1, got %q", wizard.pending.currentSession)
	}
	if !wizard.IsRegistrationStarted() {
		t.Fatal("expected registration to be marked started")
	}
	if got := len(result.FlowResult.MissingStages); got != 2 {
		t.Fatalf("expected 2 missing stages, got %d", got)
	}
}

func TestCreateAccountTransportErrorLeavesStateUnchanged(t *testing.T) {
	transportErr := errors.New("connection refused")
	client := &mockHomeserverClient{
		registerFn: func(context.Context, RegistrationParameters) (*Credentials, error) {
			return nil, transportErr
		},
	}
	wizard := newTestWizard(t, client)

	_, err := wizard.CreateAccount(context.Background(), "alice", "correct-horse", "")
	if !errors.Is(err, transportErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if wizard.pending.currentSession != "" {
		t.Fatal("expected no session after transport failure")
	}
	if wizard.IsRegistrationStarted() {
		t.Fatal("expected registration not started after transport failure")
	}
}

func TestStageCallsRequireAccountCreation(t *testing.T) {
	client := &mockHomeserverClient{}
	wizard := newTestWizard(t, client)
	ctx := context.Background()

	if _, err := wizard.PerformReCaptcha(ctx, "response"); !errors.Is(err, ErrAccountCreationNotStarted) {
		t.Fatalf("PerformReCaptcha: expected ErrAccountCreationNotStarted, got %v", err)
	}
	if _, err := wizard.AcceptTerms(ctx); !errors.Is(err, ErrAccountCreationNotStarted) {
		t.Fatalf("AcceptTerms: expected ErrAccountCreationNotStarted, got %v", err)
	}
	if _, err := wizard.Dummy(ctx); !errors.Is(err, ErrAccountCreationNotStarted) {
		t.Fatalf("Dummy: expected ErrAccountCreationNotStarted, got %v", err)
	}
	if _, err := wizard.AddThreePID(ctx, ThreePID{Kind: ThreePIDEmail, Address: "a@b.c"}); !errors.Is(err, ErrAccountCreationNotStarted) {
		t.Fatalf("AddThreePID: expected ErrAccountCreationNotStarted, got %v", err)
	}
	if client.registerCalls != 0 {
		t.Fatalf("expected no register calls, got %d", client.registerCalls)
	}
}

func TestPerformReCaptchaSendsStageTypedAuth(t *testing.T) {
	client := &mockHomeserverClient{
		registerFn: func(_ context.Context, params RegistrationParameters) (*Credentials, error) {
			return &Credentials{UserID: "@alice:example.org", AccessToken: "tok"}, nil
		},
	}
	wizard := newTestWizard(t, client)
	wizard.pending.currentSession = "sess-1"

	result, err := wizard.PerformReCaptcha(context.Background(), "captcha-proof")
	if err != nil {
		t.Fatalf("PerformReCaptcha failed: %v", err)
	}
	if !result.Completed() {
		t.Fatal("expected completed result")
	}

	auth := client.lastRegisterParams.Auth
	if auth == nil || auth.Type != StageTypeRecaptcha {
		t.Fatalf("expected recaptcha auth payload, got %+v", auth)
	}
	if auth.Session != "sess-1" {
		t.Fatalf("expected session sess-1, got %q", auth.Session)
	}
	if auth.CaptchaResponse != "captcha-proof" {
		t.Fatalf("expected captcha response to be forwarded, got %q", auth.CaptchaResponse)
	}
}

func TestRegistrationCompletionMaterializesSession(t *testing.T) {
	client := &mockHomeserverClient{
		registerFn: func(context.Context, RegistrationParameters) (*Credentials, error) {
			return &Credentials{UserID: "@alice:example.org", AccessToken: "tok", DeviceID: "DEV"}, nil
		},
	}
	wizard := newTestWizard(t, client)
	wizard.pending.currentSession = "sess-1"

	result, err := wizard.Dummy(context.Background())
	if err != nil {
		t.Fatalf("Dummy failed: %v", err)
	}
	if !result.Completed() {
		t.Fatal("expected completed result")
	}
	if result.Session.UserID() != "@alice:example.org" {
		t.Fatalf("unexpected user id %q", result.Session.UserID())
	}
	if result.Session.Homeserver != "https://example.org" {
		t.Fatalf("expected negotiated homeserver on session, got %q", result.Session.Homeserver)
	}
	if result.Session.Credentials.Homeserver != "https://example.org" {
		t.Fatal("expected credentials homeserver to default to the negotiated one")
	}
}

func TestCancellationAfterRoundTripLeavesPendingUnmodified(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockHomeserverClient{
		registerFn: func(context.Context, RegistrationParameters) (*Credentials, error) {
			// Cancel between the transport suspension and the mutation gate.
			cancel()
			return nil, flowErrorOf("sess-late", nil, []string{StageTypeDummy})
		},
	}
	wizard := newTestWizard(t, client)

	_, err := wizard.CreateAccount(ctx, "alice", "correct-horse", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if wizard.pending.currentSession != "" {
		t.Fatal("expected cancelled step not to store the session")
	}
	if wizard.IsRegistrationStarted() {
		t.Fatal("expected cancelled step not to mark registration started")
	}
}

func TestRegistrationAvailableDelegates(t *testing.T) {
	client := &mockHomeserverClient{
		availability: map[string]bool{"alice": true, "bob": false},
	}
	wizard := newTestWizard(t, client)
	ctx := context.Background()

	available, err := wizard.RegistrationAvailable(ctx, "alice")
	if err != nil || !available {
		t.Fatalf("expected alice available, got %v / %v", available, err)
	}
	available, err = wizard.RegistrationAvailable(ctx, "bob")
	if err != nil || available {
		t.Fatalf("expected bob taken, got %v / %v", available, err)
	}
	if _, err := wizard.RegistrationAvailable(ctx, "charlie"); err == nil {
		t.Fatal("expected error for disallowed username")
	}
}

func TestRetryAfterFailureStaysOnSameAttempt(t *testing.T) {
	attempts := 0
	client := &mockHomeserverClient{
		registerFn: func(context.Context, RegistrationParameters) (*Credentials, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("transient")
			}
			return &Credentials{UserID: "@alice:example.org", AccessToken: "tok"}, nil
		},
	}
	wizard := newTestWizard(t, client)
	wizard.pending.currentSession = "sess-1"
	secret := wizard.pending.clientSecret

	if _, err := wizard.AcceptTerms(context.Background()); err == nil {
		t.Fatal("expected first attempt to fail")
	}

	result, err := wizard.AcceptTerms(context.Background())
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !result.Completed() {
		t.Fatal("expected retry to complete")
	}
	if wizard.pending.clientSecret != secret {
		t.Fatal("expected client secret to be stable across retries")
	}
}

func TestSleepCtxRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepCtx(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	start := time.Now()
	if err := sleepCtx(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("sleepCtx failed: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("expected sleepCtx to wait the full delay")
	}
}
