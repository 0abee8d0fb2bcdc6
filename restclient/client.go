package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	mxauth "github.com/Physolia/mxauth"
)

const (
	apiPrefix = "/_matrix/client/v3"

	// Matrix error codes relevant to this client.
	codeUserInUse = "M_USER_IN_USE"
)

// Options configure the HTTP transport behind a [Client].
type Options struct {
	// Timeout bounds each request when HTTPClient is nil.
	Timeout time.Duration

	// UserAgent is sent with every request. Defaults to "mxauth".
	UserAgent string

	// HTTPClient replaces the default client entirely. Timeout is ignored
	// when set.
	HTTPClient *http.Client
}

// Client is the default [mxauth.HomeserverClient] over net/http against the
// Matrix client-server API.
type Client struct {
	homeserver string
	httpClient *http.Client
	userAgent  string
}

// MatrixError is a standard Matrix error body, decoded from any non-2xx
// response that is not a flow renewal.
type MatrixError struct {
	Code       string `json:"errcode"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
}

// Error describes the error operation and its observable behavior.
//
// Error does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix error %s: %s (HTTP %d)", e.Code, e.Message, e.StatusCode)
}

// New creates a client bound to a normalized homeserver base URL.
func New(homeserver string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "mxauth"
	}

	return &Client{
		homeserver: homeserver,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Factory adapts [New] into a [mxauth.ClientFactory] for the service builder.
// The service's transport configuration fills any Options field left at its
// zero value, so timeout and user agent are usually set once through
// [mxauth.Builder.WithConfig] rather than here.
func Factory(opts Options) mxauth.ClientFactory {
	return func(homeserver string, transport mxauth.TransportConfig) (mxauth.HomeserverClient, error) {
		merged := opts
		if merged.Timeout <= 0 {
			merged.Timeout = transport.Timeout
		}
		if merged.UserAgent == "" {
			merged.UserAgent = transport.UserAgent
		}
		return New(homeserver, merged), nil
	}
}

// GetLoginFlows describes the getloginflows operation and its observable behavior.
//
// GetLoginFlows may return an error when input validation, dependency calls, or security checks fail.
// GetLoginFlows does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) GetLoginFlows(ctx context.Context) ([]mxauth.LoginFlow, error) {
	var response struct {
		Flows []mxauth.LoginFlow `json:"flows"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.homeserver+apiPrefix+"/login", nil, &response); err != nil {
		return nil, err
	}
	return response.Flows, nil
}

// IsUsernameAvailable describes the isusernameavailable operation and its observable behavior.
//
// IsUsernameAvailable may return an error when input validation, dependency calls, or security checks fail.
// IsUsernameAvailable does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	target := c.homeserver + apiPrefix + "/register/available?username=" + url.QueryEscape(username)

	var response struct {
		Available bool `json:"available"`
	}
	err := c.doJSON(ctx, http.MethodGet, target, nil, &response)
	if err != nil {
		var matrixErr *MatrixError
		if errors.As(err, &matrixErr) && matrixErr.Code == codeUserInUse {
			return false, nil
		}
		return false, err
	}
	return response.Available, nil
}

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) Register(ctx context.Context, params mxauth.RegistrationParameters) (*mxauth.Credentials, error) {
	var credentials mxauth.Credentials
	if err := c.doJSON(ctx, http.MethodPost, c.homeserver+apiPrefix+"/register?kind=user", params, &credentials); err != nil {
		return nil, err
	}
	return &credentials, nil
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) Login(ctx context.Context, params mxauth.LoginParameters) (*mxauth.Credentials, error) {
	var credentials mxauth.Credentials
	if err := c.doJSON(ctx, http.MethodPost, c.homeserver+apiPrefix+"/login", params, &credentials); err != nil {
		return nil, err
	}
	return &credentials, nil
}

// RequestToken describes the requesttoken operation and its observable behavior.
//
// RequestToken may return an error when input validation, dependency calls, or security checks fail.
// RequestToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) RequestToken(ctx context.Context, threePID mxauth.ThreePID, clientSecret string, sendAttempt uint) (*mxauth.TokenResponse, error) {
	body := map[string]any{
		"client_secret": clientSecret,
		"send_attempt":  sendAttempt,
	}

	var path string
	switch threePID.Kind {
	case mxauth.ThreePIDMSISDN:
		path = apiPrefix + "/register/msisdn/requestToken"
		body["country"] = threePID.CountryCode
		body["phone_number"] = threePID.Address
	default:
		path = apiPrefix + "/register/email/requestToken"
		body["email"] = threePID.Address
	}

	var response mxauth.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, c.homeserver+path, body, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// RawRequest describes the rawrequest operation and its observable behavior.
//
// RawRequest may return an error when input validation, dependency calls, or security checks fail.
// RawRequest does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Client) RawRequest(ctx context.Context, method, target string, body map[string]any) (map[string]any, error) {
	var response map[string]any
	if err := c.doJSON(ctx, method, target, body, &response); err != nil {
		return nil, err
	}
	return response, nil
}

func (c *Client) doJSON(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", mxauth.ErrDecodingFailure, err)
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", mxauth.ErrTransportFailure, err)
	}
	request.Header.Set("User-Agent", c.userAgent)
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", mxauth.ErrTransportFailure, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", mxauth.ErrTransportFailure, err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%w: %v", mxauth.ErrDecodingFailure, err)
		}
		return nil
	}

	// A 401 whose body carries a flow list is a renewed authentication
	// session, not a failure.
	if response.StatusCode == http.StatusUnauthorized {
		var auth mxauth.AuthenticationSession
		if err := json.Unmarshal(payload, &auth); err == nil && len(auth.Flows) > 0 {
			return &mxauth.RegistrationFlowError{AuthSession: auth}
		}
	}

	matrixErr := &MatrixError{StatusCode: response.StatusCode}
	if err := json.Unmarshal(payload, matrixErr); err != nil || matrixErr.Code == "" {
		return fmt.Errorf("%w: HTTP %d", mxauth.ErrTransportFailure, response.StatusCode)
	}
	return matrixErr
}
