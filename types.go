package mxauth

import (
	"encoding/json"
	"io"

	internalprogress "github.com/Physolia/mxauth/internal/progress"
)

// Matrix login/stage type identifiers from the client-server specification.
// StageTypeJWT is the Synapse extension for JWT-based login.
const (
	StageTypePassword      = "m.login.password"
	StageTypeRecaptcha     = "m.login.recaptcha"
	StageTypeEmailIdentity = "m.login.email.identity"
	StageTypeMSISDN        = "m.login.msisdn"
	StageTypeDummy         = "m.login.dummy"
	StageTypeTerms         = "m.login.terms"
	StageTypeSSO           = "m.login.sso"
	StageTypeToken         = "m.login.token"
	StageTypeJWT           = "org.matrix.login.jwt"
)

// StageKind defines a public type used by mxauth APIs.
//
// StageKind instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StageKind uint8

const (
	// StageReCaptcha is an exported constant or variable used by the authentication engine.
	StageReCaptcha StageKind = iota
	// StageEmail is an exported constant or variable used by the authentication engine.
	StageEmail
	// StageMSISDN is an exported constant or variable used by the authentication engine.
	StageMSISDN
	// StageDummy is an exported constant or variable used by the authentication engine.
	StageDummy
	// StageTerms is an exported constant or variable used by the authentication engine.
	StageTerms
	// StageOther is an exported constant or variable used by the authentication engine.
	StageOther
)

// Stage is one step of the interactive authentication protocol as offered by
// the homeserver. Kind is the closed classification; Type always carries the
// raw stage identifier so unknown stages (StageOther) remain addressable.
// A stage is mandatory iff it appears in every alternative flow the server
// offered.
type Stage struct {
	Kind      StageKind
	Type      string
	Mandatory bool

	// PublicKey is set for StageReCaptcha.
	PublicKey string

	// Policies is set for StageTerms: the policy map from the stage params.
	Policies map[string]any

	// Params carries the opaque parameter object for StageOther.
	Params map[string]any
}

// FlowResult is a snapshot of one authentication session: the stages not yet
// completed and the stages the server already accepted. The union of both
// sets is always the full set of distinct stage identifiers across all
// offered flows, with no overlap.
type FlowResult struct {
	MissingStages   []Stage
	CompletedStages []Stage
}

// HasMandatoryDummy reports whether the missing set contains a mandatory
// dummy stage.
func (f FlowResult) HasMandatoryDummy() bool {
	for _, stage := range f.MissingStages {
		if stage.Kind == StageDummy && stage.Mandatory {
			return true
		}
	}
	return false
}

// AuthFlow is one server-offered alternative: an ordered list of stage type
// identifiers that together satisfy authentication.
type AuthFlow struct {
	Stages []string `json:"stages"`
}

// AuthenticationSession is the renewed authentication-session body the
// homeserver returns with a 401-style registration response.
type AuthenticationSession struct {
	Session   string                     `json:"session"`
	Flows     []AuthFlow                 `json:"flows"`
	Params    map[string]json.RawMessage `json:"params"`
	Completed []string                   `json:"completed"`
}

// Credentials is the terminal credential payload issued by the homeserver on
// a successful registration or login.
type Credentials struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
	Homeserver  string `json:"home_server,omitempty"`
}

// RegistrationResult is the terminal outcome of one registration request:
// either Session is set (the attempt completed) or FlowResult is set (more
// stages are required). Never both.
type RegistrationResult struct {
	Session    *Session
	FlowResult *FlowResult
}

// Completed describes the completed operation and its observable behavior.
//
// Completed does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (r *RegistrationResult) Completed() bool {
	return r != nil && r.Session != nil
}

// SSOProvider is a single-sign-on identity provider offered by the
// homeserver as an alternative to password authentication.
type SSOProvider struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Brand   string `json:"brand,omitempty"`
	IconURL string `json:"icon,omitempty"`
}

// LoginFlow is one supported login flow as advertised by GET /login.
type LoginFlow struct {
	Type              string        `json:"type"`
	IdentityProviders []SSOProvider `json:"identity_providers,omitempty"`
}

// LoginFlowResult is returned by [AuthenticationService.LoginFlow]: the
// normalized homeserver URL, the SSO providers sorted by display name, and
// the raw supported-flow list.
type LoginFlowResult struct {
	Homeserver   string
	SSOProviders []SSOProvider
	Flows        []LoginFlow
}

// SupportsFlowType reports whether the homeserver advertised the given login
// flow type identifier.
func (r *LoginFlowResult) SupportsFlowType(flowType string) bool {
	if r == nil {
		return false
	}
	for _, flow := range r.Flows {
		if flow.Type == flowType {
			return true
		}
	}
	return false
}

// ThreePIDKind defines a public type used by mxauth APIs.
//
// ThreePIDKind instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ThreePIDKind uint8

const (
	// ThreePIDEmail is an exported constant or variable used by the authentication engine.
	ThreePIDEmail ThreePIDKind = iota
	// ThreePIDMSISDN is an exported constant or variable used by the authentication engine.
	ThreePIDMSISDN
)

// ThreePID is a third-party identifier to bind during registration: an email
// address, or a phone number with its country code.
type ThreePID struct {
	Kind        ThreePIDKind
	Address     string
	CountryCode string
}

// TokenResponse is the homeserver's answer to a 3PID token request. SubmitURL
// is only present for phone numbers and points at the out-of-band code
// submission endpoint. FormattedPhone is the server-formatted MSISDN.
type TokenResponse struct {
	SessionID      string `json:"sid"`
	SubmitURL      string `json:"submit_url,omitempty"`
	FormattedPhone string `json:"msisdn,omitempty"`
}

// ThreePIDData associates one pending 3PID request with the server's token
// response and the exact registration parameters to replay once verification
// succeeds. It is owned by the pending attempt and replaced wholesale each
// time a new 3PID is submitted.
type ThreePIDData struct {
	ThreePID ThreePID
	Response TokenResponse
	Params   RegistrationParameters
}

// ThreePIDCredentials correlate a 3PID verification session with the client
// secret that opened it.
type ThreePIDCredentials struct {
	ClientSecret string `json:"client_secret"`
	SessionID    string `json:"sid"`
}

// AuthenticationParameters is the "auth" object of a registration request:
// the stage type being satisfied, the server session identifier, and the
// stage-specific proof.
type AuthenticationParameters struct {
	Type                string               `json:"type"`
	Session             string               `json:"session,omitempty"`
	CaptchaResponse     string               `json:"response,omitempty"`
	ThreePIDCredentials *ThreePIDCredentials `json:"threepid_creds,omitempty"`
}

func captchaParameters(session, captchaResponse string) *AuthenticationParameters {
	return &AuthenticationParameters{Type: StageTypeRecaptcha, Session: session, CaptchaResponse: captchaResponse}
}

func emailIdentityParameters(session string, creds ThreePIDCredentials) *AuthenticationParameters {
	return &AuthenticationParameters{Type: StageTypeEmailIdentity, Session: session, ThreePIDCredentials: &creds}
}

func msisdnIdentityParameters(session string, creds ThreePIDCredentials) *AuthenticationParameters {
	return &AuthenticationParameters{Type: StageTypeMSISDN, Session: session, ThreePIDCredentials: &creds}
}

// RegistrationParameters is the body of POST /register. Zero-valued fields
// are omitted so the same type covers the initial empty probe, the account
// creation call, and every stage submission.
type RegistrationParameters struct {
	Auth                     *AuthenticationParameters `json:"auth,omitempty"`
	Username                 string                    `json:"username,omitempty"`
	Password                 string                    `json:"password,omitempty"`
	InitialDeviceDisplayName string                    `json:"initial_device_display_name,omitempty"`
	ShowMSISDN               bool                      `json:"x_show_msisdn,omitempty"`
}

// Dictionary describes the dictionary operation and its observable behavior.
//
// Dictionary may return an error when input validation, dependency calls, or security checks fail.
// Dictionary does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p RegistrationParameters) Dictionary() (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, ErrDecodingFailure
	}

	var dict map[string]any
	if err := json.Unmarshal(data, &dict); err != nil {
		return nil, ErrDecodingFailure
	}
	return dict, nil
}

// LoginParameters is the body of POST /login.
type LoginParameters struct {
	Type                     string `json:"type"`
	User                     string `json:"user,omitempty"`
	Password                 string `json:"password,omitempty"`
	Token                    string `json:"token,omitempty"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// ProgressEvent is a structured stage-progress record emitted by the service.
type ProgressEvent = internalprogress.Event

// ProgressSink receives [ProgressEvent] values from the service's event
// dispatcher.
type ProgressSink = internalprogress.Sink

// NoOpSink is a [ProgressSink] that silently discards all events.
type NoOpSink = internalprogress.NoOpSink

// ChannelSink is a buffered channel-based [ProgressSink].
type ChannelSink = internalprogress.ChannelSink

// JSONWriterSink is a [ProgressSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalprogress.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalprogress.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalprogress.NewJSONWriterSink(w)
}
