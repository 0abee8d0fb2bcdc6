package internaldefs

import (
	mxauth "github.com/Physolia/mxauth"
)

// CounterDef defines a public type used by mxauth APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   mxauth.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by mxauth APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   mxauth.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: mxauth.MetricFlowNegotiated, Name: "mxauth_flow_negotiated_total", Help: "Successful login flow negotiations."},
	{ID: mxauth.MetricFlowNegotiationFailure, Name: "mxauth_flow_negotiation_failure_total", Help: "Failed login flow negotiations."},
	{ID: mxauth.MetricRegistrationStarted, Name: "mxauth_registration_started_total", Help: "Registration attempts that sent account credentials."},
	{ID: mxauth.MetricStageSubmitted, Name: "mxauth_stage_submitted_total", Help: "Registration stage submissions."},
	{ID: mxauth.MetricStageFailure, Name: "mxauth_stage_failure_total", Help: "Registration stage submissions that failed."},
	{ID: mxauth.MetricDummyAutoSubmitted, Name: "mxauth_dummy_auto_submitted_total", Help: "Automatically submitted dummy stages."},
	{ID: mxauth.MetricThreePIDTokenRequested, Name: "mxauth_threepid_token_requested_total", Help: "Third-party identifier verification token requests."},
	{ID: mxauth.MetricThreePIDValidationFailure, Name: "mxauth_threepid_validation_failure_total", Help: "Rejected third-party identifier validation codes."},
	{ID: mxauth.MetricEmailValidationPoll, Name: "mxauth_email_validation_poll_total", Help: "Email validation poll attempts."},
	{ID: mxauth.MetricLoginSuccess, Name: "mxauth_login_success_total", Help: "Successful login attempts."},
	{ID: mxauth.MetricLoginFailure, Name: "mxauth_login_failure_total", Help: "Failed login attempts."},
	{ID: mxauth.MetricSessionCreated, Name: "mxauth_session_created_total", Help: "Materialized sessions."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: mxauth.MetricRegisterLatency, Name: "mxauth_register_latency_seconds", Help: "Registration round-trip latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
