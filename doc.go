// Package mxauth implements the client side of Matrix interactive
// authentication: homeserver flow negotiation, the multi-stage registration
// state machine, per-stage handlers (password, reCAPTCHA, terms, dummy,
// email/phone verification), and session materialization.
//
// The package is designed for application shells that drive authentication
// from asynchronous UI code: one [AuthenticationService] is built through
// [Builder.Build] and then owns the pending attempt exclusively. Stage
// submissions are serialized by an internal single-flight guard.
//
// # Architecture boundaries
//
// mxauth is the public surface. It exposes [AuthenticationService],
// [RegistrationWizard], [LoginWizard], [Builder], [Config], and value types
// (FlowResult, Stage, Credentials, etc.). Transport is behind the
// [HomeserverClient] interface; the default HTTP implementation lives in the
// restclient subpackage and is never imported from here.
//
// # What this package must NOT do
//
//   - Render anything, or decide how a stage is presented to a user.
//   - Persist credentials; only the pending registration attempt may be
//     stored, and only when a Redis client is configured.
//   - Retry a failed stage on its own. Retries are the caller's decision,
//     with the single exception of the mandatory dummy-stage follow-up.
//
// # Protocol contract
//
// Every stage submission performs exactly one registration round-trip. The
// homeserver either returns full credentials (the attempt completes and a
// [Session] is materialized) or a renewed authentication session describing
// the stages still missing. Any other failure leaves the attempt untouched
// and retryable.
package mxauth
