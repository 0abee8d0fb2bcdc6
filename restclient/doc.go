// Package restclient is the default HTTP implementation of
// [mxauth.HomeserverClient] against the Matrix client-server API
// (/_matrix/client/v3).
//
// [Factory] adapts the client into a [mxauth.ClientFactory] so the service
// can rebuild the transport every time flow negotiation changes the
// homeserver:
//
//	service, err := mxauth.New().
//		WithClientFactory(restclient.Factory(restclient.Options{})).
//		Build()
//
// Non-2xx responses decode into [MatrixError] except a 401 carrying a flow
// list, which becomes a [mxauth.RegistrationFlowError] by contract.
//
// # What this package must NOT do
//
//   - Interpret stage semantics — that is the root package's job.
//   - Retry requests; callers own retry policy.
package restclient
