// Package progress defines the stage-progress event model and the sinks the
// root package re-exports. Dispatching lives in the root package; this
// package stays free of imports from it.
package progress
