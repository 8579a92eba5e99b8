// Package observability builds the process logger and binds request-scoped
// fields (request id, actor) to it.
package observability
