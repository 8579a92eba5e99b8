// Package auth mints and validates the HS256 actor tokens that identify
// callers of the owner API.
//
// An actor token carries a subject and one role (citizen, app or admin).
// The role is what the audit trail records as the actor. Stream tokens,
// the opaque bearer secrets handed to third parties, are a separate
// mechanism and live in services/tokens.
package auth
