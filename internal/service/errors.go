// Package service implements the business rules between the HTTP layer and
// the repositories. Services return the sentinel errors below; the HTTP
// error handler maps them onto status codes in exactly one place.
package service

import "errors"

var (
	// ErrNotFound covers missing records and records owned by someone else;
	// the two cases are deliberately indistinguishable to callers.
	ErrNotFound = errors.New("not found")

	// ErrForbidden rejects an action on a record the caller can see but not touch.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken rejects a registration with an already-registered email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidToken rejects expired, malformed or wrong-type tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrValidation rejects requests whose payload failed a business check.
	ErrValidation = errors.New("invalid request")

	// ErrUpstream signals a dependency (model, weather API) that is down.
	ErrUpstream = errors.New("upstream service unavailable")

	// ErrRejected marks classifier input that can never succeed; the worker
	// fails such records instead of retrying them.
	ErrRejected = errors.New("classifier rejected input")
)
