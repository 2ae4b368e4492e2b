package domain

import "errors"

var (
	// ErrMalformedEvent marks a webhook body that cannot be decoded or is
	// missing the parent payment reference. Retrying the same body can
	// never succeed.
	ErrMalformedEvent = errors.New("malformed_event")

	// ErrEventAlreadyProcessed is returned when a delivery carries an
	// event id that has already been reconciled to completion.
	ErrEventAlreadyProcessed = errors.New("event_already_processed")

	// ErrNotFound indicates no matching row exists.
	ErrNotFound = errors.New("not_found")

	// ErrInvalidRequest marks caller input that fails validation.
	ErrInvalidRequest = errors.New("invalid_request")
)
