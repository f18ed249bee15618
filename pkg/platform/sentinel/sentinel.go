package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and the customer service translates them into domain errors:
// - ErrNotFound: row does not exist
// - ErrConflict: a unique constraint rejected the write (e.g. phone already taken)
// - ErrUnavailable: backing service (cache, broker) cannot be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
