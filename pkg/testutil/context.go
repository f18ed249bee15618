package testutil

import (
	"net/http"

	"cashkiosk/pkg/requestcontext"
)

// WithActor marks the request as made by the given reviewer, as the auth
// middleware would for a valid bearer token.
func WithActor(req *http.Request, actorID string) *http.Request {
	return req.WithContext(requestcontext.WithActorID(req.Context(), actorID))
}
