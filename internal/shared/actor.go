package shared

import "net/http"

// ActorHeader carries the identity of the caller, filled in upstream by the
// authentication proxy. Token issuance is outside this service's boundary.
const ActorHeader = "X-Actor"

// Actor returns the caller identity from the request, or "system" when absent.
func Actor(r *http.Request) string {
	if actor := r.Header.Get(ActorHeader); actor != "" {
		return actor
	}
	return "system"
}
