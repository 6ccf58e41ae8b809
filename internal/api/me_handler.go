package api

import "net/http"

// HandleMe returns the authenticated caller's profile as resolved by the
// auth middleware.
func HandleMe(w http.ResponseWriter, r *http.Request) {
	profile, ok := GetProfileFromRequest(w, r)
	if !ok {
		return
	}

	if !WriteJSONResponse(w, profile) {
		return
	}
}
