package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/sharedmail/backend/internal/auth"
	"github.com/sharedmail/backend/internal/models"
)

// maxBodyBytes caps request bodies. Replies with large inline content fit
// comfortably; anything bigger is rejected.
const maxBodyBytes = 1 << 20

// WriteJSONResponse encodes data as JSON and writes it with the right
// content type. Returns false when encoding fails, in which case a 500 has
// already been sent. This is a shared helper used across handlers for
// consistent response formatting.
func WriteJSONResponse(w http.ResponseWriter, data any) bool {
	body, err := json.Marshal(data)
	if err != nil {
		log.Printf("API: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		log.Printf("API: Failed to write response: %v", err)
		return false
	}
	return true
}

// ReadJSONBody decodes the request body into dst, writing a 400 on
// malformed input. Returns false when decoding fails.
func ReadJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// GetProfileFromRequest extracts the authenticated profile placed in the
// context by the auth middleware, writing a 401 when it is missing.
func GetProfileFromRequest(w http.ResponseWriter, r *http.Request) (*models.Profile, bool) {
	profile, ok := auth.GetProfileFromContext(r.Context())
	if !ok {
		log.Println("API: No profile in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return profile, true
}

// ParsePaginationParams parses limit and offset from query parameters,
// falling back to defaults when missing or invalid.
func ParsePaginationParams(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
