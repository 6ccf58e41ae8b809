package api

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/sharedmail/backend/internal/gmail"
)

// CronHandler exposes the sync trigger hit by the external scheduler.
type CronHandler struct {
	secret  string
	service *gmail.Service
}

// NewCronHandler creates a new CronHandler instance.
func NewCronHandler(secret string, service *gmail.Service) *CronHandler {
	return &CronHandler{secret: secret, service: service}
}

// TriggerSync runs one sync cycle across all active inboxes. The caller
// must present the shared cron secret; the endpoint sits outside the
// bearer-auth middleware because the scheduler is not a team member.
func (h *CronHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.secret)) != 1 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.service.SyncAll(r.Context()); err != nil {
		log.Printf("CronHandler: Sync cycle failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	WriteJSONResponse(w, map[string]string{"status": "ok"})
}
