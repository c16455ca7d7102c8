package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/PortNumber53/edenthought/backend/internal/middleware"
)

// Client-side destinations returned in Result.Redirect.
const (
	dashboardPath = "/dashboard"
	accountPath   = "/account"
)

// Result is the body of every mutating subscription endpoint: the status
// message to show the user and where the client should navigate next.
type Result struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[handlers] failed to encode response: %v", err)
	}
}

// userID pulls the authenticated user from the request. It writes a 401 and
// returns false when the auth middleware did not run.
func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return id, true
}
