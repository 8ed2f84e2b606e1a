package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// netatmoAuthorizeHandler redirects the browser to the Netatmo consent page
func (rm *RouteManager) netatmoAuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	authURL, _, err := rm.auth.GetAuthorizationURL()
	if err != nil {
		rm.logger.WithError(err).Error("Failed to build authorization URL")
		http.Error(w, "Failed to build authorization URL", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// netatmoCallbackHandler handles the OAuth2 redirect from Netatmo
func (rm *RouteManager) netatmoCallbackHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		http.Error(w, "Authorization denied: "+errParam, http.StatusBadRequest)
		return
	}

	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	if state == "" {
		http.Error(w, "Missing state parameter", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := rm.auth.GetAccessTokenFromCode(ctx, code, state); err != nil {
		rm.logger.WithError(err).Error("Failed to get access token")
		http.Error(w, "Failed to get access token", http.StatusInternalServerError)
		return
	}

	rm.logger.Info("Netatmo authorization completed")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "success",
		"message": "Authorization successful! You can close this window.",
	})
}
