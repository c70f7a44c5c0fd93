package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maulvi-zm/trackure/internal/audit"
)

type devTokenRequest struct {
	Email string `json:"email"`
}

type devTokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// handleDevToken mints a shared-secret token for local development. The user
// still has to exist and be active when the token is used.
func (a *API) handleDevToken(w http.ResponseWriter, r *http.Request) {
	var req devTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	token, exp, err := a.deps.DevTokens.GenerateToken(email, a.deps.DevTokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventTokenIssued, logrus.Fields{
		"email":      strings.ToLower(email),
		"expires_at": exp,
		"remote_ip":  a.proxies.ClientIP(r),
	})
	writeJSON(w, http.StatusOK, devTokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
	})
}
