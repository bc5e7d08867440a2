package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"assettrack.org/internal/audit"
	"assettrack.org/internal/auth"
)

const tokenTTL = 15 * time.Minute

type tokenRequest struct {
	User  string   `json:"user"`
	Roles []string `json:"roles"`
}

// normalize trims the user and drops blank roles, reporting what is missing.
func (t *tokenRequest) normalize() error {
	t.User = strings.TrimSpace(t.User)
	if t.User == "" {
		return errors.New("user is required")
	}
	roles := t.Roles[:0]
	for _, r := range t.Roles {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		return errors.New("roles are required")
	}
	t.Roles = roles
	return nil
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.normalize(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, err := auth.GenerateToken(req.User, req.Roles, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	expiresAt := time.Now().UTC().Add(tokenTTL)

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user":       req.User,
		"roles":      req.Roles,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}
