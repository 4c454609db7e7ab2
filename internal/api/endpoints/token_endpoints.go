package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"chatdesk-backend/internal/dto"
	internal_jwt "chatdesk-backend/internal/jwt"
)

type TokenEndpoints interface {
	RefreshToken(http.ResponseWriter, *http.Request) error
}

type tokenEndpoints struct{}

func NewTokenEndpoints() TokenEndpoints {
	return &tokenEndpoints{}
}

// RefreshToken exchanges a refresh token for a fresh operator access
// token. It runs without the JWT middleware since the access token being
// replaced is typically expired.
func (h *tokenEndpoints) RefreshToken(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleRefresh,
	})
}

func (h *tokenEndpoints) handleRefresh(w http.ResponseWriter, r *http.Request) error {
	refreshToken := ExtractTokenFromHeaders(r)
	if refreshToken == "" {
		var req dto.RefreshTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	}
	if refreshToken == "" {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Missing refresh token",
			ErrorLog:   fmt.Errorf("refresh call without token"),
		}
	}

	accessToken, err := internal_jwt.RefreshToken(refreshToken, internal_jwt.RoleOperator)
	if err != nil {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Invalid refresh token",
			ErrorLog:   err,
		}
	}

	return WriteJSON(w, http.StatusOK, internal_jwt.TokenResponse{AccessToken: accessToken})
}
