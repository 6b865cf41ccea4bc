package handlers

import (
	"net/http"
	"time"

	"pharmacy-inventory/internal/middleware"
	"pharmacy-inventory/internal/services"

	"go.uber.org/zap"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// CookieOptions controls the session cookie
type CookieOptions struct {
	Secure   bool
	Duration time.Duration
}

// HandleLogin authenticates a user and sets the session cookie. The token is
// also returned for API clients that send it as a bearer header.
func HandleLogin(users *services.UserService, cookie CookieOptions, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Username == "" || req.Password == "" {
			respondError(w, http.StatusBadRequest, "validation_error", "Username and password are required")
			return
		}

		actor := middleware.ActorFromRequest(r)
		result, err := users.Login(r.Context(), req.Username, req.Password, actor.IPAddress, actor.UserAgent)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.AuthCookieName,
			Value:    result.Token,
			Path:     "/",
			MaxAge:   int(cookie.Duration.Seconds()),
			HttpOnly: true,
			Secure:   cookie.Secure,
			SameSite: http.SameSiteStrictMode,
		})

		respondJSON(w, http.StatusOK, AuthResponse{
			User:      newUserResponse(result.User),
			Token:     result.Token,
			ExpiresAt: time.Now().UTC().Add(cookie.Duration),
		})
	}
}

// HandleLogout clears the session cookie
func HandleLogout(users *services.UserService, cookie CookieOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users.Logout(r.Context(), middleware.ActorFromRequest(r))

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.AuthCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   cookie.Secure,
			SameSite: http.SameSiteStrictMode,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleGetCurrentUser returns the signed-in user
func HandleGetCurrentUser(users *services.UserService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := users.GetUser(r.Context(), middleware.GetUserID(r.Context()))
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, newUserResponse(user))
	}
}

// HandleCSRFToken issues a token for cookie-authenticated mutations
func HandleCSRFToken(csrf *middleware.CSRFProtection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"csrf_token": csrf.GenerateToken()})
	}
}
