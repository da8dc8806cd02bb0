package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Fauzanmhr/skripsi/internal/auth"
)

// AuthHandler handles authentication requests.
type AuthHandler struct {
	config auth.Config
	logger *slog.Logger
}

// NewAuthHandler creates a new authentication handler.
func NewAuthHandler(config auth.Config, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{config: config, logger: logger}
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a login response.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.config.VerifyCredentials(req.Username, req.Password) {
		h.logger.Warn("Failed login attempt", "ip", r.RemoteAddr)
		// Generic message to prevent account enumeration.
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(req.Username, h.config.JWTSecret, h.config.TokenDuration)
	if err != nil {
		h.logger.Error("Failed to generate token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("Successful login", "operator", req.Username, "ip", r.RemoteAddr)
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.config.TokenDuration),
	})
}

// Validate handles GET /api/auth/validate behind the auth middleware:
// reaching it proves the token is good.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	operator, _ := auth.OperatorFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    true,
		"operator": operator,
	})
}
