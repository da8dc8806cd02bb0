package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const operatorContextKey contextKey = "operator"

// Config holds authentication configuration for the single dashboard
// operator account.
type Config struct {
	JWTSecret        string
	OperatorUsername string
	// OperatorPasswordHash is a bcrypt hash. When empty, OperatorPassword is
	// compared directly (local development only).
	OperatorPasswordHash string
	OperatorPassword     string
	TokenDuration        time.Duration
}

// LoadConfigFromEnv loads auth config from environment variables.
func LoadConfigFromEnv() Config {
	secret := os.Getenv("DASHBOARD_JWT_SECRET")
	if secret == "" {
		secret = "change-this-secret" // Default (should be changed)
	}

	username := os.Getenv("DASHBOARD_USERNAME")
	if username == "" {
		username = "admin"
	}

	password := os.Getenv("DASHBOARD_PASSWORD")
	if password == "" && os.Getenv("DASHBOARD_PASSWORD_HASH") == "" {
		password = "admin" // Default (should be changed)
	}

	return Config{
		JWTSecret:            secret,
		OperatorUsername:     username,
		OperatorPasswordHash: os.Getenv("DASHBOARD_PASSWORD_HASH"),
		OperatorPassword:     password,
		TokenDuration:        24 * time.Hour,
	}
}

// VerifyCredentials checks a login attempt against the configured operator
// account.
func (c Config) VerifyCredentials(username, password string) bool {
	if username != c.OperatorUsername {
		return false
	}
	if c.OperatorPasswordHash != "" {
		return CheckPassword(password, c.OperatorPasswordHash)
	}
	return password == c.OperatorPassword
}

// Claims represents the JWT claims
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for the operator.
func GenerateToken(operator string, secret string, duration time.Duration) (string, error) {
	claims := Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "reviewdash",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates a JWT token and returns the operator name.
func ValidateToken(tokenString string, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims.Operator, nil
	}

	return "", fmt.Errorf("invalid token")
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a password with a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Middleware validates the bearer token on protected routes.
func Middleware(config Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			operator, err := ValidateToken(parts[1], config.JWTSecret)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), operatorContextKey, operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext extracts the authenticated operator from the request
// context.
func OperatorFromContext(ctx context.Context) (string, bool) {
	operator, ok := ctx.Value(operatorContextKey).(string)
	return operator, ok
}
