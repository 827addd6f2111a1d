// Package auth implements the control-auth guard: an HS256 JWT
// bearer-token gin middleware protecting the mutating control-surface
// routes.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Manager mints and verifies HS256 tokens against a shared secret, and
// optionally accepts a bcrypt-hashed static API key as a second credential
// for scripted callers that would rather not mint a JWT.
type Manager struct {
	secret     []byte
	apiKeyHash []byte
}

// NewManager builds a Manager with the configured shared secret. apiKeyHash
// is the bcrypt hash of an operator API key (empty disables that path).
func NewManager(secret, apiKeyHash string) *Manager {
	return &Manager{secret: []byte(secret), apiKeyHash: []byte(apiKeyHash)}
}

// HashAPIKey bcrypt-hashes a plaintext API key for storage in configuration,
// used by operator tooling when provisioning a new static key.
func HashAPIKey(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// claims is the minimal operator-identity payload this single-operator
// control surface needs.
type claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// IssueToken mints a token for operator, valid for ttl. Minting is operator
// tooling, not exposed over HTTP by this system.
func (m *Manager) IssueToken(operator string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(m.secret)
}

func (m *Manager) verify(tokenString string) (*claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return c, nil
}

// Middleware returns a gin handler rejecting requests without either a
// valid bearer token or a valid X-API-Key. When an API key hash is
// configured and the request carries X-API-Key, only that key is checked: a
// wrong key is rejected even if a valid bearer token is also present.
// Installed only on the mutating routes, and only when auth is enabled in
// configuration.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" && len(m.apiKeyHash) > 0 {
			if bcrypt.CompareHashAndPassword(m.apiKeyHash, []byte(apiKey)) == nil {
				c.Set("operator", "api-key")
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := m.verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("operator", claims.Operator)
		c.Next()
	}
}
