package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	appErr "nitz/pkg/errors"
	"nitz/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig configures bearer token checks. An empty secret disables them.
type AuthConfig struct {
	JWTSecret string   `yaml:"jwtSecret" env:"JUDGE_JWT_SECRET"`
	JWTIssuer string   `yaml:"jwtIssuer"`
	Roles     []string `yaml:"roles"`
}

// Identity is the authenticated caller.
type Identity struct {
	UserID int64
	Role   string
}

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 access tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier returns nil when secret is empty.
func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	if secret == "" {
		return nil
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses raw and returns the caller identity.
func (v *TokenVerifier) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, appErr.New(appErr.Unauthorized).WithMessage("missing bearer token")
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, appErr.New(appErr.TokenExpired)
		}
		return Identity{}, appErr.New(appErr.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Identity{}, appErr.New(appErr.TokenInvalid)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return Identity{}, appErr.New(appErr.TokenInvalid)
	}
	if claims.TokenType != "" && claims.TokenType != "access" {
		return Identity{}, appErr.New(appErr.TokenInvalid)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Identity{}, appErr.New(appErr.TokenInvalid)
	}
	return Identity{UserID: userID, Role: claims.Role}, nil
}

// RequireRole rejects callers whose token role is not in roles.
// A nil verifier lets every request through.
func RequireRole(verifier *TokenVerifier, roles []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}
		identity, err := verifier.Verify(extractBearerToken(c.GetHeader("Authorization")))
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		if len(roles) > 0 && !hasRole(identity.Role, roles) {
			response.AbortWithErrorCode(c, appErr.Forbidden, "insufficient role")
			return
		}
		c.Set("user_id", identity.UserID)
		c.Set("user_role", identity.Role)
		c.Next()
	}
}

func extractBearerToken(authHeader string) string {
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func hasRole(role string, allowed []string) bool {
	for _, item := range allowed {
		if strings.EqualFold(role, item) {
			return true
		}
	}
	return false
}
