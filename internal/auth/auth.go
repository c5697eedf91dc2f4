package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrUnauthenticated covers every way a credential can fail: missing,
// malformed, expired, or naming a user that is unknown or inactive.
var ErrUnauthenticated = errors.New("unauthenticated")

type Claims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func VerifyPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// GenerateAccessToken signs an HS256 token for userID. Tokens are issued by
// the identity service; this is used by tooling and tests.
func GenerateAccessToken(userID uint, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseAccessToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Resolver turns a bearer credential into the acting user.
type Resolver struct {
	db     *gorm.DB
	secret string
}

func NewResolver(db *gorm.DB, secret string) *Resolver {
	return &Resolver{db: db, secret: secret}
}

// Resolve 校验 token 并加载用户；任何失败都返回 ErrUnauthenticated。
func (r *Resolver) Resolve(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}
	claims, err := ParseAccessToken(token, r.secret)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, fmt.Errorf("%w: unknown user %d", ErrUnauthenticated, claims.UserID)
		}
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, fmt.Errorf("%w: user %d is inactive", ErrUnauthenticated, user.ID)
	}
	return user, nil
}

// BearerToken extracts the token from an Authorization header, falling back
// to the token query parameter browsers use for websocket handshakes.
func BearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return r.URL.Query().Get("token")
}

const userKey = "user"

func AuthMiddleware(resolver *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := resolver.Resolve(c.Request.Context(), BearerToken(c.Request))
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// RequireRole rejects users whose role is not listed. It must run after
// AuthMiddleware.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	if v, ok := c.Get(userKey); ok {
		if u, ok2 := v.(models.User); ok2 {
			return u, true
		}
	}
	return models.User{}, false
}
