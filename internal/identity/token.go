package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/domain/entity"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrTokenExpired = errors.New("session token has expired")
)

// Claims is what the identity provider puts into a session token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier turns a signed session token into the user it belongs to.
type TokenVerifier interface {
	Verify(token string) (entity.UserRef, error)
}

type hmacVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) TokenVerifier {
	return &hmacVerifier{secret: []byte(secret)}
}

func (v *hmacVerifier) Verify(tokenString string) (entity.UserRef, error) {
	if tokenString == "" {
		return entity.UserRef{}, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return entity.UserRef{}, ErrTokenExpired
		}
		return entity.UserRef{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return entity.UserRef{}, ErrInvalidToken
	}
	if claims.UserID == "" {
		return entity.UserRef{}, fmt.Errorf("%w: user_id claim is missing", ErrInvalidToken)
	}

	return entity.UserRef{
		ID:        claims.UserID,
		Email:     claims.Email,
		Name:      claims.Name,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// IssueToken signs a session token. The service itself only verifies tokens;
// this exists for local development and tests.
func IssueToken(secret string, user entity.UserRef, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   user.ID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
