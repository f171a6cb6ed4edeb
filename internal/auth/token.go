// Package auth implements the WebSocket upgrade's token decoding plus
// the peripheral password-based login/register surface that issues
// those tokens — the core engine never sees a password, only the
// opaque userId a decoded token yields.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"collabcore/internal/model"
)

// Claims mirrors auth-service/backend/internal/authservice/jwt.go's
// shape: sub carries the userId the core treats as opaque, username is
// carried through for presence display.
type Claims struct {
	UserID   string `json:"sub"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenDecoder decodes an opaque bearer string into Claims. The session
// fabric's transport layer calls this once per upgrade handshake.
type TokenDecoder interface {
	Decode(tokenString string) (Claims, error)
}

// JWTDecoder decodes HS256 JWTs, matching the corpus's auth-service.
type JWTDecoder struct {
	secret []byte
	issuer string
}

func NewJWTDecoder(secret, issuer string) *JWTDecoder {
	return &JWTDecoder{secret: []byte(secret), issuer: issuer}
}

func (d *JWTDecoder) Decode(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return d.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("decode token: %w", model.ErrWebSocketAuthentication)
	}
	if d.issuer != "" && claims.Issuer != "" && claims.Issuer != d.issuer {
		return Claims{}, fmt.Errorf("unexpected issuer %q: %w", claims.Issuer, model.ErrWebSocketAuthentication)
	}
	return claims, nil
}

// SignToken issues an HS256 access token carrying userID/username, used
// by the login/register HTTP surface.
func SignToken(secret []byte, issuer, userID, username string, ttl time.Duration) (string, time.Time, error) {
	expires := time.Now().Add(ttl)
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}
