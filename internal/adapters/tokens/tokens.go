// Package tokens mints and verifies the short-lived room access tokens the
// signaling endpoint requires on join.
package tokens

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid room token")
	ErrWrongRoom    = errors.New("token issued for a different room")
)

// Grant is the verified content of a room token.
type Grant struct {
	UserID string
	RoomID string
	AppID  string
}

// Issuer signs HMAC-SHA256 room tokens. AppID doubles as the 'iss' claim.
type Issuer struct {
	AppID  string
	Secret string
	TTL    time.Duration
}

func NewIssuer(appID, secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{AppID: appID, Secret: secret, TTL: ttl}
}

func (i *Issuer) RoomToken(userID, roomID string) (string, error) {
	if i.Secret == "" {
		return "", fmt.Errorf("room token secret required")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jti: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"jti":  hex.EncodeToString(b),
		"iss":  i.AppID,
		"sub":  userID,
		"room": roomID,
		"nbf":  now.Unix(),
		"exp":  now.Add(i.TTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry, and that the token was minted for roomID.
func (i *Issuer) Verify(token, roomID string) (*Grant, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(i.Secret), nil
	}, jwt.WithIssuer(i.AppID), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	room, _ := claims["room"].(string)
	if sub == "" || room == "" {
		return nil, ErrInvalidToken
	}
	if room != roomID {
		return nil, ErrWrongRoom
	}
	return &Grant{UserID: sub, RoomID: room, AppID: i.AppID}, nil
}
