package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by Decode for any token that fails signature,
// expiry or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the claim set carried by a bearer token. UID identifies the
// caller and is the value every ownership check compares against.
type Claims struct {
	UID               string `json:"uid"`
	DisplayName       string `json:"displayName,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	jwt.RegisteredClaims
}

// Identity is what the identity provider exchange hands over before a token
// is minted.
type Identity struct {
	UID               string
	DisplayName       string
	PreferredUsername string
}

// Codec signs and verifies HS256 tokens with a process-wide secret.
type Codec struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewCodec(secret, issuer string, expiry time.Duration) *Codec {
	return &Codec{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
		now:    time.Now,
	}
}

// Sign mints a token for id, stamped with issued-at, expiry and issuer.
func (c *Codec) Sign(id Identity) (string, error) {
	if id.UID == "" {
		return "", fmt.Errorf("sign token: uid is required")
	}
	now := c.now()
	claims := &Claims{
		UID:               id.UID,
		DisplayName:       id.DisplayName,
		PreferredUsername: id.PreferredUsername,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies signature and expiry and returns the embedded claims.
// A token without a uid is rejected.
func (c *Codec) Decode(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UID == "" {
		return nil, fmt.Errorf("%w: missing uid claim", ErrInvalidToken)
	}
	return claims, nil
}
