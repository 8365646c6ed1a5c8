package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	pkgerrors "github.com/pkg/errors"
)

const issuerName = "calib"

type claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 bearer tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for s and its expiry.
func (i *Issuer) Issue(s Session) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: s.Email,
		Name:  s.Name,
		Role:  s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(err, "failed to sign token")
	}
	return signed, exp, nil
}

// Verify checks the signature and expiry of token and returns its session.
func (i *Issuer) Verify(token string) (Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Session{}, pkgerrors.Wrap(ErrInvalidToken, err.Error())
	}
	if c.Subject == "" {
		return Session{}, pkgerrors.Wrap(ErrInvalidToken, "missing subject")
	}
	if _, err := ParseRole(string(c.Role)); err != nil {
		return Session{}, pkgerrors.Wrap(ErrInvalidToken, err.Error())
	}
	return Session{UserID: c.Subject, Email: c.Email, Name: c.Name, Role: c.Role}, nil
}

// GenerateSecret returns a random hex-encoded signing secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", pkgerrors.Wrap(err, "failed to generate secret")
	}
	return hex.EncodeToString(b), nil
}
