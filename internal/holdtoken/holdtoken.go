// Package holdtoken signs hold receipts so clients cannot commit or release a hold
// they were not handed. It is a tamper check on hold references, not authentication.
package holdtoken

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"inventory/internal/clock"
	"inventory/internal/domain"
	"inventory/internal/domain/models"
)

const issuerName = "inventory"

// Claims carried by a hold receipt.
type Claims struct {
	ResourceID string `json:"rid"`
	Quantity   int    `json:"qty"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	clock  clock.Clock
}

// NewIssuer returns nil when secret is empty; a nil Issuer issues nothing and accepts
// every request.
func NewIssuer(secret string, clk clock.Clock) *Issuer {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Issuer{secret: []byte(secret), clock: clk}
}

// Issue signs a receipt for h. Receipts carry no expiry of their own so a client can
// still release a hold after its deadline.
func (i *Issuer) Issue(h models.Hold) (string, error) {
	if i == nil {
		return "", nil
	}
	claims := Claims{
		ResourceID: h.ResourceID,
		Quantity:   h.Quantity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuerName,
			Subject:  h.ID,
			IssuedAt: jwt.NewNumericDate(i.clock.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks that token was issued by this service for holdID.
func (i *Issuer) Verify(token, holdID string) error {
	if i == nil {
		return nil
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithSubject(holdID),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return domain.ValidationError{Field: "X-Hold-Token", Msg: "token hold tidak valid", Err: err}
	}
	if !parsed.Valid {
		return domain.ValidationError{Field: "X-Hold-Token", Msg: "token hold tidak valid", Err: errors.New("invalid token")}
	}
	return nil
}
