package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// MinSecretLength is the shortest HS256 signing secret accepted.
const MinSecretLength = 32

// Token errors.
var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the application claims carried by an access token.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	expiry time.Duration
	signer jose.Signer
	now    func() time.Time
}

// NewIssuer creates an issuer. The secret must be at least MinSecretLength bytes.
func NewIssuer(secret string, expiry time.Duration) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("jwt expiry must be positive")
	}
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	return &Issuer{secret: []byte(secret), expiry: expiry, signer: sig, now: time.Now}, nil
}

// Expiry returns the configured token lifetime.
func (i *Issuer) Expiry() time.Duration {
	return i.expiry
}

// Issue returns a signed token for the given claims.
func (i *Issuer) Issue(c Claims) (string, error) {
	now := i.now()
	reg := jwt.Claims{
		Subject:  c.UserID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(i.expiry)),
	}
	raw, err := jwt.Signed(i.signer).Claims(reg).Claims(c).Serialize()
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return raw, nil
}

// Verify parses raw, checks the signature and expiry and returns the claims.
func (i *Issuer) Verify(raw string) (Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}
	var reg jwt.Claims
	var c Claims
	if err := tok.Claims(i.secret, &reg, &c); err != nil {
		return Claims{}, ErrTokenInvalid
	}
	if err := reg.ValidateWithLeeway(jwt.Expected{Time: i.now()}, 0); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if c.UserID == "" {
		return Claims{}, ErrTokenInvalid
	}
	return c, nil
}
