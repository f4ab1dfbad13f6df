package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/auth"
	"github.com/gogotex/gogotex/backend/collab-service/internal/config"
	"github.com/gogotex/gogotex/backend/collab-service/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// GenerateAccessToken creates a signed JWT access token for the user.
// The service itself never issues tokens; this is used by tools and tests
// that share JWT_SECRET with the issuer.
func GenerateAccessToken(cfg *config.Config, u *models.User, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   u.Sub,
		"name":  u.Name,
		"email": u.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.JWT.Secret))
}

type claimsToken struct {
	claims jwt.MapClaims
}

func (t *claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// MinSecretLength is the shortest HS256 secret NewVerifier accepts.
const MinSecretLength = 32

// Verifier validates HS256 access tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret is %d bytes, need at least %d", len(secret), MinSecretLength)
	}
	return &Verifier{secret: []byte(secret)}, nil
}

func (v *Verifier) Verify(ctx context.Context, raw string) (auth.Token, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("hs256: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("hs256: token not valid")
	}
	if _, ok := claims["exp"]; !ok {
		return nil, errors.New("hs256: exp claim required")
	}
	return &claimsToken{claims: claims}, nil
}
