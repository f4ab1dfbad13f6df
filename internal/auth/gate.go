package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gogotex/gogotex/backend/collab-service/internal/models"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/metrics"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrMissingDocument   = errors.New("document id required")
)

// Token is a verified credential that can expose its claims.
// It is satisfied by *oidc.IDToken and by test fakes.
type Token interface {
	Claims(v interface{}) error
}

// Verifier checks a raw bearer credential.
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// Revocations reports whether a credential was revoked before it expired.
type Revocations interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// ChainVerifier tries each verifier in order and returns the first success.
type ChainVerifier []Verifier

func (c ChainVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	var errs []error
	for _, v := range c {
		if v == nil {
			continue
		}
		tok, err := v.Verify(ctx, raw)
		if err == nil {
			return tok, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no verifier configured")
	}
	return nil, errors.Join(errs...)
}

// Gate authenticates connections once, at establishment time. The identity it
// returns is bound to the connection until it drops.
type Gate struct {
	verifier Verifier
	revoked  Revocations
}

func NewGate(v Verifier, revoked Revocations) *Gate {
	return &Gate{verifier: v, revoked: revoked}
}

// Authenticate verifies credential and maps its claims to an Identity.
func (g *Gate) Authenticate(ctx context.Context, credential string) (models.Identity, error) {
	id, _, err := g.AuthenticateClaims(ctx, credential)
	return id, err
}

// AuthenticateClaims is Authenticate that also returns the raw claims.
func (g *Gate) AuthenticateClaims(ctx context.Context, credential string) (models.Identity, map[string]interface{}, error) {
	if strings.TrimSpace(credential) == "" {
		metrics.AuthFailures.WithLabelValues("missing").Inc()
		return models.Identity{}, nil, ErrMissingCredential
	}
	if g.revoked != nil {
		revoked, err := g.revoked.IsRevoked(ctx, credential)
		if err != nil {
			// revocation store down: fall through to signature checks
			logger.Warnf("auth: revocation lookup failed: %v", err)
		} else if revoked {
			metrics.AuthFailures.WithLabelValues("revoked").Inc()
			return models.Identity{}, nil, fmt.Errorf("%w: token revoked", ErrInvalidCredential)
		}
	}
	if g.verifier == nil {
		metrics.AuthFailures.WithLabelValues("invalid").Inc()
		return models.Identity{}, nil, fmt.Errorf("%w: no verifier configured", ErrInvalidCredential)
	}
	tok, err := g.verifier.Verify(ctx, credential)
	if err != nil {
		metrics.AuthFailures.WithLabelValues("invalid").Inc()
		return models.Identity{}, nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		metrics.AuthFailures.WithLabelValues("claims").Inc()
		return models.Identity{}, nil, fmt.Errorf("%w: claims: %v", ErrInvalidCredential, err)
	}
	id, ok := models.IdentityFromClaims(claims)
	if !ok {
		metrics.AuthFailures.WithLabelValues("claims").Inc()
		return models.Identity{}, nil, fmt.Errorf("%w: no subject", ErrInvalidCredential)
	}
	return id, claims, nil
}

// AuthorizeJoin checks an authenticated identity may request a room. Whether
// the document exists is not checked here.
func (g *Gate) AuthorizeJoin(id models.Identity, documentID string) error {
	if id.ID == "" {
		return ErrMissingCredential
	}
	if strings.TrimSpace(documentID) == "" {
		return ErrMissingDocument
	}
	return nil
}

// CredentialFromRequest reads a bearer credential from the Authorization
// header, falling back to the "token" query parameter used by browser
// websocket clients.
func CredentialFromRequest(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		var token string
		if n, _ := fmt.Sscanf(h, "Bearer %s", &token); n != 1 {
			return "", fmt.Errorf("%w: malformed Authorization header", ErrInvalidCredential)
		}
		return token, nil
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	return "", ErrMissingCredential
}
