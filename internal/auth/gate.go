// Package auth verifies identity-provider tokens on admin requests and checks
// the resulting identity against the admin allowlists.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/config"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/metrics"
)

const (
	// AssertionHeader carries the identity provider's signed assertion.
	AssertionHeader = "Cf-Access-Jwt-Assertion"

	BypassSubject = "local-bypass"

	WarnBypass        = "access verification is disabled (ADMIN_AUTH_BYPASS_LOCAL); do not run this way in production"
	WarnOpenAllowlist = "admin allowlist is not configured; any verified identity is allowed (open for local development)"
)

// Identity is who a verified token says the caller is.
type Identity struct {
	Subject string
	Email   string
}

// Decision is the outcome of a successful authorization. Warnings are
// non-fatal and must be surfaced to the caller.
type Decision struct {
	Identity Identity
	Warnings []string
}

// Warning joins all warnings into a single header-friendly string.
func (d *Decision) Warning() string {
	return strings.Join(d.Warnings, "; ")
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Gate authorizes admin requests. It holds no mutable state of its own; the
// key set cache is injected.
type Gate struct {
	cfg      config.AuthConfig
	keys     *KeySetCache
	subjects map[string]struct{}
	emails   map[string]struct{}
	now      func() time.Time
}

func NewGate(cfg config.AuthConfig, keys *KeySetCache) *Gate {
	if keys == nil {
		keys = NewKeySetCache(nil, cfg.KeySetCacheTTL)
	}
	g := &Gate{
		cfg:      cfg,
		keys:     keys,
		subjects: make(map[string]struct{}, len(cfg.SubjectAllowlist)),
		emails:   make(map[string]struct{}, len(cfg.EmailAllowlist)),
		now:      time.Now,
	}
	for _, s := range cfg.SubjectAllowlist {
		g.subjects[s] = struct{}{}
	}
	for _, e := range cfg.EmailAllowlist {
		g.emails[strings.ToLower(e)] = struct{}{}
	}
	return g
}

// Authorize decides whether the request headers carry an admin identity.
// Errors are *apperr.Error of kind Unauthenticated or Forbidden.
func (g *Gate) Authorize(ctx context.Context, h http.Header) (*Decision, error) {
	d, outcome, err := g.authorize(ctx, h)
	metrics.AuthDecisions.WithLabelValues(outcome).Inc()
	return d, err
}

func (g *Gate) authorize(ctx context.Context, h http.Header) (*Decision, string, error) {
	token := bearerToken(h)
	if token == "" {
		return nil, "unauthenticated", apperr.New(apperr.KindUnauthenticated, "missing authentication headers")
	}

	if !g.cfg.VerificationConfigured() {
		if g.cfg.BypassLocal {
			return &Decision{
				Identity: Identity{Subject: BypassSubject},
				Warnings: []string{WarnBypass},
			}, "bypass", nil
		}
		return nil, "unauthenticated", apperr.New(apperr.KindUnauthenticated, "access verification is not configured")
	}

	claims, err := g.verify(ctx, token)
	if err != nil {
		return nil, "unauthenticated", apperr.Wrap(apperr.KindUnauthenticated, "invalid token", err)
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return nil, "unauthenticated", apperr.New(apperr.KindUnauthenticated, "invalid token: missing subject")
	}
	id := Identity{Subject: sub, Email: strings.ToLower(strings.TrimSpace(claims.Email))}

	if len(g.subjects) == 0 && len(g.emails) == 0 {
		return &Decision{Identity: id, Warnings: []string{WarnOpenAllowlist}}, "allowed_open", nil
	}
	if _, ok := g.subjects[id.Subject]; ok {
		return &Decision{Identity: id}, "allowed", nil
	}
	if id.Email != "" {
		if _, ok := g.emails[id.Email]; ok {
			return &Decision{Identity: id}, "allowed", nil
		}
	}
	return nil, "forbidden", apperr.New(apperr.KindForbidden, "not in admin allowlist")
}

func (g *Gate) verify(ctx context.Context, raw string) (*accessClaims, error) {
	issuer := g.cfg.Issuer()
	url := g.cfg.KeySetURL()

	// an unknown kid means the issuer may have rotated; refetch once
	lookupKey := func(t *jwt.Token) (any, error) {
		kf, err := g.keys.Keys(ctx, issuer, url)
		if err != nil {
			return nil, err
		}
		key, err := kf.Keyfunc(t)
		if err == nil {
			return key, nil
		}
		kf, fetched, rerr := g.keys.Refresh(ctx, issuer, url)
		if rerr != nil {
			return nil, rerr
		}
		if !fetched {
			return nil, fmt.Errorf("%w (refresh throttled)", err)
		}
		return kf.Keyfunc(t)
	}

	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, lookupKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return nil, err
	}
	if !audienceMatches(claims.Audience, g.cfg.Audiences) {
		return nil, errors.New("audience mismatch")
	}
	return claims, nil
}

func audienceMatches(got jwt.ClaimStrings, want []string) bool {
	for _, a := range got {
		if slices.Contains(want, a) {
			return true
		}
	}
	return false
}

// bearerToken pulls the credential from the assertion header, falling back
// to Authorization: Bearer.
func bearerToken(h http.Header) string {
	if v := strings.TrimSpace(h.Get(AssertionHeader)); v != "" {
		return v
	}
	auth := strings.TrimSpace(h.Get("Authorization"))
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}
