package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/pmuprofit/coursegate/internal/pkg/constants"
)

// Source names the signal a principal was resolved from.
type Source string

const (
	SourceNone       Source = "none"
	SourceAuthCookie Source = "auth_cookie"
	SourceSession    Source = "session"
	SourceStateToken Source = "state_token"
	SourceRecovery   Source = "recovery"
)

// Resolution is the outcome of one Resolve call. Refreshed is set when the
// session was refreshed and the caller should rewrite the session cookies.
type Resolution struct {
	PrincipalID string
	Source      Source
	Refreshed   *Session
}

func (r Resolution) Resolved() bool {
	return r.PrincipalID != ""
}

// SessionProvider validates and refreshes identity-provider sessions.
type SessionProvider interface {
	GetUser(ctx context.Context, accessToken string) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

const DefaultCacheTTL = 5 * time.Second

// Resolver extracts a principal id from a request. It keeps no per-request
// state and is safe for concurrent use.
type Resolver struct {
	provider SessionProvider
	verifier *TokenVerifier
	cache    Cache
	ttl      time.Duration
}

type Option func(*Resolver)

func WithSessionProvider(p SessionProvider) Option {
	return func(r *Resolver) { r.provider = p }
}

// WithTokenVerifier enables local HS256 validation of access tokens. A nil
// verifier leaves validation to the session provider.
func WithTokenVerifier(v *TokenVerifier) Option {
	return func(r *Resolver) { r.verifier = v }
}

func WithCache(c Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = c
		r.ttl = ttl
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		cache: NewMemoryCache(),
		ttl:   DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the signals in priority order and returns the first valid
// principal. Decode and provider failures demote a step to "absent".
func (r *Resolver) Resolve(ctx context.Context, req Request) Resolution {
	if id, ok := fromAuthCookie(req); ok {
		return Resolution{PrincipalID: id, Source: SourceAuthCookie}
	}
	if res, ok := r.fromSession(ctx, req); ok {
		return res
	}
	if id, ok := fromStateToken(req.Query(constants.QueryStateToken)); ok {
		return Resolution{PrincipalID: id, Source: SourceStateToken}
	}
	if id, ok := fromRecovery(req); ok {
		return Resolution{PrincipalID: id, Source: SourceRecovery}
	}
	return Resolution{Source: SourceNone}
}

// StatePrincipal decodes only the state token of a request.
func StatePrincipal(req Request) (string, bool) {
	return fromStateToken(req.Query(constants.QueryStateToken))
}

// RecoveryPrincipal reads only the recovery user id of a request.
func RecoveryPrincipal(req Request) (string, bool) {
	return fromRecovery(req)
}

func fromAuthCookie(req Request) (string, bool) {
	if req.Cookie(constants.CookieAuthStatus) != constants.AuthStatusAuthenticated {
		return "", false
	}
	return validUUID(req.Cookie(constants.CookieUserID))
}

func (r *Resolver) fromSession(ctx context.Context, req Request) (Resolution, bool) {
	access := strings.TrimSpace(req.Cookie(constants.CookieAccessToken))
	refresh := strings.TrimSpace(req.Cookie(constants.CookieRefreshToken))
	if access == "" && refresh == "" {
		return Resolution{}, false
	}

	key := CacheKey(firstNonEmpty(refresh, access))
	if r.cache != nil {
		if id, ok := r.cache.Get(ctx, key); ok {
			return Resolution{PrincipalID: id, Source: SourceSession}, true
		}
	}

	var err error
	if access != "" {
		var subject string
		subject, err = r.validateAccess(ctx, access)
		if err == nil {
			if id, ok := validUUID(subject); ok {
				r.remember(ctx, key, id)
				return Resolution{PrincipalID: id, Source: SourceSession}, true
			}
			log.Debugf("[identity] session subject is not a uuid")
			return Resolution{}, false
		}
		log.Debugf("[identity] access token rejected: %v", err)
	}

	// refresh at most once, only when the access credential is missing or invalid
	if refresh == "" || r.provider == nil || (access != "" && !errors.Is(err, ErrInvalidSession)) {
		return Resolution{}, false
	}
	session, err := r.provider.Refresh(ctx, refresh)
	if err != nil {
		log.Debugf("[identity] session refresh failed: %v", err)
		return Resolution{}, false
	}
	id, ok := validUUID(session.User.ID)
	if !ok {
		return Resolution{}, false
	}
	r.remember(ctx, CacheKey(firstNonEmpty(session.RefreshToken, session.AccessToken)), id)
	log.Infof("[identity] session refreshed for user %s", id)
	return Resolution{PrincipalID: id, Source: SourceSession, Refreshed: session}, true
}

func (r *Resolver) validateAccess(ctx context.Context, access string) (string, error) {
	if r.verifier != nil {
		return r.verifier.Subject(access)
	}
	if r.provider == nil {
		return "", ErrProviderNotConfigured
	}
	u, err := r.provider.GetUser(ctx, access)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func (r *Resolver) remember(ctx context.Context, key, id string) {
	if r.cache != nil {
		r.cache.Set(ctx, key, id, r.ttl)
	}
}

func fromStateToken(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	tok, err := DecodeStateToken(raw)
	if err != nil {
		log.Debugf("[identity] ignoring state token: %v", err)
		return "", false
	}
	return validUUID(tok.UserID)
}

func fromRecovery(req Request) (string, bool) {
	if id, ok := validUUID(req.Query(constants.QueryRecoveryUserID)); ok {
		return id, true
	}
	return validUUID(req.Cookie(constants.CookieUserID))
}

func validUUID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
