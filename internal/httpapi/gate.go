package httpapi

import (
	"context"
	"net/http"
	"strings"

	"auth-service/internal/clock"
	"auth-service/internal/observability"
	"auth-service/internal/principal"
	"auth-service/internal/token"
)

type ctxKey int

const identityKey ctxKey = iota

// Identity is the authenticated principal attached to a request that
// carried a valid, unexpired access token.
type Identity struct {
	Username string
	Roles    []string
	Enabled  bool
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Gate validates bearer access tokens. Access tokens are self-validating;
// the gate never consults the refresh store, so a token stays good until
// its natural expiry even after logout-all.
type Gate struct {
	signer   *token.Signer
	resolver principal.Resolver
	logger   *observability.Logger
	clock    clock.Clock
}

func NewGate(signer *token.Signer, resolver principal.Resolver, logger *observability.Logger, clk clock.Clock) *Gate {
	return &Gate{signer: signer, resolver: resolver, logger: logger, clock: clk}
}

// Middleware attaches an Identity when the request carries a valid token.
// Requests without one continue unauthenticated; rejection is left to
// Require on the routes that demand it.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := g.signer.Verify(tokenStr)
		if err != nil {
			// A failed signature is worth a log line; expiry below is not,
			// clients refresh expired tokens all day long.
			g.logger.Warn("access_token_rejected", map[string]any{"ip": clientIP(r)})
			next.ServeHTTP(w, r)
			return
		}

		if g.signer.IsExpired(tokenStr) {
			next.ServeHTTP(w, r)
			return
		}

		info, err := g.resolver.Describe(r.Context(), claims.Subject)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		identity := Identity{Username: claims.Subject, Roles: info.Roles, Enabled: info.Enabled}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

// Require rejects requests that did not authenticate.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok || !identity.Enabled {
			writeError(w, g.clock.Now(), http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request) string {
	xForwardedFor := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xForwardedFor != "" {
		parts := strings.Split(xForwardedFor, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
