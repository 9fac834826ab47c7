package rpc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"peershield/observability/logging"
)

const (
	scopeClaim  = "scope"
	scopeOutbox = "outbox"
)

type principalKey struct{}

// principal is the authenticated identity behind a request. Subject becomes
// the caller of execute messages.
type principal struct {
	Subject string
	Scopes  []string
}

func (p principal) hasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}

type authenticator struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
}

func newAuthenticator(secret, issuer string, clockSkew time.Duration) *authenticator {
	if clockSkew <= 0 {
		clockSkew = 2 * time.Minute
	}
	return &authenticator{
		secret:    []byte(strings.TrimSpace(secret)),
		issuer:    strings.TrimSpace(issuer),
		clockSkew: clockSkew,
	}
}

func (a *authenticator) authenticate(r *http.Request) (principal, error) {
	if len(a.secret) == 0 {
		return principal{}, errors.New("rpc authentication not configured")
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return principal{}, errors.New("missing bearer token")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.clockSkew), jwt.WithExpirationRequired())
	if err != nil {
		return principal{}, err
	}
	if !token.Valid {
		return principal{}, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return principal{}, errors.New("claims not map")
	}
	if a.issuer != "" {
		if value, ok := claims["iss"].(string); !ok || value != a.issuer {
			return principal{}, errors.New("issuer mismatch")
		}
	}
	subject, _ := claims["sub"].(string)
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return principal{}, errors.New("subject claim required")
	}
	return principal{Subject: subject, Scopes: extractScopes(claims)}, nil
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func extractScopes(claims jwt.MapClaims) []string {
	switch v := claims[scopeClaim].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// authenticated rejects requests without a valid bearer token and exposes
// the token subject to next.
func (s *Server) authenticated(next handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		p, err := s.auth.authenticate(r)
		if err != nil {
			s.logger.Debug("rpc authentication failed",
				"method", req.Method,
				logging.MaskField("authorization", r.Header.Get("Authorization")),
				"error", err)
			writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)), req)
	}
}

// scoped additionally requires scope on the token.
func (s *Server) scoped(scope string, next handlerFunc) handlerFunc {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		p, _ := principalFrom(r.Context())
		if !p.hasScope(scope) {
			writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, "insufficient scope", scope)
			return
		}
		next(w, r, req)
	})
}

// IssueToken signs an HS256 token for subject. It is used by operators and
// the CLI to mint credentials for the RPC server.
func IssueToken(secret, issuer, subject string, scopes []string, ttl time.Duration) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("secret required")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("subject required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if issuer = strings.TrimSpace(issuer); issuer != "" {
		claims["iss"] = issuer
	}
	if len(scopes) > 0 {
		claims[scopeClaim] = strings.Join(scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
