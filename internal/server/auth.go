package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"fieldline/internal/domain"
)

type Principal struct {
	UserID string
	Role   domain.Role
}

func (p Principal) IsAdmin() bool { return p.Role == domain.RoleAdmin }

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, huma.StatusError) {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok && p.UserID != "" {
		return p, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

func (s *Server) signToken(u domain.User) (string, error) {
	if strings.TrimSpace(s.cfg.JWTSecret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := s.now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
			ID:        newID(),
		},
		Role: string(u.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

func (s *Server) authenticate(token string) (Principal, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	if s.store.isRevoked(token) {
		return Principal{}, errors.New("token revoked")
	}
	u, ok := s.store.user(claims.Subject)
	if !ok {
		return Principal{}, errors.New("unknown user")
	}
	return Principal{UserID: u.ID, Role: u.Role}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

var publicPaths = map[string]bool{
	"/api/auth/login":    true,
	"/api/auth/register": true,
	"/api/health":        true,
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.HasPrefix(req.URL.Path, "/api/") || publicPaths[req.URL.Path] {
			next.ServeHTTP(w, req)
			return
		}
		token, ok := bearerToken(strings.TrimSpace(req.Header.Get("Authorization")))
		if !ok {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		principal, err := s.authenticate(token)
		if err != nil {
			s.logger().Printf("mock backend: rejected token for %s %s: %v", req.Method, req.URL.Path, err)
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
			return
		}
		next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
	})
}

// faultMiddleware counts requests and serves injected failures before any
// other handling.
func (s *Server) faultMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key := routeKey(req.Method, req.URL.Path)
		f, ok := s.store.takeFault(key)
		if ok && f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-req.Context().Done():
				return
			}
		}
		if ok && f.status != 0 {
			respondStatusError(w, newAPIError(f.status, "", "injected failure", nil))
			return
		}
		next.ServeHTTP(w, req)
	})
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
