package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"fieldops/internal/auth"
)

type AuthConfig struct {
	JWTSecret string
	Logger    *slog.Logger
}

func (c AuthConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func principalOf(ctx context.Context) (auth.Principal, huma.StatusError) {
	if p, ok := auth.FromContext(ctx); ok && p.Subject != "" {
		return p, nil
	}
	return auth.Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	p, err := principalOf(ctx)
	if err != nil {
		return "", err
	}
	return p.Subject, nil
}

// teamFromContext resolves the team a play request acts for. Players act as
// the team named by their token; arbitrators may act for any team.
func teamFromContext(ctx context.Context, override string) (string, huma.StatusError) {
	p, err := principalOf(ctx)
	if err != nil {
		return "", err
	}
	override = strings.TrimSpace(override)
	if override == "" || override == p.Subject {
		return p.Subject, nil
	}
	if !p.HasRole(auth.RoleArbitrator) {
		return "", handleError(auth.ForbiddenError{Role: auth.RoleArbitrator})
	}
	return override, nil
}

func requireRole(ctx context.Context, role string) (string, huma.StatusError) {
	p, err := principalOf(ctx)
	if err != nil {
		return "", err
	}
	if err := p.Require(role); err != nil {
		return "", handleError(err)
	}
	return p.Subject, nil
}

// newAuthMiddleware authenticates every request under basePath except the
// health check and the OpenAPI document. Websocket clients that cannot set
// headers may pass the token as access_token.
func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	specPath := path.Join(basePath, "openapi.json")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || req.Method == http.MethodOptions {
				next.ServeHTTP(w, req)
				return
			}
			if req.URL.Path == healthPath || req.URL.Path == specPath {
				next.ServeHTTP(w, req)
				return
			}

			var token string
			if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
				t, ok := auth.BearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				token = t
			} else {
				token = strings.TrimSpace(req.URL.Query().Get("access_token"))
			}
			if token == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			principal, err := auth.Parse(token, cfg.JWTSecret)
			if err != nil {
				cfg.logger().Debug("rejected token", "error", err, "path", req.URL.Path)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(auth.WithPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body auth.Principal `json:"body"`
	}, error) {
		p, err := principalOf(ctx)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body auth.Principal `json:"body"`
		}{Body: p}, nil
	})
}
