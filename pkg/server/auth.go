package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/raterudder/energyadvisor/pkg/log"
)

type contextKey string

const subjectContextKey contextKey = "subject"

// authMiddleware requires a valid ID token on every API request when an OIDC
// audience is configured. The token is read from the Authorization header or
// the auth_token cookie.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))

		if s.oidcVerifier == nil {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		var token string
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
				writeJSONError(ctx, w, "invalid auth header", http.StatusBadRequest)
				return
			}
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			authCookie, err := r.Cookie(authTokenCookie)
			if err != nil && !errors.Is(err, http.ErrNoCookie) {
				log.Ctx(ctx).ErrorContext(ctx, "failed to get auth cookie", slog.Any("error", err))
				writeJSONError(ctx, w, "invalid auth cookie", http.StatusBadRequest)
				return
			}
			if authCookie != nil {
				token = authCookie.Value
			}
		}
		if token == "" {
			log.Ctx(ctx).WarnContext(ctx, "unauthenticated request")
			writeJSONError(ctx, w, "unauthorized", http.StatusUnauthorized)
			return
		}

		idToken, err := s.oidcVerifier(ctx, token)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "auth token validation failed", slog.Any("error", err))
			writeJSONError(ctx, w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("authSubject", idToken.Subject)))
		ctx = context.WithValue(ctx, subjectContextKey, idToken.Subject)
		log.Ctx(ctx).DebugContext(ctx, "authenticated request")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getSubject returns the authenticated subject or "" when auth is disabled.
func getSubject(r *http.Request) string {
	subject, _ := r.Context().Value(subjectContextKey).(string)
	return subject
}
