package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/energyadvisor/pkg/api"
	"github.com/raterudder/energyadvisor/pkg/common"
	"github.com/raterudder/energyadvisor/pkg/ledger"
	"github.com/raterudder/energyadvisor/pkg/log"
	"github.com/raterudder/energyadvisor/pkg/monitor"
	"github.com/raterudder/energyadvisor/pkg/storage"
	"github.com/raterudder/energyadvisor/pkg/types"
)

const authTokenCookie = "auth_token"

// tokenVerifier validates an OIDC ID token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Server is the dashboard HTTP API. It proxies reads to the energy API and
// owns the recommendation ledger.
type Server struct {
	client  *api.Client
	store   storage.Store
	monitor *monitor.Monitor

	// set up by Run, or directly in tests
	ledger *ledger.Ledger
	status *api.Fetcher[types.CurrentStatus]

	listenAddr string
	httpServer *http.Server

	oidcVerifier tokenVerifier
	serverName   string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(c *api.Client, s storage.Store, m *monitor.Monitor) *Server {
	srv := &Server{
		client:     c,
		store:      s,
		monitor:    m,
		serverName: "energyadvisor/" + common.Version(),
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	oidcIssuer := lflag.String("oidc-issuer", "https://accounts.google.com", "Issuer of the ID tokens accepted by the API")
	oidcAudience := lflag.String("oidc-audience", "", "Audience (client ID) that ID tokens must carry. Empty disables authentication")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		if *oidcAudience != "" {
			provider, err := oidc.NewProvider(context.Background(), *oidcIssuer)
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.String("issuer", *oidcIssuer), slog.Any("error", err))
				os.Exit(1)
			}
			srv.oidcVerifier = provider.Verifier(&oidc.Config{ClientID: *oidcAudience}).Verify
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/current-status", s.handleCurrentStatus)
	apiMux.HandleFunc("GET /api/forecast", s.handleForecast)
	apiMux.HandleFunc("GET /api/historical-data", s.handleHistoricalData)
	apiMux.HandleFunc("GET /api/recommendations", s.handleRecommendations)
	apiMux.HandleFunc("GET /api/upstream", s.handleUpstream)
	apiMux.HandleFunc("GET /api/ledger", s.handleListLedger)
	apiMux.HandleFunc("POST /api/ledger", s.handleAccept)
	apiMux.HandleFunc("GET /api/ledger/summary", s.handleLedgerSummary)
	apiMux.HandleFunc("GET /api/ledger/{id}", s.handleGetLedgerEntry)
	apiMux.HandleFunc("PATCH /api/ledger/{id}/status", s.handleUpdateStatus)
	apiMux.HandleFunc("DELETE /api/ledger/{id}", s.handleDeleteLedgerEntry)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run loads the ledger, starts polling the current status and serves HTTP
// until the context is canceled or an error occurs.
func (s *Server) Run(ctx context.Context) error {
	l, err := ledger.New(ctx, s.store, s.client)
	if err != nil {
		return err
	}
	s.ledger = l
	defer l.Close()

	s.status = api.NewFetcher(s.client, api.EndpointCurrentStatus, nil, func(r api.FetchResult[types.CurrentStatus]) {
		if !r.Loading && r.Err != nil {
			log.Ctx(ctx).WarnContext(ctx, "current status refresh failed", slog.Int("retries", r.RetryCount), slog.Any("error", r.Err))
		}
	})
	defer s.status.Close()

	if s.monitor != nil {
		if err := s.monitor.Start(ctx, s.status); err != nil {
			return err
		}
		defer s.monitor.Stop()
	}

	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// writeJSONError writes {"error": msg}. ctx carries the request logger.
func writeJSONError(ctx context.Context, w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

// writeUpstreamError maps a failed energy API call to a response. Errors the
// API reported become 502s, unreachable upstreams become 503s.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var herr *api.HTTPError
	var nerr *api.NetworkError
	var cerr *api.ContentTypeError
	switch {
	case errors.As(err, &herr):
		log.Ctx(ctx).WarnContext(ctx, "upstream returned error", slog.Int("status", herr.StatusCode), slog.String("message", herr.Message))
		writeJSONError(ctx, w, herr.Message, http.StatusBadGateway)
	case errors.As(err, &nerr):
		log.Ctx(ctx).WarnContext(ctx, "upstream unreachable", slog.Any("error", nerr.Err))
		writeJSONError(ctx, w, nerr.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &cerr):
		log.Ctx(ctx).WarnContext(ctx, "upstream returned non-json", slog.String("contentType", cerr.ContentType))
		writeJSONError(ctx, w, cerr.Error(), http.StatusBadGateway)
	case ctx.Err() != nil:
		// client went away
		panic(http.ErrAbortHandler)
	default:
		log.Ctx(ctx).ErrorContext(ctx, "upstream request failed", slog.Any("error", err))
		writeJSONError(ctx, w, "upstream request failed", http.StatusInternalServerError)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
