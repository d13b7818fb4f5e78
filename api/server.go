package api

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/elysium-mesh/elysium/internal/errs"
	"github.com/elysium-mesh/elysium/internal/log"
)

// TokenTTL is how long a minted bearer token remains valid. The token
// is written to disk once at startup; a caller that needs a fresh one
// past this window restarts the node, matching the spec's "minted at
// node startup" contract.
const TokenTTL = 24 * time.Hour

const bearerIssuer = "elysium-api"

// Server is the HTTP+WebSocket binding for the local management API.
type Server struct {
	node Node
	log  log.Logger

	secret []byte
	token  string

	srv *http.Server
}

// NewServer builds a Server bound to addr, minting a fresh HS256
// bearer token and writing it (mode 0600) to tokenPath, mirroring the
// identity file's own permission.
func NewServer(addr, tokenPath string, node Node, logger log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Nop{}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate api signing secret: %w", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss": bearerIssuer,
		"iat": now.Unix(),
		"exp": now.Add(TokenTTL).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		return nil, fmt.Errorf("sign api token: %w", err)
	}

	if tokenPath != "" {
		if err := os.MkdirAll(filepath.Dir(tokenPath), 0o700); err != nil {
			return nil, fmt.Errorf("create api token dir: %w", err)
		}
		if err := os.WriteFile(tokenPath, []byte(signed), 0o600); err != nil {
			return nil, fmt.Errorf("write api token: %w", err)
		}
	}

	s := &Server{node: node, log: logger, secret: secret, token: signed}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/status", s.withAuth(s.handleStatus))
	mux.HandleFunc("/v1/peers", s.withAuth(s.handlePeers))
	mux.HandleFunc("/v1/send", s.withAuth(s.handleSend))
	mux.HandleFunc("/v1/inbox", s.withAuth(s.handleInbox))
	mux.HandleFunc("/v1/watch", s.withAuth(s.handleWatch))
	mux.HandleFunc("/v1/publish", s.withAuth(s.handlePublish))
	mux.HandleFunc("/v1/fetch", s.withAuth(s.handleFetch))
	mux.HandleFunc("/v1/name/register", s.withAuth(s.handleNameRegister))
	mux.HandleFunc("/v1/name/resolve", s.withAuth(s.handleNameResolve))
	mux.HandleFunc("/v1/bundle/export", s.withAuth(s.handleBundleExport))
	mux.HandleFunc("/v1/bundle/import", s.withAuth(s.handleBundleImport))
	mux.HandleFunc("/v1/bundle/info", s.withAuth(s.handleBundleInfo))
	mux.HandleFunc("/v1/ping", s.withAuth(s.handlePing))

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Token returns the bearer token minted for this server's lifetime,
// for callers (e.g. the CLI, in-process) that don't want to re-read it
// off disk.
func (s *Server) Token() string { return s.token }

// Start serves until ctx is cancelled, then shuts down with a bounded
// grace window.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(raw) <= len(prefix) || raw[:len(prefix)] != prefix {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		tokStr := raw[len(prefix):]
		tok, err := jwt.Parse(tokStr, func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
			}
			return s.secret, nil
		})
		if err != nil || !tok.Valid {
			s.log.Warn("api: rejected request", log.String("path", r.URL.Path), log.Err(err))
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// statusFor maps an errs.Kind to the HTTP status code its disposition
// implies for an API client.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvalidInput:
		return http.StatusBadRequest
	case errs.KindAuthFailure, errs.KindCorruptLocal:
		return http.StatusUnprocessableEntity
	case errs.KindExpiry:
		return http.StatusGone
	case errs.KindCapacity:
		return http.StatusServiceUnavailable
	case errs.KindTransientIO:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
