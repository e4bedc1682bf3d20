// Package apitest runs an in-process fake of the Lingo backend for tests.
//
// Tokens are HS256 JWTs whose exp claim drives expiry, so clients exercise
// the same refresh logic they would against the real backend. Every auth
// endpoint counts its calls so tests can assert single-flight behavior.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
)

// ValidCode is the platform code the fake login endpoint accepts.
const ValidCode = "valid-code"

var signingKey = []byte("apitest-signing-key")

// Server is a fake backend. The exported knobs may be changed while the
// server is running.
type Server struct {
	*httptest.Server
	Router *mux.Router

	LoginCalls   atomic.Int32
	RefreshCalls atomic.Int32
	APICalls     atomic.Int32

	// FailRefresh makes the refresh endpoint answer with an error envelope.
	FailRefresh atomic.Bool
	// FailLogin makes the login endpoint reject every code.
	FailLogin atomic.Bool
	// Unauthorized makes every authenticated endpoint answer 401.
	Unauthorized atomic.Bool

	mu           sync.Mutex
	tokenTTL     time.Duration
	authDelay    time.Duration
	seq          int
	refreshToken map[string]string // refresh token -> user id
	lastAuth     []string
}

// Option configures a Server
type Option func(*Server)

// WithTokenTTL sets the lifetime of minted access tokens (default 1h).
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// WithAuthDelay delays login and refresh responses, widening the window in
// which concurrent callers pile up behind a single flight.
func WithAuthDelay(d time.Duration) Option {
	return func(s *Server) { s.authDelay = d }
}

// New starts a fake backend and registers its shutdown with t.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		Router:       mux.NewRouter(),
		tokenTTL:     time.Hour,
		refreshToken: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, prefix := range []string{"/v1/api", "/v2/api"} {
		s.Router.HandleFunc(prefix+"/auth/login", s.handleLogin).Methods(http.MethodPost)
		s.Router.HandleFunc(prefix+"/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
		s.Router.HandleFunc(prefix+"/app/config", s.handleAppConfig).Methods(http.MethodGet)
		s.Router.Handle(prefix+"/echo", s.requireAuth(http.HandlerFunc(s.handleEcho)))
		s.Router.Handle(prefix+"/echo/{id}", s.requireAuth(http.HandlerFunc(s.handleEcho)))
	}
	s.Router.Handle("/v1/api/users/{id}", s.requireAuth(http.HandlerFunc(s.handleUser))).Methods(http.MethodGet)
	s.Router.Handle("/v1/api/fail", s.requireAuth(http.HandlerFunc(s.handleFail)))

	s.Server = httptest.NewServer(s.Router)
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the base URL for an API version, e.g. "v1".
func (s *Server) BaseURL(version string) string {
	return s.URL + "/" + version
}

// MintToken creates an access token for userID expiring at exp.
func MintToken(userID string, exp time.Time) string {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return signed
}

// IssueRefreshToken registers a refresh token the server will accept.
func (s *Server) IssueRefreshToken(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rt := fmt.Sprintf("rt-%s-%d", userID, s.seq)
	s.refreshToken[rt] = userID
	return rt
}

// LastAuthorization returns the Authorization headers seen by authenticated
// endpoints, in arrival order.
func (s *Server) LastAuthorization() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lastAuth...)
}

func (s *Server) grant(userID string) map[string]any {
	exp := time.Now().Add(s.tokenTTL)
	return map[string]any{
		"access_token":  MintToken(userID, exp),
		"refresh_token": s.IssueRefreshToken(userID),
		"expires_at":    exp.Unix(),
		"user": map[string]any{
			"id":       userID,
			"openid":   "openid-" + userID,
			"nickname": "learner",
		},
	}
}

func (s *Server) delay() {
	s.mu.Lock()
	d := s.authDelay
	s.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.LoginCalls.Add(1)
	s.delay()

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	if s.FailLogin.Load() || req.Code != ValidCode {
		WriteError(w, http.StatusOK, "invalid_code", "login code rejected")
		return
	}
	WriteData(w, s.grant("42"))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.RefreshCalls.Add(1)
	s.delay()

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid body")
		return
	}
	if s.FailRefresh.Load() {
		WriteError(w, http.StatusOK, "refresh_failed", "refresh token expired")
		return
	}

	s.mu.Lock()
	userID, ok := s.refreshToken[req.RefreshToken]
	if ok {
		delete(s.refreshToken, req.RefreshToken)
	}
	s.mu.Unlock()
	if !ok {
		WriteError(w, http.StatusOK, "invalid_refresh_token", "unknown refresh token")
		return
	}
	WriteData(w, s.grant(userID))
}

func (s *Server) handleAppConfig(w http.ResponseWriter, r *http.Request) {
	s.APICalls.Add(1)
	s.mu.Lock()
	s.lastAuth = append(s.lastAuth, r.Header.Get("Authorization"))
	s.mu.Unlock()
	WriteData(w, map[string]any{"min_version": "1.0.0", "maintenance": false})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.APICalls.Add(1)
		auth := r.Header.Get("Authorization")
		s.mu.Lock()
		s.lastAuth = append(s.lastAuth, auth)
		s.mu.Unlock()

		if s.Unauthorized.Load() {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "session revoked")
			return
		}

		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "missing token")
			return
		}
		var claims jwt.RegisteredClaims
		_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
			return signingKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	WriteData(w, map[string]any{
		"id":       mux.Vars(r)["id"],
		"nickname": "learner",
		"level":    "B1",
	})
}

// handleEcho returns what it received: path vars, query and JSON body.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	query := map[string]string{}
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}
	var body map[string]any
	if r.Body != nil && r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	WriteData(w, map[string]any{
		"method":     r.Method,
		"path":       r.URL.Path,
		"vars":       mux.Vars(r),
		"query":      query,
		"body":       body,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusOK, "E42", "something went wrong")
}

// WriteData writes a success envelope.
func WriteData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": data})
}

// WriteError writes an error envelope with the given HTTP status.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"status": "error",
		"error":  map[string]any{"code": code, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
