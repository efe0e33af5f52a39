// Package crmtest runs an in-process fake of the CRM backend's auth
// endpoints. Tests and the demo binary point the session client at it
// instead of a real deployment.
package crmtest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nuvocrm/go-session-client/users"
)

type account struct {
	user         users.User
	passwordHash []byte
	locked       bool
	rateLimited  bool
}

// Server is a fake CRM auth backend. All mutating knobs are safe for
// concurrent use with in-flight requests.
type Server struct {
	mu            sync.Mutex
	accounts      map[string]*account // keyed by email
	refreshTokens map[string]string   // refresh token -> user id
	secret        []byte
	tokenTTL      time.Duration
	allExpired    bool
	logoutCalls   int
	refreshCalls  int

	ts *httptest.Server
}

// Option configures the fake server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) { s.tokenTTL = ttl }
}

// New starts the fake backend. Callers must Close it.
func New(opts ...Option) *Server {
	s := &Server{
		accounts:      make(map[string]*account),
		refreshTokens: make(map[string]string),
		secret:        []byte("crmtest-" + uuid.New().String()),
		tokenTTL:      time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh-token", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
		r.Get("/profile", s.handleProfile)
	})

	s.ts = httptest.NewServer(r)
	return s
}

// URL is the base URL clients should use.
func (s *Server) URL() string { return s.ts.URL }

// Close shuts the fake backend down.
func (s *Server) Close() { s.ts.Close() }

// AddAccount registers a user with a plaintext password.
func (s *Server) AddAccount(email, password string, user users.User) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err) // fixture setup only
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = &account{user: user, passwordHash: hash}
}

// LockAccount makes subsequent logins for email fail with 423.
func (s *Server) LockAccount(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[email]; ok {
		a.locked = true
	}
}

// RateLimit makes subsequent logins for email fail with 429.
func (s *Server) RateLimit(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[email]; ok {
		a.rateLimited = true
	}
}

// ExpireAllTokens makes every authenticated request and refresh attempt
// answer 401 with the explicit token-expired signal.
func (s *Server) ExpireAllTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allExpired = true
	s.refreshTokens = make(map[string]string)
}

// SetTokenTTL changes the lifetime of tokens issued from now on.
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = ttl
}

// LogoutCalls reports how many times /auth/logout was hit.
func (s *Server) LogoutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutCalls
}

// RefreshCalls reports how many times /auth/refresh-token was hit.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeEnvelope(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "message": "Malformed request",
		})
		return
	}

	s.mu.Lock()
	a, ok := s.accounts[body.Email]
	ttl := s.tokenTTL
	s.mu.Unlock()

	switch {
	case !ok:
		writeEnvelope(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false, "message": "Invalid credentials",
		})
	case a.locked:
		writeEnvelope(w, http.StatusLocked, map[string]interface{}{
			"success": false, "message": "Account locked. Contact an administrator.",
		})
	case a.rateLimited:
		writeEnvelope(w, http.StatusTooManyRequests, map[string]interface{}{
			"success": false, "message": "Too many attempts. Try again later.",
		})
	case bcrypt.CompareHashAndPassword(a.passwordHash, []byte(body.Password)) != nil:
		writeEnvelope(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false, "message": "Invalid credentials",
		})
	default:
		expiry := time.Now().Add(ttl)
		access := s.mintToken(a.user.ID, expiry)
		refresh := uuid.New().String()
		s.mu.Lock()
		s.refreshTokens[refresh] = a.user.ID
		s.mu.Unlock()

		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"accessToken":  access,
				"refreshToken": refresh,
				"tokenExpiry":  expiry.Format(time.RFC3339Nano),
				"user":         a.user,
			},
		})
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.refreshCalls++
	userID, ok := s.refreshTokens[body.RefreshToken]
	expired := s.allExpired
	ttl := s.tokenTTL
	s.mu.Unlock()

	if expired || !ok {
		writeEnvelope(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false, "message": "Invalid refresh token", "tokenExpired": true,
		})
		return
	}

	expiry := time.Now().Add(ttl)
	writeEnvelope(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"accessToken": s.mintToken(userID, expiry),
			"tokenExpiry": expiry.Format(time.RFC3339Nano),
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.logoutCalls++
	s.mu.Unlock()
	writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID, expired := s.authenticate(r)
	if expired {
		writeEnvelope(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false, "message": "Token expired", "tokenExpired": true, "code": "TOKEN_EXPIRED",
		})
		return
	}
	if userID == "" {
		writeEnvelope(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false, "message": "Unauthorized",
		})
		return
	}

	s.mu.Lock()
	var user *users.User
	for _, a := range s.accounts {
		if a.user.ID == userID {
			u := a.user
			user = &u
			break
		}
	}
	s.mu.Unlock()

	if user == nil {
		writeEnvelope(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false, "message": "Unauthorized",
		})
		return
	}
	writeEnvelope(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    map[string]interface{}{"user": user},
	})
}

// authenticate returns the token's subject, or expired=true when the token
// is past its exp claim or the server has been told to expire everything.
func (s *Server) authenticate(r *http.Request) (userID string, expired bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	s.mu.Lock()
	allExpired := s.allExpired
	s.mu.Unlock()

	token, err := jwtlib.Parse(parts[1], func(*jwtlib.Token) (interface{}, error) {
		return s.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return "", true
		}
		return "", false
	}
	if allExpired {
		return "", true
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", false
	}
	return sub, false
}

func (s *Server) mintToken(userID string, expiry time.Time) string {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": userID,
		"exp": expiry.Unix(),
		"iat": time.Now().Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		panic(err) // HS256 signing cannot fail with a valid key
	}
	return signed
}

func writeEnvelope(w http.ResponseWriter, status int, payload map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
