// Package transport wraps the HTTP client so every outbound request
// carries the current access token, and 401 responses feed back into the
// session lifecycle.
package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/nuvocrm/go-session-client/credstore"
	"github.com/nuvocrm/go-session-client/events"
	ierrors "github.com/nuvocrm/go-session-client/internal/errors"
)

const maxErrorBody = 64 << 10

// expiryPayload is the slice of the backend's 401 body that distinguishes
// "your session ended" from "your credentials were wrong".
type expiryPayload struct {
	TokenExpired bool   `json:"tokenExpired"`
	Code         string `json:"code"`
}

var _ http.RoundTripper = (*Transport)(nil)

// Transport is an http.RoundTripper that attaches the stored access token
// as a Bearer credential and enforces storage consistency: a token whose
// embedded subject disagrees with the separately stored user id is never
// forwarded.
type Transport struct {
	base   http.RoundTripper
	store  credstore.Store
	bus    *events.Bus
	logger zerolog.Logger
}

// New creates a Transport around base. A nil base falls back to
// http.DefaultTransport.
func New(base http.RoundTripper, store credstore.Store, bus *events.Bus, logger zerolog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:   base,
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec, err := t.store.Read()
	if err != nil {
		// Unreadable storage means no valid session; the request still
		// goes out unauthenticated.
		t.logger.Warn().Err(err).Msg("credential store read failed")
		rec = credstore.Record{}
	}

	if rec.AccessToken != "" {
		sub, decodeErr := subjectClaim(rec.AccessToken)
		switch {
		case decodeErr != nil:
			// Malformed token: drop it silently and proceed unauthenticated.
			t.logger.Debug().Err(decodeErr).Msg("dropping malformed access token")
			_ = t.store.ClearAccess()

		case rec.UserID != "" && sub != "" && sub != rec.UserID:
			// Stale or tampered storage. Never forward the token.
			t.logger.Warn().
				Str("tokenSubject", sub).
				Str("storedUserId", rec.UserID).
				Msg("token identity mismatch, clearing credentials")
			_ = t.store.Clear()
			return nil, ierrors.ErrCredentialMismatch

		default:
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+rec.AccessToken)
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		t.handleUnauthorized(resp)
	}
	return resp, nil
}

// handleUnauthorized clears the access token and, when the body carries the
// explicit expiry signal, announces the expiry. The body is restored so the
// caller can still decode the error payload.
func (t *Transport) handleUnauthorized(resp *http.Response) {
	_ = t.store.ClearAccess()

	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}

	var payload expiryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return // not all 401s are expiry
	}
	if payload.TokenExpired || payload.Code == "TOKEN_EXPIRED" {
		t.logger.Info().Msg("backend reports token expired")
		if t.bus != nil {
			t.bus.PublishTokenExpired(events.TokenExpired{Reason: "token expired"})
		}
	}
}

// subjectClaim decodes the token's sub claim without verifying the
// signature; validation is the server's job, the client only needs the
// embedded identity for the consistency check.
func subjectClaim(raw string) (string, error) {
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", err
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", nil // token has no subject; nothing to compare
	}
	return sub, nil
}
