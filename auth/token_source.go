package auth

import (
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/oauth2"

	ierrors "github.com/nuvocrm/go-session-client/internal/errors"
)

// TokenSource exposes the managed session as an oauth2.TokenSource, so
// HTTP stacks built on golang.org/x/oauth2 can consume the credentials the
// manager keeps fresh. The source never refreshes on its own; that stays
// the scheduler's job.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return &storeTokenSource{m: m}
}

type storeTokenSource struct {
	m *Manager
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	rec, err := s.m.deps.Store.Read()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[TokenSource] store read")
	}
	if !rec.HasToken() {
		return nil, pkgerrors.Wrap(ierrors.ErrNoSession, "[TokenSource]")
	}
	return &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		Expiry:       rec.TokenExpiry,
		TokenType:    "Bearer",
	}, nil
}
