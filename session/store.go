package session

import (
	"sync"

	"github.com/google/uuid"
)

// Store is the single owner of the in-memory Session. Dispatches are
// serialised; each produces the next state atomically, and listeners then
// receive a snapshot of it. Pass the store by handle to every consumer;
// there is no package-level instance.
type Store struct {
	mu        sync.RWMutex
	state     Session
	listeners map[string]func(Session)
}

// NewStore creates a session store in the bootstrapping state.
func NewStore() *Store {
	return &Store{
		state:     Session{IsBootstrapping: true},
		listeners: make(map[string]func(Session)),
	}
}

// State returns a snapshot of the current session.
func (s *Store) State() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers a listener invoked after every transition with the
// new state. Listeners run on the dispatching goroutine and must not block.
func (s *Store) Subscribe(listener func(Session)) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New().String()
	s.listeners[id] = listener
	return id
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

// Dispatch applies an action and notifies listeners. The reduction happens
// under the lock; notification happens after release so listeners may read
// state or dispatch follow-up actions.
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	s.state = reduce(s.state, action)
	next := s.state
	listeners := make([]func(Session), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
}

// reduce is the transition table. Every action clears the previous error
// unless it sets one itself; `unauthenticated` is the rest state.
func reduce(state Session, action Action) Session {
	switch action.Type {
	case LoginStart:
		state.IsLoading = true
		state.Error = ""
		return state

	case LoginSuccess:
		return Session{
			User:            action.User,
			AccessToken:     action.AccessToken,
			RefreshToken:    action.RefreshToken,
			TokenExpiry:     action.TokenExpiry,
			IsAuthenticated: true,
		}

	case LoginFailure:
		return Session{Error: action.Message}

	case TokenExpired:
		return Session{Error: ExpiredMessage}

	case TokenRefreshed:
		// Only the access token moves; expiry is re-read from storage by
		// the scheduler when it re-arms.
		state.AccessToken = action.AccessToken
		state.Error = ""
		return state

	case Logout:
		// Explicit logout is not an error.
		return Session{}

	case CheckAuthSuccess:
		return Session{
			User:            action.User,
			AccessToken:     action.AccessToken,
			RefreshToken:    action.RefreshToken,
			TokenExpiry:     action.TokenExpiry,
			IsAuthenticated: true,
		}

	case CheckAuthFailure:
		// A first visit without a session is not a fault: silent reset.
		return Session{}

	case UpdateUser:
		state.User = action.User
		state.Error = ""
		return state
	}
	return state
}
