package events

import (
	"sync"

	"github.com/google/uuid"
)

// Bus is a typed in-process publish/subscribe hub. Delivery is synchronous,
// on the publisher's goroutine, in no particular order; handlers that
// need to block should spawn their own goroutines. Subscribing and
// unsubscribing are safe from handlers and from concurrent goroutines.
type Bus struct {
	mu sync.RWMutex

	tokenExpired       map[string]func(TokenExpired)
	sessionExpiring    map[string]func(SessionExpiring)
	accountDeactivated map[string]func(AccountDeactivated)
	roleDeactivated    map[string]func(RoleDeactivated)
	notices            map[string]func(Notice)
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		tokenExpired:       make(map[string]func(TokenExpired)),
		sessionExpiring:    make(map[string]func(SessionExpiring)),
		accountDeactivated: make(map[string]func(AccountDeactivated)),
		roleDeactivated:    make(map[string]func(RoleDeactivated)),
		notices:            make(map[string]func(Notice)),
	}
}

func (b *Bus) SubscribeTokenExpired(handler func(TokenExpired)) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New().String()
	b.tokenExpired[id] = handler
	return id
}

func (b *Bus) SubscribeSessionExpiring(handler func(SessionExpiring)) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New().String()
	b.sessionExpiring[id] = handler
	return id
}

func (b *Bus) SubscribeAccountDeactivated(handler func(AccountDeactivated)) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New().String()
	b.accountDeactivated[id] = handler
	return id
}

func (b *Bus) SubscribeRoleDeactivated(handler func(RoleDeactivated)) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New().String()
	b.roleDeactivated[id] = handler
	return id
}

func (b *Bus) SubscribeNotice(handler func(Notice)) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New().String()
	b.notices[id] = handler
	return id
}

// Unsubscribe removes the subscription with the given id from whichever
// topic holds it. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokenExpired, id)
	delete(b.sessionExpiring, id)
	delete(b.accountDeactivated, id)
	delete(b.roleDeactivated, id)
	delete(b.notices, id)
}

func (b *Bus) PublishTokenExpired(ev TokenExpired) {
	for _, h := range snapshot(b, b.tokenExpired) {
		h(ev)
	}
}

func (b *Bus) PublishSessionExpiring(ev SessionExpiring) {
	for _, h := range snapshot(b, b.sessionExpiring) {
		h(ev)
	}
}

func (b *Bus) PublishAccountDeactivated(ev AccountDeactivated) {
	for _, h := range snapshot(b, b.accountDeactivated) {
		h(ev)
	}
}

func (b *Bus) PublishRoleDeactivated(ev RoleDeactivated) {
	for _, h := range snapshot(b, b.roleDeactivated) {
		h(ev)
	}
}

func (b *Bus) PublishNotice(ev Notice) {
	for _, h := range snapshot(b, b.notices) {
		h(ev)
	}
}

// snapshot copies the handler set so publishing never holds the lock while
// running handlers; a handler may unsubscribe itself or subscribe others.
func snapshot[T any](b *Bus, m map[string]func(T)) []func(T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]func(T), 0, len(m))
	for _, h := range m {
		handlers = append(handlers, h)
	}
	return handlers
}
