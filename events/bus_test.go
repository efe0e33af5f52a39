package events_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nuvocrm/go-session-client/events"
)

func TestBusDeliversToSubscriber(t *testing.T) {
	bus := events.NewBus()

	var got []events.RoleDeactivated
	bus.SubscribeRoleDeactivated(func(ev events.RoleDeactivated) {
		got = append(got, ev)
	})

	ev := events.RoleDeactivated{
		UserIDs:   []string{"user-1", "user-2"},
		RoleName:  "sales",
		Timestamp: time.Now(),
	}
	bus.PublishRoleDeactivated(ev)

	require.Len(t, got, 1)
	require.Equal(t, ev.UserIDs, got[0].UserIDs)
	require.Equal(t, "sales", got[0].RoleName)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := events.NewBus()

	calls := 0
	id := bus.SubscribeTokenExpired(func(events.TokenExpired) { calls++ })

	bus.PublishTokenExpired(events.TokenExpired{})
	bus.Unsubscribe(id)
	bus.PublishTokenExpired(events.TokenExpired{})

	require.Equal(t, 1, calls)
}

func TestBusUnsubscribeInsideHandler(t *testing.T) {
	bus := events.NewBus()

	calls := 0
	var id string
	id = bus.SubscribeAccountDeactivated(func(events.AccountDeactivated) {
		calls++
		bus.Unsubscribe(id)
	})

	bus.PublishAccountDeactivated(events.AccountDeactivated{Message: "deactivated"})
	bus.PublishAccountDeactivated(events.AccountDeactivated{Message: "deactivated"})

	require.Equal(t, 1, calls)
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := events.NewBus()

	// Must not panic or block.
	bus.PublishSessionExpiring(events.SessionExpiring{Remaining: time.Minute})
	bus.PublishNotice(events.Notice{Level: events.NoticeInfo, Message: "hello"})
}

func TestBusConcurrentPublishAndSubscribe(t *testing.T) {
	bus := events.NewBus()

	var mu sync.Mutex
	total := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.SubscribeNotice(func(events.Notice) {
				mu.Lock()
				total++
				mu.Unlock()
			})
		}()
		go func() {
			defer wg.Done()
			bus.PublishNotice(events.Notice{Message: "tick"})
		}()
	}
	wg.Wait()

	bus.PublishNotice(events.Notice{Message: "final"})
	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, total, 8)
}
