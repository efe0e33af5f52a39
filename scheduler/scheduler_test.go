package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nuvocrm/go-session-client/credstore"
	"github.com/nuvocrm/go-session-client/events"
	"github.com/nuvocrm/go-session-client/scheduler"
)

// testLeads provides millisecond-scale leads so timer tests stay fast.
type testLeads struct {
	refresh, warn, floor time.Duration
}

func (l testLeads) GetRefreshLead() time.Duration  { return l.refresh }
func (l testLeads) GetWarnLead() time.Duration     { return l.warn }
func (l testLeads) GetRefreshFloor() time.Duration { return l.floor }

// recorder collects bus events with their arrival time.
type recorder struct {
	mu       sync.Mutex
	warnings []time.Time
	expiries []time.Time
}

func (r *recorder) subscribe(bus *events.Bus) {
	bus.SubscribeSessionExpiring(func(events.SessionExpiring) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.warnings = append(r.warnings, time.Now())
	})
	bus.SubscribeTokenExpired(func(events.TokenExpired) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.expiries = append(r.expiries, time.Now())
	})
}

func (r *recorder) counts() (warnings, expiries int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings), len(r.expiries)
}

func storeWithExpiry(t *testing.T, expiry time.Time) credstore.Store {
	t.Helper()
	store := credstore.NewMemory()
	require.NoError(t, store.Save(credstore.Record{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenExpiry:  expiry,
		UserID:       "user-1",
	}))
	return store
}

func noRefresh(context.Context) error { return nil }

func TestExpiredTokenPublishesExpirySynchronously(t *testing.T) {
	bus := events.NewBus()
	rec := &recorder{}
	rec.subscribe(bus)

	store := storeWithExpiry(t, time.Now().Add(-time.Minute))
	s := scheduler.New(store, bus, noRefresh, testLeads{refresh: time.Hour, warn: time.Hour, floor: time.Minute}, zerolog.Nop())
	s.Arm()

	// No timer wait: the event must already be there.
	_, expiries := rec.counts()
	require.Equal(t, 1, expiries)
}

func TestMissingExpiryPublishesExpiry(t *testing.T) {
	bus := events.NewBus()
	rec := &recorder{}
	rec.subscribe(bus)

	s := scheduler.New(credstore.NewMemory(), bus, noRefresh, testLeads{refresh: time.Hour, warn: time.Hour, floor: time.Minute}, zerolog.Nop())
	s.Arm()

	_, expiries := rec.counts()
	require.Equal(t, 1, expiries)
}

func TestWarningFiresImmediatelyInsideWarnLead(t *testing.T) {
	bus := events.NewBus()
	rec := &recorder{}
	rec.subscribe(bus)

	store := storeWithExpiry(t, time.Now().Add(500*time.Millisecond))
	refresh := func(context.Context) error {
		return store.SaveAccess("access-2", time.Now().Add(time.Hour))
	}
	s := scheduler.New(store, bus, refresh, testLeads{refresh: 5 * time.Second, warn: 2 * time.Second, floor: time.Second}, zerolog.Nop())
	s.Arm()
	defer s.Stop()

	warnings, _ := rec.counts()
	require.Equal(t, 1, warnings, "warning fires synchronously when under the warn lead")
}

func TestWarningPrecedesRefreshInsideRefreshLead(t *testing.T) {
	// Expiry sits between the warn lead and the refresh lead: the refresh
	// falls back to the floor, so the warning still fires first and both
	// land before the expiry moment.
	bus := events.NewBus()
	rec := &recorder{}
	rec.subscribe(bus)

	var mu sync.Mutex
	var refreshedAt time.Time
	expiry := time.Now().Add(500 * time.Millisecond)
	store := storeWithExpiry(t, expiry)
	refresh := func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		refreshedAt = time.Now()
		// Persist a fresh token so the re-arm sees a healthy session.
		return store.SaveAccess("access-2", time.Now().Add(time.Hour))
	}

	s := scheduler.New(store, bus, refresh, testLeads{refresh: 5 * time.Second, warn: 400 * time.Millisecond, floor: 100 * time.Millisecond}, zerolog.Nop())
	s.Arm()
	defer s.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !refreshedAt.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.warnings, 1)
	require.Empty(t, rec.expiries)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, rec.warnings[0].Before(refreshedAt), "warning must precede the refresh")
	require.True(t, refreshedAt.Before(expiry), "refresh must land before expiry")
}

func TestRefreshFailurePublishesExpiry(t *testing.T) {
	bus := events.NewBus()
	rec := &recorder{}
	rec.subscribe(bus)

	store := storeWithExpiry(t, time.Now().Add(300*time.Millisecond))
	refresh := func(context.Context) error { return errors.New("backend down") }

	s := scheduler.New(store, bus, refresh, testLeads{refresh: 5 * time.Second, warn: time.Second, floor: 250 * time.Millisecond}, zerolog.Nop())
	s.Arm()
	defer s.Stop()

	require.Eventually(t, func() bool {
		_, expiries := rec.counts()
		return expiries == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopCancelsTimers(t *testing.T) {
	bus := events.NewBus()
	rec := &recorder{}
	rec.subscribe(bus)

	refreshCalls := 0
	var mu sync.Mutex
	refresh := func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		refreshCalls++
		return nil
	}

	store := storeWithExpiry(t, time.Now().Add(200*time.Millisecond))
	s := scheduler.New(store, bus, refresh, testLeads{refresh: 150 * time.Millisecond, warn: 100 * time.Millisecond, floor: 50 * time.Millisecond}, zerolog.Nop())
	s.Arm()
	s.Stop()
	s.Stop() // idempotent

	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, refreshCalls)
	warnings, expiries := rec.counts()
	require.Zero(t, warnings)
	require.Zero(t, expiries)
}

func TestRearmCancelsPreviousGeneration(t *testing.T) {
	bus := events.NewBus()
	rec := &recorder{}
	rec.subscribe(bus)

	store := storeWithExpiry(t, time.Now().Add(150*time.Millisecond))
	s := scheduler.New(store, bus, noRefresh, testLeads{refresh: time.Hour, warn: 50 * time.Millisecond, floor: 10 * time.Millisecond}, zerolog.Nop())
	s.Arm()

	// New token lands before the first warning fires; re-arm against it.
	require.NoError(t, store.SaveAccess("access-2", time.Now().Add(time.Hour)))
	s.Arm()
	defer s.Stop()

	time.Sleep(300 * time.Millisecond)
	warnings, expiries := rec.counts()
	require.Zero(t, warnings, "stale warning timer must not fire after re-arm")
	require.Zero(t, expiries)
}
