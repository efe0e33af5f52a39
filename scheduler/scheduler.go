// Package scheduler keeps the access token alive without user
// intervention. It arms a proactive refresh ahead of token expiry and a
// "session expiring soon" warning ahead of that, with explicit
// cancellation so no stale timer survives a refresh cycle.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuvocrm/go-session-client/credstore"
	"github.com/nuvocrm/go-session-client/events"
	"github.com/nuvocrm/go-session-client/internal/config"
)

// RefreshFunc performs the refresh-token exchange and persists the new
// access token. The scheduler re-arms from storage after it succeeds.
type RefreshFunc func(ctx context.Context) error

// Scheduler arms refresh and warning timers relative to the stored token
// expiry. Re-arming is atomic: timers from a previous arm generation never
// fire once Arm or Stop has run again.
type Scheduler struct {
	store   credstore.Store
	bus     *events.Bus
	refresh RefreshFunc
	logger  zerolog.Logger

	refreshLead  time.Duration
	warnLead     time.Duration
	refreshFloor time.Duration
	now          func() time.Time

	mu           sync.Mutex
	gen          uint64
	refreshTimer *time.Timer
	warnTimer    *time.Timer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = nowFunc
	}
}

// New creates a Scheduler. Leads come from cfg; refresh is invoked on the
// timer goroutine with a background context.
func New(store credstore.Store, bus *events.Bus, refresh RefreshFunc, cfg config.SchedulerConfig, logger zerolog.Logger, options ...Option) *Scheduler {
	s := &Scheduler{
		store:        store,
		bus:          bus,
		refresh:      refresh,
		logger:       logger.With().Str("component", "scheduler").Logger(),
		refreshLead:  cfg.GetRefreshLead(),
		warnLead:     cfg.GetWarnLead(),
		refreshFloor: cfg.GetRefreshFloor(),
		now:          time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Arm cancels any previous timers and schedules the next refresh and
// warning from the stored token expiry. If the token is already expired
// (or there is no expiry), a TokenExpired event is published synchronously
// and nothing is armed.
func (s *Scheduler) Arm() {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.cancelLocked()

	rec, err := s.store.Read()
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn().Err(err).Msg("cannot read credential store, not arming")
		return
	}

	now := s.now()
	until := rec.TokenExpiry.Sub(now)
	if rec.TokenExpiry.IsZero() || until <= 0 {
		s.mu.Unlock()
		s.logger.Info().Time("expiry", rec.TokenExpiry).Msg("token already expired")
		s.bus.PublishTokenExpired(events.TokenExpired{Reason: "token expired before scheduling"})
		return
	}

	warnNow := false
	if until <= s.warnLead {
		// Less than the warning lead remains: warn immediately instead of
		// scheduling.
		warnNow = true
	} else {
		s.warnTimer = time.AfterFunc(until-s.warnLead, func() {
			if !s.current(gen) {
				return
			}
			s.publishWarning(rec.TokenExpiry)
		})
	}

	refreshIn := until - s.refreshLead
	if refreshIn <= 0 {
		// The token is already inside the refresh lead. Fall back to the
		// refresh floor so the warning still fires first.
		refreshIn = until - s.refreshFloor
	}
	if refreshIn < 0 {
		refreshIn = 0
	}
	s.refreshTimer = time.AfterFunc(refreshIn, func() {
		if !s.current(gen) {
			return
		}
		s.runRefresh(gen)
	})
	s.mu.Unlock()

	s.logger.Debug().
		Dur("untilExpiry", until).
		Dur("refreshIn", refreshIn).
		Bool("warnNow", warnNow).
		Msg("timers armed")

	if warnNow {
		s.publishWarning(rec.TokenExpiry)
	}
}

// Stop cancels all timers. Safe to call repeatedly and while unarmed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.cancelLocked()
}

func (s *Scheduler) cancelLocked() {
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	if s.warnTimer != nil {
		s.warnTimer.Stop()
		s.warnTimer = nil
	}
}

func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Scheduler) publishWarning(expiry time.Time) {
	remaining := expiry.Sub(s.now())
	s.logger.Info().Dur("remaining", remaining).Msg("session expiring soon")
	s.bus.PublishSessionExpiring(events.SessionExpiring{
		ExpiresAt: expiry,
		Remaining: remaining,
	})
}

func (s *Scheduler) runRefresh(gen uint64) {
	err := s.refresh(context.Background())
	if !s.current(gen) {
		// A newer arm or a stop won the race; its owner decides what
		// happens next.
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("token refresh failed")
		s.bus.PublishTokenExpired(events.TokenExpired{Reason: "refresh failed"})
		return
	}
	s.logger.Debug().Msg("token refreshed, re-arming")
	s.Arm()
}
