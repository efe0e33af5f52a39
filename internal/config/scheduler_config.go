package config

import "time"

type SchedulerConfig interface {
	GetRefreshLead() time.Duration
	GetWarnLead() time.Duration
	GetRefreshFloor() time.Duration
}

type Scheduler struct{}

var _ SchedulerConfig = Scheduler{}

// GetRefreshLead returns how long before token expiry the proactive
// refresh fires.
func (Scheduler) GetRefreshLead() time.Duration {
	return GetDurationEnv("SESSION_REFRESH_LEAD", 5*time.Minute)
}

// GetWarnLead returns how long before token expiry the "session expiring
// soon" warning fires.
func (Scheduler) GetWarnLead() time.Duration {
	return GetDurationEnv("SESSION_WARN_LEAD", 2*time.Minute)
}

// GetRefreshFloor is the fallback lead used when the token's remaining
// lifetime is already shorter than the refresh lead. The refresh is armed
// this close to expiry so the warning still precedes it.
func (Scheduler) GetRefreshFloor() time.Duration {
	return GetDurationEnv("SESSION_REFRESH_FLOOR", 30*time.Second)
}
