package session

import "time"

// Profile bundles the timeout magnitudes for one environment.
type Profile struct {
	Name          string
	Timeout       time.Duration
	WarningWindow time.Duration
	CheckInterval time.Duration
}

var (
	// Development keeps intervals short so expiry paths can be exercised by hand.
	Development = Profile{
		Name:          "development",
		Timeout:       2 * time.Minute,
		WarningWindow: 30 * time.Second,
		CheckInterval: 5 * time.Second,
	}

	// Production matches the dashboard's real idle policy.
	Production = Profile{
		Name:          "production",
		Timeout:       30 * time.Minute,
		WarningWindow: 2 * time.Minute,
		CheckInterval: 30 * time.Second,
	}
)

// ProfileFor selects a profile by environment name; unknown values get production.
func ProfileFor(env string) Profile {
	if env == "development" {
		return Development
	}
	return Production
}

// Override returns a copy of p with any non-zero fields applied.
func (p Profile) Override(timeout, warning, check time.Duration) Profile {
	if timeout > 0 {
		p.Timeout = timeout
	}
	if warning > 0 {
		p.WarningWindow = warning
	}
	if check > 0 {
		p.CheckInterval = check
	}
	return p
}
