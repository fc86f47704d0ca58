// Package models contains the data structures used throughout otawifi.
package models

import "time"

// HookConfig holds the complete configuration for a hook run.
type HookConfig struct {
	Tool    string // network-control command line, e.g. "m wifi"
	Section string // config section the keys were read from
	Device  NetworkTarget
	Home    NetworkTarget
	Retry   RetryPolicy
	Remote  *RemoteConfig // nil if the tool runs locally
}

// RetryPolicy bounds the reachability loop.
type RetryPolicy struct {
	MaxAttempts   int // status checks before giving up; 0 means unbounded
	StatusRetries int // consecutive failed status checks tolerated
	Delay         time.Duration
	MaxDelay      time.Duration
	Multiplier    float64 // delay growth per attempt; 1 keeps it fixed
}

// DefaultRetryPolicy returns the policy used when the config file sets none.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   30,
		StatusRetries: 3,
		Delay:         2 * time.Second,
		MaxDelay:      10 * time.Second,
		Multiplier:    1.0,
	}
}
