package models

import "time"

// NetworkTarget identifies a network to join.
type NetworkTarget struct {
	SSID     string
	Password string // empty for open networks
}

// PollOutcome classifies a single status check.
type PollOutcome int

const (
	// NotSatisfied means the status ran but the SSID was not in its output.
	NotSatisfied PollOutcome = iota
	// Satisfied means the SSID was found in the status output.
	Satisfied
	// CheckFailed means the status command could not run or exited non-zero.
	CheckFailed
)

func (o PollOutcome) String() string {
	switch o {
	case Satisfied:
		return "satisfied"
	case NotSatisfied:
		return "not_satisfied"
	case CheckFailed:
		return "check_failed"
	default:
		return "unknown"
	}
}

// EnsureResult holds the result of a reachability run.
type EnsureResult struct {
	Attempts int // status checks that did not find the SSID
	Checks   int // all status checks, failed ones included
	Connects int // connect commands issued
	Duration time.Duration
}

// CommandResult holds the outcome of a command that ran to completion.
type CommandResult struct {
	ExitCode int
	Stdout   []byte
}
