package timers

import (
	"fmt"
)

// RoundingMode selects the direction billed durations are rounded in.
type RoundingMode string

const (
	RoundUp      RoundingMode = "up"
	RoundNearest RoundingMode = "nearest"
	RoundDown    RoundingMode = "down"
)

// RoundingPolicy turns raw seconds into billed seconds.
type RoundingPolicy struct {
	IncrementMinutes int          `json:"increment_minutes" yaml:"increment_minutes"`
	Mode             RoundingMode `json:"mode" yaml:"mode"`
	// MinimumMinutes is the smallest billable duration for any non-zero time.
	MinimumMinutes int `json:"minimum_minutes" yaml:"minimum_minutes"`
}

// DefaultRoundingPolicy bills in 15 minute increments, rounding up, with one
// increment as the minimum.
func DefaultRoundingPolicy() RoundingPolicy {
	return RoundingPolicy{IncrementMinutes: 15, Mode: RoundUp, MinimumMinutes: 15}
}

// Validate checks the policy is usable.
func (p RoundingPolicy) Validate() error {
	if p.IncrementMinutes < 0 || p.MinimumMinutes < 0 {
		return validationError("rounding minutes must not be negative")
	}
	switch p.Mode {
	case "", RoundUp, RoundNearest, RoundDown:
	default:
		return validationError("unknown rounding mode %q", p.Mode)
	}
	return nil
}

// Apply rounds seconds according to the policy. Zero stays zero.
func (p RoundingPolicy) Apply(seconds int64) int64 {
	if seconds <= 0 {
		return 0
	}
	out := seconds
	if p.IncrementMinutes > 0 {
		inc := int64(p.IncrementMinutes) * 60
		switch p.Mode {
		case RoundNearest:
			out = (seconds + inc/2) / inc * inc
		case RoundDown:
			out = seconds / inc * inc
		default:
			out = (seconds + inc - 1) / inc * inc
		}
	}
	if floor := int64(p.MinimumMinutes) * 60; out < floor {
		out = floor
	}
	return out
}

func (p RoundingPolicy) String() string {
	mode := p.Mode
	if mode == "" {
		mode = RoundUp
	}
	return fmt.Sprintf("%dm/%s/min%dm", p.IncrementMinutes, mode, p.MinimumMinutes)
}
