package timers

import (
	"errors"
	"testing"
)

func TestRoundingPolicyApply(t *testing.T) {
	tests := []struct {
		name    string
		policy  RoundingPolicy
		seconds int64
		want    int64
	}{
		{"default two minutes", DefaultRoundingPolicy(), 120, 900},
		{"default exact increment", DefaultRoundingPolicy(), 900, 900},
		{"default just over", DefaultRoundingPolicy(), 901, 1800},
		{"zero stays zero", DefaultRoundingPolicy(), 0, 0},
		{"nearest down", RoundingPolicy{IncrementMinutes: 15, Mode: RoundNearest}, 1300, 900},
		{"nearest up at half", RoundingPolicy{IncrementMinutes: 15, Mode: RoundNearest}, 1350, 1800},
		{"down", RoundingPolicy{IncrementMinutes: 6, Mode: RoundDown}, 719, 360},
		{"down with minimum", RoundingPolicy{IncrementMinutes: 15, Mode: RoundDown, MinimumMinutes: 15}, 300, 900},
		{"disabled", RoundingPolicy{}, 125, 125},
		{"disabled with minimum", RoundingPolicy{MinimumMinutes: 5}, 125, 300},
		{"empty mode rounds up", RoundingPolicy{IncrementMinutes: 1}, 61, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Apply(tt.seconds); got != tt.want {
				t.Errorf("Apply(%d) = %d, want %d", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestRoundingPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RoundingPolicy
		wantErr bool
	}{
		{"default", DefaultRoundingPolicy(), false},
		{"zero value", RoundingPolicy{}, false},
		{"negative increment", RoundingPolicy{IncrementMinutes: -1}, true},
		{"negative minimum", RoundingPolicy{MinimumMinutes: -5}, true},
		{"bad mode", RoundingPolicy{IncrementMinutes: 15, Mode: "sideways"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestRoundingPolicyString(t *testing.T) {
	if got := DefaultRoundingPolicy().String(); got != "15m/up/min15m" {
		t.Errorf("String() = %q", got)
	}
}
