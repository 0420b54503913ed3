package call

import "time"

// PacingPolicy returns the artificial delay applied before surfacing the
// customer turn with the given index, simulating human turn-taking. Tests
// inject a zero policy.
type PacingPolicy func(turnIndex int) time.Duration

// NewStepPacing builds a policy from a list of per-turn delays. Indexes past
// the end of the list reuse the last delay; an empty list means no pacing.
func NewStepPacing(delays []time.Duration) PacingPolicy {
	return func(turnIndex int) time.Duration {
		if len(delays) == 0 || turnIndex < 0 {
			return 0
		}
		if turnIndex >= len(delays) {
			return delays[len(delays)-1]
		}
		return delays[turnIndex]
	}
}

// NoPacing returns a policy with no delays
func NoPacing() PacingPolicy {
	return func(int) time.Duration { return 0 }
}
