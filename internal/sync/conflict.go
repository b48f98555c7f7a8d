package sync

import "fmt"

// Policy decides what happens when the remote copy is newer than the local
// mutation. The shipped default is ClientWins: warn and write anyway, trading
// possible server-side overwrites for availability.
type Policy string

const (
	PolicyClientWins Policy = "client_wins"
	PolicyServerWins Policy = "server_wins"
	PolicyManual     Policy = "manual"
)

// ParsePolicy validates a policy string from configuration.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyClientWins, PolicyServerWins, PolicyManual:
		return Policy(s), nil
	case "":
		return PolicyClientWins, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q", s)
}

// DefaultConflictToleranceMs absorbs clock skew between device and server.
const DefaultConflictToleranceMs = 1000

// Checker compares modification timestamps. It never blocks progress by
// itself; the policy applied to its verdict lives in the engine.
type Checker struct {
	ToleranceMs int64
}

// NewChecker creates a Checker with the given tolerance in milliseconds.
func NewChecker(toleranceMs int64) Checker {
	if toleranceMs < 0 {
		toleranceMs = DefaultConflictToleranceMs
	}
	return Checker{ToleranceMs: toleranceMs}
}

// Check reports a conflict when the remote timestamp is strictly newer than
// the local one beyond the tolerance window.
func (c Checker) Check(localMs, remoteMs int64) bool {
	return remoteMs > localMs+c.ToleranceMs
}
