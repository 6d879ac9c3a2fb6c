// Package timer holds the pure lifecycle logic for time entries: the status
// state machine and the duration accrual arithmetic. Nothing here touches
// storage or the network, which keeps the correctness-critical pieces
// testable without a server harness.
package timer

import (
	"github.com/yourorg/timetrack/internal/domain"
)

// transitions maps (current status, operation) to the resulting status.
// start is absent: no entry exists before start, so it is handled by the
// guarded create path, not by Apply.
var transitions = map[domain.Status]map[domain.Operation]domain.Status{
	domain.StatusRunning: {
		domain.OpPause: domain.StatusPaused,
		domain.OpStop:  domain.StatusStopped,
	},
	domain.StatusPaused: {
		domain.OpResume: domain.StatusRunning,
		domain.OpStop:   domain.StatusStopped,
	},
	// stopped is terminal
}

// Apply returns the status an entry moves to when op is applied, or a
// TransitionError when op is not legal from current. Illegal operations must
// fail loudly: silently accepting a second stop or a double pause would
// corrupt duration accounting.
func Apply(current domain.Status, op domain.Operation) (domain.Status, error) {
	if next, ok := transitions[current][op]; ok {
		return next, nil
	}
	return "", &domain.TransitionError{Op: op, From: current}
}
