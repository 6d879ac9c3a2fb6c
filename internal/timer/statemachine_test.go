package timer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/timetrack/internal/domain"
)

func TestApplyLegalTransitions(t *testing.T) {
	cases := []struct {
		from domain.Status
		op   domain.Operation
		want domain.Status
	}{
		{domain.StatusRunning, domain.OpPause, domain.StatusPaused},
		{domain.StatusRunning, domain.OpStop, domain.StatusStopped},
		{domain.StatusPaused, domain.OpResume, domain.StatusRunning},
		{domain.StatusPaused, domain.OpStop, domain.StatusStopped},
	}
	for _, tc := range cases {
		got, err := Apply(tc.from, tc.op)
		require.NoError(t, err, "%s on %s", tc.op, tc.from)
		assert.Equal(t, tc.want, got)
	}
}

func TestApplyIllegalTransitions(t *testing.T) {
	cases := []struct {
		from domain.Status
		op   domain.Operation
	}{
		{domain.StatusRunning, domain.OpResume},
		{domain.StatusPaused, domain.OpPause},
		{domain.StatusStopped, domain.OpPause},
		{domain.StatusStopped, domain.OpResume},
		{domain.StatusStopped, domain.OpStop},
	}
	for _, tc := range cases {
		_, err := Apply(tc.from, tc.op)
		require.Error(t, err, "%s on %s must be rejected", tc.op, tc.from)

		var te *domain.TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, tc.op, te.Op)
		assert.Equal(t, tc.from, te.From)
	}
}

func TestStoppedIsTerminal(t *testing.T) {
	for _, op := range []domain.Operation{domain.OpPause, domain.OpResume, domain.OpStop} {
		_, err := Apply(domain.StatusStopped, op)
		assert.Error(t, err, "stopped entries admit no %s", op)
	}
}
