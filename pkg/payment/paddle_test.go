package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPaddleErr(t *testing.T) {
	t.Parallel()

	assert.NoError(t, classifyPaddleErr(nil))

	err := classifyPaddleErr(errors.New("paddle: entity_not_found: transaction does not exist"))
	require.ErrorIs(t, err, ErrNotFoundAtProvider)

	err = classifyPaddleErr(context.DeadlineExceeded)
	require.ErrorIs(t, err, ErrProviderUnavailable)

	err = classifyPaddleErr(errors.New("500 internal server error"))
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestParsePaddleTime(t *testing.T) {
	t.Parallel()

	assert.True(t, parsePaddleTime("").IsZero())
	assert.True(t, parsePaddleTime("yesterday").IsZero())

	got := parsePaddleTime("2026-03-01T12:00:00+02:00")
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), got)
}

func TestPaddleInterval(t *testing.T) {
	t.Parallel()

	assert.Empty(t, paddleInterval(nil))
	assert.Empty(t, paddleInterval(&paddle.Duration{}))
	assert.Equal(t, "month", paddleInterval(&paddle.Duration{Interval: paddle.IntervalMonth, Frequency: 1}))
	assert.Equal(t, "6 months", paddleInterval(&paddle.Duration{Interval: paddle.IntervalMonth, Frequency: 6}))
}
