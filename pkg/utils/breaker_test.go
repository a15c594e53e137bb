package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReadyToTrip(t *testing.T) {
	cfg := DefaultBreakerConfig()

	require.False(t, cfg.readyToTrip(gobreaker.Counts{}))
	require.False(t, cfg.readyToTrip(gobreaker.Counts{Requests: 4, TotalFailures: 4}))
	require.False(t, cfg.readyToTrip(gobreaker.Counts{Requests: 10, TotalFailures: 5}))
	require.True(t, cfg.readyToTrip(gobreaker.Counts{Requests: 5, TotalFailures: 3}))
}

func TestExecuteWithBreaker_OpensAfterFailures(t *testing.T) {
	cfg := DefaultBreakerConfig()
	cfg.Timeout = time.Minute
	cb := NewBreaker("test", cfg, zap.NewNop())

	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		_, err := ExecuteWithBreaker(cb, func() (int, error) { return 0, boom })
		require.ErrorIs(t, err, boom)
	}

	_, err := ExecuteWithBreaker(cb, func() (int, error) { return 1, nil })
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestExecuteWithBreaker_ReturnsValue(t *testing.T) {
	cb := NewBreaker("test", DefaultBreakerConfig(), zap.NewNop())

	v, err := ExecuteWithBreaker(cb, func() (string, error) { return "ok", nil })

	require.NoError(t, err)
	require.Equal(t, "ok", v)
}
