package safecall

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestGetPrimarySucceeds(t *testing.T) {
	logger, logs := observedLogger()

	r := Get(logger, "get-page", "123",
		func() (string, error) { return "primary", nil },
		func() (string, error) { t.Fatal("fallback must not run"); return "", nil },
	)

	assert.True(t, r.OK())
	assert.Equal(t, Primary, r.Outcome)
	assert.Equal(t, "primary", r.Value)
	assert.Zero(t, logs.Len())
}

func TestGetFallbackSucceeds(t *testing.T) {
	logger, logs := observedLogger()

	r := Get(logger, "get-page", "123",
		func() (string, error) { return "", errors.New("boom") },
		func() (string, error) { return "fallback", nil },
	)

	assert.True(t, r.OK())
	assert.Equal(t, Fallback, r.Outcome)
	assert.Equal(t, "fallback", r.Value, "the fallback result is returned unchanged")

	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zap.ErrorLevel).Len())
}

func TestGetBothTiersFail(t *testing.T) {
	logger, logs := observedLogger()

	r := Get(logger, "get-page", "123",
		func() (string, error) { return "partial", errors.New("primary down") },
		func() (string, error) { return "other", errors.New("rest down") },
	)

	assert.False(t, r.OK())
	assert.Equal(t, Failed, r.Outcome)
	assert.Empty(t, r.Value, "a failed result carries the zero value, never a partial one")

	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zap.ErrorLevel).Len())
}

func TestGetLogsCarryOperationAndID(t *testing.T) {
	logger, logs := observedLogger()

	Get(logger, "update-page", "456",
		func() (int, error) { return 0, errors.New("a") },
		func() (int, error) { return 0, errors.New("b") },
	)

	entries := logs.All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		fields := e.ContextMap()
		assert.Equal(t, "update-page", fields["op"])
		assert.Equal(t, "456", fields["id"])
	}
}

func TestDo(t *testing.T) {
	logger, _ := observedLogger()

	assert.True(t, Do(logger, "op", "1",
		func() error { return nil },
		func() error { return errors.New("unused") },
	))
	assert.True(t, Do(logger, "op", "1",
		func() error { return errors.New("x") },
		func() error { return nil },
	))
	assert.False(t, Do(logger, "op", "1",
		func() error { return errors.New("x") },
		func() error { return errors.New("y") },
	))
}
