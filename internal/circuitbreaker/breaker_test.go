package circuitbreaker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"farearound/internal/common/errors"
)

func TestNew_InvalidConfigFallsBackToDefaults(t *testing.T) {
	breaker := New("test", Config{}, nil)

	assert.NotNil(t, breaker)
	assert.False(t, breaker.IsOpen())
}

func TestBreaker_ExecuteSuccess(t *testing.T) {
	breaker := New("test", DefaultConfig(), nil)

	err := breaker.Execute(func() error { return nil })

	assert.NoError(t, err)
	assert.False(t, breaker.IsOpen())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	config := Config{
		MaxFailures:           3,
		Timeout:               time.Minute,
		MaxConcurrentRequests: 1,
	}
	breaker := New("test", config, nil)

	for i := 0; i < 3; i++ {
		err := breaker.Execute(func() error { return fmt.Errorf("upstream down") })
		assert.Error(t, err)
	}

	assert.True(t, breaker.IsOpen())

	// Further calls fail fast without invoking the function.
	called := false
	err := breaker.Execute(func() error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
	assert.True(t, errors.IsType(err, errors.ErrTypeInternal))
}

func TestBreaker_ValidationErrorsDoNotTrip(t *testing.T) {
	config := Config{
		MaxFailures:           2,
		Timeout:               time.Minute,
		MaxConcurrentRequests: 1,
	}
	breaker := New("test", config, nil)

	for i := 0; i < 5; i++ {
		_ = breaker.Execute(func() error { return errors.ValidationError("bad request") })
	}

	assert.False(t, breaker.IsOpen())
}

func TestBreaker_RecoversAfterTimeout(t *testing.T) {
	config := Config{
		MaxFailures:           1,
		Timeout:               20 * time.Millisecond,
		MaxConcurrentRequests: 1,
	}
	breaker := New("test", config, nil)

	_ = breaker.Execute(func() error { return fmt.Errorf("boom") })
	assert.True(t, breaker.IsOpen())

	time.Sleep(40 * time.Millisecond)

	err := breaker.Execute(func() error { return nil })
	assert.NoError(t, err)
	assert.False(t, breaker.IsOpen())
}
