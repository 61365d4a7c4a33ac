package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBreaker returns a breaker whose clock is advanced by the returned func.
func newTestBreaker(cfg Config) (*Breaker, func(time.Duration)) {
	b := New(cfg)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.nowFn = func() time.Time { return now }
	return b, func(d time.Duration) { now = now.Add(d) }
}

func TestNew_Defaults(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, StateClosed, b.GetState())
	assert.Equal(t, 5, b.failureThreshold)
	assert.Equal(t, 2, b.successThreshold)
	assert.Equal(t, 30*time.Second, b.openTimeout)
}

func TestNew_CustomConfig(t *testing.T) {
	b := New(Config{
		Name:             "solana",
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenTimeout:      10 * time.Second,
	})
	assert.Equal(t, "solana", b.Name())
	assert.Equal(t, 3, b.failureThreshold)
	assert.Equal(t, 1, b.successThreshold)
	assert.Equal(t, 10*time.Second, b.openTimeout)
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, OpenTimeout: time.Hour})

	b.RecordFailure()
	b.RecordFailure()
	require.NoError(t, b.Allow(), "should still be closed below threshold")

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetState())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 3, OpenTimeout: time.Hour})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	require.NoError(t, b.Allow())
	assert.Equal(t, StateClosed, b.GetState())
}

func TestBreaker_HalfOpenLifecycle(t *testing.T) {
	b, advance := newTestBreaker(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      time.Second,
	})

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetState())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	advance(2 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.GetState())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.GetState(), "not yet at success threshold")
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.GetState())
}

func TestBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	b, advance := newTestBreaker(Config{FailureThreshold: 1, OpenTimeout: time.Second})

	b.RecordFailure()
	advance(2 * time.Second)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.GetState())
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	type transition struct {
		name     string
		from, to State
	}
	var transitions []transition
	b, advance := newTestBreaker(Config{
		Name:             "ethereum",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, transition{name, from, to})
		},
	})

	b.RecordFailure()
	b.RecordFailure()
	require.Len(t, transitions, 1)
	assert.Equal(t, transition{"ethereum", StateClosed, StateOpen}, transitions[0])

	advance(2 * time.Second)
	_ = b.Allow()
	require.Len(t, transitions, 2)
	assert.Equal(t, transition{"ethereum", StateOpen, StateHalfOpen}, transitions[1])

	b.RecordSuccess()
	require.Len(t, transitions, 3)
	assert.Equal(t, transition{"ethereum", StateHalfOpen, StateClosed}, transitions[2])
}

func TestBreaker_ExecuteRecordsOutcome(t *testing.T) {
	b := New(Config{FailureThreshold: 2, OpenTimeout: time.Hour})
	boom := errors.New("boom")

	calls := 0
	fail := func() error { calls++; return boom }

	assert.ErrorIs(t, b.Execute(fail), boom)
	assert.ErrorIs(t, b.Execute(fail), boom)
	assert.Equal(t, StateOpen, b.GetState())

	// Rejected without running fn.
	assert.ErrorIs(t, b.Execute(fail), ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestBreaker_ExecuteIgnoresNonFailures(t *testing.T) {
	rejected := errors.New("insufficient funds")
	b := New(Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Hour,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, rejected) },
	})

	assert.ErrorIs(t, b.Execute(func() error { return rejected }), rejected)
	assert.Equal(t, StateClosed, b.GetState())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestBreaker_ConcurrentRecordSuccessFailure(t *testing.T) {
	b := New(Config{
		FailureThreshold: 10,
		SuccessThreshold: 5,
		OpenTimeout:      time.Millisecond,
	})

	const goroutines = 20
	const iterations = 500

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				switch id % 4 {
				case 0:
					b.RecordSuccess()
				case 1:
					b.RecordFailure()
				case 2:
					_ = b.Allow()
				case 3:
					_ = b.GetState()
				}
			}
		}(i)
	}
	wg.Wait()

	state := b.GetState()
	assert.Contains(t, []State{StateClosed, StateOpen, StateHalfOpen}, state)
}
