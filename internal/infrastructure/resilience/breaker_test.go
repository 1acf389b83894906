package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func run(b *Breaker, outcomes ...bool) {
	for _, ok := range outcomes {
		b.Do(func() error {
			if ok {
				return nil
			}
			return errBoom
		})
	}
}

func TestStaysClosedOnSuccess(t *testing.T) {
	b := New("t", Options{})
	run(b, true, true, true)
	assert.Equal(t, StateClosed, b.State())
}

func TestOpensAfterFailureStreak(t *testing.T) {
	b := New("t", Options{FailureStreak: 3})
	run(b, false, false)
	assert.Equal(t, StateClosed, b.State())
	run(b, false)
	assert.Equal(t, StateOpen, b.State())
}

func TestSuccessResetsStreak(t *testing.T) {
	b := New("t", Options{FailureStreak: 3})
	run(b, false, false, true, false, false)
	assert.Equal(t, StateClosed, b.State())
}

func TestOpenFailsFast(t *testing.T) {
	b := New("t", Options{FailureStreak: 1, Cooldown: time.Minute})
	run(b, false)

	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "call ran through an open breaker")
}

func TestHalfOpenAfterCooldown(t *testing.T) {
	b := New("t", Options{FailureStreak: 1, Cooldown: 20 * time.Millisecond})
	run(b, false)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestProbeSuccessCloses(t *testing.T) {
	b := New("t", Options{FailureStreak: 1, Cooldown: 10 * time.Millisecond})
	run(b, false)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestProbeFailureReopens(t *testing.T) {
	b := New("t", Options{FailureStreak: 1, Cooldown: 10 * time.Millisecond})
	run(b, false)
	time.Sleep(20 * time.Millisecond)

	require.ErrorIs(t, b.Do(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, b.State())
}

func TestProbeLimit(t *testing.T) {
	b := New("t", Options{FailureStreak: 1, Cooldown: 10 * time.Millisecond, Probes: 1})
	run(b, false)
	time.Sleep(20 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	go b.Do(func() error {
		close(started)
		<-release
		return nil
	})
	<-started

	err := b.Do(func() error { return nil })
	assert.ErrorIs(t, err, ErrProbeLimit)
	close(release)
}

func TestPanicCountsAsFailure(t *testing.T) {
	b := New("t", Options{FailureStreak: 1})

	require.Panics(t, func() {
		b.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestStatsWindowReset(t *testing.T) {
	b := New("t", Options{Window: 20 * time.Millisecond, FailureStreak: 10})
	run(b, true, false)
	require.Equal(t, uint32(2), b.Stats().Calls)

	time.Sleep(30 * time.Millisecond)
	b.State() // triggers the window rollover
	assert.Equal(t, uint32(0), b.Stats().Calls)
}

func TestOnStateChange(t *testing.T) {
	var transitions []string
	b := New("t", Options{
		FailureStreak: 1,
		Cooldown:      10 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	run(b, false)
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Do(func() error { return nil }))

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}
