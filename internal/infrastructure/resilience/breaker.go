package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrOpen is returned while a breaker is rejecting all calls.
	ErrOpen = errors.New("breaker open")
	// ErrProbeLimit is returned when a half-open breaker already has its
	// allowed trial calls in flight.
	ErrProbeLimit = errors.New("breaker probe limit reached")
)

// State is the breaker's admission state.
type State uint8

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Options tune when a breaker trips and recovers.
type Options struct {
	// FailureStreak is the consecutive-failure count that trips the breaker.
	FailureStreak uint32
	// Cooldown is how long an open breaker rejects calls before probing.
	Cooldown time.Duration
	// Window is the closed-state period after which stats reset.
	Window time.Duration
	// Probes is the number of trial calls admitted while half-open.
	Probes uint32
	// OnStateChange, if set, observes every transition.
	OnStateChange func(name string, from, to State)
}

// Stats holds a breaker's counters for the current window.
type Stats struct {
	Calls         uint32
	Successes     uint32
	Failures      uint32
	SuccessStreak uint32
	FailureStreak uint32
}

// Breaker rejects calls to a failing dependency until it recovers. After
// FailureStreak consecutive failures it opens and fails fast for Cooldown,
// then admits Probes trial calls; if they all succeed it closes again, and
// a single probe failure reopens it.
type Breaker struct {
	name string
	opts Options

	mu       sync.Mutex
	state    State
	stats    Stats
	deadline time.Time
}

// New creates a breaker. Zero option fields get conservative defaults.
func New(name string, opts Options) *Breaker {
	if opts.FailureStreak == 0 {
		opts.FailureStreak = 5
	}
	if opts.Cooldown == 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Window == 0 {
		opts.Window = time.Minute
	}
	if opts.Probes == 0 {
		opts.Probes = 1
	}
	return &Breaker{
		name:     name,
		opts:     opts,
		deadline: time.Now().Add(opts.Window),
	}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current admission state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.tick(time.Now())
	return state
}

// Stats returns a copy of the current window's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Do runs fn if the breaker admits the call. A panic in fn counts as a
// failure and is re-raised.
func (b *Breaker) Do(fn func() error) error {
	gen, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.settle(gen, false)
			panic(r)
		}
	}()

	err = fn()
	b.settle(gen, err == nil)
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, gen := b.tick(time.Now())
	switch {
	case state == StateOpen:
		return gen, ErrOpen
	case state == StateHalfOpen && b.stats.Calls >= b.opts.Probes:
		return gen, ErrProbeLimit
	}
	b.stats.Calls++
	return gen, nil
}

// settle records an outcome. Outcomes from a previous generation (the state
// changed while the call ran) are discarded.
func (b *Breaker) settle(gen uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, current := b.tick(now)
	if current != gen {
		return
	}

	if ok {
		b.stats.Successes++
		b.stats.SuccessStreak++
		b.stats.FailureStreak = 0
		if state == StateHalfOpen && b.stats.SuccessStreak >= b.opts.Probes {
			b.transition(StateClosed, now)
		}
		return
	}

	b.stats.Failures++
	b.stats.FailureStreak++
	b.stats.SuccessStreak = 0
	switch state {
	case StateClosed:
		if b.stats.FailureStreak >= b.opts.FailureStreak {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

// tick applies deadline-driven transitions and returns the effective state
// with its generation. The deadline doubles as the generation marker.
func (b *Breaker) tick(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.deadline.IsZero() && b.deadline.Before(now) {
			b.stats = Stats{}
			b.deadline = now.Add(b.opts.Window)
		}
	case StateOpen:
		if b.deadline.Before(now) {
			b.transition(StateHalfOpen, now)
		}
	}
	return b.state, uint64(b.deadline.UnixNano())
}

func (b *Breaker) transition(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.stats = Stats{}

	switch state {
	case StateClosed:
		b.deadline = now.Add(b.opts.Window)
	case StateOpen:
		b.deadline = now.Add(b.opts.Cooldown)
	case StateHalfOpen:
		b.deadline = time.Time{}
	}

	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(b.name, prev, state)
	}
}
