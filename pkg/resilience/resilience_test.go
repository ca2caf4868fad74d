package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("fail")

func failing(context.Context) error { return errFail }
func ok(context.Context) error      { return nil }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker("neo4j", BreakerOpts{FailThreshold: 3, Timeout: time.Second})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := b.Call(ctx, failing); !errors.Is(err, errFail) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}
	err := b.Call(ctx, ok)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if err.Error() != "neo4j: circuit breaker is open" {
		t.Fatalf("error = %q", err)
	}
}

func TestBreakerResetsOnSuccess(t *testing.T) {
	b := NewBreaker("x", BreakerOpts{FailThreshold: 3})
	ctx := context.Background()
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, ok)
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreakerHalfOpen(t *testing.T) {
	tests := []struct {
		name  string
		probe func(context.Context) error
		want  State
	}{
		{"probe succeeds", ok, StateClosed},
		{"probe fails", failing, StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &clock{t: time.Unix(0, 0)}
			var transitions []string
			b := NewBreaker("nats", BreakerOpts{
				FailThreshold: 1,
				Timeout:       time.Second,
				OnStateChange: func(name string, from, to State) {
					transitions = append(transitions, from.String()+">"+to.String())
				},
			})
			b.now = c.now
			ctx := context.Background()

			_ = b.Call(ctx, failing)
			c.advance(time.Second)
			_ = b.Call(ctx, tt.probe)
			if got := b.State(); got != tt.want {
				t.Fatalf("state = %v, want %v", got, tt.want)
			}
			if transitions[0] != "closed>open" || transitions[1] != "open>half-open" {
				t.Fatalf("transitions = %v", transitions)
			}
		})
	}
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	b := NewBreaker("x", BreakerOpts{FailThreshold: 1, Timeout: time.Second})
	b.now = c.now
	ctx := context.Background()
	_ = b.Call(ctx, failing)
	c.advance(time.Second)

	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Call(ctx, func(context.Context) error { <-release; return nil })
	}()
	for b.State() != StateHalfOpen || b.probesInFlight() == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := b.Call(ctx, ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second probe should be rejected, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func (b *Breaker) probesInFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.probes
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b := NewBreaker("x", BreakerOpts{FailThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Call(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("cancellation tripped the breaker")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d: got %q want %q", tt.s, got, tt.want)
		}
	}
}

func TestKeyedLimiter(t *testing.T) {
	c := &clock{t: time.Unix(100, 0)}
	l := NewKeyedLimiter(LimiterOpts{Rate: 1, Burst: 2, IdleTTL: time.Minute})
	l.now = c.now

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("third call should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("keys are independent")
	}
	c.advance(time.Second)
	if !l.Allow("a") {
		t.Fatal("token should refill after a second")
	}

	c.advance(2 * time.Minute)
	l.Allow("c")
	if l.Len() != 1 {
		t.Fatalf("idle keys should be evicted, have %d", l.Len())
	}
}

func TestKeyedLimiterDisabled(t *testing.T) {
	l := NewKeyedLimiter(LimiterOpts{})
	for i := 0; i < 100; i++ {
		if !l.Allow("a") {
			t.Fatal("zero rate must not limit")
		}
	}
	var nilLimiter *KeyedLimiter
	if !nilLimiter.Allow("a") {
		t.Fatal("nil limiter must not limit")
	}
}
