package reconnect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxDelayBounds(t *testing.T) {
	p := DefaultPolicy()
	want := []time.Duration{
		1000 * time.Millisecond,
		3000 * time.Millisecond,
		7000 * time.Millisecond,
		15000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for i, w := range want {
		assert.Equal(t, w, p.MaxDelay(i+1), "attempts=%d", i+1)
	}
	assert.Equal(t, 30*time.Second, p.MaxDelay(6))
	assert.Equal(t, 30*time.Second, p.MaxDelay(1000), "no overflow for large counts")
	assert.Equal(t, time.Duration(0), p.MaxDelay(0))
}

func TestDelayIsJitteredBelowCap(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.5, 0.999999} {
		p := DefaultPolicy()
		p.Rand = func() float64 { return r }
		for k := 1; k <= 8; k++ {
			d := p.Delay(k)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.Less(t, d, p.MaxDelay(k)+1)
			assert.Equal(t, time.Duration(r*float64(p.MaxDelay(k))), d)
		}
	}

	p := DefaultPolicy()
	for i := 0; i < 200; i++ {
		d := p.Delay(3)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.Less(t, d, 7*time.Second)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "reconnecting", Reconnecting.String())
}

// scriptedConnector plays one step per Connect call. "open" signals Opened and
// holds the session until the test drops it; "fail" returns at once.
type scriptedConnector struct {
	t     *testing.T
	sup   *Supervisor
	steps []string
	drop  chan struct{}

	mu       sync.Mutex
	calls    int
	attempts []int
}

func (c *scriptedConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	step := "open"
	if c.calls < len(c.steps) {
		step = c.steps[c.calls]
	}
	c.calls++
	c.attempts = append(c.attempts, c.sup.Attempts())
	c.mu.Unlock()

	if step == "fail" {
		return errors.New("dial failed")
	}
	c.sup.Opened()
	select {
	case <-c.drop:
		return errors.New("socket closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *scriptedConnector) seenAttempts() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.attempts...)
}

type event struct {
	state    State
	attempts int
}

func waitFor(t *testing.T, events <-chan event, want State) event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.state == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestSupervisorReconnectsAndResetsAttempts(t *testing.T) {
	conn := &scriptedConnector{
		t:     t,
		steps: []string{"open", "fail", "fail", "open", "open"},
		drop:  make(chan struct{}),
	}
	events := make(chan event, 64)
	delays := make(chan time.Duration, 16)

	p := DefaultPolicy()
	p.Rand = func() float64 { return 0.5 }
	sup := New(conn,
		WithPolicy(p),
		WithAfter(func(d time.Duration) <-chan time.Time {
			delays <- d
			ch := make(chan time.Time, 1)
			ch <- time.Now()
			return ch
		}),
		WithNotify(func(s State, n int) { events <- event{s, n} }),
	)
	conn.sup = sup

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- sup.Run(ctx) }()

	ev := waitFor(t, events, Connected)
	assert.Equal(t, 1, ev.attempts)

	// drop the first session; two failed attempts follow, then a success
	conn.drop <- struct{}{}
	ev = waitFor(t, events, Connected)
	assert.Equal(t, 1, ev.attempts, "open resets attempts")
	assert.True(t, sup.Connected())

	// drop again: the schedule starts over from one attempt
	conn.drop <- struct{}{}
	waitFor(t, events, Connected)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	close(delays)
	var got []time.Duration
	for d := range delays {
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,  // attempts=1
		1500 * time.Millisecond, // attempts=2
		3500 * time.Millisecond, // attempts=3
		500 * time.Millisecond,  // reset after open
	}, got)
	assert.Equal(t, []int{1, 2, 3, 4, 2}, conn.seenAttempts())
}

func TestSupervisorTransitionsThroughDisconnected(t *testing.T) {
	conn := &scriptedConnector{t: t, steps: []string{"open", "open"}, drop: make(chan struct{})}
	events := make(chan event, 64)
	sup := New(conn,
		WithAfter(func(time.Duration) <-chan time.Time {
			ch := make(chan time.Time, 1)
			ch <- time.Now()
			return ch
		}),
		WithNotify(func(s State, n int) { events <- event{s, n} }),
	)
	conn.sup = sup
	assert.Equal(t, Disconnected, sup.State())
	assert.Equal(t, 1, sup.Attempts())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sup.Run(ctx) }()

	waitFor(t, events, Connected)
	conn.drop <- struct{}{}

	var seq []State
	for len(seq) < 3 {
		select {
		case ev := <-events:
			seq = append(seq, ev.state)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out collecting transitions")
		}
	}
	assert.Equal(t, []State{Disconnected, Reconnecting, Connected}, seq)
}

func TestSupervisorStopsWhileWaiting(t *testing.T) {
	conn := &scriptedConnector{t: t, steps: []string{"fail"}, drop: make(chan struct{})}
	events := make(chan event, 64)
	never := make(chan time.Time)
	sup := New(conn,
		WithAfter(func(time.Duration) <-chan time.Time { return never }),
		WithNotify(func(s State, n int) { events <- event{s, n} }),
	)
	conn.sup = sup

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- sup.Run(ctx) }()

	waitFor(t, events, Reconnecting)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, Reconnecting, sup.State())

	// late signals after shutdown must not block
	done := make(chan struct{})
	go func() { sup.Opened(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Opened blocked after Run returned")
	}
}
