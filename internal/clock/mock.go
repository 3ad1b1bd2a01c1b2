package clock

import (
	"sync"
	"time"
)

// Mock is a manually advanced Clock. Ticks are delivered with a blocking
// send, so Advance returns only after every due tick has been received.
// Timer callbacks run on the goroutine calling Advance.
type Mock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*mockTicker
	timers  []*mockTimer
}

// NewMock creates a Mock clock reading now.
func NewMock(now time.Time) *Mock {
	return &Mock{now: now}
}

// Now returns the mock time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t without firing anything.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// NewTicker creates a ticker driven by Advance.
func (m *Mock) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTicker{
		period:  d,
		next:    m.now.Add(d),
		c:       make(chan time.Time),
		stopped: make(chan struct{}),
	}
	m.tickers = append(m.tickers, t)
	return t
}

// AfterFunc schedules f to run during the Advance that reaches its deadline.
func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{mock: m, deadline: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

// PendingTimers counts timers that are neither fired nor stopped.
func (m *Mock) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, delivering every tick and firing
// every timer that falls due on the way, in time order.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		ticker, timer, at := m.nextDue(target)
		if ticker == nil && timer == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = at
		if ticker != nil {
			ticker.next = ticker.next.Add(ticker.period)
			m.mu.Unlock()
			select {
			case ticker.c <- at:
			case <-ticker.stopped:
			}
			continue
		}
		timer.done = true
		m.mu.Unlock()
		timer.f()
	}
}

func (m *Mock) nextDue(target time.Time) (*mockTicker, *mockTimer, time.Time) {
	var (
		ticker *mockTicker
		timer  *mockTimer
		at     time.Time
	)
	for _, t := range m.tickers {
		if t.isStopped() || t.next.After(target) {
			continue
		}
		if ticker == nil || t.next.Before(at) {
			ticker, at = t, t.next
		}
	}
	for _, t := range m.timers {
		if t.done || t.deadline.After(target) {
			continue
		}
		if (ticker == nil && timer == nil) || t.deadline.Before(at) {
			ticker, timer, at = nil, t, t.deadline
		}
	}
	return ticker, timer, at
}

type mockTicker struct {
	period  time.Duration
	next    time.Time
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *mockTicker) C() <-chan time.Time { return t.c }

func (t *mockTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

func (t *mockTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

type mockTimer struct {
	mock     *Mock
	deadline time.Time
	f        func()
	done     bool
}

func (t *mockTimer) Stop() bool {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}
