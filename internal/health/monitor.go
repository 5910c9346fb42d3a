package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"

	"github.com/yuriy-kovalchuk/dyndns-switch/internal/metrics"
)

// DefaultInterval is the time between two probe rounds.
const DefaultInterval = 60 * time.Second

// Monitor probes a fixed set of hosts on every tick and keeps the outcome of
// the most recent completed probe per host.
//
// A tick starts one probe per host without waiting for any of them, so a
// slow host never delays the others or the next tick. While a probe of a
// host is still running, further ticks do not start another one for it.
type Monitor struct {
	hosts    []Host
	prober   Prober
	interval time.Duration
	clock    clock.WithTicker
	log      logr.Logger

	// one slot per host identity, held while a probe of that host runs
	inflight map[string]*semaphore.Weighted

	mu     sync.RWMutex
	status map[string]Status

	subMu   sync.Mutex
	subs    map[chan map[string]bool]struct{}
	stopped bool
	done    chan struct{} // closed when Run returns
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the time between probe rounds.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithClock replaces the clock driving the ticker.
func WithClock(c clock.WithTicker) Option {
	return func(m *Monitor) { m.clock = c }
}

// NewMonitor creates a monitor for hosts. Run starts probing.
func NewMonitor(log logr.Logger, prober Prober, hosts []Host, opts ...Option) *Monitor {
	m := &Monitor{
		hosts:    append([]Host(nil), hosts...),
		prober:   prober,
		interval: DefaultInterval,
		clock:    clock.RealClock{},
		log:      log,
		status:   make(map[string]Status, len(hosts)),
		subs:     make(map[chan map[string]bool]struct{}),
		inflight: make(map[string]*semaphore.Weighted, len(hosts)),
		done:     make(chan struct{}),
	}
	for _, h := range hosts {
		m.inflight[h.Identity] = semaphore.NewWeighted(1)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hosts returns the monitored hosts.
func (m *Monitor) Hosts() []Host {
	return append([]Host(nil), m.hosts...)
}

// Run probes every host right away and then once per interval until ctx is
// done. Subscriptions are closed when Run returns.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()
	defer m.closeSubscribers()

	m.log.Info("starting health monitor", "hosts", len(m.hosts), "interval", m.interval)
	m.ProbeAll(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("stopping health monitor")
			return
		case <-ticker.C():
			m.ProbeAll(ctx)
		}
	}
}

// ProbeAll starts one probe per host and returns immediately. Hosts whose
// previous probe is still running are skipped.
func (m *Monitor) ProbeAll(ctx context.Context) {
	for _, h := range m.hosts {
		slot := m.inflight[h.Identity]
		if !slot.TryAcquire(1) {
			m.log.V(1).Info("previous probe still running, skipping", "host", h.Identity)
			continue
		}
		go func() {
			start := m.clock.Now()
			res := m.probe(ctx, h)
			slot.Release(1)
			if ctx.Err() != nil {
				// Shutting down; an interrupted probe says nothing about the host.
				return
			}
			m.record(h, res, m.clock.Since(start))
		}()
	}
}

// probe runs a single probe. A panicking prober counts as an unreachable host.
func (m *Monitor) probe(ctx context.Context, h Host) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error(fmt.Errorf("%v", r), "probe panicked", "host", h.Identity)
			res = unreachable("probe panicked: %v", r)
		}
	}()
	return m.prober.Probe(ctx, h)
}

func (m *Monitor) record(h Host, res Result, took time.Duration) {
	st := Status{
		Reachable:  res.Reachable,
		PacketLoss: res.PacketLoss,
		Detail:     res.Detail,
		CheckedAt:  m.clock.Now(),
	}

	m.mu.Lock()
	prev, known := m.status[h.Identity]
	m.status[h.Identity] = st
	m.mu.Unlock()

	metrics.HostReachable.WithLabelValues(h.Identity).Set(metrics.BoolValue(st.Reachable))
	metrics.ProbesTotal.WithLabelValues(h.Identity, metrics.Result(st.Reachable)).Inc()
	metrics.ProbeDuration.WithLabelValues(h.Identity).Observe(took.Seconds())

	if !known || prev.Reachable != st.Reachable {
		m.log.Info("host reachability changed", "host", h.Identity, "reachable", st.Reachable, "packetLoss", st.PacketLoss, "detail", st.Detail)
	} else {
		m.log.V(1).Info("probe completed", "host", h.Identity, "reachable", st.Reachable, "packetLoss", st.PacketLoss, "took", took)
	}
	m.publish()
}

// Status returns the last probe outcome for a host. ok is false while the
// host has not completed a probe yet.
func (m *Monitor) Status(identity string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.status[identity]
	return st, ok
}

// Snapshot returns a copy of all recorded probe outcomes.
func (m *Monitor) Snapshot() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out
}

// Reachability returns a copy of the reachability map. Hosts that have not
// completed a probe are absent.
func (m *Monitor) Reachability() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.status))
	for k, v := range m.status {
		out[k] = v.Reachable
	}
	return out
}

// Subscribe returns a channel that receives the reachability map after every
// completed probe. Only the latest map is kept for a slow reader. The channel
// is closed when ctx is done or the monitor stops; subscribing to a stopped
// monitor returns a closed channel.
func (m *Monitor) Subscribe(ctx context.Context) <-chan map[string]bool {
	ch := make(chan map[string]bool, 1)
	m.subMu.Lock()
	if m.stopped {
		m.subMu.Unlock()
		close(ch)
		return ch
	}
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			m.unsubscribe(ch)
		case <-m.done:
		}
	}()
	return ch
}

func (m *Monitor) unsubscribe(ch chan map[string]bool) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

func (m *Monitor) closeSubscribers() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		delete(m.subs, ch)
		close(ch)
	}
	if !m.stopped {
		m.stopped = true
		close(m.done)
	}
}

func (m *Monitor) publish() {
	snap := m.Reachability()

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the unread map with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
