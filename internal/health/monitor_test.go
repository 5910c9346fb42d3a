package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"k8s.io/apimachinery/pkg/util/wait"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/yuriy-kovalchuk/dyndns-switch/internal/metrics"
)

// fakeProber returns canned results and counts probes per host. Probes of
// hosts listed in block wait until the channel is closed.
type fakeProber struct {
	mu      sync.Mutex
	results map[string]Result
	calls   map[string]int
	block   map[string]chan struct{}
	panics  map[string]bool
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		results: map[string]Result{},
		calls:   map[string]int{},
		block:   map[string]chan struct{}{},
		panics:  map[string]bool{},
	}
}

func (f *fakeProber) Probe(ctx context.Context, h Host) Result {
	f.mu.Lock()
	f.calls[h.Identity]++
	res := f.results[h.Identity]
	block := f.block[h.Identity]
	panics := f.panics[h.Identity]
	f.mu.Unlock()

	if panics {
		panic("prober exploded")
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}
	return res
}

func (f *fakeProber) Calls(identity string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[identity]
}

var testHosts = []Host{
	{Identity: "home", IPv4: "10.0.0.1", IPv6: "fd00::1"},
	{Identity: "remote", IPv4: "10.0.0.2", IPv6: "fd00::2"},
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	err := wait.PollUntilContextTimeout(context.Background(), 5*time.Millisecond, 5*time.Second, true,
		func(context.Context) (bool, error) { return cond(), nil })
	if err != nil {
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestMonitor_RunProbesOnEveryTick(t *testing.T) {
	prober := newFakeProber()
	prober.results["home"] = Result{Reachable: true, PacketLoss: 0}
	prober.results["remote"] = Result{Reachable: false, PacketLoss: 100}

	clk := testingclock.NewFakeClock(time.Now())
	m := NewMonitor(logr.Discard(), prober, testHosts, WithClock(clk), WithInterval(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	waitFor(t, "initial probes", func() bool { return len(m.Reachability()) == 2 })
	got := m.Reachability()
	if !got["home"] || got["remote"] {
		t.Errorf("unexpected reachability map %v", got)
	}

	waitFor(t, "ticker registration", clk.HasWaiters)
	clk.Step(time.Minute)
	waitFor(t, "second round", func() bool { return prober.Calls("home") == 2 && prober.Calls("remote") == 2 })

	if v := testutil.ToFloat64(metrics.HostReachable.WithLabelValues("home")); v != 1 {
		t.Errorf("expected host_reachable{home}=1, got %v", v)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestMonitor_SlowHostDoesNotBlockOthers(t *testing.T) {
	prober := newFakeProber()
	release := make(chan struct{})
	prober.block["home"] = release
	prober.results["home"] = Result{Reachable: true}
	prober.results["remote"] = Result{Reachable: true}

	m := NewMonitor(logr.Discard(), prober, testHosts)
	ctx := context.Background()

	m.ProbeAll(ctx)
	waitFor(t, "remote probe", func() bool { _, ok := m.Status("remote"); return ok })
	m.ProbeAll(ctx)
	waitFor(t, "second remote probe", func() bool { return prober.Calls("remote") == 2 })

	if _, ok := m.Status("home"); ok {
		t.Fatal("hung probe must not have been recorded yet")
	}
	if n := prober.Calls("home"); n != 1 {
		t.Errorf("expected a single in-flight probe for the hung host, got %d", n)
	}

	close(release)
	waitFor(t, "home probe", func() bool { _, ok := m.Status("home"); return ok })
}

func TestMonitor_PanickingProberIsUnreachable(t *testing.T) {
	prober := newFakeProber()
	prober.panics["home"] = true
	prober.results["remote"] = Result{Reachable: true}

	m := NewMonitor(logr.Discard(), prober, testHosts)
	m.ProbeAll(context.Background())

	waitFor(t, "both probes", func() bool { return len(m.Snapshot()) == 2 })
	st, _ := m.Status("home")
	if st.Reachable {
		t.Error("expected panicking probe to be recorded as unreachable")
	}
	if st.Detail == "" {
		t.Error("expected panic detail to be recorded")
	}
	if st, _ := m.Status("remote"); !st.Reachable {
		t.Error("sibling probe must not be affected by a panic")
	}
}

func TestMonitor_CancelledProbeIsNotRecorded(t *testing.T) {
	prober := newFakeProber()
	prober.results["home"] = Result{Reachable: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMonitor(logr.Discard(), prober, testHosts[:1])
	m.ProbeAll(ctx)

	waitFor(t, "probe call", func() bool { return prober.Calls("home") == 1 })
	time.Sleep(10 * time.Millisecond)
	if _, ok := m.Status("home"); ok {
		t.Error("probe finished after shutdown must not be recorded")
	}
}

func TestMonitor_Subscribe(t *testing.T) {
	prober := newFakeProber()
	prober.results["home"] = Result{Reachable: true}

	m := NewMonitor(logr.Discard(), prober, testHosts[:1])
	ctx, cancel := context.WithCancel(context.Background())
	updates := m.Subscribe(ctx)

	m.ProbeAll(context.Background())

	select {
	case got := <-updates:
		if !got["home"] {
			t.Errorf("expected home reachable in published map, got %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no update published")
	}

	cancel()
	waitFor(t, "subscription close", func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	})
}

func TestMonitor_SubscribeAfterStop(t *testing.T) {
	prober := newFakeProber()
	m := NewMonitor(logr.Discard(), prober, testHosts[:1])

	ctx, cancel := context.WithCancel(context.Background())
	before := m.Subscribe(context.Background())
	cancel()
	m.Run(ctx)

	for name, ch := range map[string]<-chan map[string]bool{
		"before stop": before,
		"after stop":  m.Subscribe(context.Background()),
	} {
		select {
		case _, ok := <-ch:
			if ok {
				// A probe may have been published first; the next read must see the close.
				_, ok = <-ch
			}
			if ok {
				t.Errorf("%s: expected subscription to be closed", name)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("%s: subscription was not closed", name)
		}
	}
}
