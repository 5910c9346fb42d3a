// Package failover ties the health monitor to the provider registry: it
// knows the monitored hosts, keeps the subdomain caches fresh and moves
// subdomains from one host to another on request.
package failover

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/yuriy-kovalchuk/dyndns-switch/internal/dns"
	"github.com/yuriy-kovalchuk/dyndns-switch/internal/health"
	"github.com/yuriy-kovalchuk/dyndns-switch/internal/metrics"
)

// DefaultRefreshInterval is the time between two subdomain refreshes.
const DefaultRefreshInterval = 5 * time.Minute

// Target is a host to monitor, identified by the subdomain whose addresses
// are the host's addresses.
type Target struct {
	Identity  string
	Bootstrap string
}

// Controller owns the monitored hosts and routes moves through the registry.
type Controller struct {
	registry        *dns.Registry
	monitor         *health.Monitor
	hosts           []health.Host
	byIdentity      map[string]health.Host
	bootstrap       map[string]string
	refreshInterval time.Duration
	monitorInterval time.Duration
	clock           clock.WithTicker
	log             logr.Logger

	// held for a whole refresh so that results are stored in call order
	refreshMu sync.Mutex

	mu          sync.RWMutex
	lastRefresh time.Time
	lastErr     error
}

// Option configures a Controller.
type Option func(*Controller)

// WithRefreshInterval sets the time between refreshes. A negative value
// disables periodic refreshing; zero keeps the default.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d != 0 {
			c.refreshInterval = d
		}
	}
}

// WithMonitorInterval sets the time between probe rounds.
func WithMonitorInterval(d time.Duration) Option {
	return func(c *Controller) { c.monitorInterval = d }
}

// WithClock replaces the clock driving both loops.
func WithClock(clk clock.WithTicker) Option {
	return func(c *Controller) { c.clock = clk }
}

// New refreshes the registry once and resolves every target's bootstrap name
// into a Host. The IPv4 address is required; a missing IPv6 address leaves
// the host IPv4-only.
func New(ctx context.Context, log logr.Logger, registry *dns.Registry, prober health.Prober, targets []Target, opts ...Option) (*Controller, error) {
	c := &Controller{
		registry:        registry,
		byIdentity:      make(map[string]health.Host, len(targets)),
		bootstrap:       make(map[string]string, len(targets)),
		refreshInterval: DefaultRefreshInterval,
		monitorInterval: health.DefaultInterval,
		clock:           clock.RealClock{},
		log:             log,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("failover: initial refresh: %w", err)
	}

	for _, t := range targets {
		if _, dup := c.byIdentity[t.Identity]; dup {
			return nil, fmt.Errorf("failover: duplicate host identity %q", t.Identity)
		}
		name := dns.NormalizeName(t.Bootstrap)
		ipv4, err := registry.Resolve(name, false)
		if err != nil {
			return nil, fmt.Errorf("failover: host %s: %w", t.Identity, err)
		}
		ipv6, err := registry.Resolve(name, true)
		if err != nil {
			log.Info("bootstrap name has no ipv6 address, monitoring ipv4 only", "host", t.Identity, "name", name)
			ipv6 = ""
		}
		h := health.Host{Identity: t.Identity, IPv4: ipv4, IPv6: ipv6}
		c.hosts = append(c.hosts, h)
		c.byIdentity[t.Identity] = h
		c.bootstrap[t.Identity] = name
		log.Info("host resolved", "host", t.Identity, "bootstrap", name, "ipv4", ipv4, "ipv6", ipv6)
	}

	c.monitor = health.NewMonitor(log.WithName("monitor"), prober, c.hosts,
		health.WithInterval(c.monitorInterval), health.WithClock(c.clock))
	return c, nil
}

// Monitor returns the health monitor of the controller's hosts.
func (c *Controller) Monitor() *health.Monitor {
	return c.monitor
}

// Run drives the health monitor and the periodic refresh until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.monitor.Run(ctx)
		return nil
	})
	g.Go(func() error {
		c.refreshLoop(ctx)
		return nil
	})
	return g.Wait()
}

func (c *Controller) refreshLoop(ctx context.Context) {
	if c.refreshInterval < 0 {
		c.log.Info("periodic refresh disabled")
		<-ctx.Done()
		return
	}
	ticker := c.clock.NewTicker(c.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.log.Error(err, "periodic refresh failed, keeping previous subdomain data")
			}
		}
	}
}

// Refresh re-reads every provider's records and remembers the outcome for
// status reporting. Concurrent calls run one after another.
func (c *Controller) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	err := c.registry.RefreshAll(ctx)
	now := c.clock.Now()

	c.mu.Lock()
	c.lastErr = err
	if err == nil {
		c.lastRefresh = now
	}
	c.mu.Unlock()

	metrics.RefreshTotal.WithLabelValues(metrics.Result(err == nil)).Inc()
	if err != nil {
		return err
	}
	metrics.LastRefreshSuccess.Set(float64(now.Unix()))
	c.log.V(1).Info("subdomains refreshed")
	return nil
}

// Hosts returns the monitored hosts in configuration order.
func (c *Controller) Hosts() []health.Host {
	return append([]health.Host(nil), c.hosts...)
}

// Host returns the host with the given identity.
func (c *Controller) Host(identity string) (health.Host, bool) {
	h, ok := c.byIdentity[identity]
	return h, ok
}

// SubdomainsOnHost returns every subdomain pointing at address.
func (c *Controller) SubdomainsOnHost(address string) []dns.Subdomain {
	return c.registry.NamesForHost(address)
}

// SubdomainsOfHost returns the subdomains pointing at either address of the
// host, without duplicates.
func (c *Controller) SubdomainsOfHost(identity string) ([]dns.Subdomain, error) {
	h, ok := c.byIdentity[identity]
	if !ok {
		return nil, fmt.Errorf("failover: %q: %w", identity, ErrUnknownHost)
	}
	out := c.registry.NamesForHost(h.IPv4)
	if h.IPv6 == "" {
		return out, nil
	}
	seen := sets.New[string]()
	for _, s := range out {
		seen.Insert(s.Name)
	}
	for _, s := range c.registry.NamesForHost(h.IPv6) {
		if !seen.Has(s.Name) {
			seen.Insert(s.Name)
			out = append(out, s)
		}
	}
	return out, nil
}

// MoveSubdomains points names at the addresses of the host identified by to.
// With an empty name set, every subdomain currently on the from host is moved
// except the hosts' own bootstrap names.
func (c *Controller) MoveSubdomains(ctx context.Context, from, to string, names sets.Set[string]) error {
	target, ok := c.byIdentity[to]
	if !ok {
		return fmt.Errorf("failover: move to %q: %w", to, ErrUnknownHost)
	}

	if names.Len() == 0 {
		derived, err := c.movableNames(from)
		if err != nil {
			return err
		}
		names = derived
	} else {
		names = dns.NormalizeNames(names)
	}

	c.log.Info("moving subdomains", "from", from, "to", to, "names", sets.List(names))
	err := c.registry.MoveNames(ctx, names, target.IPv4, target.IPv6)
	metrics.MovesTotal.WithLabelValues(to, metrics.Result(err == nil)).Inc()
	if err != nil {
		return fmt.Errorf("failover: move to %s: %w", to, err)
	}

	if err := c.Refresh(ctx); err != nil {
		c.log.Error(err, "refresh after move failed, subdomain data is stale")
	}
	return nil
}

func (c *Controller) movableNames(from string) (sets.Set[string], error) {
	subs, err := c.SubdomainsOfHost(from)
	if err != nil {
		return nil, fmt.Errorf("failover: move from %q: %w", from, ErrUnknownHost)
	}
	reserved := sets.New[string]()
	for _, name := range c.bootstrap {
		reserved.Insert(name)
	}
	names := sets.New[string]()
	for _, s := range subs {
		if !reserved.Has(s.Name) {
			names.Insert(s.Name)
		}
	}
	return names, nil
}

// HostStatus is a monitored host together with its latest probe outcome.
type HostStatus struct {
	health.Host
	Bootstrap string         `json:"bootstrap"`
	Probed    bool           `json:"probed"`
	Health    *health.Status `json:"health,omitempty"`
}

// Status summarizes hosts and the freshness of the subdomain data.
type Status struct {
	Hosts            []HostStatus `json:"hosts"`
	LastRefresh      time.Time    `json:"lastRefresh"`
	LastRefreshError string       `json:"lastRefreshError,omitempty"`
	// Stale is set while the last refresh failed or none has succeeded.
	Stale bool `json:"stale"`
}

// Status returns a point-in-time view of the controller.
func (c *Controller) Status() Status {
	c.mu.RLock()
	st := Status{LastRefresh: c.lastRefresh}
	if c.lastErr != nil {
		st.LastRefreshError = c.lastErr.Error()
	}
	st.Stale = c.lastErr != nil || c.lastRefresh.IsZero()
	c.mu.RUnlock()

	var probes map[string]health.Status
	if c.monitor != nil {
		probes = c.monitor.Snapshot()
	}
	for _, h := range c.hosts {
		hs := HostStatus{Host: h, Bootstrap: c.bootstrap[h.Identity]}
		if p, ok := probes[h.Identity]; ok {
			hs.Probed = true
			hs.Health = &p
		}
		st.Hosts = append(st.Hosts, hs)
	}
	return st
}

// Ready reports whether at least one refresh has succeeded.
func (c *Controller) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.lastRefresh.IsZero()
}
