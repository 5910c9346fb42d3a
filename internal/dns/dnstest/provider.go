// Package dnstest provides an in-memory dns.Provider for tests.
package dnstest

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/yuriy-kovalchuk/dyndns-switch/internal/dns"
)

// Update records a single ApplyBulkUpdate call.
type Update struct {
	Names []string
	IPv4  string
	IPv6  string
}

// Provider is a fake dns.Provider. Records is what the next refresh
// publishes; the Err fields make the matching operation fail.
type Provider struct {
	ProviderName string

	mu         sync.Mutex
	records    []dns.Subdomain
	snap       *dns.Snapshot
	updates    []Update
	refreshes  int
	InitErr    error
	RefreshErr error
	UpdateErr  error

	// OnRefresh, if set, runs at the start of every refresh.
	OnRefresh func()
}

// NewProvider returns a fake whose cache already holds records.
func NewProvider(name string, records ...dns.Subdomain) *Provider {
	return &Provider{
		ProviderName: name,
		records:      records,
		snap:         dns.NewSnapshot(records),
	}
}

func (p *Provider) Name() string { return p.ProviderName }

func (p *Provider) Initialize(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.InitErr
}

// SetRecords changes what the next refresh publishes.
func (p *Provider) SetRecords(records ...dns.Subdomain) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = records
}

// SetRefreshErr makes subsequent refreshes fail with err.
func (p *Provider) SetRefreshErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RefreshErr = err
}

func (p *Provider) RefreshSubdomains(context.Context) error {
	if p.OnRefresh != nil {
		p.OnRefresh()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
	if p.RefreshErr != nil {
		return fmt.Errorf("%w: %w", dns.ErrProviderRefresh, p.RefreshErr)
	}
	p.snap = dns.NewSnapshot(p.records)
	return nil
}

func (p *Provider) ApplyBulkUpdate(_ context.Context, names sets.Set[string], ipv4, ipv6 string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	owned := sets.New[string]()
	for n := range names {
		if r, ok := p.snap.Lookup(n); ok {
			owned.Insert(r.Name)
		}
	}
	known := sets.List(owned)
	if len(known) == 0 {
		return dns.ErrNoMatchingNames
	}
	if p.UpdateErr != nil {
		return fmt.Errorf("%w: %w", dns.ErrProviderUpdate, p.UpdateErr)
	}
	p.updates = append(p.updates, Update{Names: known, IPv4: ipv4, IPv6: ipv6})
	return nil
}

func (p *Provider) Snapshot() *dns.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Updates returns the bulk updates applied so far.
func (p *Provider) Updates() []Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Update, len(p.updates))
	copy(out, p.updates)
	return out
}

// Refreshes returns how often RefreshSubdomains was called.
func (p *Provider) Refreshes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshes
}
