package dns

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Registry routes resolution and updates across an ordered list of
// providers. It keeps no cache of its own; every query reads the providers'
// current snapshots. When two providers publish the same name, the one
// registered first wins.
type Registry struct {
	providers []Provider
	log       logr.Logger

	// IsolateFailures makes RefreshAll refresh every provider even if one of
	// them fails, returning the failures as one aggregated error.
	IsolateFailures bool
}

// NewRegistry creates a registry over providers, in order.
func NewRegistry(log logr.Logger, providers ...Provider) *Registry {
	return &Registry{providers: providers, log: log}
}

// Providers returns the registered providers in order.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// InitializeAll runs zone discovery on every provider. The first failure aborts.
func (r *Registry) InitializeAll(ctx context.Context) error {
	for _, p := range r.providers {
		if err := p.Initialize(ctx); err != nil {
			return fmt.Errorf("registry: initialize %s: %w", p.Name(), err)
		}
		r.log.V(1).Info("provider initialized", "provider", p.Name())
	}
	return nil
}

// RefreshAll refreshes every provider sequentially. By default the first
// failure aborts the cycle, since deciding a failover on partially fresh data
// is worse than deciding on stale data.
func (r *Registry) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, p := range r.providers {
		if err := p.RefreshSubdomains(ctx); err != nil {
			err = fmt.Errorf("registry: refresh %s: %w", p.Name(), err)
			if !r.IsolateFailures {
				return err
			}
			r.log.Error(err, "provider refresh failed, continuing with remaining providers")
			errs = append(errs, err)
			continue
		}
		r.log.V(1).Info("provider refreshed", "provider", p.Name(), "subdomains", p.Snapshot().Len())
	}
	return utilerrors.NewAggregate(errs)
}

// Resolve returns the IPv4 (or IPv6 when wantIPv6 is set) address published
// for name by the first provider that has it.
func (r *Registry) Resolve(name string, wantIPv6 bool) (string, error) {
	for _, p := range r.providers {
		s, ok := p.Snapshot().Lookup(name)
		if !ok {
			continue
		}
		ip := s.IPv4
		if wantIPv6 {
			ip = s.IPv6
		}
		if ip == "" {
			continue
		}
		r.log.V(1).Info("resolved name", "name", name, "ipv6", wantIPv6, "ip", ip, "provider", p.Name())
		return ip, nil
	}
	family := "ipv4"
	if wantIPv6 {
		family = "ipv6"
	}
	return "", fmt.Errorf("registry: %s (%s): %w", name, family, ErrUnresolvedName)
}

// NamesForHost returns every cached record pointing at address, in provider
// order and then cache order. The result is empty when nothing matches.
func (r *Registry) NamesForHost(address string) []Subdomain {
	out := []Subdomain{}
	for _, p := range r.providers {
		for _, s := range p.Snapshot().Records() {
			if s.PointsAt(address) {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		r.log.V(1).Info("no subdomains found for address", "address", address)
	}
	return out
}

// Owned returns the subset of names present in p's current cache, in their
// normalized form.
func Owned(p Provider, names sets.Set[string]) sets.Set[string] {
	snap := p.Snapshot()
	owned := sets.New[string]()
	for name := range names {
		if r, ok := snap.Lookup(name); ok {
			owned.Insert(r.Name)
		}
	}
	return owned
}

// NormalizeNames returns names normalized with NormalizeName.
func NormalizeNames(names sets.Set[string]) sets.Set[string] {
	out := sets.New[string]()
	for name := range names {
		if n := NormalizeName(name); n != "" {
			out.Insert(n)
		}
	}
	return out
}

// MoveNames points names at the target addresses. Each provider receives
// only the names it owns; providers owning none are skipped. The first
// provider error aborts the move.
func (r *Registry) MoveNames(ctx context.Context, names sets.Set[string], ipv4, ipv6 string) error {
	names = NormalizeNames(names)
	if names.Len() == 0 {
		return fmt.Errorf("registry: move: empty name set: %w", ErrNoMatchingNames)
	}

	claimed := sets.New[string]()
	for _, p := range r.providers {
		owned := Owned(p, names)
		if owned.Len() == 0 {
			r.log.V(1).Info("provider owns none of the names, skipping", "provider", p.Name())
			continue
		}
		r.log.Info("moving names", "provider", p.Name(), "names", sets.List(owned), "ipv4", ipv4, "ipv6", ipv6)
		if err := p.ApplyBulkUpdate(ctx, owned, ipv4, ipv6); err != nil {
			return fmt.Errorf("registry: move via %s: %w", p.Name(), err)
		}
		claimed = claimed.Union(owned)
	}

	if claimed.Len() == 0 {
		return fmt.Errorf("registry: move %v: %w", sets.List(names), ErrNoMatchingNames)
	}
	if missing := names.Difference(claimed); missing.Len() > 0 {
		r.log.Info("names not owned by any provider were skipped", "names", sets.List(missing))
	}
	return nil
}
