package dns

import (
	"context"

	"k8s.io/apimachinery/pkg/util/sets"
)

const (
	TypeA    = "A"
	TypeAAAA = "AAAA"
)

// Subdomain is a name resolved to its currently published addresses.
// An empty address means the record type is not published for the name.
type Subdomain struct {
	Name string `json:"name"`
	IPv4 string `json:"ipv4,omitempty"`
	IPv6 string `json:"ipv6,omitempty"`
}

// Valid reports whether at least one address is set.
func (s Subdomain) Valid() bool {
	return s.Name != "" && (s.IPv4 != "" || s.IPv6 != "")
}

// PointsAt reports whether either address of the record equals address.
func (s Subdomain) PointsAt(address string) bool {
	return address != "" && (s.IPv4 == address || s.IPv6 == address)
}

// Entry is a single A or AAAA resource record as returned by a provider API,
// before entries sharing a name are merged into a Subdomain.
type Entry struct {
	Name       string
	RootName   string
	Type       string // "A" or "AAAA"
	Content    string // address
	TTL        int
	Disabled   bool
	ID         string
	ChangeDate string
}

// Provider is the interface that DNS zone providers must implement.
//
// A provider owns its subdomain cache: RefreshSubdomains replaces it as a
// whole and Snapshot hands out the current immutable copy.
type Provider interface {
	// Name identifies the provider instance in logs and errors.
	Name() string
	// Initialize discovers the zones the provider manages.
	Initialize(ctx context.Context) error
	// RefreshSubdomains fetches all A/AAAA records and swaps the cache.
	RefreshSubdomains(ctx context.Context) error
	// ApplyBulkUpdate points every known name in names at the target addresses.
	ApplyBulkUpdate(ctx context.Context, names sets.Set[string], ipv4, ipv6 string) error
	// Snapshot returns the most recently refreshed cache. Never nil.
	Snapshot() *Snapshot
}
