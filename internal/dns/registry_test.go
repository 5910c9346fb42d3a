package dns_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/yuriy-kovalchuk/dyndns-switch/internal/dns"
	"github.com/yuriy-kovalchuk/dyndns-switch/internal/dns/dnstest"
)

func TestResolve(t *testing.T) {
	first := dnstest.NewProvider("first",
		dns.Subdomain{Name: "vpn.example.com", IPv4: "10.0.0.1", IPv6: "fd00::1"},
		dns.Subdomain{Name: "v4only.example.com", IPv4: "10.0.0.3"},
	)
	second := dnstest.NewProvider("second",
		dns.Subdomain{Name: "vpn.example.com", IPv4: "10.9.9.9", IPv6: "fd00::9"},
		dns.Subdomain{Name: "v4only.example.com", IPv4: "10.9.9.3", IPv6: "fd00::3"},
	)
	r := dns.NewRegistry(logr.Discard(), first, second)

	tests := []struct {
		name     string
		wantIPv6 bool
		want     string
		wantErr  bool
	}{
		{"vpn.example.com", false, "10.0.0.1", false},
		{"vpn.example.com", true, "fd00::1", false},
		{"v4only.example.com", false, "10.0.0.3", false},
		{"v4only.example.com", true, "fd00::3", false}, // first provider lacks ipv6
		{"missing.example.com", false, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.name, tt.wantIPv6)
			if tt.wantErr {
				if !errors.Is(err, dns.ErrUnresolvedName) {
					t.Fatalf("expected ErrUnresolvedName, got %v", err)
				}
				if got != "" {
					t.Errorf("expected empty result on error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q, %v): got %q, want %q", tt.name, tt.wantIPv6, got, tt.want)
			}
		})
	}
}

func TestResolve_FollowsLatestRefresh(t *testing.T) {
	p := dnstest.NewProvider("p", dns.Subdomain{Name: "vpn.example.com", IPv4: "10.0.0.1"})
	r := dns.NewRegistry(logr.Discard(), p)

	p.SetRecords(dns.Subdomain{Name: "vpn.example.com", IPv4: "10.0.0.2"})
	if got, _ := r.Resolve("vpn.example.com", false); got != "10.0.0.1" {
		t.Fatalf("expected cached 10.0.0.1 before refresh, got %q", got)
	}
	if err := r.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if got, _ := r.Resolve("vpn.example.com", false); got != "10.0.0.2" {
		t.Fatalf("expected 10.0.0.2 after refresh, got %q", got)
	}
}

func TestNamesForHost(t *testing.T) {
	p := dnstest.NewProvider("p",
		dns.Subdomain{Name: "a.example.com", IPv4: "10.0.0.1", IPv6: "fd00::1"},
		dns.Subdomain{Name: "b.example.com", IPv4: "10.0.0.1", IPv6: "fd00::1"},
	)
	other := dnstest.NewProvider("other",
		dns.Subdomain{Name: "c.example.com", IPv4: "10.0.0.5", IPv6: "fd00::1"},
	)
	r := dns.NewRegistry(logr.Discard(), p, other)

	got := r.NamesForHost("10.0.0.1")
	want := []dns.Subdomain{
		{Name: "a.example.com", IPv4: "10.0.0.1", IPv6: "fd00::1"},
		{Name: "b.example.com", IPv4: "10.0.0.1", IPv6: "fd00::1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NamesForHost(10.0.0.1) mismatch (-want +got):\n%s", diff)
	}

	if got := r.NamesForHost("fd00::1"); len(got) != 3 {
		t.Errorf("expected 3 records on fd00::1 across providers, got %d", len(got))
	}

	got = r.NamesForHost("10.0.0.2")
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", got)
	}
}

func TestRefreshAll_AbortsOnFirstFailure(t *testing.T) {
	failing := dnstest.NewProvider("failing")
	failing.RefreshErr = errors.New("boom")
	after := dnstest.NewProvider("after")

	r := dns.NewRegistry(logr.Discard(), failing, after)
	err := r.RefreshAll(context.Background())
	if !errors.Is(err, dns.ErrProviderRefresh) {
		t.Fatalf("expected ErrProviderRefresh, got %v", err)
	}
	if after.Refreshes() != 0 {
		t.Errorf("expected provider after the failure to be skipped, got %d refreshes", after.Refreshes())
	}
}

func TestRefreshAll_IsolateFailures(t *testing.T) {
	failing := dnstest.NewProvider("failing")
	failing.RefreshErr = errors.New("boom")
	after := dnstest.NewProvider("after")
	after.SetRecords(dns.Subdomain{Name: "www.example.com", IPv4: "10.0.0.1"})

	r := dns.NewRegistry(logr.Discard(), failing, after)
	r.IsolateFailures = true

	err := r.RefreshAll(context.Background())
	if !errors.Is(err, dns.ErrProviderRefresh) {
		t.Fatalf("expected aggregated ErrProviderRefresh, got %v", err)
	}
	if after.Refreshes() != 1 {
		t.Errorf("expected remaining provider to be refreshed once, got %d", after.Refreshes())
	}
	if _, err := r.Resolve("www.example.com", false); err != nil {
		t.Errorf("expected refreshed provider data to be resolvable: %v", err)
	}
}

func TestInitializeAll(t *testing.T) {
	ok := dnstest.NewProvider("ok")
	bad := dnstest.NewProvider("bad")
	bad.InitErr = dns.ErrProviderInit

	if err := dns.NewRegistry(logr.Discard(), ok).InitializeAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := dns.NewRegistry(logr.Discard(), ok, bad).InitializeAll(context.Background()); !errors.Is(err, dns.ErrProviderInit) {
		t.Fatalf("expected ErrProviderInit, got %v", err)
	}
}

func TestMoveNames(t *testing.T) {
	first := dnstest.NewProvider("first",
		dns.Subdomain{Name: "svc1.example.com", IPv4: "10.0.0.1"},
		dns.Subdomain{Name: "svc2.example.com", IPv4: "10.0.0.1"},
	)
	second := dnstest.NewProvider("second",
		dns.Subdomain{Name: "svc3.other.org", IPv4: "10.0.0.1"},
	)
	idle := dnstest.NewProvider("idle",
		dns.Subdomain{Name: "unrelated.net", IPv4: "10.0.0.7"},
	)
	r := dns.NewRegistry(logr.Discard(), first, second, idle)

	names := sets.New("svc1.example.com", "svc3.other.org", "ghost.example.com")
	if err := r.MoveNames(context.Background(), names, "10.0.0.2", "fd00::2"); err != nil {
		t.Fatalf("MoveNames: %v", err)
	}

	wantFirst := []dnstest.Update{{Names: []string{"svc1.example.com"}, IPv4: "10.0.0.2", IPv6: "fd00::2"}}
	if diff := cmp.Diff(wantFirst, first.Updates()); diff != "" {
		t.Errorf("first provider updates mismatch (-want +got):\n%s", diff)
	}
	wantSecond := []dnstest.Update{{Names: []string{"svc3.other.org"}, IPv4: "10.0.0.2", IPv6: "fd00::2"}}
	if diff := cmp.Diff(wantSecond, second.Updates()); diff != "" {
		t.Errorf("second provider updates mismatch (-want +got):\n%s", diff)
	}
	if len(idle.Updates()) != 0 {
		t.Errorf("expected provider owning none of the names to be skipped")
	}
}

func TestMoveNames_NoOwner(t *testing.T) {
	p := dnstest.NewProvider("p", dns.Subdomain{Name: "svc1.example.com", IPv4: "10.0.0.1"})
	r := dns.NewRegistry(logr.Discard(), p)

	for _, names := range []sets.Set[string]{sets.New[string](), sets.New("ghost.example.com")} {
		err := r.MoveNames(context.Background(), names, "10.0.0.2", "")
		if !errors.Is(err, dns.ErrNoMatchingNames) {
			t.Errorf("MoveNames(%v): expected ErrNoMatchingNames, got %v", sets.List(names), err)
		}
	}
	if len(p.Updates()) != 0 {
		t.Error("expected no updates")
	}
}

func TestMoveNames_NameCaseInsensitive(t *testing.T) {
	p := dnstest.NewProvider("p", dns.Subdomain{Name: "Shop.Example.com.", IPv4: "10.0.0.1"})
	r := dns.NewRegistry(logr.Discard(), p)

	reported := r.NamesForHost("10.0.0.1")
	if len(reported) != 1 || reported[0].Name != "shop.example.com" {
		t.Fatalf("expected the cached name to be normalized, got %+v", reported)
	}

	for _, name := range []string{reported[0].Name, "Shop.Example.com", "SHOP.example.com."} {
		if err := r.MoveNames(context.Background(), sets.New(name), "10.0.0.2", ""); err != nil {
			t.Fatalf("MoveNames(%q): %v", name, err)
		}
	}
	for _, u := range p.Updates() {
		if diff := cmp.Diff([]string{"shop.example.com"}, u.Names); diff != "" {
			t.Errorf("update names mismatch (-want +got):\n%s", diff)
		}
	}
	if n := len(p.Updates()); n != 3 {
		t.Errorf("expected 3 updates, got %d", n)
	}
}

func TestMoveNames_ProviderError(t *testing.T) {
	p := dnstest.NewProvider("p", dns.Subdomain{Name: "svc1.example.com", IPv4: "10.0.0.1"})
	p.UpdateErr = errors.New("500 from update URL")
	r := dns.NewRegistry(logr.Discard(), p)

	err := r.MoveNames(context.Background(), sets.New("svc1.example.com"), "10.0.0.2", "")
	if !errors.Is(err, dns.ErrProviderUpdate) {
		t.Fatalf("expected ErrProviderUpdate, got %v", err)
	}
}
