package ionos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/yuriy-kovalchuk/dyndns-switch/internal/dns"
)

const (
	defaultBaseURL     = "https://api.hosting.ionos.com"
	defaultDescription = "dyndns-switch"
	defaultTimeout     = 30 * time.Second
)

func init() {
	dns.Register("ionos", func(log logr.Logger, name string, settings map[string]string) (dns.Provider, error) {
		return New(log, name, settings)
	})
}

// Provider implements dns.Provider for the IONOS hosting DNS API.
type Provider struct {
	name        string
	baseURL     string
	baseHost    string
	apiKey      string
	description string
	zoneFilter  sets.Set[string]
	client      *http.Client
	log         logr.Logger

	mu    sync.RWMutex
	zones []zone

	cache atomic.Pointer[dns.Snapshot]
}

// New creates an IONOS DNS provider from the given settings map.
// Required settings: api_key.
// Optional settings: base_url (default https://api.hosting.ionos.com),
// zones (comma separated zone names to manage, default all),
// description (DynDNS bulk description), timeout (default 30s).
func New(log logr.Logger, name string, settings map[string]string) (*Provider, error) {
	apiKey := settings["api_key"]
	if apiKey == "" {
		return nil, fmt.Errorf("ionos: missing required setting 'api_key'")
	}

	baseURL := settings["base_url"]
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	parsedBase, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ionos: invalid base_url %q: %w", baseURL, err)
	}

	timeout := defaultTimeout
	if v := settings["timeout"]; v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("ionos: invalid timeout %q: %w", v, err)
		}
		timeout = parsed
	}

	description := settings["description"]
	if description == "" {
		description = defaultDescription
	}

	zoneFilter := sets.New[string]()
	for _, z := range strings.Split(settings["zones"], ",") {
		if z = dns.NormalizeName(z); z != "" {
			zoneFilter.Insert(z)
		}
	}

	if name == "" {
		name = "ionos"
	}

	p := &Provider{
		name:        name,
		baseURL:     strings.TrimRight(baseURL, "/"),
		baseHost:    parsedBase.Host,
		apiKey:      apiKey,
		description: description,
		zoneFilter:  zoneFilter,
		client:      &http.Client{Timeout: timeout},
		log:         log,
	}
	p.cache.Store(dns.NewSnapshot(nil))
	return p, nil
}

// Name returns the configured instance name.
func (p *Provider) Name() string {
	return p.name
}

// Snapshot returns the subdomains of the last successful refresh.
func (p *Provider) Snapshot() *dns.Snapshot {
	return p.cache.Load()
}

// ZoneIDs returns the identifiers of the discovered zones.
func (p *Provider) ZoneIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.zones))
	for _, z := range p.zones {
		ids = append(ids, z.ID)
	}
	return ids
}

// newRequest builds a request carrying the API key and JSON accept headers.
func (p *Provider) newRequest(ctx context.Context, method, rawURL string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ionos: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("ionos: build request: %w", err)
	}
	req.Header.Set("X-API-Key", p.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON executes a request against path below the base URL and decodes the
// response into out. Non-2xx statuses and empty bodies are errors.
func (p *Provider) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := p.newRequest(ctx, method, p.baseURL+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ionos: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ionos: %s %s: read response: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ionos: %s %s returned status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("ionos: %s %s: response was successful but empty", method, path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("ionos: %s %s: decode response: %w", method, path, err)
	}
	return nil
}

// Initialize discovers the zones managed by the API key.
func (p *Provider) Initialize(ctx context.Context) error {
	p.log.V(1).Info("discovering zones", "baseURL", p.baseURL)

	var zones []zone
	if err := p.doJSON(ctx, http.MethodGet, "dns/v1/zones", nil, &zones); err != nil {
		return fmt.Errorf("%w: %w", dns.ErrProviderInit, err)
	}

	selected := make([]zone, 0, len(zones))
	for _, z := range zones {
		if p.zoneFilter.Len() > 0 && !p.zoneFilter.Has(dns.NormalizeName(z.Name)) {
			continue
		}
		selected = append(selected, z)
	}
	if p.zoneFilter.Len() > 0 && len(selected) == 0 {
		return fmt.Errorf("%w: ionos: none of the configured zones %v found", dns.ErrProviderInit, sets.List(p.zoneFilter))
	}

	p.mu.Lock()
	p.zones = selected
	p.mu.Unlock()

	names := make([]string, 0, len(selected))
	for _, z := range selected {
		names = append(names, z.Name)
	}
	p.log.Info("zones discovered", "zones", names)
	return nil
}

// RefreshSubdomains fetches the A and AAAA records of every zone and replaces
// the cache. If any zone fails the cache is left as it was.
func (p *Provider) RefreshSubdomains(ctx context.Context) error {
	p.mu.RLock()
	zones := make([]zone, len(p.zones))
	copy(zones, p.zones)
	p.mu.RUnlock()

	var entries []dns.Entry
	for _, z := range zones {
		path := fmt.Sprintf("dns/v1/zones/%s?recordType=%s", url.PathEscape(z.ID), url.QueryEscape("A,AAAA"))
		var zr zoneResponse
		if err := p.doJSON(ctx, http.MethodGet, path, nil, &zr); err != nil {
			return fmt.Errorf("%w: zone %s: %w", dns.ErrProviderRefresh, z.Name, err)
		}
		p.log.V(1).Info("fetched zone records", "zone", z.Name, "records", len(zr.Records))
		for _, r := range zr.Records {
			entries = append(entries, r.entry())
		}
	}

	snap := dns.NewSnapshot(dns.Aggregate(p.log, entries))
	p.cache.Store(snap)
	p.log.V(1).Info("subdomain cache replaced", "subdomains", snap.Len())
	return nil
}

// ApplyBulkUpdate points names at ipv4/ipv6 using the two-phase DynDNS flow:
// first an update URL is requested for the names, then the URL is called
// with the addresses. Names missing from the cache are dropped.
func (p *Provider) ApplyBulkUpdate(ctx context.Context, names sets.Set[string], ipv4, ipv6 string) error {
	snap := p.Snapshot()
	owned := sets.New[string]()
	for name := range names {
		r, ok := snap.Lookup(name)
		if !ok {
			p.log.Info("dropping name not present in subdomain cache", "name", name)
			continue
		}
		owned.Insert(r.Name)
	}
	known := sets.List(owned)
	if len(known) == 0 {
		return fmt.Errorf("ionos: bulk update of %v: %w", sets.List(names), dns.ErrNoMatchingNames)
	}

	updateURL, err := p.requestUpdateURL(ctx, known)
	if err != nil {
		return fmt.Errorf("%w: %w", dns.ErrProviderUpdate, err)
	}
	if err := p.pushAddresses(ctx, updateURL, ipv4, ipv6); err != nil {
		return fmt.Errorf("%w: %w", dns.ErrProviderUpdate, err)
	}

	p.log.Info("bulk update applied", "names", known, "ipv4", ipv4, "ipv6", ipv6)
	return nil
}

// requestUpdateURL obtains the update handle for names.
func (p *Provider) requestUpdateURL(ctx context.Context, names []string) (string, error) {
	var result dynDNSResponse
	body := dynDNSRequest{Domains: names, Description: p.description}
	if err := p.doJSON(ctx, http.MethodPost, "dns/v1/dyndns", body, &result); err != nil {
		return "", err
	}
	if result.UpdateURL == "" {
		return "", fmt.Errorf("ionos: dyndns response carries no update URL")
	}
	p.log.V(1).Info("obtained dyndns update handle", "bulkId", result.BulkID)
	return result.UpdateURL, nil
}

// pushAddresses calls the update URL with the target addresses. The API key
// is only sent when the URL points at the API host itself.
func (p *Provider) pushAddresses(ctx context.Context, updateURL, ipv4, ipv6 string) error {
	u, err := url.Parse(updateURL)
	if err != nil {
		return fmt.Errorf("ionos: invalid update URL: %w", err)
	}
	q := u.Query()
	if ipv4 != "" {
		q.Set("ipv4", ipv4)
	}
	if ipv6 != "" {
		q.Set("ipv6", ipv6)
	}
	u.RawQuery = q.Encode()

	req, err := p.newRequest(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	if !strings.EqualFold(u.Host, p.baseHost) {
		req.Header.Del("X-API-Key")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ionos: call update URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ionos: update URL returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
