package ionos

import "github.com/yuriy-kovalchuk/dyndns-switch/internal/dns"

// zone is a single entry of the zones list.
type zone struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Type string `json:"type"`
}

// zoneResponse is the shape returned by the per-zone records endpoint.
type zoneResponse struct {
	Name    string   `json:"name"`
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Records []record `json:"records"`
}

// record is a single resource record of a zone.
type record struct {
	Name       string `json:"name"`
	RootName   string `json:"rootName"`
	Type       string `json:"type"`
	Content    string `json:"content"`
	ChangeDate string `json:"changeDate"`
	TTL        int    `json:"ttl"`
	Disabled   bool   `json:"disabled"`
	ID         string `json:"id"`
}

func (r record) entry() dns.Entry {
	return dns.Entry{
		Name:       r.Name,
		RootName:   r.RootName,
		Type:       r.Type,
		Content:    r.Content,
		TTL:        r.TTL,
		Disabled:   r.Disabled,
		ID:         r.ID,
		ChangeDate: r.ChangeDate,
	}
}

// dynDNSRequest declares the names a DynDNS update URL is issued for.
type dynDNSRequest struct {
	Domains     []string `json:"domains"`
	Description string   `json:"description"`
}

// dynDNSResponse carries the update handle for a DynDNS bulk.
type dynDNSResponse struct {
	BulkID      string   `json:"bulkId"`
	UpdateURL   string   `json:"updateUrl"`
	Domains     []string `json:"domains"`
	Description string   `json:"description"`
}
