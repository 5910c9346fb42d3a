package dns

import (
	"strings"

	"github.com/go-logr/logr"
)

// NormalizeName lowercases a DNS name and strips the trailing root dot.
// e.g. "App.Example.com." → "app.example.com"
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
}

// Aggregate merges raw A/AAAA entries into one Subdomain per name, in order of
// first appearance. Names are normalized with NormalizeName, so entries that
// differ only in case or a trailing dot describe the same subdomain.
//
// Most names have two entries, one per address family. A later entry fills
// the address of its family if that is still empty; an entry for an address
// that is already set is logged and ignored, never overwriting it.
// Disabled entries and entries of other types are skipped.
func Aggregate(log logr.Logger, entries []Entry) []Subdomain {
	var out []Subdomain
	index := make(map[string]int)
	for _, e := range entries {
		if e.Disabled {
			log.V(1).Info("skipping disabled entry", "name", e.Name, "type", e.Type, "id", e.ID)
			continue
		}
		if e.Type != TypeA && e.Type != TypeAAAA {
			log.V(1).Info("skipping unsupported record type", "name", e.Name, "type", e.Type)
			continue
		}
		if e.Content == "" {
			continue
		}

		name := NormalizeName(e.Name)
		i, seen := index[name]
		if !seen {
			s := Subdomain{Name: name}
			if e.Type == TypeA {
				s.IPv4 = e.Content
			} else {
				s.IPv6 = e.Content
			}
			index[name] = len(out)
			out = append(out, s)
			continue
		}

		s := &out[i]
		switch {
		case e.Type == TypeA && s.IPv4 == "":
			s.IPv4 = e.Content
		case e.Type == TypeAAAA && s.IPv6 == "":
			s.IPv6 = e.Content
		default:
			log.Info("ignoring duplicate entry for name", "name", name, "type", e.Type, "content", e.Content, "id", e.ID)
		}
	}
	return out
}
