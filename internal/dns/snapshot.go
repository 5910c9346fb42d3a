package dns

// Snapshot is an immutable, ordered set of subdomains with at most one record
// per name. Providers build a new Snapshot on every refresh instead of
// modifying the current one.
type Snapshot struct {
	records []Subdomain
	index   map[string]int
}

// NewSnapshot builds a snapshot from records, keeping their order. Names are
// stored normalized. Invalid records are dropped and for duplicate names the
// first record wins.
func NewSnapshot(records []Subdomain) *Snapshot {
	s := &Snapshot{
		records: make([]Subdomain, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}
	for _, r := range records {
		if !r.Valid() {
			continue
		}
		r.Name = NormalizeName(r.Name)
		if _, dup := s.index[r.Name]; dup {
			continue
		}
		s.index[r.Name] = len(s.records)
		s.records = append(s.records, r)
	}
	return s
}

// Lookup returns the record for name, compared after normalization.
func (s *Snapshot) Lookup(name string) (Subdomain, bool) {
	if s == nil {
		return Subdomain{}, false
	}
	i, ok := s.index[NormalizeName(name)]
	if !ok {
		return Subdomain{}, false
	}
	return s.records[i], true
}

// Has reports whether name is cached.
func (s *Snapshot) Has(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Records returns a copy of the cached records in order.
func (s *Snapshot) Records() []Subdomain {
	if s == nil {
		return nil
	}
	out := make([]Subdomain, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of cached records.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}
