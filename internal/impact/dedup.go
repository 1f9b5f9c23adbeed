// Package impact merges the downstream edges of a dbt model and of its mapped
// warehouse table into one canonical, duplicate-free impact set.
package impact

import "github.com/selectstar/dbt-impact-report-action/internal/model"

// canonicalSet maps consumer identity to its admitted entry while keeping
// admission order.
type canonicalSet struct {
	index   map[string]int
	entries []model.ImpactEntry
}

func newCanonicalSet(capacity int) *canonicalSet {
	return &canonicalSet{
		index:   make(map[string]int, capacity),
		entries: make([]model.ImpactEntry, 0, capacity),
	}
}

func (s *canonicalSet) has(guid string) bool {
	_, ok := s.index[guid]
	return ok
}

func (s *canonicalSet) admit(c model.DownstreamConsumer) {
	s.index[c.GUID] = len(s.entries)
	s.entries = append(s.entries, model.ImpactEntry{Consumer: c})
}

// annotate records dataSourceType as the secondary tag of an admitted entry.
// The first tag recorded for an entry is kept.
func (s *canonicalSet) annotate(guid, dataSourceType string) {
	i := s.index[guid]
	if s.entries[i].SecondaryDataSourceType == "" {
		s.entries[i].SecondaryDataSourceType = dataSourceType
	}
}

// Dedup merges a model's own downstream consumers with its mapped table's
// downstream consumers.
//
// dbt consumers are admitted first, one per identity. Every other consumer
// whose identity is not yet admitted collapses into the first admitted entry
// named by its linked objects, tagging it with its data-source type;
// consumers with no such link are admitted standalone. Entries are returned
// in admission order. Inputs are never modified.
func Dedup(own, mapped []model.DownstreamConsumer) []model.ImpactEntry {
	all := make([]model.DownstreamConsumer, 0, len(own)+len(mapped))
	all = append(all, own...)
	all = append(all, mapped...)

	set := newCanonicalSet(len(all))

	for _, c := range all {
		if c.IsCatalog() && !set.has(c.GUID) {
			set.admit(c)
		}
	}

	for _, c := range all {
		if c.IsCatalog() || set.has(c.GUID) {
			continue
		}
		if linked, ok := firstAdmitted(set, c.LinkedObjects); ok {
			set.annotate(linked, c.DataSourceType)
			continue
		}
		set.admit(c)
	}

	return set.entries
}

func firstAdmitted(set *canonicalSet, guids []string) (string, bool) {
	for _, g := range guids {
		if set.has(g) {
			return g, true
		}
	}
	return "", false
}

// Merge computes the canonical impact set of m from its own downstream
// consumers and those of its first warehouse mapping, and stores it in
// m.Impacts. Unresolved models are left untouched.
func Merge(m *model.ChangedModel) {
	if !m.Resolved() {
		return
	}
	m.Impacts = Dedup(m.Downstream, m.MappedDownstream())
}

// MergeAll applies Merge to every model.
func MergeAll(models []*model.ChangedModel) {
	for _, m := range models {
		Merge(m)
	}
}

// Consumers returns the consumers of entries, dropping secondary tags.
func Consumers(entries []model.ImpactEntry) []model.DownstreamConsumer {
	out := make([]model.DownstreamConsumer, len(entries))
	for i, e := range entries {
		out[i] = e.Consumer
	}
	return out
}
