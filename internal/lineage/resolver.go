// Package lineage resolves changed dbt models against the metadata catalog:
// catalog identity, warehouse mapping and one-hop downstream edges.
package lineage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/selectstar/dbt-impact-report-action/internal/model"
)

// BatchSize is the number of filenames sent per identity lookup. It keeps
// the lookup query string under the catalog's URL length limit.
const BatchSize = 10

// Catalog is the metadata/lineage service as seen by the resolver.
type Catalog interface {
	// FindTables returns the catalogued tables matching any of filenames.
	FindTables(ctx context.Context, filenames []string) ([]model.CatalogTable, error)
	// WarehouseMappings returns the warehouse links of a dbt model.
	WarehouseMappings(ctx context.Context, guid string) ([]model.WarehouseMapping, error)
	// PhysicalTable returns the physical table detail, or nil if it does not exist.
	PhysicalTable(ctx context.Context, guid string) (*model.WarehousePhysicalTable, error)
	// Downstream returns the one-hop downstream consumers of a node.
	Downstream(ctx context.Context, guid string) ([]model.DownstreamConsumer, error)
}

// Stats summarizes a resolution run.
type Stats struct {
	Models          int `json:"models"`
	Resolved        int `json:"resolved"`
	Unresolved      int `json:"unresolved"`
	Mappings        int `json:"mappings"`
	DroppedMappings int `json:"dropped_mappings"`
	Lookups         int `json:"lookups"`
}

// Resolver runs the three resolution passes against a Catalog.
type Resolver struct {
	catalog   Catalog
	log       *zap.Logger
	batchSize int
	stats     Stats
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for progress and warnings.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// NewResolver creates a Resolver backed by catalog.
func NewResolver(catalog Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:   catalog,
		log:       zap.NewNop(),
		batchSize: BatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns the counters of the last Resolve call.
func (r *Resolver) Stats() Stats { return r.stats }

// Resolve populates models in place. Any catalog error aborts the whole run;
// models without a catalog match are left unresolved without error.
func (r *Resolver) Resolve(ctx context.Context, models []*model.ChangedModel) error {
	r.stats = Stats{Models: len(models)}

	r.log.Info("fetching dbt model identities", zap.Int("models", len(models)))
	if err := r.resolveIdentities(ctx, models); err != nil {
		return err
	}

	r.log.Info("fetching warehouse mappings")
	if err := r.resolveMappings(ctx, models); err != nil {
		return err
	}

	r.log.Info("fetching downstream lineage")
	if err := r.resolveDownstream(ctx, models); err != nil {
		return err
	}

	for _, m := range models {
		if m.Resolved() {
			r.stats.Resolved++
		} else {
			r.stats.Unresolved++
		}
	}
	return nil
}

func (r *Resolver) resolveIdentities(ctx context.Context, models []*model.ChangedModel) error {
	for start := 0; start < len(models); start += r.batchSize {
		end := min(start+r.batchSize, len(models))
		batch := models[start:end]

		filenames := make([]string, len(batch))
		for i, m := range batch {
			filenames[i] = m.Filename()
		}

		r.log.Debug("looking up model identities", zap.Strings("filenames", filenames))
		r.stats.Lookups++
		tables, err := r.catalog.FindTables(ctx, filenames)
		if err != nil {
			return fmt.Errorf("resolving model identities: %w", err)
		}

		for _, m := range batch {
			if t, ok := matchTable(tables, m.Filename()); ok {
				m.SetGUID(t.GUID)
			}
			if !m.Resolved() {
				r.log.Info("model not found in catalog", zap.String("path", m.Path))
			}
		}
	}
	return nil
}

// matchTable picks the table for filename: one whose path ends in the file
// itself, else the first whose path contains it.
func matchTable(tables []model.CatalogTable, filename string) (model.CatalogTable, bool) {
	fallback := -1
	for i, t := range tables {
		if !t.Matches(filename) {
			continue
		}
		if t.MatchesFile(filename) {
			return t, true
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback < 0 {
		return model.CatalogTable{}, false
	}
	return tables[fallback], true
}

func (r *Resolver) resolveMappings(ctx context.Context, models []*model.ChangedModel) error {
	for _, m := range models {
		if !m.Resolved() {
			continue
		}

		r.log.Debug("looking up warehouse mappings", zap.String("guid", m.GUID()), zap.String("path", m.Path))
		r.stats.Lookups++
		links, err := r.catalog.WarehouseMappings(ctx, m.GUID())
		if err != nil {
			return fmt.Errorf("fetching warehouse mappings for %s: %w", m.Path, err)
		}

		kept := make([]model.WarehouseMapping, 0, len(links))
		for _, link := range links {
			r.stats.Lookups++
			table, err := r.catalog.PhysicalTable(ctx, link.GUID)
			if err != nil {
				return fmt.Errorf("fetching warehouse table %s for %s: %w", link.GUID, m.Path, err)
			}
			if table == nil {
				r.log.Warn("dropping warehouse mapping to missing table",
					zap.String("path", m.Path),
					zap.String("table_guid", link.GUID),
				)
				r.stats.DroppedMappings++
				continue
			}
			link.Table = table
			kept = append(kept, link)
		}
		m.Mappings = kept
		r.stats.Mappings += len(kept)
	}
	return nil
}

func (r *Resolver) resolveDownstream(ctx context.Context, models []*model.ChangedModel) error {
	for _, m := range models {
		if !m.Resolved() {
			continue
		}

		own, err := r.downstream(ctx, m.GUID())
		if err != nil {
			return fmt.Errorf("fetching lineage for %s: %w", m.Path, err)
		}
		m.Downstream = own

		first := m.FirstMapping()
		if first == nil || first.Table == nil {
			continue
		}
		mapped, err := r.downstream(ctx, first.Table.GUID)
		if err != nil {
			return fmt.Errorf("fetching lineage for warehouse table %s of %s: %w", first.Table.GUID, m.Path, err)
		}
		first.Table.Downstream = mapped
	}
	return nil
}

// downstream fetches the edges of one node, excluding self-edges.
func (r *Resolver) downstream(ctx context.Context, guid string) ([]model.DownstreamConsumer, error) {
	r.log.Debug("looking up lineage", zap.String("guid", guid))
	r.stats.Lookups++
	edges, err := r.catalog.Downstream(ctx, guid)
	if err != nil {
		return nil, err
	}

	out := make([]model.DownstreamConsumer, 0, len(edges))
	for _, e := range edges {
		if e.GUID == guid {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
