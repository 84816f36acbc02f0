package core

import (
	"context"
	"net/url"
)

// Collection binds a catalog to the records it browses.
type Collection[T any] struct {
	svc     *Service
	entity  EntityType
	catalog Catalog[T]
	load    func(TransactionView) []T
}

// Agencies browses agency profiles.
func (s *Service) Agencies() Collection[AgencyProfile] {
	return Collection[AgencyProfile]{svc: s, entity: EntityAgencyProfile, catalog: AgencyCatalog, load: TransactionView.ListAgencyProfiles}
}

// Tools browses agency tools joined with their profiles.
func (s *Service) Tools() Collection[ToolRow] {
	return Collection[ToolRow]{svc: s, entity: EntityAgencyTool, catalog: ToolCatalog, load: func(view TransactionView) []ToolRow {
		return JoinTools(view.ListAgencyTools(), view.ListAgencyProfiles())
	}}
}

// Products browses FedRAMP products.
func (s *Service) Products() Collection[Product] {
	return Collection[Product]{svc: s, entity: EntityProduct, catalog: ProductCatalog, load: TransactionView.ListProducts}
}

// Incidents browses AI incidents.
func (s *Service) Incidents() Collection[Incident] {
	return Collection[Incident]{svc: s, entity: EntityIncident, catalog: IncidentCatalog, load: TransactionView.ListIncidents}
}

// UseCases browses the use case inventory.
func (s *Service) UseCases() Collection[UseCase] {
	return Collection[UseCase]{svc: s, entity: EntityUseCase, catalog: UseCaseCatalog, load: TransactionView.ListUseCases}
}

// Name returns the collection's URL name.
func (c Collection[T]) Name() string { return c.catalog.Name }

// Catalog returns the collection's catalog.
func (c Collection[T]) Catalog() Catalog[T] { return c.catalog }

// ViewConfig returns the URL defaults for the collection.
func (c Collection[T]) ViewConfig() ViewConfig { return c.catalog.ViewConfig() }

// ListResult is one rendered browse view. Exactly one of Page and Tree is
// set, depending on the view mode. Stats cover every record that passed the
// filter, attached or not. Results may be shared through the cache and must
// not be modified.
type ListResult[T any] struct {
	Collection string          `json:"collection"`
	State      ViewState       `json:"state"`
	Query      string          `json:"query"`
	Filters    []FilterKey     `json:"filters"`
	SortFields []string        `json:"sort_fields"`
	Page       *Page[T]        `json:"page,omitempty"`
	Tree       *Page[*Node[T]] `json:"tree,omitempty"`
	Unattached []T             `json:"unattached,omitempty"`
	Stats      AggregatedStats `json:"stats"`
}

// Browse decodes URL parameters and renders the view.
func (c Collection[T]) Browse(ctx context.Context, values url.Values) (ListResult[T], error) {
	return c.BrowseState(ctx, DecodeViewState(values, c.ViewConfig()))
}

// Apply hydrates a synchronizer from values, dispatches actions in order and
// renders the resulting view. The result's Query is the canonical URL after
// the last action.
func (c Collection[T]) Apply(ctx context.Context, values url.Values, actions ...ViewAction) (ListResult[T], error) {
	sync := NewSynchronizer(c.ViewConfig(), nil)
	sync.Hydrate(values)
	for _, action := range actions {
		sync.Dispatch(action)
	}
	return c.BrowseState(ctx, sync.State())
}

// BrowseState renders the view for state.
func (c Collection[T]) BrowseState(ctx context.Context, state ViewState) (ListResult[T], error) {
	cfg := c.ViewConfig()
	if state.View == ViewHierarchy && !c.catalog.Hierarchical() {
		state.View = ViewList
	}
	key := c.catalog.Name + "?" + state.Encode(cfg).Encode()
	var out ListResult[T]
	err := c.svc.run(ctx, "browse_"+c.catalog.Name, func(ctx context.Context) error {
		c.svc.refresh(ctx)
		gen := c.svc.cacheGeneration()
		if hit, ok := c.svc.cached(key); ok {
			if res, ok := hit.(ListResult[T]); ok {
				out = res
				return nil
			}
		}
		err := c.svc.store.View(ctx, func(view TransactionView) error {
			out = c.render(view, state, cfg)
			return nil
		})
		if err != nil {
			return err
		}
		c.svc.remember(gen, key, out)
		return nil
	})
	return out, err
}

func (c Collection[T]) render(view TransactionView, state ViewState, cfg ViewConfig) ListResult[T] {
	records := c.load(view)
	res := ListResult[T]{
		Collection: c.catalog.Name,
		Filters:    cfg.Filters,
		SortFields: cfg.SortFields,
	}
	matched := Filter(records, state.Query, state.Filter, c.catalog)
	res.Stats = Summarize(matched, c.catalog.Capabilities)

	if state.View == ViewHierarchy {
		roots, unattached := c.forest(view, records, state)
		tree := Paginate(roots, state.Page, state.PerPage)
		res.Tree = &tree
		res.Unattached = unattached
		state.Page = tree.Page
	} else {
		page := Paginate(Sort(matched, state.Sort, state.Dir, c.catalog), state.Page, state.PerPage)
		res.Page = &page
		state.Page = page.Page
	}
	res.State = state
	res.Query = state.Encode(cfg).Encode()
	return res
}

// forest builds, filters and sorts the hierarchy for state and returns the
// surviving roots along with the matching records no organization claimed.
func (c Collection[T]) forest(view TransactionView, records []T, state ViewState) ([]*Node[T], []T) {
	forest := BuildForest(view.ListOrganizations(), records, c.catalog.Attach)
	roots := FilterForest(forest.Roots, state.Query, state.Filter, c.catalog)
	nodeField := NodeSortName
	if state.Sort == NodeSortCount {
		nodeField = NodeSortCount
	}
	roots = SortForest(roots, nodeField, state.Dir, c.catalog, state.Sort)
	unattached := Sort(Filter(forest.Unattached, state.Query, state.Filter, c.catalog), state.Sort, state.Dir, c.catalog)
	return roots, unattached
}

// Detail returns the record with the given slug.
func (c Collection[T]) Detail(ctx context.Context, slug string) (T, error) {
	var out T
	err := c.svc.run(ctx, "detail_"+c.catalog.Name, func(ctx context.Context) error {
		c.svc.refresh(ctx)
		return c.svc.store.View(ctx, func(view TransactionView) error {
			for _, record := range c.load(view) {
				if c.catalog.Slug(record) == slug {
					out = record
					return nil
				}
			}
			return ErrNotFound{Entity: c.entity, ID: slug}
		})
	})
	return out, err
}

// Export renders every record of the current filtered view, ignoring
// pagination. Hierarchy views add department and organization columns and
// list unattached records last with those columns empty.
func (c Collection[T]) Export(ctx context.Context, values url.Values, format ExportFormat) (ExportFile, error) {
	state := DecodeViewState(values, c.ViewConfig())
	var out ExportFile
	err := c.svc.run(ctx, "export_"+c.catalog.Name, func(ctx context.Context) error {
		c.svc.refresh(ctx)
		var headers []string
		var rows []map[string]string
		err := c.svc.store.View(ctx, func(view TransactionView) error {
			records := c.load(view)
			if state.View == ViewHierarchy && c.catalog.Hierarchical() {
				roots, unattached := c.forest(view, records, state)
				headers, rows = FlattenForest(roots, c.catalog.Columns)
				_, rest := Rows(unattached, c.catalog.Columns)
				rows = append(rows, rest...)
				return nil
			}
			matched := Sort(Filter(records, state.Query, state.Filter, c.catalog), state.Sort, state.Dir, c.catalog)
			headers, rows = Rows(matched, c.catalog.Columns)
			return nil
		})
		if err != nil {
			return err
		}
		out = ExportFile{
			Filename:    ExportFilename(c.catalog.ExportPrefix, c.catalog.FilterLabel(state.Filter), c.svc.clock.Now(), format),
			ContentType: format.ContentType(),
			Body:        format.Render(rows, headers),
			Rows:        len(rows),
		}
		return nil
	})
	return out, err
}
