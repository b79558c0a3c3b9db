package handlers

// Handlers groups the HTTP endpoints for miniatures, the taxonomy, the
// catalog, and the audit trail. It depends on abstract service interfaces to
// keep transport concerns separate from business logic.
type Handlers struct {
	miniatures MiniatureService
	taxonomy   TaxonomyService
	catalog    CatalogService
	history    HistoryService
}

// New constructs a Handlers instance bound to the given services.
func New(miniatures MiniatureService, taxonomy TaxonomyService, catalog CatalogService, history HistoryService) *Handlers {
	return &Handlers{
		miniatures: miniatures,
		taxonomy:   taxonomy,
		catalog:    catalog,
		history:    history,
	}
}
