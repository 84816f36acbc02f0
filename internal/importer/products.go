package importer

import (
	"context"
	"fmt"
	"io"
	"time"

	"fedaidash/internal/core"
	"fedaidash/pkg/domain"
)

// LoadProducts replaces the FedRAMP product list. Columns: fedramp_id,
// provider_name, product_name, service_model, impact_level, status,
// ai_services, has_ai, has_llm. Marketplace headers ("FedRAMP ID", "Cloud
// Service Provider", "Cloud Service Offering", ...) are accepted as well.
// Review timestamps of products that survive the reload are kept.
func LoadProducts(ctx context.Context, store core.PersistentStore, r io.Reader) (Report, error) {
	rows, err := readRows(r)
	if err != nil {
		return Report{}, err
	}
	report := Report{Kind: KindProducts, Rows: len(rows)}
	used := map[string]bool{}
	_, err = store.RunInTransaction(ctx, func(tx core.Transaction) error {
		reviewed := map[string]*time.Time{}
		for _, p := range tx.Snapshot().ListProducts() {
			if p.LastReviewedAt != nil {
				reviewed[p.FedRAMPID] = p.LastReviewedAt
			}
		}
		if err := tx.Truncate(core.EntityProduct); err != nil {
			return err
		}
		for _, rec := range rows {
			id := rec.get("fedramp_id", colFedRAMPID)
			name := rec.get("product_name", "Cloud Service Offering")
			if id == "" || name == "" {
				report.Skipped++
				continue
			}
			provider := rec.get("provider_name", "Cloud Service Provider")
			services := parseList(rec.get("ai_services", "AI Services"))
			slug := domain.UniqueSlug(domain.Slugify(provider+" "+name), func(s string) bool { return used[s] })
			used[slug] = true
			product := core.Product{
				FedRAMPID:      id,
				ProviderName:   provider,
				ProductName:    name,
				Slug:           slug,
				ServiceModel:   rec.get("service_model", "Service Model"),
				ImpactLevel:    rec.get("impact_level", "Impact Level"),
				Status:         rec.get("status", "Status"),
				AIServices:     services,
				HasAI:          parseBool(rec.get("has_ai")) || len(services) > 0,
				HasLLM:         parseBool(rec.get("has_llm")),
				LastReviewedAt: reviewed[id],
			}
			if _, err := tx.CreateProduct(product); err != nil {
				return err
			}
			report.Created++
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("replace %s: %w", core.EntityProduct, err)
	}
	return report, nil
}

// LoadIncidents replaces the AI incident list. Columns: title, occurred_on,
// description, agency, severity, has_llm, source_url. Incidents resolve to
// organizations by agency name.
func LoadIncidents(ctx context.Context, store core.PersistentStore, r io.Reader) (Report, error) {
	rows, err := readRows(r)
	if err != nil {
		return Report{}, err
	}
	report := Report{Kind: KindIncidents, Rows: len(rows)}
	unmatched := unmatchedTracker{}
	used := map[string]bool{}
	err = replace(ctx, store, core.EntityIncident, func(tx core.Transaction) error {
		resolver := core.NewOrgResolver(tx.Snapshot().ListOrganizations())
		for _, rec := range rows {
			title := rec.get("title")
			if title == "" {
				report.Skipped++
				continue
			}
			slug := domain.UniqueSlug(domain.Slugify(title), func(s string) bool { return used[s] })
			used[slug] = true
			incident := core.Incident{
				Title:       title,
				Slug:        slug,
				OccurredOn:  rec.get("occurred_on", "date"),
				Description: rec.get("description"),
				AgencyName:  rec.get("agency", "agency_name"),
				Severity:    rec.get("severity"),
				HasLLM:      parseBool(rec.get("has_llm")),
				SourceURL:   rec.get("source_url", "url"),
			}
			if incident.AgencyName != "" {
				orgID, ok := resolver.Resolve(incident.AgencyName)
				unmatched.add(&report, ok, incident.AgencyName)
				if ok {
					incident.OrganizationID = &orgID
				}
			}
			if _, err := tx.CreateIncident(incident); err != nil {
				return err
			}
			report.Created++
		}
		return nil
	})
	report.TopUnmatched = unmatched.top(topUnmatchedLimit)
	return report, err
}
