package core

import (
	"strings"
	"time"

	"fedaidash/pkg/domain"
)

// ProductCatalog browses FedRAMP marketplace products.
var ProductCatalog = Catalog[domain.Product]{
	Name:         "products",
	ExportPrefix: "fedramp-products",
	SearchFields: []func(domain.Product) string{
		func(p domain.Product) string { return p.ProductName },
		func(p domain.Product) string { return p.ProviderName },
		func(p domain.Product) string { return p.FedRAMPID },
		func(p domain.Product) string { return strings.Join(p.AIServices, " ") },
	},
	Filters: []FilterDef[domain.Product]{
		{Key: FilterAI, Label: "AI-only", Match: func(p domain.Product) bool { return p.HasAI }},
		{Key: FilterLLM, Label: "LLM-only", Match: func(p domain.Product) bool { return p.HasLLM }},
		{Key: FilterUnreviewed, Label: "unreviewed", Match: func(p domain.Product) bool { return p.LastReviewedAt == nil }},
	},
	SortFields: map[string]func(domain.Product) string{
		"name":     func(p domain.Product) string { return p.ProductName },
		"provider": func(p domain.Product) string { return p.ProviderName },
		"status":   func(p domain.Product) string { return p.Status },
		"impact":   func(p domain.Product) string { return p.ImpactLevel },
		"reviewed": func(p domain.Product) string { return reviewedAt(p) },
	},
	DefaultSort: "name",
	Capabilities: []Capability[domain.Product]{
		{Name: "ai", Has: func(p domain.Product) bool { return p.HasAI }},
		{Name: "llm", Has: func(p domain.Product) bool { return p.HasLLM }},
	},
	Columns: []Column[domain.Product]{
		{Header: "FedRAMP ID", Value: func(p domain.Product) string { return p.FedRAMPID }},
		{Header: "Provider", Value: func(p domain.Product) string { return p.ProviderName }},
		{Header: "Product", Value: func(p domain.Product) string { return p.ProductName }},
		{Header: "Service Model", Value: func(p domain.Product) string { return p.ServiceModel }},
		{Header: "Impact Level", Value: func(p domain.Product) string { return p.ImpactLevel }},
		{Header: "Status", Value: func(p domain.Product) string { return p.Status }},
		{Header: "AI Services", Value: func(p domain.Product) string { return strings.Join(p.AIServices, "; ") }},
		{Header: "Has LLM", Value: func(p domain.Product) string { return yesNo(p.HasLLM) }},
		{Header: "Last Reviewed", Value: reviewedAt},
	},
	Slug: func(p domain.Product) string { return p.Slug },
}

func reviewedAt(p domain.Product) string {
	if p.LastReviewedAt == nil {
		return ""
	}
	return p.LastReviewedAt.UTC().Format(time.DateOnly)
}
