package core

import "fedaidash/pkg/domain"

// IncidentCatalog browses AI incidents.
var IncidentCatalog = Catalog[domain.Incident]{
	Name:         "incidents",
	ExportPrefix: "ai-incidents",
	SearchFields: []func(domain.Incident) string{
		func(i domain.Incident) string { return i.Title },
		func(i domain.Incident) string { return i.AgencyName },
		func(i domain.Incident) string { return i.Description },
	},
	Filters: []FilterDef[domain.Incident]{
		{Key: FilterLLM, Label: "LLM-only", Match: func(i domain.Incident) bool { return i.HasLLM }},
	},
	SortFields: map[string]func(domain.Incident) string{
		"name":     func(i domain.Incident) string { return i.Title },
		"date":     func(i domain.Incident) string { return i.OccurredOn },
		"agency":   func(i domain.Incident) string { return i.AgencyName },
		"severity": func(i domain.Incident) string { return i.Severity },
	},
	DefaultSort: "date",
	Capabilities: []Capability[domain.Incident]{
		{Name: "llm", Has: func(i domain.Incident) bool { return i.HasLLM }},
	},
	Columns: []Column[domain.Incident]{
		{Header: "Title", Value: func(i domain.Incident) string { return i.Title }},
		{Header: "Date", Value: func(i domain.Incident) string { return i.OccurredOn }},
		{Header: "Agency", Value: func(i domain.Incident) string { return i.AgencyName }},
		{Header: "Severity", Value: func(i domain.Incident) string { return i.Severity }},
		{Header: "Involves LLM", Value: func(i domain.Incident) string { return yesNo(i.HasLLM) }},
		{Header: "Description", Value: func(i domain.Incident) string { return i.Description }},
		{Header: "Source URL", Value: func(i domain.Incident) string { return i.SourceURL }},
	},
	Slug: func(i domain.Incident) string { return i.Slug },
	Attach: func(i domain.Incident) []string {
		var refs []string
		if i.OrganizationID != nil {
			refs = append(refs, *i.OrganizationID)
		}
		return append(refs, i.AgencyName)
	},
}
