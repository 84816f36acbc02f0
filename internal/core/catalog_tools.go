package core

import (
	"strings"

	"fedaidash/pkg/domain"
)

// ToolRow is an agency tool joined with the profile that reported it.
type ToolRow struct {
	domain.AgencyTool
	AgencyName          string  `json:"agency_name"`
	AgencyAbbreviation  string  `json:"agency_abbreviation,omitempty"`
	AgencySlug          string  `json:"agency_slug"`
	DepartmentLevelName string  `json:"department_level_name,omitempty"`
	OrganizationID      *string `json:"organization_id,omitempty"`
}

// JoinTools attaches profile details to each tool. Tools whose profile is
// missing keep empty agency fields.
func JoinTools(tools []domain.AgencyTool, profiles []domain.AgencyProfile) []ToolRow {
	byID := make(map[string]domain.AgencyProfile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	rows := make([]ToolRow, 0, len(tools))
	for _, tool := range tools {
		row := ToolRow{AgencyTool: tool}
		if p, ok := byID[tool.AgencyProfileID]; ok {
			row.AgencyName = p.DisplayName()
			row.AgencyAbbreviation = p.Abbreviation
			row.AgencySlug = p.Slug
			row.DepartmentLevelName = p.DepartmentLevelName
			row.OrganizationID = p.OrganizationID
		}
		rows = append(rows, row)
	}
	return rows
}

func isAffirmative(v string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "yes")
}

func toolIs(kind domain.ProductType) Predicate[ToolRow] {
	return func(t ToolRow) bool { return t.ProductType == kind }
}

// ToolCatalog browses individual agency tools.
var ToolCatalog = Catalog[ToolRow]{
	Name:         "tools",
	ExportPrefix: "agency-ai-tool-list",
	SearchFields: []func(ToolRow) string{
		func(t ToolRow) string { return t.ProductName },
		func(t ToolRow) string { return t.AgencyName },
		func(t ToolRow) string { return t.AgencyAbbreviation },
		func(t ToolRow) string { return string(t.ProductType) },
	},
	Filters: []FilterDef[ToolRow]{
		{Key: FilterStaffChatbot, Label: "staff-chatbot", Match: toolIs(domain.ProductStaffChatbot)},
		{Key: FilterCodingAssistant, Label: "coding-assistant", Match: toolIs(domain.ProductCodingAssistant)},
		{Key: FilterDocumentAutomation, Label: "document-automation", Match: toolIs(domain.ProductDocumentAutomation)},
		{Key: FilterPilot, Label: "pilot", Match: func(t ToolRow) bool { return t.IsPilotOrLimited }},
		{Key: FilterSensitiveData, Label: "sensitive-data", Match: func(t ToolRow) bool { return isAffirmative(t.InternalOrSensitiveData) }},
	},
	SortFields: map[string]func(ToolRow) string{
		"name":   func(t ToolRow) string { return t.ProductName },
		"agency": func(t ToolRow) string { return t.AgencyName },
		"type":   func(t ToolRow) string { return string(t.ProductType) },
	},
	DefaultSort: "name",
	Capabilities: []Capability[ToolRow]{
		{Name: string(domain.ProductStaffChatbot), Has: toolIs(domain.ProductStaffChatbot)},
		{Name: string(domain.ProductCodingAssistant), Has: toolIs(domain.ProductCodingAssistant)},
		{Name: string(domain.ProductDocumentAutomation), Has: toolIs(domain.ProductDocumentAutomation)},
	},
	Columns: []Column[ToolRow]{
		{Header: "Product", Value: func(t ToolRow) string { return t.ProductName }},
		{Header: "Agency", Value: func(t ToolRow) string { return t.AgencyName }},
		{Header: "Type", Value: func(t ToolRow) string { return string(t.ProductType) }},
		{Header: "Available To All Staff", Value: func(t ToolRow) string { return t.AvailableToAllStaff }},
		{Header: "Pilot Or Limited", Value: func(t ToolRow) string { return yesNo(t.IsPilotOrLimited) }},
		{Header: "Internal Or Sensitive Data", Value: func(t ToolRow) string { return t.InternalOrSensitiveData }},
		{Header: "Citation", Value: func(t ToolRow) string { return t.CitationChicago }},
		{Header: "Source URL", Value: func(t ToolRow) string { return t.CitationURL }},
	},
	Slug: func(t ToolRow) string { return t.Slug },
	Attach: func(t ToolRow) []string {
		var refs []string
		if t.OrganizationID != nil {
			refs = append(refs, *t.OrganizationID)
		}
		return append(refs, t.AgencyName, t.AgencyAbbreviation, t.DepartmentLevelName)
	},
}
