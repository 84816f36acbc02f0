package core

import (
	"strconv"

	"fedaidash/pkg/domain"
)

func profileAttach(p domain.AgencyProfile) []string {
	var refs []string
	if p.OrganizationID != nil {
		refs = append(refs, *p.OrganizationID)
	}
	return append(refs, p.AgencyName, p.Abbreviation, p.DepartmentLevelName)
}

// AgencyCatalog browses agency AI profiles.
var AgencyCatalog = Catalog[domain.AgencyProfile]{
	Name:         "agencies",
	ExportPrefix: "agency-ai-tools",
	SearchFields: []func(domain.AgencyProfile) string{
		func(p domain.AgencyProfile) string { return p.AgencyName },
		func(p domain.AgencyProfile) string { return p.Abbreviation },
		func(p domain.AgencyProfile) string { return p.DepartmentLevelName },
		func(p domain.AgencyProfile) string { return p.Notes },
	},
	Filters: []FilterDef[domain.AgencyProfile]{
		{Key: FilterStaffChatbot, Label: "staff-chatbot", Match: func(p domain.AgencyProfile) bool { return p.HasStaffChatbot }},
		{Key: FilterCodingAssistant, Label: "coding-assistant", Match: func(p domain.AgencyProfile) bool { return p.HasCodingAssistant }},
		{Key: FilterDocumentAutomation, Label: "document-automation", Match: func(p domain.AgencyProfile) bool { return p.HasDocumentAutomation }},
		{Key: FilterAllStaff, Label: "all-staff", Match: func(p domain.AgencyProfile) bool { return p.DeploymentStatus == domain.DeploymentAllStaff }},
		{Key: FilterPilot, Label: "pilot", Match: func(p domain.AgencyProfile) bool { return p.DeploymentStatus == domain.DeploymentPilot }},
		{Key: FilterNoAssistant, Label: "no-assistant", Match: func(p domain.AgencyProfile) bool { return p.DeploymentStatus == domain.DeploymentNoAssistant }},
	},
	SortFields: map[string]func(domain.AgencyProfile) string{
		"name":         domain.AgencyProfile.DisplayName,
		"abbreviation": func(p domain.AgencyProfile) string { return p.Abbreviation },
		"department":   func(p domain.AgencyProfile) string { return p.DepartmentLevelName },
		"status":       func(p domain.AgencyProfile) string { return string(p.DeploymentStatus) },
		"tools":        func(p domain.AgencyProfile) string { return SortNumber(p.ToolCount) },
	},
	DefaultSort: "name",
	Capabilities: []Capability[domain.AgencyProfile]{
		{Name: string(domain.ProductStaffChatbot), Has: func(p domain.AgencyProfile) bool { return p.HasStaffChatbot }},
		{Name: string(domain.ProductCodingAssistant), Has: func(p domain.AgencyProfile) bool { return p.HasCodingAssistant }},
		{Name: string(domain.ProductDocumentAutomation), Has: func(p domain.AgencyProfile) bool { return p.HasDocumentAutomation }},
	},
	Columns: []Column[domain.AgencyProfile]{
		{Header: "Agency", Value: domain.AgencyProfile.DisplayName},
		{Header: "Abbreviation", Value: func(p domain.AgencyProfile) string { return p.Abbreviation }},
		{Header: "Department", Value: func(p domain.AgencyProfile) string { return p.DepartmentLevelName }},
		{Header: "Deployment Status", Value: func(p domain.AgencyProfile) string { return string(p.DeploymentStatus) }},
		{Header: "Tool Count", Value: func(p domain.AgencyProfile) string { return strconv.Itoa(p.ToolCount) }},
		{Header: "Staff Chatbot", Value: func(p domain.AgencyProfile) string { return yesNo(p.HasStaffChatbot) }},
		{Header: "Coding Assistant", Value: func(p domain.AgencyProfile) string { return yesNo(p.HasCodingAssistant) }},
		{Header: "Document Automation", Value: func(p domain.AgencyProfile) string { return yesNo(p.HasDocumentAutomation) }},
		{Header: "Notes", Value: func(p domain.AgencyProfile) string { return p.Notes }},
	},
	Slug:   func(p domain.AgencyProfile) string { return p.Slug },
	Attach: profileAttach,
}
