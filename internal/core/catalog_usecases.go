package core

import (
	"strings"

	"fedaidash/pkg/domain"
)

func isChatbot(u domain.UseCase) bool {
	return u.HasChatbot || u.GeneralPurposeChatbot || u.DomainChatbot
}

func isCoding(u domain.UseCase) bool {
	return u.HasCodingAssistant || u.HasCodingAgent
}

// isCommercial holds when the use case names a commercial product or a
// detected provider, or its development approach mentions a vendor.
func isCommercial(u domain.UseCase) bool {
	if len(u.ProvidersDetected) > 0 || strings.TrimSpace(u.CommercialAIProduct) != "" {
		return true
	}
	approach := strings.ToLower(u.DevelopmentApproach)
	return strings.Contains(approach, "commercial") || strings.Contains(approach, "vendor") || strings.Contains(approach, "contract")
}

func isCustomBuilt(u domain.UseCase) bool {
	if u.HasCustomCode {
		return true
	}
	approach := strings.ToLower(u.DevelopmentApproach)
	return strings.Contains(approach, "in-house") || strings.Contains(approach, "custom")
}

// UseCaseCatalog browses the AI use case inventory.
var UseCaseCatalog = Catalog[domain.UseCase]{
	Name:         "use-cases",
	ExportPrefix: "ai-use-cases",
	SearchFields: []func(domain.UseCase) string{
		func(u domain.UseCase) string { return u.Name },
		func(u domain.UseCase) string { return u.Agency },
		func(u domain.UseCase) string { return u.AgencyAbbreviation },
		func(u domain.UseCase) string { return u.Bureau },
		func(u domain.UseCase) string { return u.TopicArea },
		func(u domain.UseCase) string { return u.IntendedPurpose },
		func(u domain.UseCase) string { return u.CommercialAIProduct },
		func(u domain.UseCase) string { return strings.Join(u.ProvidersDetected, " ") },
	},
	Filters: []FilterDef[domain.UseCase]{
		{Key: FilterGenAI, Label: "GenAI-only", Match: func(u domain.UseCase) bool { return u.HasGenAI }},
		{Key: FilterLLM, Label: "LLM-only", Match: func(u domain.UseCase) bool { return u.HasLLM }},
		{Key: FilterChatbot, Label: "chatbot", Match: isChatbot},
		{Key: FilterCoding, Label: "coding", Match: isCoding},
		{Key: FilterClassicML, Label: "classic-ML", Match: func(u domain.UseCase) bool { return u.HasClassicML }},
		{Key: FilterCommercial, Label: "commercial", Match: isCommercial},
		{Key: FilterCustomBuilt, Label: "custom-built", Match: isCustomBuilt},
	},
	SortFields: map[string]func(domain.UseCase) string{
		"name":      func(u domain.UseCase) string { return u.Name },
		"agency":    func(u domain.UseCase) string { return u.Agency },
		"stage":     func(u domain.UseCase) string { return u.Stage },
		"topic":     func(u domain.UseCase) string { return u.TopicArea },
		"initiated": func(u domain.UseCase) string { return u.DateInitiated },
	},
	DefaultSort: "name",
	Capabilities: []Capability[domain.UseCase]{
		{Name: "genai", Has: func(u domain.UseCase) bool { return u.HasGenAI }},
		{Name: "llm", Has: func(u domain.UseCase) bool { return u.HasLLM }},
		{Name: "chatbot", Has: isChatbot},
		{Name: "coding", Has: isCoding},
		{Name: "classic_ml", Has: func(u domain.UseCase) bool { return u.HasClassicML }},
	},
	Columns: []Column[domain.UseCase]{
		{Header: "Use Case", Value: func(u domain.UseCase) string { return u.Name }},
		{Header: "Agency", Value: func(u domain.UseCase) string { return u.Agency }},
		{Header: "Bureau", Value: func(u domain.UseCase) string { return u.Bureau }},
		{Header: "Topic Area", Value: func(u domain.UseCase) string { return u.TopicArea }},
		{Header: "Stage", Value: func(u domain.UseCase) string { return u.Stage }},
		{Header: "Intended Purpose", Value: func(u domain.UseCase) string { return u.IntendedPurpose }},
		{Header: "GenAI", Value: func(u domain.UseCase) string { return yesNo(u.HasGenAI) }},
		{Header: "LLM", Value: func(u domain.UseCase) string { return yesNo(u.HasLLM) }},
		{Header: "Providers", Value: func(u domain.UseCase) string { return strings.Join(u.ProvidersDetected, "; ") }},
		{Header: "Commercial Product", Value: func(u domain.UseCase) string { return u.CommercialAIProduct }},
		{Header: "Development Approach", Value: func(u domain.UseCase) string { return u.DevelopmentApproach }},
	},
	Slug: func(u domain.UseCase) string { return u.Slug },
	Attach: func(u domain.UseCase) []string {
		var refs []string
		if u.OrganizationID != nil {
			refs = append(refs, *u.OrganizationID)
		}
		return append(refs, u.Agency, u.AgencyAbbreviation)
	},
}
