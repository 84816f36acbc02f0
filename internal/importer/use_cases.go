package importer

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"fedaidash/internal/core"
	"fedaidash/pkg/domain"
)

// Inventory columns whose names are the survey questions.
const (
	colIntendedPurpose  = "what_is_the_intended_purpose_and_expected_benefits_of_the_ai"
	colOutputs          = "describe_the_ai_system_s_outputs"
	colRightsSafety     = "is_the_ai_use_case_rights_impacting_safety_impacting_both_or_neither"
	colCommercialAI     = "is_the_ai_use_case_found_in_the_below_list_of_general_commercial_ai_products_and_services"
	colDevelopment      = "was_the_ai_system_involved_in_this_use_case_developed_or_is_it_to_be_developed_under_contract_s_or_in_house"
	colCustomCode       = "does_this_project_include_custom_developed_code"
	maxUseCaseSlugChars = 80
)

var nonWord = regexp.MustCompile(`\W`)

// useCaseSlug prefixes the slugified, length-capped name with the agency
// abbreviation. A blank name falls back to use-case-<line>.
func useCaseSlug(name, abbr string, line int) string {
	slug := domain.Slugify(name)
	if slug == "" {
		slug = "use-case-" + strconv.Itoa(line)
	}
	if len(slug) > maxUseCaseSlugChars {
		slug = strings.Trim(slug[:maxUseCaseSlugChars], "-")
	}
	if prefix := nonWord.ReplaceAllString(strings.ToLower(abbr), ""); prefix != "" {
		slug = prefix + "-" + slug
	}
	return slug
}

// LoadUseCases replaces the AI use case inventory. Rows without a name or
// agency are skipped. A slug collision appends the source line number.
func LoadUseCases(ctx context.Context, store core.PersistentStore, r io.Reader) (Report, error) {
	rows, err := readRows(r)
	if err != nil {
		return Report{}, err
	}
	report := Report{Kind: KindUseCases, Rows: len(rows)}
	unmatched := unmatchedTracker{}
	used := map[string]bool{}
	err = replace(ctx, store, core.EntityUseCase, func(tx core.Transaction) error {
		resolver := core.NewOrgResolver(tx.Snapshot().ListOrganizations())
		for _, rec := range rows {
			name := rec.get("use_case_name")
			agency := rec.get("agency")
			if name == "" || agency == "" {
				report.Skipped++
				continue
			}
			abbr := rec.get("agency_abbreviation")
			slug := useCaseSlug(name, abbr, rec.line)
			if used[slug] {
				slug = fmt.Sprintf("%s-%d", slug, rec.line)
			}
			slug = domain.UniqueSlug(slug, func(s string) bool { return used[s] })
			used[slug] = true

			uc := core.UseCase{
				Name:                  name,
				Slug:                  slug,
				Agency:                agency,
				AgencyAbbreviation:    abbr,
				Bureau:                rec.get("bureau"),
				TopicArea:             firstNonEmpty(rec.get("use_case_topic_area"), rec.get("other_use_case_topic_area")),
				IntendedPurpose:       rec.get(colIntendedPurpose),
				Outputs:               rec.get(colOutputs),
				Stage:                 rec.get("stage_of_development"),
				RightsSafetyImpacting: rec.get(colRightsSafety),
				DomainCategory:        rec.get("_domain_category"),
				DateInitiated:         rec.get("date_initiated"),
				DateImplemented:       rec.get("date_implemented"),
				DateRetired:           rec.get("date_retired"),
				HasLLM:                parseBool(rec.get("_has_llm")),
				HasGenAI:              parseBool(rec.get("_has_genai_signal")) || parseBool(rec.get("_genai_flag")),
				HasChatbot:            parseBool(rec.get("_has_chatbot")),
				HasCodingAssistant:    parseBool(rec.get("_has_coding_assistant")) || parseBool(rec.get("_coding_assistant")),
				HasCodingAgent:        parseBool(rec.get("_has_coding_agent")) || parseBool(rec.get("_coding_agent")),
				HasClassicML:          parseBool(rec.get("_has_classic_ml")) || parseBool(rec.get("_ai_type_classic_ml")),
				HasRPA:                parseBool(rec.get("_has_rpa")),
				HasRules:              parseBool(rec.get("_has_rules")),
				GeneralPurposeChatbot: parseBool(rec.get("_general_purpose_chatbot")),
				DomainChatbot:         parseBool(rec.get("_domain_chatbot")),
				ProvidersDetected:     parseList(rec.get("_providers_detected")),
				CommercialAIProduct:   rec.get(colCommercialAI),
				DevelopmentApproach:   rec.get(colDevelopment),
				HasCustomCode:         parseBool(rec.get(colCustomCode)),
			}
			orgID, ok := resolver.Resolve(abbr, agency)
			unmatched.add(&report, ok, agency)
			if ok {
				uc.OrganizationID = &orgID
			}
			if _, err := tx.CreateUseCase(uc); err != nil {
				return err
			}
			report.Created++
		}
		return nil
	})
	report.TopUnmatched = unmatched.top(topUnmatchedLimit)
	return report, err
}
