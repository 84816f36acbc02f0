package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedaidash/internal/core"
	"fedaidash/pkg/domain"
)

const orgsCSV = "\ufeffname,short_name,abbreviation,level,parent\n" +
	"Department of Energy,Energy,DOE,Department,\n" +
	"Office of Personnel Management,,OPM,independent,\n" +
	"Office of Science,,SC,Sub Agency,DOE\n"

const toolsCSV = "AgencyName,Abbreviation,Parent,DepartmentLevelName,DeploymentStatus_2025_11,ProductName,ProductType,AvailableToAllStaff,PilotOrLimited,CitationURL\n" +
	"Department of Energy,DOE,,Department of Energy,all_staff,ChatDOE,Staff Chatbot,Yes,,https://energy.gov\n" +
	"Department of Energy,DOE,,Department of Energy,all_staff,CodeAssist,coding_assistant,subset of staff,pilot,\n" +
	"Office of Personnel Management,OPM,,,pilot,none_identified,,,,\n" +
	",,,,,,,,,\n" +
	"Ghost Agency,,,,,,,,,\n"

func newStore(t *testing.T) core.PersistentStore {
	t.Helper()
	return core.NewInMemoryService(nil).Store()
}

func seedOrganizations(t *testing.T, store core.PersistentStore) map[string]core.Organization {
	t.Helper()
	report, err := LoadOrganizations(context.Background(), store, strings.NewReader(orgsCSV))
	require.NoError(t, err)
	require.Equal(t, 3, report.Created)
	bySlug := map[string]core.Organization{}
	for _, org := range store.ListOrganizations() {
		bySlug[org.Slug] = org
	}
	return bySlug
}

func TestLoadOrganizations(t *testing.T) {
	store := newStore(t)
	orgs := seedOrganizations(t, store)

	require.Contains(t, orgs, "doe")
	assert.Equal(t, domain.LevelDepartment, orgs["doe"].Level)
	assert.Equal(t, domain.LevelSubAgency, orgs["sc"].Level)
	assert.Equal(t, "DOE", orgs["sc"].ParentRef)
	assert.True(t, orgs["opm"].IsActive)

	report, err := LoadOrganizations(context.Background(), store, strings.NewReader("name,abbreviation\nSolo,\n,X\n"))
	require.NoError(t, err)
	assert.Equal(t, Report{Kind: KindOrganizations, Rows: 2, Created: 1, Skipped: 1}, report)
	require.Len(t, store.ListOrganizations(), 1, "reload replaces the hierarchy")
}

func TestLoadAgencyTools(t *testing.T) {
	store := newStore(t)
	orgs := seedOrganizations(t, store)

	report, err := LoadAgencyTools(context.Background(), store, strings.NewReader(toolsCSV))
	require.NoError(t, err)
	want := Report{
		Kind: KindAgencyTools, Rows: 5, Created: 5, Skipped: 1,
		Matched: 2, Unmatched: 1,
		TopUnmatched: []NameCount{{Name: "Ghost Agency", Count: 1}},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}

	profiles := map[string]core.AgencyProfile{}
	for _, p := range store.ListAgencyProfiles() {
		profiles[p.Slug] = p
	}
	require.Len(t, profiles, 3)
	doe := profiles["doe"]
	require.NotNil(t, doe.OrganizationID)
	assert.Equal(t, orgs["doe"].ID, *doe.OrganizationID)
	assert.Equal(t, domain.DeploymentAllStaff, doe.DeploymentStatus)
	assert.Equal(t, 2, doe.ToolCount)
	assert.True(t, doe.HasStaffChatbot)
	assert.True(t, doe.HasCodingAssistant)
	assert.Equal(t, domain.DeploymentPilot, profiles["opm"].DeploymentStatus)
	assert.Zero(t, profiles["opm"].ToolCount)
	assert.Nil(t, profiles["ghost-agency"].OrganizationID)

	tools := map[string]core.AgencyTool{}
	for _, tool := range store.ListAgencyTools() {
		tools[tool.Slug] = tool
	}
	require.Contains(t, tools, "doe-chatdoe-0")
	require.Contains(t, tools, "doe-codeassist-1")
	assert.Equal(t, domain.ProductStaffChatbot, tools["doe-chatdoe-0"].ProductType)
	assert.Equal(t, "yes", tools["doe-chatdoe-0"].AvailableToAllStaff)
	assert.Equal(t, "subset", tools["doe-codeassist-1"].AvailableToAllStaff)
	assert.True(t, tools["doe-codeassist-1"].IsPilotOrLimited)
	assert.Equal(t, doe.ID, tools["doe-codeassist-1"].AgencyProfileID)
}

func TestLoadAgencyToolsUniqueProfileSlugs(t *testing.T) {
	store := newStore(t)
	csv := "AgencyName,Abbreviation\nNational Parks,NPS\nNational Parks Service,NPS\nNPS,\n"
	_, err := LoadAgencyTools(context.Background(), store, strings.NewReader(csv))
	require.NoError(t, err)
	var slugs []string
	for _, p := range store.ListAgencyProfiles() {
		slugs = append(slugs, p.Slug)
	}
	assert.ElementsMatch(t, []string{"nps", "nps-1", "nps-2"}, slugs)
}

func TestImportAuthorizations(t *testing.T) {
	store := newStore(t)
	orgs := seedOrganizations(t, store)
	csv := "FedRAMP ID,Parent Agency,Sub Agency,ATO Issuance Date,ATO Expiration Date\n" +
		"F1,Department of Energy,,2024-01-01,2027-01-01\n" +
		"F1,Department of Energy,,2024-01-01,2027-01-01\n" +
		"F2,Department of Energy,Office of Science,,\n" +
		"F3,Legacy JAB Authorization,,,\n" +
		"F4,Department of Magic,,,\n" +
		",Department of Energy,,,\n" +
		"F5,Department of Magic,,,\n"

	report, err := ImportAuthorizations(context.Background(), store, strings.NewReader(csv))
	require.NoError(t, err)
	want := Report{
		Kind: KindAuthorizations, Rows: 7, Created: 5, Skipped: 1, Duplicates: 1,
		Matched: 2, Unmatched: 3,
		TopUnmatched: []NameCount{
			{Name: "Department of Magic", Count: 2},
			{Name: "Legacy JAB Authorization", Count: 1},
		},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}

	byID := map[string]core.ProductAuthorization{}
	for _, a := range store.ListAuthorizations() {
		byID[a.FedRAMPID] = a
	}
	require.NotNil(t, byID["F2"].OrganizationID)
	assert.Equal(t, orgs["sc"].ID, *byID["F2"].OrganizationID, "sub agency wins over parent")
	require.NotNil(t, byID["F1"].OrganizationID)
	assert.Equal(t, orgs["doe"].ID, *byID["F1"].OrganizationID)
	assert.Nil(t, byID["F3"].OrganizationID)
	assert.Equal(t, "2027-01-01", byID["F1"].ATOExpirationDate)
}

func TestLoadUseCases(t *testing.T) {
	store := newStore(t)
	seedOrganizations(t, store)
	csv := "use_case_name,agency,agency_abbreviation,_has_llm,_providers_detected,does_this_project_include_custom_developed_code\n" +
		"Chat Helper,Department of Energy,DOE,TRUE,\"['OpenAI', 'Anthropic']\",Yes\n" +
		"Chat Helper,Department of Energy,DOE,false,[],No\n" +
		",Department of Energy,DOE,,,\n" +
		"Fraud Model,Unknown Agency,,0,,\n"

	report, err := LoadUseCases(context.Background(), store, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Created)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 1, report.Unmatched)

	bySlug := map[string]core.UseCase{}
	for _, uc := range store.ListUseCases() {
		bySlug[uc.Slug] = uc
	}
	require.Contains(t, bySlug, "doe-chat-helper")
	require.Contains(t, bySlug, "doe-chat-helper-3", "collision takes the source line")
	require.Contains(t, bySlug, "fraud-model")
	first := bySlug["doe-chat-helper"]
	assert.True(t, first.HasLLM)
	assert.True(t, first.HasCustomCode)
	assert.Equal(t, []string{"OpenAI", "Anthropic"}, first.ProvidersDetected)
	assert.Empty(t, bySlug["doe-chat-helper-3"].ProvidersDetected)
	assert.Nil(t, bySlug["fraud-model"].OrganizationID)
}

func TestLoadProductsKeepsReviewTimestamps(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	store := svc.Store()
	csv := "fedramp_id,provider_name,product_name,ai_services,has_llm\n" +
		"FR1,Acme,Cloud AI,\"Vision; Speech\",yes\n" +
		"FR2,Acme,Plain Storage,,\n" +
		",Acme,Nameless,,\n"
	report, err := LoadProducts(ctx, store, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Skipped)

	var ai core.Product
	for _, p := range store.ListProducts() {
		if p.FedRAMPID == "FR1" {
			ai = p
		}
	}
	assert.Equal(t, "acme-cloud-ai", ai.Slug)
	assert.True(t, ai.HasAI)
	assert.True(t, ai.HasLLM)
	assert.Equal(t, []string{"Vision", "Speech"}, ai.AIServices)

	_, err = store.RunInTransaction(ctx, func(tx core.Transaction) error {
		_, err := tx.UpdateProduct(ai.ID, func(p *core.Product) error {
			reviewed := ai.CreatedAt
			p.LastReviewedAt = &reviewed
			return nil
		})
		return err
	})
	require.NoError(t, err)

	_, err = LoadProducts(ctx, transactionalOnly{store}, strings.NewReader(csv))
	require.NoError(t, err)
	for _, p := range store.ListProducts() {
		if p.FedRAMPID == "FR1" {
			require.NotNil(t, p.LastReviewedAt)
		} else {
			assert.Nil(t, p.LastReviewedAt)
		}
	}
}

func TestLoadIncidents(t *testing.T) {
	store := newStore(t)
	orgs := seedOrganizations(t, store)
	csv := "title,occurred_on,agency,severity,has_llm\n" +
		"Chatbot leak,2024-05-01,Energy,high,yes\n" +
		"Chatbot leak,2024-06-01,Nowhere,low,no\n"
	report, err := LoadIncidents(context.Background(), store, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)

	bySlug := map[string]core.Incident{}
	for _, i := range store.ListIncidents() {
		bySlug[i.Slug] = i
	}
	require.Contains(t, bySlug, "chatbot-leak")
	require.Contains(t, bySlug, "chatbot-leak-1")
	require.NotNil(t, bySlug["chatbot-leak"].OrganizationID)
	assert.Equal(t, orgs["doe"].ID, *bySlug["chatbot-leak"].OrganizationID)
	assert.True(t, bySlug["chatbot-leak"].HasLLM)
}

func TestLoadDispatch(t *testing.T) {
	store := newStore(t)
	for _, kind := range Kinds() {
		parsed, err := ParseKind(string(kind))
		require.NoError(t, err)
		report, err := Load(context.Background(), store, parsed, strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, kind, report.Kind)
	}
	_, err := ParseKind("widgets")
	require.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList("['a', \"b\"]"))
	assert.Equal(t, []string{"a b", "c"}, parseList("a b; c"))
	assert.Nil(t, parseList("[]"))
	for _, v := range []string{"TRUE", "t", "Yes", "y", "1"} {
		assert.True(t, parseBool(v), v)
	}
	assert.False(t, parseBool("no"))
	assert.Equal(t, domain.ProductNoneIdentified, parseProductType("spreadsheet"))
	assert.Equal(t, domain.DeploymentNoAssistant, parseDeploymentStatus(""))
	assert.Equal(t, "", parseAvailability(""))
	assert.Equal(t, "maybe", parseAvailability("Maybe"))
	assert.Equal(t, domain.OrgLevel(""), parseLevel("galaxy"))
	assert.Equal(t, "doe-"+strings.Repeat("a", 80), useCaseSlug(strings.Repeat("a", 90), "D.O.E", 2))
	assert.Equal(t, "use-case-7", useCaseSlug("!!!", "", 7))
}
