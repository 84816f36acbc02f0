package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"fedaidash/internal/core"
	"fedaidash/pkg/domain"
)

// Agency tool survey columns.
const (
	colAgencyName       = "AgencyName"
	colAbbreviation     = "Abbreviation"
	colParent           = "Parent"
	colDepartmentLevel  = "DepartmentLevelName"
	colDeploymentStatus = "DeploymentStatus_2025_11"
	colProductName      = "ProductName"
	colProductType      = "ProductType"
	colAllStaff         = "AvailableToAllStaff"
	colPilot            = "PilotOrLimited"
	colCodingFlag       = "CodingAssistantFlag"
	colSensitiveData    = "InternalOrSensitiveData"
	colCitationChicago  = "CitationChicago"
	colCitationAccessed = "CitationAccessedDate"
	colCitationURL      = "CitationURL"
)

type surveyAgency struct {
	profile core.AgencyProfile
	tools   []core.AgencyTool
}

// LoadAgencyTools replaces agency profiles and their tools from the internal
// AI tool survey. Rows are grouped into one profile per (AgencyName,
// Abbreviation); each row naming a product adds a tool to that profile.
// Profiles resolve to organizations by abbreviation, then name.
func LoadAgencyTools(ctx context.Context, store core.PersistentStore, r io.Reader) (Report, error) {
	rows, err := readRows(r)
	if err != nil {
		return Report{}, err
	}
	report := Report{Kind: KindAgencyTools, Rows: len(rows)}

	var order []string
	agencies := map[string]*surveyAgency{}
	used := map[string]bool{}
	for _, rec := range rows {
		name := rec.get(colAgencyName)
		if name == "" {
			report.Skipped++
			continue
		}
		abbr := rec.get(colAbbreviation)
		key := name + "|" + abbr
		agency, ok := agencies[key]
		if !ok {
			slug := domain.UniqueSlug(domain.Slugify(firstNonEmpty(abbr, name)), func(s string) bool { return used[s] })
			used[slug] = true
			agency = &surveyAgency{profile: core.AgencyProfile{
				AgencyName:          name,
				Abbreviation:        abbr,
				Slug:                slug,
				DepartmentLevelName: rec.get(colDepartmentLevel),
				ParentAbbreviation:  rec.get(colParent),
				DeploymentStatus:    parseDeploymentStatus(rec.get(colDeploymentStatus)),
			}}
			agencies[key] = agency
			order = append(order, key)
		}
		product := rec.get(colProductName)
		if product == "" || strings.EqualFold(product, string(domain.ProductNoneIdentified)) {
			continue
		}
		agency.tools = append(agency.tools, core.AgencyTool{
			ProductName:             product,
			ProductType:             parseProductType(rec.get(colProductType)),
			AvailableToAllStaff:     parseAvailability(rec.get(colAllStaff)),
			IsPilotOrLimited:        parsePilot(rec.get(colPilot)),
			CodingAssistantFlag:     rec.get(colCodingFlag),
			InternalOrSensitiveData: rec.get(colSensitiveData),
			CitationChicago:         rec.get(colCitationChicago),
			CitationAccessedDate:    rec.get(colCitationAccessed),
			CitationURL:             rec.get(colCitationURL),
		})
	}

	unmatched := unmatchedTracker{}
	err = replace(ctx, store, core.EntityAgencyProfile, func(tx core.Transaction) error {
		resolver := core.NewOrgResolver(tx.Snapshot().ListOrganizations())
		for _, key := range order {
			agency := agencies[key]
			profile := agency.profile
			orgID, ok := resolver.Resolve(profile.Abbreviation, profile.AgencyName)
			unmatched.add(&report, ok, profile.AgencyName)
			if ok {
				profile.OrganizationID = &orgID
			}
			created, err := tx.CreateAgencyProfile(profile)
			if err != nil {
				return err
			}
			report.Created++
			for i, tool := range agency.tools {
				tool.AgencyProfileID = created.ID
				tool.Slug = domain.Slugify(fmt.Sprintf("%s-%s-%d", created.Slug, tool.ProductName, i))
				if _, err := tx.CreateAgencyTool(tool); err != nil {
					return err
				}
				report.Created++
			}
		}
		return nil
	})
	report.TopUnmatched = unmatched.top(topUnmatchedLimit)
	return report, err
}

func parseDeploymentStatus(raw string) domain.DeploymentStatus {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "all_staff"):
		return domain.DeploymentAllStaff
	case strings.Contains(s, "pilot"), strings.Contains(s, "limited"):
		return domain.DeploymentPilot
	default:
		return domain.DeploymentNoAssistant
	}
}

func parseProductType(raw string) domain.ProductType {
	t := domain.ProductType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_"))
	switch t {
	case domain.ProductStaffChatbot, domain.ProductCodingAssistant, domain.ProductDocumentAutomation:
		return t
	}
	return domain.ProductNoneIdentified
}

// parseAvailability normalizes yes/no answers and keeps other text lowercased.
func parseAvailability(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return ""
	case s == "yes" || s == "true" || s == "1":
		return "yes"
	case s == "no" || s == "false" || s == "0":
		return "no"
	case strings.Contains(s, "subset"):
		return "subset"
	}
	return s
}

func parsePilot(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true", "1", "pilot", "limited":
		return true
	}
	return false
}
