// Package domain defines the persistent records, value types, and rule
// evaluation primitives used by fedaidash.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityOrganization identifies a federal organization node.
	EntityOrganization EntityType = "organization"
	// EntityAgencyProfile identifies an agency AI profile.
	EntityAgencyProfile EntityType = "agency_profile"
	// EntityAgencyTool identifies an internal AI tool reported by an agency.
	EntityAgencyTool EntityType = "agency_tool"
	// EntityProduct identifies a FedRAMP marketplace product.
	EntityProduct EntityType = "product"
	// EntityAuthorization identifies a product authorization (ATO) issued by an agency.
	EntityAuthorization EntityType = "product_authorization"
	// EntityIncident identifies an AI-related incident.
	EntityIncident EntityType = "incident"
	// EntityUseCase identifies an AI use case inventory entry.
	EntityUseCase EntityType = "use_case"
)

// OrgLevel positions an organization within the federal hierarchy.
type OrgLevel string

// Canonical organization levels.
const (
	LevelDepartment  OrgLevel = "department"
	LevelIndependent OrgLevel = "independent"
	LevelSubAgency   OrgLevel = "sub_agency"
	LevelOffice      OrgLevel = "office"
	LevelComponent   OrgLevel = "component"
)

// Valid reports whether the level is one of the canonical values.
func (l OrgLevel) Valid() bool {
	switch l {
	case LevelDepartment, LevelIndependent, LevelSubAgency, LevelOffice, LevelComponent:
		return true
	}
	return false
}

// DeploymentStatus summarizes how widely an agency deployed an internal assistant.
type DeploymentStatus string

// Deployment statuses reported in the agency tool survey.
const (
	DeploymentAllStaff    DeploymentStatus = "all_staff"
	DeploymentPilot       DeploymentStatus = "pilot_or_limited"
	DeploymentNoAssistant DeploymentStatus = "no_public_internal_assistant"
)

// ProductType classifies an agency tool.
type ProductType string

// Tool product types.
const (
	ProductStaffChatbot       ProductType = "staff_chatbot"
	ProductCodingAssistant    ProductType = "coding_assistant"
	ProductDocumentAutomation ProductType = "document_automation"
	ProductNoneIdentified     ProductType = "none_identified"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Organization is one department, agency, sub-agency, office or component.
// ParentRef names the parent by abbreviation or name; empty means top level.
type Organization struct {
	Base
	Name         string   `json:"name"`
	ShortName    string   `json:"short_name,omitempty"`
	Abbreviation string   `json:"abbreviation,omitempty"`
	Slug         string   `json:"slug"`
	Level        OrgLevel `json:"level"`
	ParentRef    string   `json:"parent_ref,omitempty"`
	IsActive     bool     `json:"is_active"`
}

// AgencyProfile summarizes one agency's internal AI tool adoption. The tool
// counters are derived from the agency's tools by the store and never stored
// independently.
type AgencyProfile struct {
	Base
	AgencyName            string           `json:"agency_name"`
	Abbreviation          string           `json:"abbreviation,omitempty"`
	Slug                  string           `json:"slug"`
	DepartmentLevelName   string           `json:"department_level_name,omitempty"`
	ParentAbbreviation    string           `json:"parent_abbreviation,omitempty"`
	DeploymentStatus      DeploymentStatus `json:"deployment_status"`
	OrganizationID        *string          `json:"organization_id,omitempty"`
	Notes                 string           `json:"notes,omitempty"`
	ToolCount             int              `json:"tool_count"`
	HasStaffChatbot       bool             `json:"has_staff_chatbot"`
	HasCodingAssistant    bool             `json:"has_coding_assistant"`
	HasDocumentAutomation bool             `json:"has_document_automation"`
}

// DisplayName prefers the agency name and falls back to the abbreviation.
func (p AgencyProfile) DisplayName() string {
	if strings.TrimSpace(p.AgencyName) != "" {
		return p.AgencyName
	}
	return p.Abbreviation
}

// AgencyTool is a single internal AI product an agency reported using.
type AgencyTool struct {
	Base
	AgencyProfileID         string      `json:"agency_profile_id"`
	ProductName             string      `json:"product_name"`
	ProductType             ProductType `json:"product_type"`
	Slug                    string      `json:"slug"`
	AvailableToAllStaff     string      `json:"available_to_all_staff,omitempty"`
	IsPilotOrLimited        bool        `json:"is_pilot_or_limited"`
	CodingAssistantFlag     string      `json:"coding_assistant_flag,omitempty"`
	InternalOrSensitiveData string      `json:"internal_or_sensitive_data,omitempty"`
	CitationChicago         string      `json:"citation_chicago,omitempty"`
	CitationAccessedDate    string      `json:"citation_accessed_date,omitempty"`
	CitationURL             string      `json:"citation_url,omitempty"`
}

// Product is a FedRAMP marketplace cloud offering.
type Product struct {
	Base
	FedRAMPID      string     `json:"fedramp_id"`
	ProviderName   string     `json:"provider_name"`
	ProductName    string     `json:"product_name"`
	Slug           string     `json:"slug"`
	ServiceModel   string     `json:"service_model,omitempty"`
	ImpactLevel    string     `json:"impact_level,omitempty"`
	Status         string     `json:"status,omitempty"`
	AIServices     []string   `json:"ai_services,omitempty"`
	HasAI          bool       `json:"has_ai"`
	HasLLM         bool       `json:"has_llm"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
}

// ProductAuthorization links a FedRAMP product to the agency that issued an ATO.
type ProductAuthorization struct {
	Base
	FedRAMPID         string  `json:"fedramp_id"`
	OrganizationID    *string `json:"organization_id,omitempty"`
	ParentAgencyName  string  `json:"parent_agency_name"`
	SubAgencyName     string  `json:"sub_agency_name,omitempty"`
	ATOIssuanceDate   string  `json:"ato_issuance_date,omitempty"`
	ATOExpirationDate string  `json:"ato_expiration_date,omitempty"`
}

// Incident is a reported AI-related incident involving a federal agency.
type Incident struct {
	Base
	Title          string  `json:"title"`
	Slug           string  `json:"slug"`
	OccurredOn     string  `json:"occurred_on,omitempty"`
	Description    string  `json:"description,omitempty"`
	AgencyName     string  `json:"agency_name,omitempty"`
	OrganizationID *string `json:"organization_id,omitempty"`
	Severity       string  `json:"severity,omitempty"`
	HasLLM         bool    `json:"has_llm"`
	SourceURL      string  `json:"source_url,omitempty"`
}

// UseCase is one entry of the federal AI use case inventory.
type UseCase struct {
	Base
	Name                  string   `json:"name"`
	Slug                  string   `json:"slug"`
	Agency                string   `json:"agency"`
	AgencyAbbreviation    string   `json:"agency_abbreviation,omitempty"`
	Bureau                string   `json:"bureau,omitempty"`
	TopicArea             string   `json:"topic_area,omitempty"`
	IntendedPurpose       string   `json:"intended_purpose,omitempty"`
	Outputs               string   `json:"outputs,omitempty"`
	Stage                 string   `json:"stage,omitempty"`
	RightsSafetyImpacting string   `json:"rights_safety_impacting,omitempty"`
	DomainCategory        string   `json:"domain_category,omitempty"`
	DateInitiated         string   `json:"date_initiated,omitempty"`
	DateImplemented       string   `json:"date_implemented,omitempty"`
	DateRetired           string   `json:"date_retired,omitempty"`
	HasLLM                bool     `json:"has_llm"`
	HasGenAI              bool     `json:"has_genai"`
	HasChatbot            bool     `json:"has_chatbot"`
	HasCodingAssistant    bool     `json:"has_coding_assistant"`
	HasCodingAgent        bool     `json:"has_coding_agent"`
	HasClassicML          bool     `json:"has_classic_ml"`
	HasRPA                bool     `json:"has_rpa"`
	HasRules              bool     `json:"has_rules"`
	GeneralPurposeChatbot bool     `json:"general_purpose_chatbot"`
	DomainChatbot         bool     `json:"domain_chatbot"`
	ProvidersDetected     []string `json:"providers_detected,omitempty"`
	CommercialAIProduct   string   `json:"commercial_ai_product,omitempty"`
	DevelopmentApproach   string   `json:"development_approach,omitempty"`
	HasCustomCode         bool     `json:"has_custom_code"`
	OrganizationID        *string  `json:"organization_id,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Message != "" {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
