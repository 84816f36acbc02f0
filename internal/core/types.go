package core

import "fedaidash/pkg/domain"

type (
	EntityType           = domain.EntityType
	Severity             = domain.Severity
	Base                 = domain.Base
	Organization         = domain.Organization
	AgencyProfile        = domain.AgencyProfile
	AgencyTool           = domain.AgencyTool
	Product              = domain.Product
	ProductAuthorization = domain.ProductAuthorization
	Incident             = domain.Incident
	UseCase              = domain.UseCase
	Change               = domain.Change
	Action               = domain.Action
	Violation            = domain.Violation
	Result               = domain.Result
	RuleViolationError   = domain.RuleViolationError
	Rule                 = domain.Rule
	RuleView             = domain.RuleView
	RulesEngine          = domain.RulesEngine
)

const (
	EntityOrganization  = domain.EntityOrganization
	EntityAgencyProfile = domain.EntityAgencyProfile
	EntityAgencyTool    = domain.EntityAgencyTool
	EntityProduct       = domain.EntityProduct
	EntityAuthorization = domain.EntityAuthorization
	EntityIncident      = domain.EntityIncident
	EntityUseCase       = domain.EntityUseCase
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
