package core

import (
	"context"
	"fmt"
	"strings"

	"fedaidash/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(UniqueSlugRule())
	engine.Register(ToolOwnerRule())
	engine.Register(OrganizationParentRule())
	return engine
}

type ruleFunc struct {
	name string
	fn   func(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

func (r ruleFunc) Name() string { return r.name }

func (r ruleFunc) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	return r.fn(ctx, view, changes)
}

func touches(changes []Change, entities ...EntityType) bool {
	for _, change := range changes {
		for _, entity := range entities {
			if change.Entity == entity && change.Action != ActionDelete {
				return true
			}
		}
	}
	return false
}

// UniqueSlugRule blocks commits that leave two profiles or two tools sharing
// a slug, since detail pages are addressed by slug.
func UniqueSlugRule() Rule {
	return ruleFunc{name: "unique_slug", fn: func(_ context.Context, view RuleView, changes []Change) (Result, error) {
		var res Result
		if !touches(changes, EntityAgencyProfile, EntityAgencyTool) {
			return res, nil
		}
		seen := map[string]string{}
		for _, p := range view.ListAgencyProfiles() {
			if p.Slug == "" {
				continue
			}
			if other, dup := seen[p.Slug]; dup {
				res.Violations = append(res.Violations, slugViolation(EntityAgencyProfile, p.ID, p.Slug, other))
				continue
			}
			seen[p.Slug] = p.ID
		}
		seen = map[string]string{}
		for _, t := range view.ListAgencyTools() {
			if t.Slug == "" {
				continue
			}
			if other, dup := seen[t.Slug]; dup {
				res.Violations = append(res.Violations, slugViolation(EntityAgencyTool, t.ID, t.Slug, other))
				continue
			}
			seen[t.Slug] = t.ID
		}
		return res, nil
	}}
}

func slugViolation(entity EntityType, id, slug, other string) Violation {
	return Violation{
		Rule:     "unique_slug",
		Severity: SeverityBlock,
		Message:  fmt.Sprintf("slug %q already used by %s", slug, other),
		Entity:   entity,
		EntityID: id,
	}
}

// ToolOwnerRule blocks tools without a product name.
func ToolOwnerRule() Rule {
	return ruleFunc{name: "tool_owner", fn: func(_ context.Context, view RuleView, changes []Change) (Result, error) {
		var res Result
		for _, change := range changes {
			if change.Entity != EntityAgencyTool || change.Action == ActionDelete {
				continue
			}
			tool, ok := change.After.(domain.AgencyTool)
			if !ok {
				continue
			}
			if strings.TrimSpace(tool.ProductName) == "" {
				res.Violations = append(res.Violations, Violation{
					Rule: "tool_owner", Severity: SeverityBlock, Entity: EntityAgencyTool, EntityID: tool.ID,
					Message: "tool product name is required",
				})
			}
			if _, ok := view.FindAgencyProfile(tool.AgencyProfileID); !ok {
				res.Violations = append(res.Violations, Violation{
					Rule: "tool_owner", Severity: SeverityBlock, Entity: EntityAgencyTool, EntityID: tool.ID,
					Message: fmt.Sprintf("agency profile %s not found", tool.AgencyProfileID),
				})
			}
		}
		return res, nil
	}}
}

// OrganizationParentRule warns about organizations whose parent reference
// matches no other organization. Such nodes become hierarchy roots.
func OrganizationParentRule() Rule {
	return ruleFunc{name: "organization_parent", fn: func(_ context.Context, view RuleView, changes []Change) (Result, error) {
		var res Result
		if !touches(changes, EntityOrganization) {
			return res, nil
		}
		orgs := view.ListOrganizations()
		idx := newOrgIndex(orgs)
		for _, org := range orgs {
			if strings.TrimSpace(org.ParentRef) == "" {
				continue
			}
			if _, ok := idx.resolve(org.ParentRef); !ok {
				res.Violations = append(res.Violations, Violation{
					Rule: "organization_parent", Severity: SeverityWarn, Entity: EntityOrganization, EntityID: org.ID,
					Message: fmt.Sprintf("parent %q of %s not found", org.ParentRef, org.Name),
				})
			}
		}
		return res, nil
	}}
}
