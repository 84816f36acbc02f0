package domain

import (
	"context"
	"errors"
)

// ErrConflict reports that another process changed the durable state after
// the store last read it. The write is rejected and nothing is applied.
var ErrConflict = errors.New("state changed by another writer")

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateOrganization(Organization) (Organization, error)
	CreateAgencyProfile(AgencyProfile) (AgencyProfile, error)
	UpdateAgencyProfile(id string, mutator func(*AgencyProfile) error) (AgencyProfile, error)
	DeleteAgencyProfile(id string) error
	CreateAgencyTool(AgencyTool) (AgencyTool, error)
	UpdateAgencyTool(id string, mutator func(*AgencyTool) error) (AgencyTool, error)
	DeleteAgencyTool(id string) error
	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	CreateAuthorization(ProductAuthorization) (ProductAuthorization, error)
	CreateIncident(Incident) (Incident, error)
	CreateUseCase(UseCase) (UseCase, error)
	// Truncate removes every record of the given entity type. Deleting
	// profiles also removes their tools.
	Truncate(entity EntityType) error
}

// TransactionView provides read-only access to snapshot data for rules and
// read paths.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ListOrganizations() []Organization
	ListAgencyProfiles() []AgencyProfile
	ListAgencyTools() []AgencyTool
	ListProducts() []Product
	ListAuthorizations() []ProductAuthorization
	ListIncidents() []Incident
	ListUseCases() []UseCase
}
