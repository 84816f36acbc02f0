// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"fedaidash/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Organization aliases domain.Organization for in-memory persistence operations.
	Organization = domain.Organization
	// AgencyProfile aliases domain.AgencyProfile.
	AgencyProfile = domain.AgencyProfile
	// AgencyTool aliases domain.AgencyTool.
	AgencyTool = domain.AgencyTool
	// Product aliases domain.Product.
	Product = domain.Product
	// ProductAuthorization aliases domain.ProductAuthorization.
	ProductAuthorization = domain.ProductAuthorization
	// Incident aliases domain.Incident.
	Incident = domain.Incident
	// UseCase aliases domain.UseCase.
	UseCase = domain.UseCase
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	organizations  map[string]Organization
	profiles       map[string]AgencyProfile
	tools          map[string]AgencyTool
	products       map[string]Product
	authorizations map[string]ProductAuthorization
	incidents      map[string]Incident
	useCases       map[string]UseCase
}

// Snapshot captures a point-in-time clone of the store state. Each field is
// persisted as one bucket by the durable backends.
type Snapshot struct {
	Organizations  map[string]Organization         `json:"organizations"`
	Profiles       map[string]AgencyProfile        `json:"profiles"`
	Tools          map[string]AgencyTool           `json:"tools"`
	Products       map[string]Product              `json:"products"`
	Authorizations map[string]ProductAuthorization `json:"authorizations"`
	Incidents      map[string]Incident             `json:"incidents"`
	UseCases       map[string]UseCase              `json:"use_cases"`
}

func newMemoryState() memoryState {
	return memoryState{
		organizations:  make(map[string]Organization),
		profiles:       make(map[string]AgencyProfile),
		tools:          make(map[string]AgencyTool),
		products:       make(map[string]Product),
		authorizations: make(map[string]ProductAuthorization),
		incidents:      make(map[string]Incident),
		useCases:       make(map[string]UseCase),
	}
}

func cloneMap[T any](src map[string]T, clone func(T) T) map[string]T {
	out := make(map[string]T, len(src))
	for k, v := range src {
		out[k] = clone(v)
	}
	return out
}

func (s memoryState) clone() memoryState {
	return memoryState{
		organizations:  cloneMap(s.organizations, identity[Organization]),
		profiles:       cloneMap(s.profiles, cloneProfile),
		tools:          cloneMap(s.tools, identity[AgencyTool]),
		products:       cloneMap(s.products, cloneProduct),
		authorizations: cloneMap(s.authorizations, cloneAuthorization),
		incidents:      cloneMap(s.incidents, cloneIncident),
		useCases:       cloneMap(s.useCases, cloneUseCase),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cp := state.clone()
	for id, p := range cp.profiles {
		cp.profiles[id] = decorateProfile(&cp, p)
	}
	return Snapshot{
		Organizations:  cp.organizations,
		Profiles:       cp.profiles,
		Tools:          cp.tools,
		Products:       cp.products,
		Authorizations: cp.authorizations,
		Incidents:      cp.incidents,
		UseCases:       cp.useCases,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		organizations:  s.Organizations,
		profiles:       s.Profiles,
		tools:          s.Tools,
		products:       s.Products,
		authorizations: s.Authorizations,
		incidents:      s.Incidents,
		useCases:       s.UseCases,
	}
	return normalizeState(state).clone()
}

// normalizeState fills nil buckets so older snapshots that lack a bucket
// still load.
func normalizeState(state memoryState) memoryState {
	if state.organizations == nil {
		state.organizations = map[string]Organization{}
	}
	if state.profiles == nil {
		state.profiles = map[string]AgencyProfile{}
	}
	if state.tools == nil {
		state.tools = map[string]AgencyTool{}
	}
	if state.products == nil {
		state.products = map[string]Product{}
	}
	if state.authorizations == nil {
		state.authorizations = map[string]ProductAuthorization{}
	}
	if state.incidents == nil {
		state.incidents = map[string]Incident{}
	}
	if state.useCases == nil {
		state.useCases = map[string]UseCase{}
	}
	return state
}

func identity[T any](v T) T { return v }

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneProfile(p AgencyProfile) AgencyProfile {
	p.OrganizationID = cloneStringPtr(p.OrganizationID)
	return p
}

func cloneProduct(p Product) Product {
	p.AIServices = slices.Clone(p.AIServices)
	if p.LastReviewedAt != nil {
		t := *p.LastReviewedAt
		p.LastReviewedAt = &t
	}
	return p
}

func cloneAuthorization(a ProductAuthorization) ProductAuthorization {
	a.OrganizationID = cloneStringPtr(a.OrganizationID)
	return a
}

func cloneIncident(i Incident) Incident {
	i.OrganizationID = cloneStringPtr(i.OrganizationID)
	return i
}

func cloneUseCase(u UseCase) UseCase {
	u.ProvidersDetected = slices.Clone(u.ProvidersDetected)
	u.OrganizationID = cloneStringPtr(u.OrganizationID)
	return u
}

// decorateProfile derives the tool counters of a profile from the tools that
// reference it.
func decorateProfile(state *memoryState, profile AgencyProfile) AgencyProfile {
	profile = cloneProfile(profile)
	profile.ToolCount = 0
	profile.HasStaffChatbot = false
	profile.HasCodingAssistant = false
	profile.HasDocumentAutomation = false
	for _, tool := range state.tools {
		if tool.AgencyProfileID != profile.ID {
			continue
		}
		profile.ToolCount++
		switch tool.ProductType {
		case domain.ProductStaffChatbot:
			profile.HasStaffChatbot = true
		case domain.ProductCodingAssistant:
			profile.HasCodingAssistant = true
		case domain.ProductDocumentAutomation:
			profile.HasDocumentAutomation = true
		}
	}
	return profile
}

// sortedValues returns the map values ordered by key.
func sortedValues[T any](m map[string]T, clone func(T) T) []T {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(m[k]))
	}
	return out
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListOrganizations() []Organization {
	return sortedValues(v.state.organizations, identity[Organization])
}

// ListAgencyProfiles returns profiles with their derived tool counters.
func (v transactionView) ListAgencyProfiles() []AgencyProfile {
	return sortedValues(v.state.profiles, func(p AgencyProfile) AgencyProfile {
		return decorateProfile(v.state, p)
	})
}

func (v transactionView) ListAgencyTools() []AgencyTool {
	return sortedValues(v.state.tools, identity[AgencyTool])
}

func (v transactionView) ListProducts() []Product {
	return sortedValues(v.state.products, cloneProduct)
}

func (v transactionView) ListAuthorizations() []ProductAuthorization {
	return sortedValues(v.state.authorizations, cloneAuthorization)
}

func (v transactionView) ListIncidents() []Incident {
	return sortedValues(v.state.incidents, cloneIncident)
}

func (v transactionView) ListUseCases() []UseCase {
	return sortedValues(v.state.useCases, cloneUseCase)
}

func (v transactionView) FindAgencyProfile(id string) (AgencyProfile, bool) {
	p, ok := v.state.profiles[id]
	if !ok {
		return AgencyProfile{}, false
	}
	return decorateProfile(v.state, p), true
}

func (v transactionView) FindAgencyTool(id string) (AgencyTool, bool) {
	t, ok := v.state.tools[id]
	return t, ok
}

func (v transactionView) FindProduct(id string) (Product, bool) {
	p, ok := v.state.products[id]
	if !ok {
		return Product{}, false
	}
	return cloneProduct(p), true
}

// CommitFunc makes the state produced by a transaction durable. The state
// becomes visible to readers only after it returns nil.
type CommitFunc func(ctx context.Context, snapshot Snapshot) error

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	return s.RunInTransactionWithCommit(ctx, fn, nil)
}

// RunInTransactionWithCommit executes fn like RunInTransaction and hands the
// resulting snapshot to commit before swapping it in. When commit fails the
// store keeps its prior state.
func (s *Store) RunInTransactionWithCommit(ctx context.Context, fn func(tx Transaction) error, commit CommitFunc) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if commit != nil {
		if err := commit(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

func (s *Store) view() transactionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := s.state.clone()
	return transactionView{state: &snapshot}
}

// ListOrganizations returns all organizations ordered by ID.
func (s *Store) ListOrganizations() []Organization { return s.view().ListOrganizations() }

// ListAgencyProfiles returns all agency profiles with derived tool counters.
func (s *Store) ListAgencyProfiles() []AgencyProfile { return s.view().ListAgencyProfiles() }

// ListAgencyTools returns all agency tools.
func (s *Store) ListAgencyTools() []AgencyTool { return s.view().ListAgencyTools() }

// ListProducts returns all FedRAMP products.
func (s *Store) ListProducts() []Product { return s.view().ListProducts() }

// ListAuthorizations returns all product authorizations.
func (s *Store) ListAuthorizations() []ProductAuthorization { return s.view().ListAuthorizations() }

// ListIncidents returns all incidents.
func (s *Store) ListIncidents() []Incident { return s.view().ListIncidents() }

// ListUseCases returns all use cases.
func (s *Store) ListUseCases() []UseCase { return s.view().ListUseCases() }

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// stamp assigns an ID and timestamps to a new record. Timestamps already set
// by the caller are kept so restored backups retain their history.
func (tx *transaction) stamp(base *domain.Base) {
	if base.ID == "" {
		base.ID = tx.store.newID()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = tx.now
	}
	if base.UpdatedAt.IsZero() {
		base.UpdatedAt = base.CreatedAt
	}
}

// CreateOrganization stores a new organization node.
func (tx *transaction) CreateOrganization(o Organization) (Organization, error) {
	tx.stamp(&o.Base)
	if _, exists := tx.state.organizations[o.ID]; exists {
		return Organization{}, fmt.Errorf("organization %q already exists", o.ID)
	}
	if o.Level != "" && !o.Level.Valid() {
		return Organization{}, fmt.Errorf("organization %q has unknown level %q", o.Name, o.Level)
	}
	tx.state.organizations[o.ID] = o
	tx.recordChange(Change{Entity: domain.EntityOrganization, Action: domain.ActionCreate, After: o})
	return o, nil
}

// CreateAgencyProfile stores a new agency profile. Tool counters supplied by
// the caller are ignored.
func (tx *transaction) CreateAgencyProfile(p AgencyProfile) (AgencyProfile, error) {
	tx.stamp(&p.Base)
	if _, exists := tx.state.profiles[p.ID]; exists {
		return AgencyProfile{}, fmt.Errorf("agency profile %q already exists", p.ID)
	}
	tx.state.profiles[p.ID] = cloneProfile(p)
	created := decorateProfile(&tx.state, p)
	tx.recordChange(Change{Entity: domain.EntityAgencyProfile, Action: domain.ActionCreate, After: created})
	return created, nil
}

// UpdateAgencyProfile mutates a profile using the provided mutator function.
func (tx *transaction) UpdateAgencyProfile(id string, mutator func(*AgencyProfile) error) (AgencyProfile, error) {
	current, ok := tx.state.profiles[id]
	if !ok {
		return AgencyProfile{}, domain.ErrNotFound{Entity: domain.EntityAgencyProfile, ID: id}
	}
	before := decorateProfile(&tx.state, current)
	current = cloneProfile(current)
	if err := mutator(&current); err != nil {
		return AgencyProfile{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.profiles[id] = cloneProfile(current)
	after := decorateProfile(&tx.state, current)
	tx.recordChange(Change{Entity: domain.EntityAgencyProfile, Action: domain.ActionUpdate, Before: before, After: after})
	return after, nil
}

// DeleteAgencyProfile removes a profile together with the tools it owns.
func (tx *transaction) DeleteAgencyProfile(id string) error {
	current, ok := tx.state.profiles[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityAgencyProfile, ID: id}
	}
	for toolID, tool := range tx.state.tools {
		if tool.AgencyProfileID != id {
			continue
		}
		delete(tx.state.tools, toolID)
		tx.recordChange(Change{Entity: domain.EntityAgencyTool, Action: domain.ActionDelete, Before: tool})
	}
	delete(tx.state.profiles, id)
	tx.recordChange(Change{Entity: domain.EntityAgencyProfile, Action: domain.ActionDelete, Before: cloneProfile(current)})
	return nil
}

// CreateAgencyTool stores a new tool. The owning profile must exist.
func (tx *transaction) CreateAgencyTool(t AgencyTool) (AgencyTool, error) {
	tx.stamp(&t.Base)
	if _, exists := tx.state.tools[t.ID]; exists {
		return AgencyTool{}, fmt.Errorf("agency tool %q already exists", t.ID)
	}
	if _, ok := tx.state.profiles[t.AgencyProfileID]; !ok {
		return AgencyTool{}, domain.ErrNotFound{Entity: domain.EntityAgencyProfile, ID: t.AgencyProfileID}
	}
	tx.state.tools[t.ID] = t
	tx.recordChange(Change{Entity: domain.EntityAgencyTool, Action: domain.ActionCreate, After: t})
	return t, nil
}

// UpdateAgencyTool mutates a tool using the provided mutator function.
func (tx *transaction) UpdateAgencyTool(id string, mutator func(*AgencyTool) error) (AgencyTool, error) {
	current, ok := tx.state.tools[id]
	if !ok {
		return AgencyTool{}, domain.ErrNotFound{Entity: domain.EntityAgencyTool, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return AgencyTool{}, err
	}
	if _, ok := tx.state.profiles[current.AgencyProfileID]; !ok {
		return AgencyTool{}, domain.ErrNotFound{Entity: domain.EntityAgencyProfile, ID: current.AgencyProfileID}
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.tools[id] = current
	tx.recordChange(Change{Entity: domain.EntityAgencyTool, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteAgencyTool removes a tool from the transaction state.
func (tx *transaction) DeleteAgencyTool(id string) error {
	current, ok := tx.state.tools[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityAgencyTool, ID: id}
	}
	delete(tx.state.tools, id)
	tx.recordChange(Change{Entity: domain.EntityAgencyTool, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateProduct stores a new marketplace product.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	tx.stamp(&p.Base)
	if _, exists := tx.state.products[p.ID]; exists {
		return Product{}, fmt.Errorf("product %q already exists", p.ID)
	}
	tx.state.products[p.ID] = cloneProduct(p)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionCreate, After: cloneProduct(p)})
	return cloneProduct(p), nil
}

// UpdateProduct mutates a product using the provided mutator function.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	current, ok := tx.state.products[id]
	if !ok {
		return Product{}, domain.ErrNotFound{Entity: domain.EntityProduct, ID: id}
	}
	before := cloneProduct(current)
	current = cloneProduct(current)
	if err := mutator(&current); err != nil {
		return Product{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.products[id] = cloneProduct(current)
	tx.recordChange(Change{Entity: domain.EntityProduct, Action: domain.ActionUpdate, Before: before, After: cloneProduct(current)})
	return cloneProduct(current), nil
}

// CreateAuthorization stores a new product authorization.
func (tx *transaction) CreateAuthorization(a ProductAuthorization) (ProductAuthorization, error) {
	tx.stamp(&a.Base)
	if _, exists := tx.state.authorizations[a.ID]; exists {
		return ProductAuthorization{}, fmt.Errorf("authorization %q already exists", a.ID)
	}
	tx.state.authorizations[a.ID] = cloneAuthorization(a)
	tx.recordChange(Change{Entity: domain.EntityAuthorization, Action: domain.ActionCreate, After: cloneAuthorization(a)})
	return cloneAuthorization(a), nil
}

// CreateIncident stores a new incident.
func (tx *transaction) CreateIncident(i Incident) (Incident, error) {
	tx.stamp(&i.Base)
	if _, exists := tx.state.incidents[i.ID]; exists {
		return Incident{}, fmt.Errorf("incident %q already exists", i.ID)
	}
	tx.state.incidents[i.ID] = cloneIncident(i)
	tx.recordChange(Change{Entity: domain.EntityIncident, Action: domain.ActionCreate, After: cloneIncident(i)})
	return cloneIncident(i), nil
}

// CreateUseCase stores a new use case inventory entry.
func (tx *transaction) CreateUseCase(u UseCase) (UseCase, error) {
	tx.stamp(&u.Base)
	if _, exists := tx.state.useCases[u.ID]; exists {
		return UseCase{}, fmt.Errorf("use case %q already exists", u.ID)
	}
	tx.state.useCases[u.ID] = cloneUseCase(u)
	tx.recordChange(Change{Entity: domain.EntityUseCase, Action: domain.ActionCreate, After: cloneUseCase(u)})
	return cloneUseCase(u), nil
}

// Truncate clears every record of the entity type. Truncating profiles also
// clears tools so no tool is left without its owner.
func (tx *transaction) Truncate(entity domain.EntityType) error {
	switch entity {
	case domain.EntityOrganization:
		clear(tx.state.organizations)
	case domain.EntityAgencyProfile:
		clear(tx.state.tools)
		clear(tx.state.profiles)
	case domain.EntityAgencyTool:
		clear(tx.state.tools)
	case domain.EntityProduct:
		clear(tx.state.products)
	case domain.EntityAuthorization:
		clear(tx.state.authorizations)
	case domain.EntityIncident:
		clear(tx.state.incidents)
	case domain.EntityUseCase:
		clear(tx.state.useCases)
	default:
		return fmt.Errorf("truncate: unknown entity %q", entity)
	}
	tx.recordChange(Change{Entity: entity, Action: domain.ActionDelete})
	return nil
}
