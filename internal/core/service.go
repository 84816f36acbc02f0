package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"fedaidash/internal/infra/persistence/memory"
	"fedaidash/pkg/domain"
)

// DefaultCacheSize bounds the number of cached browse results.
const DefaultCacheSize = 256

// ErrNotFound is returned when a record addressed by ID or slug is missing.
type ErrNotFound = domain.ErrNotFound

// ErrConflict is returned when another process committed first.
var ErrConflict = domain.ErrConflict

// Service runs the browse pipeline over a PersistentStore and performs the
// admin mutations. Browse results are cached until the next successful write.
type Service struct {
	store      PersistentStore
	logger     Logger
	metrics    MetricsRecorder
	tracer     Tracer
	audit      AuditRecorder
	clock      Clock
	authorizer Authorizer
	archive    ArchiveStore
	cacheSize  int
	cache      *lru.Cache[string, any]
	validate   *validator.Validate

	// cacheMu orders cache fills against Invalidate; generation counts
	// invalidations.
	cacheMu    sync.Mutex
	generation uint64
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the span factory.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder sets the admin audit sink.
func WithAuditRecorder(a AuditRecorder) ServiceOption {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithClock overrides the time source used for stamps and export filenames.
func WithClock(c Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithAuthorizer sets the admin authorization check. Without one every admin
// action is rejected.
func WithAuthorizer(a Authorizer) ServiceOption {
	return func(s *Service) { s.authorizer = a }
}

// WithArchiveStore enables export archiving.
func WithArchiveStore(a ArchiveStore) ServiceOption {
	return func(s *Service) { s.archive = a }
}

// WithCacheSize sets the browse cache capacity; zero or less disables caching.
func WithCacheSize(n int) ServiceOption {
	return func(s *Service) { s.cacheSize = n }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		logger:    noopLogger{},
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		audit:     noopAudit{},
		clock:     systemClock{},
		cacheSize: DefaultCacheSize,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheSize > 0 {
		// lru.New only fails for non-positive sizes.
		s.cache, _ = lru.New[string, any](s.cacheSize)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects the default rule set.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run wraps fn with a span, a metrics observation and a log line.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	duration := time.Since(start)
	s.metrics.Observe(ctx, op, err == nil, duration)
	var notFound ErrNotFound
	switch {
	case err == nil:
		s.logger.Debug("operation completed", "operation", op, "duration", duration)
	case errors.As(err, &notFound), errors.Is(err, ErrUnauthorized):
		s.logger.Info("operation rejected", "operation", op, "error", err)
	default:
		s.logger.Error("operation failed", "operation", op, "error", err)
	}
	return err
}

func (s *Service) cached(key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

// cacheGeneration returns the generation a result loaded from now on belongs
// to.
func (s *Service) cacheGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

// remember caches value unless an invalidation happened since gen was read,
// in which case value may predate a write.
func (s *Service) remember(gen uint64, key string, value any) {
	if s.cache == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen == s.generation {
		s.cache.Add(key, value)
	}
}

// Invalidate drops every cached browse result, including results still
// being rendered from state loaded before the call.
func (s *Service) Invalidate() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.cache != nil {
		s.cache.Purge()
	}
}

// refresh reloads state other processes committed to a shared database and
// drops the cache when anything changed. Failures are logged and the last
// loaded state is served.
func (s *Service) refresh(ctx context.Context) {
	r, ok := s.store.(Refresher)
	if !ok {
		return
	}
	changed, err := r.Refresh(ctx)
	if err != nil {
		s.logger.Warn("store refresh failed", "error", err)
		return
	}
	if changed {
		s.Invalidate()
	}
}

// Overview holds the headline counts shown on the landing page.
type Overview struct {
	Organizations  int             `json:"organizations"`
	Agencies       int             `json:"agencies"`
	Tools          int             `json:"tools"`
	Products       int             `json:"products"`
	AIProducts     int             `json:"ai_products"`
	Authorizations int             `json:"authorizations"`
	Incidents      int             `json:"incidents"`
	UseCases       int             `json:"use_cases"`
	AgencyStats    AggregatedStats `json:"agency_stats"`
	UseCaseStats   AggregatedStats `json:"use_case_stats"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// Overview summarizes every collection of one snapshot, in parallel.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var out Overview
	err := s.run(ctx, "overview", func(ctx context.Context) error {
		s.refresh(ctx)
		return s.store.View(ctx, func(view TransactionView) error {
			g, _ := errgroup.WithContext(ctx)
			g.Go(func() error {
				out.Organizations = len(view.ListOrganizations())
				return nil
			})
			g.Go(func() error {
				profiles := view.ListAgencyProfiles()
				out.Agencies = len(profiles)
				out.AgencyStats = Summarize(profiles, AgencyCatalog.Capabilities)
				return nil
			})
			g.Go(func() error {
				out.Tools = len(view.ListAgencyTools())
				return nil
			})
			g.Go(func() error {
				products := view.ListProducts()
				out.Products = len(products)
				out.AIProducts = len(Filter(products, "", FilterAI, ProductCatalog))
				return nil
			})
			g.Go(func() error {
				out.Authorizations = len(view.ListAuthorizations())
				return nil
			})
			g.Go(func() error {
				out.Incidents = len(view.ListIncidents())
				return nil
			})
			g.Go(func() error {
				useCases := view.ListUseCases()
				out.UseCases = len(useCases)
				out.UseCaseStats = Summarize(useCases, UseCaseCatalog.Capabilities)
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}
			out.GeneratedAt = s.clock.Now()
			return nil
		})
	})
	return out, err
}

// OrganizationTree is the organization hierarchy with agency profiles
// attached and rolled up.
type OrganizationTree struct {
	Roots      []*Node[AgencyProfile] `json:"roots"`
	Unattached []AgencyProfile        `json:"unattached"`
	Stats      AggregatedStats        `json:"stats"`
}

// Organizations builds the full organization tree, ordered by name.
func (s *Service) Organizations(ctx context.Context) (OrganizationTree, error) {
	var out OrganizationTree
	err := s.run(ctx, "organizations", func(ctx context.Context) error {
		s.refresh(ctx)
		return s.store.View(ctx, func(view TransactionView) error {
			forest := BuildForest(view.ListOrganizations(), view.ListAgencyProfiles(), AgencyCatalog.Attach)
			out.Stats = AggregateForest(forest.Roots, AgencyCatalog.Capabilities)
			out.Roots = SortForest(forest.Roots, NodeSortName, SortAsc, AgencyCatalog, AgencyCatalog.DefaultSort)
			out.Unattached = forest.Unattached
			return nil
		})
	})
	return out, err
}
