package core

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"

	"fedaidash/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2025, time.June, 2, 15, 4, 5, 0, time.UTC)

type fixture struct {
	svc     *Service
	doe     AgencyProfile
	opm     AgencyProfile
	nasa    AgencyProfile
	chat    AgencyTool
	code    AgencyTool
	bedrock Product
}

// newFixture seeds two organizations, three profiles (one unattached), two
// tools, two products, an incident and a use case.
func newFixture(t *testing.T, opts ...ServiceOption) fixture {
	t.Helper()
	opts = append([]ServiceOption{WithClock(ClockFunc(func() time.Time { return fixedNow }))}, opts...)
	f := fixture{svc: NewInMemoryService(nil, opts...)}
	_, err := f.svc.Store().RunInTransaction(context.Background(), func(tx Transaction) error {
		for _, o := range []Organization{
			{Name: "Department of Energy", Abbreviation: "DOE", Slug: "doe", Level: domain.LevelDepartment},
			{Name: "Office of Personnel Management", Abbreviation: "OPM", Slug: "opm", Level: domain.LevelIndependent},
		} {
			if _, err := tx.CreateOrganization(o); err != nil {
				return err
			}
		}
		var err error
		if f.doe, err = tx.CreateAgencyProfile(AgencyProfile{AgencyName: "Department of Energy", Abbreviation: "DOE", Slug: "department-of-energy", DeploymentStatus: domain.DeploymentAllStaff}); err != nil {
			return err
		}
		if f.opm, err = tx.CreateAgencyProfile(AgencyProfile{AgencyName: "Office of Personnel Management", Abbreviation: "OPM", Slug: "office-of-personnel-management", DeploymentStatus: domain.DeploymentPilot}); err != nil {
			return err
		}
		if f.nasa, err = tx.CreateAgencyProfile(AgencyProfile{AgencyName: "Space Agency", Abbreviation: "NASA", Slug: "space-agency", DeploymentStatus: domain.DeploymentNoAssistant}); err != nil {
			return err
		}
		if f.chat, err = tx.CreateAgencyTool(AgencyTool{AgencyProfileID: f.doe.ID, ProductName: "ChatDOE", ProductType: domain.ProductStaffChatbot, Slug: "doe-chatdoe"}); err != nil {
			return err
		}
		if f.code, err = tx.CreateAgencyTool(AgencyTool{AgencyProfileID: f.doe.ID, ProductName: "CodeDOE", ProductType: domain.ProductCodingAssistant, Slug: "doe-codedoe", IsPilotOrLimited: true}); err != nil {
			return err
		}
		if f.bedrock, err = tx.CreateProduct(Product{FedRAMPID: "FR0001", ProviderName: "AWS", ProductName: "Bedrock", Slug: "aws-bedrock", HasAI: true, HasLLM: true}); err != nil {
			return err
		}
		if _, err = tx.CreateProduct(Product{FedRAMPID: "FR0002", ProviderName: "Acme", ProductName: "Storage", Slug: "acme-storage"}); err != nil {
			return err
		}
		if _, err = tx.CreateIncident(Incident{Title: "Chatbot leak", Slug: "chatbot-leak", AgencyName: "DOE", HasLLM: true}); err != nil {
			return err
		}
		_, err = tx.CreateUseCase(UseCase{Name: "Benefits assistant", Slug: "benefits-assistant", Agency: "Office of Personnel Management", HasGenAI: true, DomainChatbot: true})
		return err
	})
	require.NoError(t, err)
	return f
}

func allowAll() ServiceOption {
	return WithAuthorizer(AuthorizerFunc(func(context.Context) error { return nil }))
}

func profileBySlug(t *testing.T, svc *Service, slug string) (AgencyProfile, bool) {
	t.Helper()
	for _, p := range svc.Store().ListAgencyProfiles() {
		if p.Slug == slug {
			return p, true
		}
	}
	return AgencyProfile{}, false
}

func TestBrowseList(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Agencies().Browse(context.Background(), url.Values{ParamFilter: {string(FilterStaffChatbot)}})
	require.NoError(t, err)

	require.NotNil(t, res.Page)
	assert.Nil(t, res.Tree)
	require.Len(t, res.Page.Items, 1)
	assert.Equal(t, "DOE", res.Page.Items[0].Abbreviation)
	assert.Equal(t, 2, res.Page.Items[0].ToolCount)
	assert.Equal(t, 1, res.Stats.RecordCount)
	assert.Equal(t, "agencies", res.Collection)
	assert.Equal(t, "filter=staff_chatbot", res.Query)
}

func TestBrowseClampsPage(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Agencies().Browse(context.Background(), url.Values{ParamPage: {"40"}, ParamPerPage: {"2"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Page.Page)
	assert.Equal(t, 2, res.State.Page)
	require.Len(t, res.Page.Items, 1)
	assert.Equal(t, "Space Agency", res.Page.Items[0].AgencyName)
	assert.Equal(t, "page=2&perPage=2", res.Query)
}

func TestBrowseHierarchy(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Agencies().Browse(context.Background(), url.Values{ParamView: {string(ViewHierarchy)}})
	require.NoError(t, err)

	assert.Nil(t, res.Page)
	require.NotNil(t, res.Tree)
	require.Len(t, res.Tree.Items, 2)
	assert.Equal(t, "Department of Energy", res.Tree.Items[0].Name)
	assert.Equal(t, "Office of Personnel Management", res.Tree.Items[1].Name)
	assert.Equal(t, 1, res.Tree.Items[0].Stats.RecordCount)
	require.Len(t, res.Unattached, 1)
	assert.Equal(t, "NASA", res.Unattached[0].Abbreviation)
	assert.Equal(t, 3, res.Stats.RecordCount, "stats include unattached records")
}

func TestBrowseHierarchyFallsBackForFlatCollections(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Products().Browse(context.Background(), url.Values{ParamView: {string(ViewHierarchy)}})
	require.NoError(t, err)
	require.NotNil(t, res.Page)
	assert.Equal(t, ViewList, res.State.View)
	assert.Len(t, res.Page.Items, 2)
}

func TestBrowseIsCachedUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Tools().Browse(ctx, url.Values{})
	require.NoError(t, err)
	require.Len(t, first.Page.Items, 2)

	// Writes that bypass the service are not seen until the cache is dropped.
	_, err = f.svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateAgencyTool(AgencyTool{AgencyProfileID: f.opm.ID, ProductName: "OPM GPT", ProductType: domain.ProductStaffChatbot, Slug: "opm-gpt"})
		return err
	})
	require.NoError(t, err)

	cached, err := f.svc.Tools().Browse(ctx, url.Values{})
	require.NoError(t, err)
	assert.Len(t, cached.Page.Items, 2)

	f.svc.Invalidate()
	fresh, err := f.svc.Tools().Browse(ctx, url.Values{})
	require.NoError(t, err)
	assert.Len(t, fresh.Page.Items, 3)
}

// gatedStore holds the next View after it has taken its snapshot until
// release is closed.
type gatedStore struct {
	PersistentStore
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) View(ctx context.Context, fn func(TransactionView) error) error {
	if !g.armed.CompareAndSwap(true, false) {
		return g.PersistentStore.View(ctx, fn)
	}
	var frozen TransactionView
	if err := g.PersistentStore.View(ctx, func(v TransactionView) error {
		frozen = v
		return nil
	}); err != nil {
		return err
	}
	close(g.entered)
	<-g.release
	return fn(frozen)
}

func TestBrowseInFlightDuringWriteIsNotCached(t *testing.T) {
	f := newFixture(t)
	gated := &gatedStore{PersistentStore: f.svc.Store(), entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(gated, allowAll(), WithClock(ClockFunc(func() time.Time { return fixedNow })))
	ctx := context.Background()
	unreviewed := url.Values{ParamFilter: {string(FilterUnreviewed)}}

	gated.armed.Store(true)
	done := make(chan ListResult[Product], 1)
	go func() {
		res, err := svc.Products().Browse(ctx, unreviewed)
		assert.NoError(t, err)
		done <- res
	}()
	<-gated.entered
	require.True(t, svc.MarkProductReviewed(ctx, f.bedrock.ID).Success)
	close(gated.release)

	inFlight := <-done
	require.NotNil(t, inFlight.Page)
	assert.Len(t, inFlight.Page.Items, 2, "the in-flight browse renders the snapshot it loaded")

	after, err := svc.Products().Browse(ctx, unreviewed)
	require.NoError(t, err)
	require.Len(t, after.Page.Items, 1)
	assert.Equal(t, "Storage", after.Page.Items[0].ProductName)
}

// refreshingStore reports the queued refresh outcomes, then no change.
type refreshingStore struct {
	PersistentStore
	outcomes []error
	calls    int
}

func (r *refreshingStore) Refresh(context.Context) (bool, error) {
	r.calls++
	if len(r.outcomes) == 0 {
		return false, nil
	}
	err := r.outcomes[0]
	r.outcomes = r.outcomes[1:]
	return err == nil, err
}

func TestRefreshedStoreDropsCache(t *testing.T) {
	f := newFixture(t)
	store := &refreshingStore{PersistentStore: f.svc.Store()}
	svc := NewService(store)
	ctx := context.Background()

	first, err := svc.Tools().Browse(ctx, url.Values{})
	require.NoError(t, err)
	require.Len(t, first.Page.Items, 2)

	// Another process adds a tool; the next refresh reports it.
	_, err = f.svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateAgencyTool(AgencyTool{AgencyProfileID: f.opm.ID, ProductName: "OPM GPT", Slug: "opm-gpt"})
		return err
	})
	require.NoError(t, err)
	store.outcomes = []error{nil}

	fresh, err := svc.Tools().Browse(ctx, url.Values{})
	require.NoError(t, err)
	assert.Len(t, fresh.Page.Items, 3)
	assert.Equal(t, 2, store.calls)
}

func TestRefreshFailureServesLoadedState(t *testing.T) {
	f := newFixture(t)
	logger, logs := observedLogger(zapcore.WarnLevel)
	store := &refreshingStore{PersistentStore: f.svc.Store(), outcomes: []error{errors.New("database is locked")}}
	svc := NewService(store, WithLogger(logger))

	res, err := svc.Agencies().Browse(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.Len(t, res.Page.Items, 3)
	require.Equal(t, 1, logs.FilterMessage("store refresh failed").Len())
}

// snapshotOnlyStore fails any read that does not go through View.
type snapshotOnlyStore struct {
	PersistentStore
}

func (snapshotOnlyStore) ListOrganizations() []Organization   { panic("read outside a snapshot") }
func (snapshotOnlyStore) ListAgencyProfiles() []AgencyProfile { panic("read outside a snapshot") }
func (snapshotOnlyStore) ListAgencyTools() []AgencyTool       { panic("read outside a snapshot") }
func (snapshotOnlyStore) ListProducts() []Product             { panic("read outside a snapshot") }
func (snapshotOnlyStore) ListAuthorizations() []ProductAuthorization {
	panic("read outside a snapshot")
}
func (snapshotOnlyStore) ListIncidents() []Incident { panic("read outside a snapshot") }
func (snapshotOnlyStore) ListUseCases() []UseCase   { panic("read outside a snapshot") }

func TestReadsUseOneSnapshot(t *testing.T) {
	f := newFixture(t)
	svc := NewService(snapshotOnlyStore{PersistentStore: f.svc.Store()}, WithCacheSize(0))
	ctx := context.Background()
	hierarchy := url.Values{ParamView: {string(ViewHierarchy)}}

	tools, err := svc.Tools().Browse(ctx, hierarchy)
	require.NoError(t, err)
	assert.Equal(t, 2, tools.Stats.RecordCount)

	_, err = svc.Tools().Detail(ctx, "doe-chatdoe")
	require.NoError(t, err)
	_, err = svc.Agencies().Export(ctx, hierarchy, FormatCSV)
	require.NoError(t, err)

	overview, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, overview.Agencies)
	assert.Equal(t, 2, overview.Tools)

	orgs, err := svc.Organizations(ctx)
	require.NoError(t, err)
	assert.Len(t, orgs.Roots, 2)
}

func TestBrowseWithoutCache(t *testing.T) {
	f := newFixture(t, WithCacheSize(0))
	ctx := context.Background()
	_, err := f.svc.Products().Browse(ctx, url.Values{})
	require.NoError(t, err)
	_, err = f.svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateProduct(Product{FedRAMPID: "FR0003", ProductName: "New", Slug: "new"})
		return err
	})
	require.NoError(t, err)
	res, err := f.svc.Products().Browse(ctx, url.Values{})
	require.NoError(t, err)
	assert.Len(t, res.Page.Items, 3)
}

func TestApplyActions(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Tools().Apply(context.Background(), url.Values{ParamPage: {"3"}},
		SetFilter{Filter: FilterPilot},
		ToggleSort{Field: "name"},
	)
	require.NoError(t, err)
	assert.Equal(t, "dir=desc&filter=pilot", res.Query)
	require.Len(t, res.Page.Items, 1)
	assert.Equal(t, "CodeDOE", res.Page.Items[0].ProductName)
	assert.Equal(t, "Department of Energy", res.Page.Items[0].AgencyName)
}

func TestDetail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tool, err := f.svc.Tools().Detail(ctx, "doe-chatdoe")
	require.NoError(t, err)
	assert.Equal(t, f.chat.ID, tool.ID)
	assert.Equal(t, "department-of-energy", tool.AgencySlug)

	_, err = f.svc.UseCases().Detail(ctx, "missing")
	var notFound ErrNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, EntityUseCase, notFound.Entity)
	assert.Equal(t, "missing", notFound.ID)
}

func TestExportHierarchy(t *testing.T) {
	f := newFixture(t)
	file, err := f.svc.Export(context.Background(), "agencies", url.Values{ParamView: {string(ViewHierarchy)}}, FormatTSV)
	require.NoError(t, err)

	assert.Equal(t, "agency-ai-tools-all-2025-06-02.tsv", file.Filename)
	assert.Equal(t, FormatTSV.ContentType(), file.ContentType)
	assert.Equal(t, 3, file.Rows)
	lines := strings.Split(strings.TrimSuffix(string(file.Body), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "Department\tOrganization\tAgency\t"))
	assert.True(t, strings.HasPrefix(lines[1], "Department of Energy\tDepartment of Energy\tDepartment of Energy\t"))
	assert.True(t, strings.HasPrefix(lines[3], "\t\tSpace Agency\t"), "unattached rows come last")
}

func TestExportIgnoresPagination(t *testing.T) {
	f := newFixture(t)
	file, err := f.svc.Export(context.Background(), "tools", url.Values{ParamPerPage: {"1"}, ParamFilter: {"pilot"}}, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "agency-ai-tool-list-pilot-2025-06-02.csv", file.Filename)
	assert.Equal(t, 1, file.Rows)

	file, err = f.svc.Export(context.Background(), "tools", url.Values{ParamPerPage: {"1"}}, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, 2, file.Rows)
}

func TestExportUnknownCollection(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Export(context.Background(), "widgets", url.Values{}, FormatCSV)
	var notFound ErrNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "widgets", notFound.ID)

	for _, name := range CollectionNames() {
		_, err := f.svc.Export(context.Background(), name, url.Values{}, FormatCSV)
		assert.NoError(t, err, name)
	}
}

func TestOverview(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.Overview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, got.Organizations)
	assert.Equal(t, 3, got.Agencies)
	assert.Equal(t, 2, got.Tools)
	assert.Equal(t, 2, got.Products)
	assert.Equal(t, 1, got.AIProducts)
	assert.Equal(t, 1, got.Incidents)
	assert.Equal(t, 1, got.UseCases)
	assert.Equal(t, 1, got.AgencyStats.Capabilities[string(domain.ProductStaffChatbot)])
	assert.Equal(t, 1, got.UseCaseStats.Capabilities["chatbot"])
	assert.Equal(t, fixedNow, got.GeneratedAt)
}

func TestOrganizations(t *testing.T) {
	f := newFixture(t)
	tree, err := f.svc.Organizations(context.Background())
	require.NoError(t, err)

	require.Len(t, tree.Roots, 2)
	assert.Equal(t, "doe", tree.Roots[0].Key)
	assert.Equal(t, 1, tree.Roots[0].Stats.RecordCount)
	assert.Equal(t, 2, tree.Stats.RecordCount)
	require.Len(t, tree.Unattached, 1)
	assert.Equal(t, f.nasa.ID, tree.Unattached[0].ID)
}

type recordedObservation struct {
	operation string
	success   bool
}

type recordingMetrics struct {
	observations []recordedObservation
}

func (r *recordingMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	r.observations = append(r.observations, recordedObservation{op, success})
}

func TestRunRecordsMetrics(t *testing.T) {
	metrics := &recordingMetrics{}
	f := newFixture(t, WithMetricsRecorder(metrics))
	ctx := context.Background()

	_, err := f.svc.Incidents().Browse(ctx, url.Values{})
	require.NoError(t, err)
	_, err = f.svc.Incidents().Detail(ctx, "nope")
	require.Error(t, err)

	assert.Equal(t, []recordedObservation{
		{"browse_incidents", true},
		{"detail_incidents", false},
	}, metrics.observations)
}

func TestRulesEngineBlocksDuplicateSlugs(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Store().RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateAgencyProfile(AgencyProfile{AgencyName: "Copy", Slug: "department-of-energy"})
		return err
	})
	var blocked RuleViolationError
	require.ErrorAs(t, err, &blocked)
	assert.Contains(t, err.Error(), `slug "department-of-energy" already used`)
	assert.Len(t, f.svc.Store().ListAgencyProfiles(), 3)
}

func TestRulesEngineWarnsAboutUnknownParents(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Store().RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateOrganization(Organization{Name: "Lost Office", Slug: "lost", ParentRef: "Nowhere"})
		return err
	})
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, SeverityWarn, res.Violations[0].Severity)
	assert.Equal(t, "organization_parent", res.Violations[0].Rule)
}

func TestErrNotFoundIsComparable(t *testing.T) {
	err := error(ErrNotFound{Entity: EntityProduct, ID: "x"})
	assert.True(t, errors.Is(err, ErrNotFound{Entity: EntityProduct, ID: "x"}))
	assert.Equal(t, "product x not found", err.Error())
}
