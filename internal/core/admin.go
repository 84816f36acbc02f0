package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"fedaidash/internal/blob"
	"fedaidash/pkg/domain"
)

// ErrUnauthorized rejects admin actions without a valid session.
var ErrUnauthorized = errors.New("unauthorized")

// Authorizer decides whether the caller in ctx may mutate data.
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context) error

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context) error { return f(ctx) }

// ArchiveStore is the blob subset used to archive exports.
type ArchiveStore interface {
	Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error)
	PresignURL(ctx context.Context, key string, opts blob.SignedURLOptions) (string, error)
}

// ActionResult is the outcome of an admin action. Error holds a message safe
// to show to the caller.
type ActionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	ID      string `json:"id,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Action error messages.
const (
	MsgUnauthorized  = "unauthorized"
	MsgNotFound      = "not found"
	MsgRequestFailed = "request failed"
	MsgConflict      = "state changed by another writer, retry"
)

// InvalidInputError reports admin input that failed validation.
type InvalidInputError struct {
	Fields []string
}

func (e InvalidInputError) Error() string {
	return "invalid input: " + strings.Join(e.Fields, ", ")
}

// actionMessage maps err to the message returned to callers. Unexpected
// errors are hidden behind a generic message.
func actionMessage(err error) string {
	var notFound ErrNotFound
	var invalid InvalidInputError
	var blocked RuleViolationError
	switch {
	case errors.Is(err, ErrUnauthorized):
		return MsgUnauthorized
	case errors.As(err, &invalid):
		return invalid.Error()
	case errors.As(err, &notFound):
		return MsgNotFound
	case errors.As(err, &blocked):
		return blocked.Error()
	case errors.Is(err, ErrConflict):
		return MsgConflict
	default:
		return MsgRequestFailed
	}
}

// ToolInput is the editable part of an agency tool.
type ToolInput struct {
	AgencyProfileID         string             `json:"agency_profile_id" validate:"required"`
	ProductName             string             `json:"product_name" validate:"required,max=200"`
	ProductType             domain.ProductType `json:"product_type" validate:"required,oneof=staff_chatbot coding_assistant document_automation none_identified"`
	AvailableToAllStaff     string             `json:"available_to_all_staff" validate:"max=200"`
	IsPilotOrLimited        bool               `json:"is_pilot_or_limited"`
	CodingAssistantFlag     string             `json:"coding_assistant_flag" validate:"max=200"`
	InternalOrSensitiveData string             `json:"internal_or_sensitive_data" validate:"max=500"`
	CitationChicago         string             `json:"citation_chicago"`
	CitationAccessedDate    string             `json:"citation_accessed_date"`
	CitationURL             string             `json:"citation_url" validate:"omitempty,url"`
}

func (in ToolInput) apply(t *AgencyTool) {
	t.AgencyProfileID = in.AgencyProfileID
	t.ProductName = strings.TrimSpace(in.ProductName)
	t.ProductType = in.ProductType
	t.AvailableToAllStaff = in.AvailableToAllStaff
	t.IsPilotOrLimited = in.IsPilotOrLimited
	t.CodingAssistantFlag = in.CodingAssistantFlag
	t.InternalOrSensitiveData = in.InternalOrSensitiveData
	t.CitationChicago = in.CitationChicago
	t.CitationAccessedDate = in.CitationAccessedDate
	t.CitationURL = in.CitationURL
}

// ProfileInput is the editable part of an agency profile.
type ProfileInput struct {
	AgencyName          string                  `json:"agency_name" validate:"required,max=200"`
	Abbreviation        string                  `json:"abbreviation" validate:"max=20"`
	DepartmentLevelName string                  `json:"department_level_name" validate:"max=200"`
	ParentAbbreviation  string                  `json:"parent_abbreviation" validate:"max=20"`
	DeploymentStatus    domain.DeploymentStatus `json:"deployment_status" validate:"required,oneof=all_staff pilot_or_limited no_public_internal_assistant"`
	OrganizationID      *string                 `json:"organization_id"`
	Notes               string                  `json:"notes"`
}

func (in ProfileInput) apply(p *AgencyProfile) {
	p.AgencyName = strings.TrimSpace(in.AgencyName)
	p.Abbreviation = strings.TrimSpace(in.Abbreviation)
	p.DepartmentLevelName = in.DepartmentLevelName
	p.ParentAbbreviation = in.ParentAbbreviation
	p.DeploymentStatus = in.DeploymentStatus
	p.OrganizationID = in.OrganizationID
	p.Notes = in.Notes
}

func (s *Service) validateInput(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	invalid := InvalidInputError{}
	for _, fe := range fieldErrs {
		invalid.Fields = append(invalid.Fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return invalid
}

func (s *Service) authorize(ctx context.Context) error {
	if s.authorizer == nil {
		return ErrUnauthorized
	}
	if err := s.authorizer.Authorize(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// act runs an admin mutation: authorize, validate, execute, audit and drop
// cached browse results. Nothing is written when any step before execution
// fails. The cache is dropped even when execution fails, since a shared
// store may have reloaded state from other processes.
func (s *Service) act(ctx context.Context, op string, entity EntityType, input any, fn func(context.Context) (ActionResult, error)) ActionResult {
	start := time.Now()
	var res ActionResult
	err := s.authorize(ctx)
	if err == nil && input != nil {
		err = s.validateInput(input)
	}
	if err == nil {
		err = s.run(ctx, op, func(ctx context.Context) error {
			var runErr error
			res, runErr = fn(ctx)
			return runErr
		})
		s.Invalidate()
	}
	entry := AuditEntry{
		Operation:  op,
		Entity:     entity,
		EntityID:   res.ID,
		Status:     AuditStatusSuccess,
		Duration:   time.Since(start),
		RecordedAt: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.audit.Record(ctx, entry)
		return ActionResult{Error: actionMessage(err)}
	}
	s.audit.Record(ctx, entry)
	res.Success = true
	return res
}

func takenBy[T any](records []T, slug func(T) string, exceptID string, id func(T) string) func(string) bool {
	used := make(map[string]struct{}, len(records))
	for _, r := range records {
		if id(r) != exceptID {
			used[slug(r)] = struct{}{}
		}
	}
	return func(candidate string) bool {
		_, ok := used[candidate]
		return ok
	}
}

func profileSlug(p AgencyProfile) string { return p.Slug }
func profileID(p AgencyProfile) string   { return p.ID }
func toolSlug(t AgencyTool) string       { return t.Slug }
func toolID(t AgencyTool) string         { return t.ID }

// CreateProfile adds an agency profile with a unique slug.
func (s *Service) CreateProfile(ctx context.Context, input ProfileInput) ActionResult {
	return s.act(ctx, "create_profile", EntityAgencyProfile, input, func(context.Context) (ActionResult, error) {
		var created AgencyProfile
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var p AgencyProfile
			input.apply(&p)
			taken := takenBy(tx.Snapshot().ListAgencyProfiles(), profileSlug, "", profileID)
			p.Slug = domain.UniqueSlug(domain.Slugify(p.DisplayName()), taken)
			var err error
			created, err = tx.CreateAgencyProfile(p)
			return err
		})
		return ActionResult{ID: created.ID}, err
	})
}

// UpdateProfile replaces the editable fields of a profile. The slug is kept.
func (s *Service) UpdateProfile(ctx context.Context, id string, input ProfileInput) ActionResult {
	return s.act(ctx, "update_profile", EntityAgencyProfile, input, func(ctx context.Context) (ActionResult, error) {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.UpdateAgencyProfile(id, func(p *AgencyProfile) error {
				input.apply(p)
				return nil
			})
			return err
		})
		return ActionResult{ID: id}, err
	})
}

// DeleteProfile removes a profile and every tool it owns.
func (s *Service) DeleteProfile(ctx context.Context, id string) ActionResult {
	return s.act(ctx, "delete_profile", EntityAgencyProfile, nil, func(ctx context.Context) (ActionResult, error) {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteAgencyProfile(id)
		})
		return ActionResult{ID: id}, err
	})
}

// CreateTool adds a tool to an existing profile. The slug combines the
// profile slug and product name.
func (s *Service) CreateTool(ctx context.Context, input ToolInput) ActionResult {
	return s.act(ctx, "create_tool", EntityAgencyTool, input, func(ctx context.Context) (ActionResult, error) {
		var created AgencyTool
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			owner, ok := view.FindAgencyProfile(input.AgencyProfileID)
			if !ok {
				return ErrNotFound{Entity: EntityAgencyProfile, ID: input.AgencyProfileID}
			}
			var t AgencyTool
			input.apply(&t)
			taken := takenBy(view.ListAgencyTools(), toolSlug, "", toolID)
			t.Slug = domain.UniqueSlug(domain.Slugify(owner.Slug+" "+t.ProductName), taken)
			var err error
			created, err = tx.CreateAgencyTool(t)
			return err
		})
		return ActionResult{ID: created.ID}, err
	})
}

// UpdateTool replaces the editable fields of a tool. The slug is kept.
func (s *Service) UpdateTool(ctx context.Context, id string, input ToolInput) ActionResult {
	return s.act(ctx, "update_tool", EntityAgencyTool, input, func(ctx context.Context) (ActionResult, error) {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.UpdateAgencyTool(id, func(t *AgencyTool) error {
				input.apply(t)
				return nil
			})
			return err
		})
		return ActionResult{ID: id}, err
	})
}

// DeleteTool removes a tool.
func (s *Service) DeleteTool(ctx context.Context, id string) ActionResult {
	return s.act(ctx, "delete_tool", EntityAgencyTool, nil, func(ctx context.Context) (ActionResult, error) {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteAgencyTool(id)
		})
		return ActionResult{ID: id}, err
	})
}

// MarkProductReviewed stamps a product's review time with the service clock.
func (s *Service) MarkProductReviewed(ctx context.Context, id string) ActionResult {
	return s.act(ctx, "review_product", EntityProduct, nil, func(ctx context.Context) (ActionResult, error) {
		reviewed := s.clock.Now().UTC()
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			_, err := tx.UpdateProduct(id, func(p *Product) error {
				p.LastReviewedAt = &reviewed
				return nil
			})
			return err
		})
		return ActionResult{ID: id}, err
	})
}

// CollectionNames lists the browsable collections.
func CollectionNames() []string {
	return []string{AgencyCatalog.Name, ToolCatalog.Name, ProductCatalog.Name, IncidentCatalog.Name, UseCaseCatalog.Name}
}

// Export renders the named collection's current view.
func (s *Service) Export(ctx context.Context, collection string, values url.Values, format ExportFormat) (ExportFile, error) {
	switch collection {
	case AgencyCatalog.Name:
		return s.Agencies().Export(ctx, values, format)
	case ToolCatalog.Name:
		return s.Tools().Export(ctx, values, format)
	case ProductCatalog.Name:
		return s.Products().Export(ctx, values, format)
	case IncidentCatalog.Name:
		return s.Incidents().Export(ctx, values, format)
	case UseCaseCatalog.Name:
		return s.UseCases().Export(ctx, values, format)
	default:
		return ExportFile{}, ErrNotFound{Entity: "collection", ID: collection}
	}
}

// ArchiveRequest selects the view archived by ArchiveExport.
type ArchiveRequest struct {
	Collection string `json:"collection" validate:"required,oneof=agencies tools products incidents use-cases"`
	Query      string `json:"query"`
	Format     string `json:"format" validate:"omitempty,oneof=csv tsv"`
}

// ArchiveExport renders an export and stores it in the archive. The result
// carries the blob key as ID and a download URL when the store can sign one.
func (s *Service) ArchiveExport(ctx context.Context, req ArchiveRequest) ActionResult {
	return s.act(ctx, "archive_export", "", req, func(ctx context.Context) (ActionResult, error) {
		if s.archive == nil {
			return ActionResult{}, errors.New("archive store not configured")
		}
		values, err := url.ParseQuery(req.Query)
		if err != nil {
			return ActionResult{}, InvalidInputError{Fields: []string{"Query (query)"}}
		}
		file, err := s.Export(ctx, req.Collection, values, ParseExportFormat(req.Format))
		if err != nil {
			return ActionResult{}, err
		}
		key := fmt.Sprintf("exports/%s/%s-%s", req.Collection, uuid.NewString()[:8], file.Filename)
		if _, err := s.archive.Put(ctx, key, bytes.NewReader(file.Body), blob.PutOptions{
			ContentType: file.ContentType,
			Metadata:    map[string]string{"rows": fmt.Sprint(file.Rows)},
		}); err != nil {
			return ActionResult{}, fmt.Errorf("archive export: %w", err)
		}
		link, err := s.archive.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: 15 * time.Minute})
		if err != nil && !errors.Is(err, blob.ErrUnsupported) {
			return ActionResult{}, fmt.Errorf("presign export: %w", err)
		}
		return ActionResult{ID: key, URL: link}, nil
	})
}
