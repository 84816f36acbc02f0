package core

import (
	"fmt"
	"slices"
)

// FilterKey names a categorical filter. Each catalog maps the keys it
// supports to a predicate; FilterAll is accepted everywhere.
type FilterKey string

// Filter keys shared by the browse catalogs.
const (
	FilterAll                FilterKey = "all"
	FilterStaffChatbot       FilterKey = "staff_chatbot"
	FilterCodingAssistant    FilterKey = "coding_assistant"
	FilterDocumentAutomation FilterKey = "document_automation"
	FilterAllStaff           FilterKey = "all_staff"
	FilterPilot              FilterKey = "pilot"
	FilterNoAssistant        FilterKey = "no_assistant"
	FilterSensitiveData      FilterKey = "sensitive_data"
	FilterGenAI              FilterKey = "genai"
	FilterLLM                FilterKey = "llm"
	FilterChatbot            FilterKey = "chatbot"
	FilterCoding             FilterKey = "coding"
	FilterClassicML          FilterKey = "classic_ml"
	FilterCommercial         FilterKey = "commercial"
	FilterCustomBuilt        FilterKey = "custom_built"
	FilterAI                 FilterKey = "ai"
	FilterUnreviewed         FilterKey = "unreviewed"
)

// Predicate reports whether a record satisfies a filter or capability.
type Predicate[T any] func(T) bool

// FilterDef binds a filter key to its predicate and the label used in export
// filenames.
type FilterDef[T any] struct {
	Key   FilterKey
	Label string
	Match Predicate[T]
}

// Capability is a named boolean attribute rolled up by the aggregator.
type Capability[T any] struct {
	Name string
	Has  Predicate[T]
}

// Column is one exported field.
type Column[T any] struct {
	Header string
	Value  func(T) string
}

// Catalog describes how one record collection is searched, filtered, sorted,
// aggregated, attached to organizations and exported.
type Catalog[T any] struct {
	Name         string
	ExportPrefix string
	SearchFields []func(T) string
	Filters      []FilterDef[T]
	// SortFields map a sort name to a text key. Numeric fields are encoded
	// with SortNumber so they order correctly as text.
	SortFields   map[string]func(T) string
	DefaultSort  string
	Capabilities []Capability[T]
	Columns      []Column[T]
	Slug         func(T) string
	// Attach returns the ordered organization references a record may attach
	// to. Nil means the collection has no hierarchy view.
	Attach func(T) []string
}

// Filter returns the definition for key.
func (c Catalog[T]) Filter(key FilterKey) (FilterDef[T], bool) {
	for _, def := range c.Filters {
		if def.Key == key {
			return def, true
		}
	}
	return FilterDef[T]{}, false
}

// ParseFilter maps raw URL input to a supported key, falling back to FilterAll.
func (c Catalog[T]) ParseFilter(raw string) FilterKey {
	if _, ok := c.Filter(FilterKey(raw)); ok {
		return FilterKey(raw)
	}
	return FilterAll
}

// FilterKeys lists FilterAll followed by the catalog's filters in order.
func (c Catalog[T]) FilterKeys() []FilterKey {
	keys := []FilterKey{FilterAll}
	for _, def := range c.Filters {
		keys = append(keys, def.Key)
	}
	return keys
}

// FilterLabel returns the export label for key.
func (c Catalog[T]) FilterLabel(key FilterKey) string {
	if def, ok := c.Filter(key); ok && def.Label != "" {
		return def.Label
	}
	if key == FilterAll || key == "" {
		return "all"
	}
	return string(key)
}

// SortNames returns the sortable field names in a stable order.
func (c Catalog[T]) SortNames() []string {
	names := make([]string, 0, len(c.SortFields))
	for name := range c.SortFields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Hierarchical reports whether records can be attached to organizations.
func (c Catalog[T]) Hierarchical() bool { return c.Attach != nil }

// ViewConfig derives the URL defaults and accepted values for the catalog.
func (c Catalog[T]) ViewConfig() ViewConfig {
	views := []ViewMode{ViewList}
	sortFields := c.SortNames()
	if c.Hierarchical() {
		views = append(views, ViewHierarchy)
		if _, taken := c.SortFields[NodeSortCount]; !taken {
			sortFields = append(sortFields, NodeSortCount)
		}
	}
	return ViewConfig{
		Defaults: ViewState{
			Filter:  FilterAll,
			Sort:    c.DefaultSort,
			Dir:     SortAsc,
			Page:    1,
			PerPage: DefaultPerPage,
			View:    ViewList,
		},
		Filters:    c.FilterKeys(),
		SortFields: sortFields,
		Views:      views,
	}
}

// SortNumber encodes n so that text comparison orders it numerically.
func SortNumber(n int) string {
	return fmt.Sprintf("%020d", uint64(int64(n))^(1<<63))
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
