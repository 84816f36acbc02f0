package core

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// ViewMode selects between the flat list and the organization hierarchy.
type ViewMode string

// View modes.
const (
	ViewList      ViewMode = "list"
	ViewHierarchy ViewMode = "hierarchy"
)

// URL parameter names.
const (
	ParamQuery    = "q"
	ParamFilter   = "filter"
	ParamSort     = "sort"
	ParamDir      = "dir"
	ParamPage     = "page"
	ParamPerPage  = "perPage"
	ParamView     = "view"
	ParamExpanded = "expanded"

	perPageAllToken = "all"
)

// ViewState is the complete, serializable state of a browse view. Expanded
// is kept sorted and free of duplicates.
type ViewState struct {
	Query    string    `json:"q"`
	Filter   FilterKey `json:"filter"`
	Sort     string    `json:"sort"`
	Dir      SortDir   `json:"dir"`
	Page     int       `json:"page"`
	PerPage  int       `json:"per_page"`
	View     ViewMode  `json:"view"`
	Expanded []string  `json:"expanded"`
}

// ViewConfig holds a view's defaults and the values it accepts from a URL.
type ViewConfig struct {
	Defaults   ViewState
	Filters    []FilterKey
	SortFields []string
	Views      []ViewMode
}

// IsExpanded reports whether key is in the expanded set.
func (s ViewState) IsExpanded(key string) bool {
	_, found := slices.BinarySearch(s.Expanded, key)
	return found
}

// normalizeKeys trims, sorts and dedupes keys; an empty result is nil.
func normalizeKeys(keys []string) []string {
	var out []string
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// DecodeViewState parses URL parameters. Absent, unknown or unparseable
// values fall back to the configured defaults.
func DecodeViewState(values url.Values, cfg ViewConfig) ViewState {
	state := cfg.Defaults
	if values.Has(ParamQuery) {
		state.Query = values.Get(ParamQuery)
	}
	if raw := FilterKey(values.Get(ParamFilter)); slices.Contains(cfg.Filters, raw) {
		state.Filter = raw
	}
	if raw := values.Get(ParamSort); slices.Contains(cfg.SortFields, raw) {
		state.Sort = raw
	}
	switch SortDir(values.Get(ParamDir)) {
	case SortAsc:
		state.Dir = SortAsc
	case SortDesc:
		state.Dir = SortDesc
	}
	if page, err := strconv.Atoi(values.Get(ParamPage)); err == nil && page >= 1 {
		state.Page = page
	}
	if raw := values.Get(ParamPerPage); raw == perPageAllToken {
		state.PerPage = PerPageAll
	} else if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
		state.PerPage = min(n, PerPageAll)
	}
	if raw := ViewMode(values.Get(ParamView)); slices.Contains(cfg.Views, raw) {
		state.View = raw
	}
	state.Expanded = normalizeKeys(strings.Split(values.Get(ParamExpanded), ","))
	if state.Expanded == nil {
		state.Expanded = normalizeKeys(cfg.Defaults.Expanded)
	}
	return state
}

// Encode writes only the fields that differ from the defaults.
func (s ViewState) Encode(cfg ViewConfig) url.Values {
	d := cfg.Defaults
	values := url.Values{}
	if s.Query != d.Query {
		values.Set(ParamQuery, s.Query)
	}
	if s.Filter != d.Filter {
		values.Set(ParamFilter, string(s.Filter))
	}
	if s.Sort != d.Sort {
		values.Set(ParamSort, s.Sort)
	}
	if s.Dir != d.Dir {
		values.Set(ParamDir, string(s.Dir))
	}
	if s.Page != d.Page {
		values.Set(ParamPage, strconv.Itoa(s.Page))
	}
	if s.PerPage != d.PerPage {
		if s.PerPage >= PerPageAll {
			values.Set(ParamPerPage, perPageAllToken)
		} else {
			values.Set(ParamPerPage, strconv.Itoa(s.PerPage))
		}
	}
	if s.View != d.View {
		values.Set(ParamView, string(s.View))
	}
	if expanded := normalizeKeys(s.Expanded); !slices.Equal(expanded, normalizeKeys(d.Expanded)) {
		values.Set(ParamExpanded, strings.Join(expanded, ","))
	}
	return values
}

// ViewAction is a state transition applied by Reduce.
type ViewAction interface {
	viewAction()
}

type (
	// SetQuery replaces the search text and returns to page 1.
	SetQuery struct{ Query string }
	// SetFilter selects a filter key and returns to page 1.
	SetFilter struct{ Filter FilterKey }
	// ToggleSort selects a sort field, flipping direction when it is already selected.
	ToggleSort struct{ Field string }
	// SetPage moves to a page; values below 1 become 1.
	SetPage struct{ Page int }
	// SetPerPage changes the page size and returns to page 1.
	SetPerPage struct{ PerPage int }
	// SetView switches view mode.
	SetView struct{ View ViewMode }
	// ToggleExpanded expands or collapses one node.
	ToggleExpanded struct{ Key string }
	// ExpandAll expands the given nodes.
	ExpandAll struct{ Keys []string }
	// CollapseAll clears the expanded set.
	CollapseAll struct{}
)

func (SetQuery) viewAction()       {}
func (SetFilter) viewAction()      {}
func (ToggleSort) viewAction()     {}
func (SetPage) viewAction()        {}
func (SetPerPage) viewAction()     {}
func (SetView) viewAction()        {}
func (ToggleExpanded) viewAction() {}
func (ExpandAll) viewAction()      {}
func (CollapseAll) viewAction()    {}

// Reduce applies action to state and returns the new state. state is not
// modified.
func Reduce(state ViewState, action ViewAction) ViewState {
	next := state
	next.Expanded = slices.Clone(state.Expanded)
	switch a := action.(type) {
	case SetQuery:
		next.Query = a.Query
		next.Page = 1
	case SetFilter:
		next.Filter = a.Filter
		next.Page = 1
	case ToggleSort:
		next.Dir = ToggleSortDir(state.Sort, state.Dir, a.Field)
		next.Sort = a.Field
	case SetPage:
		next.Page = max(a.Page, 1)
	case SetPerPage:
		next.PerPage = min(max(a.PerPage, 1), PerPageAll)
		next.Page = 1
	case SetView:
		next.View = a.View
	case ToggleExpanded:
		if i, found := slices.BinarySearch(next.Expanded, a.Key); found {
			next.Expanded = slices.Delete(next.Expanded, i, i+1)
		} else {
			next.Expanded = normalizeKeys(append(next.Expanded, a.Key))
		}
	case ExpandAll:
		next.Expanded = normalizeKeys(append(next.Expanded, a.Keys...))
	case CollapseAll:
		next.Expanded = nil
	}
	return next
}

// Synchronizer owns one view's state and mirrors it into a URL. Changes are
// written through replace, never pushed, and nothing is written until
// Hydrate has read the initial URL.
type Synchronizer struct {
	cfg         ViewConfig
	state       ViewState
	initialized bool
	replace     func(query string)
}

// NewSynchronizer returns a synchronizer holding the configured defaults.
func NewSynchronizer(cfg ViewConfig, replace func(query string)) *Synchronizer {
	state := cfg.Defaults
	state.Expanded = normalizeKeys(state.Expanded)
	return &Synchronizer{cfg: cfg, state: state, replace: replace}
}

// Hydrate parses the initial URL parameters and enables write-back.
func (s *Synchronizer) Hydrate(values url.Values) ViewState {
	s.state = DecodeViewState(values, s.cfg)
	s.initialized = true
	return s.state
}

// Dispatch reduces action into the state and, once hydrated, replaces the
// URL with the canonical query.
func (s *Synchronizer) Dispatch(action ViewAction) ViewState {
	s.state = Reduce(s.state, action)
	if s.initialized && s.replace != nil {
		s.replace(s.Query())
	}
	return s.state
}

// State returns the current state.
func (s *Synchronizer) State() ViewState { return s.state }

// Initialized reports whether Hydrate has run.
func (s *Synchronizer) Initialized() bool { return s.initialized }

// Query returns the canonical query string for the current state.
func (s *Synchronizer) Query() string {
	return s.state.Encode(s.cfg).Encode()
}
