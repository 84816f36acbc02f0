package core

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeViewStateDefaults(t *testing.T) {
	cfg := itemCatalog.ViewConfig()
	state := DecodeViewState(url.Values{}, cfg)
	if diff := cmp.Diff(cfg.Defaults, state); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeViewState(t *testing.T) {
	cfg := itemCatalog.ViewConfig()
	values, err := url.ParseQuery("q=chat&filter=hasX&sort=rank&dir=desc&page=3&perPage=50&view=hierarchy&expanded=sub2,dept,,sub2")
	require.NoError(t, err)

	want := ViewState{
		Query:    "chat",
		Filter:   filterHasX,
		Sort:     "rank",
		Dir:      SortDesc,
		Page:     3,
		PerPage:  50,
		View:     ViewHierarchy,
		Expanded: []string{"dept", "sub2"},
	}
	if diff := cmp.Diff(want, DecodeViewState(values, cfg)); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeViewStateFallsBack(t *testing.T) {
	cfg := itemCatalog.ViewConfig()
	cases := map[string]func(ViewState) any{
		"filter=bogus":    func(s ViewState) any { return s.Filter },
		"sort=bogus":      func(s ViewState) any { return s.Sort },
		"dir=sideways":    func(s ViewState) any { return s.Dir },
		"page=0":          func(s ViewState) any { return s.Page },
		"page=two":        func(s ViewState) any { return s.Page },
		"perPage=-4":      func(s ViewState) any { return s.PerPage },
		"perPage=lots":    func(s ViewState) any { return s.PerPage },
		"view=map":        func(s ViewState) any { return s.View },
		"expanded=,%20,":  func(s ViewState) any { return s.Expanded },
		"unrelated=value": func(s ViewState) any { return s },
	}
	defaults := DecodeViewState(url.Values{}, cfg)
	for raw, field := range cases {
		t.Run(raw, func(t *testing.T) {
			values, err := url.ParseQuery(raw)
			require.NoError(t, err)
			assert.Equal(t, field(defaults), field(DecodeViewState(values, cfg)))
		})
	}
}

func TestDecodeViewStatePerPage(t *testing.T) {
	cfg := itemCatalog.ViewConfig()
	all := DecodeViewState(url.Values{ParamPerPage: {"all"}}, cfg)
	assert.Equal(t, PerPageAll, all.PerPage)
	huge := DecodeViewState(url.Values{ParamPerPage: {"5000000"}}, cfg)
	assert.Equal(t, PerPageAll, huge.PerPage)
}

func TestEncodeOnlyWritesChanges(t *testing.T) {
	cfg := itemCatalog.ViewConfig()
	assert.Empty(t, cfg.Defaults.Encode(cfg))

	state := cfg.Defaults
	state.Filter = filterHasX
	state.PerPage = PerPageAll
	state.Expanded = []string{"b", "a"}
	assert.Equal(t, "expanded=a%2Cb&filter=hasX&perPage=all", state.Encode(cfg).Encode())
}

func TestViewStateRoundTrip(t *testing.T) {
	cfg := itemCatalog.ViewConfig()
	states := []ViewState{
		cfg.Defaults,
		{Query: "a b&c", Filter: filterHasX, Sort: "rank", Dir: SortDesc, Page: 4, PerPage: 10, View: ViewHierarchy, Expanded: []string{"x", "y"}},
		{Query: "", Filter: FilterAll, Sort: "name", Dir: SortAsc, Page: 1, PerPage: PerPageAll, View: ViewList},
		{Query: "ünïcode", Filter: FilterAll, Sort: NodeSortCount, Dir: SortDesc, Page: 2, PerPage: 1, View: ViewHierarchy, Expanded: []string{"k"}},
	}
	for _, state := range states {
		encoded := state.Encode(cfg).Encode()
		values, err := url.ParseQuery(encoded)
		require.NoError(t, err)
		if diff := cmp.Diff(state, DecodeViewState(values, cfg)); diff != "" {
			t.Errorf("round trip of %q (-want +got):\n%s", encoded, diff)
		}
	}
}

func TestReduce(t *testing.T) {
	start := itemCatalog.ViewConfig().Defaults
	start.Page = 5

	cases := []struct {
		name   string
		action ViewAction
		check  func(t *testing.T, s ViewState)
	}{
		{"set query resets page", SetQuery{Query: "x"}, func(t *testing.T, s ViewState) {
			assert.Equal(t, "x", s.Query)
			assert.Equal(t, 1, s.Page)
		}},
		{"set filter resets page", SetFilter{Filter: filterHasX}, func(t *testing.T, s ViewState) {
			assert.Equal(t, filterHasX, s.Filter)
			assert.Equal(t, 1, s.Page)
		}},
		{"toggle same field flips", ToggleSort{Field: "name"}, func(t *testing.T, s ViewState) {
			assert.Equal(t, SortDesc, s.Dir)
			assert.Equal(t, 5, s.Page)
		}},
		{"toggle new field ascends", ToggleSort{Field: "rank"}, func(t *testing.T, s ViewState) {
			assert.Equal(t, "rank", s.Sort)
			assert.Equal(t, SortAsc, s.Dir)
		}},
		{"set page floors at one", SetPage{Page: -2}, func(t *testing.T, s ViewState) {
			assert.Equal(t, 1, s.Page)
		}},
		{"set per page resets page", SetPerPage{PerPage: 10}, func(t *testing.T, s ViewState) {
			assert.Equal(t, 10, s.PerPage)
			assert.Equal(t, 1, s.Page)
		}},
		{"set per page clamps", SetPerPage{PerPage: PerPageAll * 2}, func(t *testing.T, s ViewState) {
			assert.Equal(t, PerPageAll, s.PerPage)
		}},
		{"set view keeps page", SetView{View: ViewHierarchy}, func(t *testing.T, s ViewState) {
			assert.Equal(t, ViewHierarchy, s.View)
			assert.Equal(t, 5, s.Page)
		}},
		{"expand all dedupes", ExpandAll{Keys: []string{"b", "a", "b"}}, func(t *testing.T, s ViewState) {
			assert.Equal(t, []string{"a", "b"}, s.Expanded)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, Reduce(start, tc.action))
		})
	}
}

func TestReduceExpansion(t *testing.T) {
	s := itemCatalog.ViewConfig().Defaults
	s = Reduce(s, ToggleExpanded{Key: "b"})
	s = Reduce(s, ToggleExpanded{Key: "a"})
	assert.Equal(t, []string{"a", "b"}, s.Expanded)
	assert.True(t, s.IsExpanded("a"))

	before := s
	s = Reduce(s, ToggleExpanded{Key: "a"})
	assert.Equal(t, []string{"b"}, s.Expanded)
	assert.Equal(t, []string{"a", "b"}, before.Expanded, "reduce does not modify its input")

	s = Reduce(s, CollapseAll{})
	assert.Empty(t, s.Expanded)
	assert.False(t, s.IsExpanded("b"))
}

func TestSynchronizerWritesOnlyAfterHydrate(t *testing.T) {
	cfg := itemCatalog.ViewConfig()
	var writes []string
	sync := NewSynchronizer(cfg, func(q string) { writes = append(writes, q) })

	sync.Dispatch(SetQuery{Query: "early"})
	assert.Empty(t, writes)
	assert.False(t, sync.Initialized())

	state := sync.Hydrate(url.Values{ParamFilter: {"hasX"}, ParamPage: {"3"}})
	assert.True(t, sync.Initialized())
	assert.Empty(t, state.Query, "hydrate replaces pre-hydration state")
	assert.Equal(t, 3, state.Page)
	assert.Empty(t, writes)

	sync.Dispatch(SetPage{Page: 4})
	sync.Dispatch(ToggleSort{Field: "name"})
	assert.Equal(t, []string{
		"filter=hasX&page=4",
		"dir=desc&filter=hasX&page=4",
	}, writes)
	assert.Equal(t, writes[1], sync.Query())
	assert.Equal(t, SortDesc, sync.State().Dir)
}
