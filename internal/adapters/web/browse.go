package web

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"fedaidash/internal/core"
)

// registerCollection mounts the browse, export, view and detail routes of
// one collection under /<name>.
func registerCollection[T any](g *gin.RouterGroup, coll core.Collection[T]) {
	r := g.Group("/" + coll.Name())

	r.GET("", func(c *gin.Context) {
		res, err := coll.Browse(c.Request.Context(), c.Request.URL.Query())
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	r.GET("/export", func(c *gin.Context) {
		values := c.Request.URL.Query()
		format := core.ParseExportFormat(values.Get("format"))
		file, err := coll.Export(c.Request.Context(), values, format)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
		c.Data(http.StatusOK, file.ContentType, file.Body)
	})

	r.POST("/view", func(c *gin.Context) {
		var req viewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid request body")
			return
		}
		values, err := url.ParseQuery(req.Query)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid query")
			return
		}
		actions, err := req.viewActions()
		if err != nil {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		res, err := coll.Apply(c.Request.Context(), values, actions...)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	r.GET("/:slug", func(c *gin.Context) {
		record, err := coll.Detail(c.Request.Context(), c.Param("slug"))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	})
}

// viewRequest carries the current URL query and the interactions to replay
// on top of it.
type viewRequest struct {
	Query   string       `json:"query"`
	Actions []actionJSON `json:"actions"`
}

type actionJSON struct {
	Type    string   `json:"type"`
	Query   string   `json:"query,omitempty"`
	Filter  string   `json:"filter,omitempty"`
	Field   string   `json:"field,omitempty"`
	Page    int      `json:"page,omitempty"`
	PerPage int      `json:"per_page,omitempty"`
	View    string   `json:"view,omitempty"`
	Key     string   `json:"key,omitempty"`
	Keys    []string `json:"keys,omitempty"`
}

// Action type names accepted by the view endpoint.
const (
	ActionSetQuery       = "set_query"
	ActionSetFilter      = "set_filter"
	ActionToggleSort     = "toggle_sort"
	ActionSetPage        = "set_page"
	ActionSetPerPage     = "set_per_page"
	ActionSetView        = "set_view"
	ActionToggleExpanded = "toggle_expanded"
	ActionExpandAll      = "expand_all"
	ActionCollapseAll    = "collapse_all"
)

func (r viewRequest) viewActions() ([]core.ViewAction, error) {
	out := make([]core.ViewAction, 0, len(r.Actions))
	for _, a := range r.Actions {
		var action core.ViewAction
		switch a.Type {
		case ActionSetQuery:
			action = core.SetQuery{Query: a.Query}
		case ActionSetFilter:
			action = core.SetFilter{Filter: core.FilterKey(a.Filter)}
		case ActionToggleSort:
			action = core.ToggleSort{Field: a.Field}
		case ActionSetPage:
			action = core.SetPage{Page: a.Page}
		case ActionSetPerPage:
			action = core.SetPerPage{PerPage: a.PerPage}
		case ActionSetView:
			action = core.SetView{View: core.ViewMode(a.View)}
		case ActionToggleExpanded:
			action = core.ToggleExpanded{Key: a.Key}
		case ActionExpandAll:
			action = core.ExpandAll{Keys: a.Keys}
		case ActionCollapseAll:
			action = core.CollapseAll{}
		default:
			return nil, fmt.Errorf("unknown action %q", a.Type)
		}
		out = append(out, action)
	}
	return out, nil
}
