package importer

import (
	"context"
	"io"
	"strings"

	"fedaidash/internal/core"
	"fedaidash/pkg/domain"
)

// LoadOrganizations replaces the organization hierarchy. Columns: id
// (optional), name, short_name, abbreviation, level, parent, slug (optional),
// is_active (optional, default true). Rows without a name are skipped.
func LoadOrganizations(ctx context.Context, store core.PersistentStore, r io.Reader) (Report, error) {
	rows, err := readRows(r)
	if err != nil {
		return Report{}, err
	}
	report := Report{Kind: KindOrganizations, Rows: len(rows)}
	used := map[string]bool{}
	err = replace(ctx, store, core.EntityOrganization, func(tx core.Transaction) error {
		for _, rec := range rows {
			name := rec.get("name")
			if name == "" {
				report.Skipped++
				continue
			}
			abbr := rec.get("abbreviation")
			slug := rec.get("slug")
			if slug == "" {
				slug = domain.Slugify(firstNonEmpty(abbr, name))
			}
			slug = domain.UniqueSlug(slug, func(s string) bool { return used[s] })
			used[slug] = true
			active := true
			if raw := rec.get("is_active"); raw != "" {
				active = parseBool(raw)
			}
			org := core.Organization{
				Base:         core.Base{ID: rec.get("id")},
				Name:         name,
				ShortName:    rec.get("short_name"),
				Abbreviation: abbr,
				Slug:         slug,
				Level:        parseLevel(rec.get("level")),
				ParentRef:    rec.get("parent", "parent_ref"),
				IsActive:     active,
			}
			if _, err := tx.CreateOrganization(org); err != nil {
				return err
			}
			report.Created++
		}
		return nil
	})
	return report, err
}

// parseLevel maps free-text levels such as "Sub Agency" onto the canonical
// values; unknown text yields the empty level.
func parseLevel(raw string) domain.OrgLevel {
	level := domain.OrgLevel(strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"), " ", "_"))
	if level == "subagency" {
		level = domain.LevelSubAgency
	}
	if !level.Valid() {
		return ""
	}
	return level
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
