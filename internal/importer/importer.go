// Package importer loads the published source datasets into the record store
// and moves whole-store backups in and out of blob storage.
//
// Every loader replaces the collection it owns inside one transaction, so a
// failed load leaves the previous data in place.
package importer

import (
	"context"
	"fmt"
	"io"
	"slices"

	"fedaidash/internal/core"
)

// Kind names a loadable dataset.
type Kind string

// Loadable datasets, in the order a full import should run them.
const (
	KindOrganizations  Kind = "organizations"
	KindAgencyTools    Kind = "tools"
	KindProducts       Kind = "products"
	KindAuthorizations Kind = "authorizations"
	KindIncidents      Kind = "incidents"
	KindUseCases       Kind = "use-cases"
)

// Kinds lists every loadable dataset in dependency order.
func Kinds() []Kind {
	return []Kind{KindOrganizations, KindAgencyTools, KindProducts, KindAuthorizations, KindIncidents, KindUseCases}
}

// ParseKind validates a dataset name.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(raw)
	if !slices.Contains(Kinds(), kind) {
		return "", fmt.Errorf("unknown dataset %q", raw)
	}
	return kind, nil
}

// NameCount is an unmatched agency name and how often it appeared.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Report summarizes one load.
type Report struct {
	Kind       Kind `json:"kind"`
	Rows       int  `json:"rows"`
	Created    int  `json:"created"`
	Skipped    int  `json:"skipped"`
	Duplicates int  `json:"duplicates,omitempty"`
	// Matched and Unmatched count records that did or did not resolve to an
	// organization.
	Matched      int         `json:"matched"`
	Unmatched    int         `json:"unmatched"`
	TopUnmatched []NameCount `json:"top_unmatched,omitempty"`
}

// Load runs the loader for kind.
func Load(ctx context.Context, store core.PersistentStore, kind Kind, r io.Reader) (Report, error) {
	switch kind {
	case KindOrganizations:
		return LoadOrganizations(ctx, store, r)
	case KindAgencyTools:
		return LoadAgencyTools(ctx, store, r)
	case KindProducts:
		return LoadProducts(ctx, store, r)
	case KindAuthorizations:
		return ImportAuthorizations(ctx, store, r)
	case KindIncidents:
		return LoadIncidents(ctx, store, r)
	case KindUseCases:
		return LoadUseCases(ctx, store, r)
	default:
		return Report{}, fmt.Errorf("unknown dataset %q", kind)
	}
}

// replace truncates entity and runs fill in the same transaction.
func replace(ctx context.Context, store core.PersistentStore, entity core.EntityType, fill func(core.Transaction) error) error {
	_, err := store.RunInTransaction(ctx, func(tx core.Transaction) error {
		if err := tx.Truncate(entity); err != nil {
			return err
		}
		return fill(tx)
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", entity, err)
	}
	return nil
}

// unmatchedTracker counts agency names that resolved to no organization.
type unmatchedTracker map[string]int

func (u unmatchedTracker) add(report *Report, matched bool, name string) {
	if matched {
		report.Matched++
		return
	}
	report.Unmatched++
	if name != "" {
		u[name]++
	}
}

// top returns the n most frequent names, ties broken alphabetically.
func (u unmatchedTracker) top(n int) []NameCount {
	out := make([]NameCount, 0, len(u))
	for name, count := range u {
		out = append(out, NameCount{Name: name, Count: count})
	}
	slices.SortFunc(out, func(a, b NameCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// topUnmatchedLimit bounds Report.TopUnmatched.
const topUnmatchedLimit = 20
