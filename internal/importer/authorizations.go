package importer

import (
	"context"
	"io"

	"fedaidash/internal/core"
)

// Marketplace authorization columns.
const (
	colFedRAMPID     = "FedRAMP ID"
	colParentAgency  = "Parent Agency"
	colSubAgency     = "Sub Agency"
	colATOIssuance   = "ATO Issuance Date"
	colATOExpiration = "ATO Expiration Date"
)

// Parent agency values that denote a program rather than an agency; rows
// carrying them are kept but never matched.
var nonAgencyParents = map[string]bool{
	"Legacy JAB Authorization":                           true,
	"Federal Risk and Authorization Management Program": true,
}

type authorizationKey struct {
	fedrampID, parent, sub string
}

// ImportAuthorizations replaces product authorizations from the FedRAMP
// marketplace export. Rows without an ID or parent agency are skipped and
// repeated (ID, parent, sub) triples are dropped. Each authorization is
// matched to an organization by sub agency first, then parent agency.
func ImportAuthorizations(ctx context.Context, store core.PersistentStore, r io.Reader) (Report, error) {
	rows, err := readRows(r)
	if err != nil {
		return Report{}, err
	}
	report := Report{Kind: KindAuthorizations, Rows: len(rows)}
	unmatched := unmatchedTracker{}
	seen := map[authorizationKey]bool{}

	err = replace(ctx, store, core.EntityAuthorization, func(tx core.Transaction) error {
		resolver := core.NewOrgResolver(tx.Snapshot().ListOrganizations())
		for _, rec := range rows {
			id := rec.get(colFedRAMPID, "fedramp_id")
			parent := rec.get(colParentAgency, "parent_agency")
			sub := rec.get(colSubAgency, "sub_agency")
			if id == "" || parent == "" {
				report.Skipped++
				continue
			}
			key := authorizationKey{id, parent, sub}
			if seen[key] {
				report.Duplicates++
				continue
			}
			seen[key] = true

			auth := core.ProductAuthorization{
				FedRAMPID:         id,
				ParentAgencyName:  parent,
				SubAgencyName:     sub,
				ATOIssuanceDate:   rec.get(colATOIssuance, "ato_issuance_date"),
				ATOExpirationDate: rec.get(colATOExpiration, "ato_expiration_date"),
			}
			var orgID string
			matched := false
			if !nonAgencyParents[parent] {
				orgID, matched = resolver.Resolve(sub, parent)
			}
			unmatched.add(&report, matched, firstNonEmpty(sub, parent))
			if matched {
				auth.OrganizationID = &orgID
			}
			if _, err := tx.CreateAuthorization(auth); err != nil {
				return err
			}
			report.Created++
		}
		return nil
	})
	report.TopUnmatched = unmatched.top(topUnmatchedLimit)
	return report, err
}
