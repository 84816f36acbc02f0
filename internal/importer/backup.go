package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"fedaidash/internal/blob"
	"fedaidash/internal/core"
)

// Backup layout inside the blob store.
const (
	BackupRoot      = "backups/"
	metadataFile    = "_metadata.json.gz"
	tableSuffix     = ".json.gz"
	gzipContentType = "application/gzip"
)

// Backup tables in restore order.
const (
	TableOrganizations  = "organizations"
	TableProfiles       = "agency_profiles"
	TableTools          = "agency_tools"
	TableProducts       = "products"
	TableAuthorizations = "product_authorizations"
	TableIncidents      = "incidents"
	TableUseCases       = "use_cases"
)

// Tables lists the backed-up tables in restore order.
func Tables() []string {
	return []string{TableOrganizations, TableProfiles, TableTools, TableProducts, TableAuthorizations, TableIncidents, TableUseCases}
}

// Metadata describes one backup.
type Metadata struct {
	ExportDate   time.Time      `json:"export_date"`
	Tables       []string       `json:"tables_exported"`
	Counts       map[string]int `json:"counts"`
	TotalRecords int            `json:"total_records"`
}

// Manifest locates a written backup.
type Manifest struct {
	Prefix   string   `json:"prefix"`
	Metadata Metadata `json:"metadata"`
}

type tableDump struct {
	name    string
	records any
	n       int
}

func dumpTables(ctx context.Context, store core.PersistentStore) ([]tableDump, error) {
	var dumps []tableDump
	err := store.View(ctx, func(v core.TransactionView) error {
		orgs := v.ListOrganizations()
		profiles := v.ListAgencyProfiles()
		tools := v.ListAgencyTools()
		products := v.ListProducts()
		auths := v.ListAuthorizations()
		incidents := v.ListIncidents()
		useCases := v.ListUseCases()
		dumps = []tableDump{
			{TableOrganizations, orgs, len(orgs)},
			{TableProfiles, profiles, len(profiles)},
			{TableTools, tools, len(tools)},
			{TableProducts, products, len(products)},
			{TableAuthorizations, auths, len(auths)},
			{TableIncidents, incidents, len(incidents)},
			{TableUseCases, useCases, len(useCases)},
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	return dumps, nil
}

// Backup writes every table as gzip-compressed JSON under
// backups/<timestamp>/ followed by the metadata file. The metadata file is
// written last, so a backup without one is incomplete.
func Backup(ctx context.Context, store core.PersistentStore, blobs blob.Store, now time.Time) (Manifest, error) {
	now = now.UTC()
	prefix := BackupRoot + now.Format("20060102T150405Z") + "/"
	dumps, err := dumpTables(ctx, store)
	if err != nil {
		return Manifest{}, err
	}
	meta := Metadata{ExportDate: now, Tables: Tables(), Counts: map[string]int{}}
	for _, table := range dumps {
		key := prefix + table.name + tableSuffix
		if err := putGzipJSON(ctx, blobs, key, table.records, map[string]string{"records": strconv.Itoa(table.n)}); err != nil {
			return Manifest{}, err
		}
		meta.Counts[table.name] = table.n
		meta.TotalRecords += table.n
	}
	if err := putGzipJSON(ctx, blobs, prefix+metadataFile, meta, nil); err != nil {
		return Manifest{}, err
	}
	return Manifest{Prefix: prefix, Metadata: meta}, nil
}

func putGzipJSON(ctx context.Context, blobs blob.Store, key string, v any, metadata map[string]string) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress %s: %w", key, err)
	}
	if _, err := blobs.Put(ctx, key, &buf, blob.PutOptions{ContentType: gzipContentType, Metadata: metadata}); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func getGzipJSON(ctx context.Context, blobs blob.Store, key string, v any) error {
	_, body, err := blobs.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	defer body.Close()
	zr, err := gzip.NewReader(body)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", key, err)
	}
	defer zr.Close()
	if err := json.NewDecoder(zr).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// ErrNoBackup is returned by LatestBackup when no complete backup exists.
var ErrNoBackup = errors.New("no backup found")

// LatestBackup returns the prefix of the newest complete backup.
func LatestBackup(ctx context.Context, blobs blob.Store) (string, error) {
	infos, err := blobs.List(ctx, BackupRoot)
	if err != nil {
		return "", fmt.Errorf("list backups: %w", err)
	}
	var prefixes []string
	for _, info := range infos {
		if path.Base(info.Key) == metadataFile {
			prefixes = append(prefixes, strings.TrimSuffix(info.Key, metadataFile))
		}
	}
	if len(prefixes) == 0 {
		return "", ErrNoBackup
	}
	return slices.Max(prefixes), nil
}

type backupData struct {
	orgs           []core.Organization
	profiles       []core.AgencyProfile
	tools          []core.AgencyTool
	products       []core.Product
	authorizations []core.ProductAuthorization
	incidents      []core.Incident
	useCases       []core.UseCase
}

// Restore replaces the whole store with the backup under prefix. IDs and
// timestamps are kept. Tables missing from the metadata restore as empty.
func Restore(ctx context.Context, store core.PersistentStore, blobs blob.Store, prefix string) (Metadata, error) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var meta Metadata
	if err := getGzipJSON(ctx, blobs, prefix+metadataFile, &meta); err != nil {
		return Metadata{}, err
	}
	var data backupData
	targets := map[string]any{
		TableOrganizations:  &data.orgs,
		TableProfiles:       &data.profiles,
		TableTools:          &data.tools,
		TableProducts:       &data.products,
		TableAuthorizations: &data.authorizations,
		TableIncidents:      &data.incidents,
		TableUseCases:       &data.useCases,
	}
	for _, table := range meta.Tables {
		target, ok := targets[table]
		if !ok {
			continue
		}
		if err := getGzipJSON(ctx, blobs, prefix+table+tableSuffix, target); err != nil {
			return Metadata{}, err
		}
	}

	_, err := store.RunInTransaction(ctx, func(tx core.Transaction) error {
		for _, entity := range []core.EntityType{
			core.EntityUseCase, core.EntityIncident, core.EntityAuthorization,
			core.EntityProduct, core.EntityAgencyProfile, core.EntityOrganization,
		} {
			if err := tx.Truncate(entity); err != nil {
				return err
			}
		}
		return data.load(tx)
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("restore %s: %w", prefix, err)
	}
	return meta, nil
}

func (d backupData) load(tx core.Transaction) error {
	for _, o := range d.orgs {
		if _, err := tx.CreateOrganization(o); err != nil {
			return err
		}
	}
	for _, p := range d.profiles {
		if _, err := tx.CreateAgencyProfile(p); err != nil {
			return err
		}
	}
	for _, t := range d.tools {
		if _, err := tx.CreateAgencyTool(t); err != nil {
			return err
		}
	}
	for _, p := range d.products {
		if _, err := tx.CreateProduct(p); err != nil {
			return err
		}
	}
	for _, a := range d.authorizations {
		if _, err := tx.CreateAuthorization(a); err != nil {
			return err
		}
	}
	for _, i := range d.incidents {
		if _, err := tx.CreateIncident(i); err != nil {
			return err
		}
	}
	for _, u := range d.useCases {
		if _, err := tx.CreateUseCase(u); err != nil {
			return err
		}
	}
	return nil
}
