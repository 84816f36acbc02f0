package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fedaidash/internal/blob"
	"fedaidash/internal/core"
)

func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := newStore(t)
	seedOrganizations(t, source)
	_, err := LoadAgencyTools(ctx, source, strings.NewReader(toolsCSV))
	require.NoError(t, err)

	blobs := blob.NewMemory()
	now := time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)
	manifest, err := Backup(ctx, source, blobs, now)
	require.NoError(t, err)
	assert.Equal(t, "backups/20251103T093000Z/", manifest.Prefix)
	assert.Equal(t, 3, manifest.Metadata.Counts[TableOrganizations])
	assert.Equal(t, 3, manifest.Metadata.Counts[TableProfiles])
	assert.Equal(t, 2, manifest.Metadata.Counts[TableTools])
	assert.Equal(t, 8, manifest.Metadata.TotalRecords)

	infos, err := blobs.List(ctx, manifest.Prefix)
	require.NoError(t, err)
	require.Len(t, infos, len(Tables())+1)
	for _, info := range infos {
		assert.Equal(t, gzipContentType, info.ContentType, info.Key)
	}

	target := newStore(t)
	_, err = LoadIncidents(ctx, target, strings.NewReader("title\nStale incident\n"))
	require.NoError(t, err)

	meta, err := Restore(ctx, target, blobs, strings.TrimSuffix(manifest.Prefix, "/"))
	require.NoError(t, err)
	assert.Equal(t, manifest.Metadata.TotalRecords, meta.TotalRecords)
	assert.True(t, now.Equal(meta.ExportDate))

	if diff := cmp.Diff(source.ListOrganizations(), target.ListOrganizations()); diff != "" {
		t.Fatalf("organizations mismatch (-source +restored):\n%s", diff)
	}
	if diff := cmp.Diff(source.ListAgencyProfiles(), target.ListAgencyProfiles()); diff != "" {
		t.Fatalf("profiles mismatch (-source +restored):\n%s", diff)
	}
	if diff := cmp.Diff(source.ListAgencyTools(), target.ListAgencyTools()); diff != "" {
		t.Fatalf("tools mismatch (-source +restored):\n%s", diff)
	}
	assert.Empty(t, target.ListIncidents(), "restore replaces every table")
}

func TestLatestBackup(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	_, err := LatestBackup(ctx, blobs)
	require.ErrorIs(t, err, ErrNoBackup)

	store := newStore(t)
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{first.Add(48 * time.Hour), first} {
		_, err := Backup(ctx, store, blobs, at)
		require.NoError(t, err)
	}
	// A table without metadata is an interrupted backup and must be ignored.
	_, err = blobs.Put(ctx, "backups/20991231T000000Z/organizations.json.gz", strings.NewReader("x"), blob.PutOptions{})
	require.NoError(t, err)

	latest, err := LatestBackup(ctx, blobs)
	require.NoError(t, err)
	assert.Equal(t, "backups/20250103T000000Z/", latest)

	_, err = Backup(ctx, store, blobs, first)
	require.ErrorIs(t, err, blob.ErrExists, "backups are never overwritten")
}

func TestRestoreMissingBackup(t *testing.T) {
	_, err := Restore(context.Background(), newStore(t), blob.NewMemory(), "backups/none")
	require.ErrorIs(t, err, blob.ErrNotFound)
}

// transactionalOnly forbids the store's direct list reads, so every read has
// to come from a single view or transaction snapshot.
type transactionalOnly struct {
	core.PersistentStore
}

func (transactionalOnly) ListOrganizations() []core.Organization   { panic("direct read") }
func (transactionalOnly) ListAgencyProfiles() []core.AgencyProfile { panic("direct read") }
func (transactionalOnly) ListAgencyTools() []core.AgencyTool       { panic("direct read") }
func (transactionalOnly) ListProducts() []core.Product             { panic("direct read") }
func (transactionalOnly) ListAuthorizations() []core.ProductAuthorization {
	panic("direct read")
}
func (transactionalOnly) ListIncidents() []core.Incident { panic("direct read") }
func (transactionalOnly) ListUseCases() []core.UseCase   { panic("direct read") }

func TestBackupReadsOneSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedOrganizations(t, store)
	_, err := LoadAgencyTools(ctx, store, strings.NewReader(toolsCSV))
	require.NoError(t, err)

	blobs := blob.NewMemory()
	manifest, err := Backup(ctx, transactionalOnly{store}, blobs, time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, manifest.Metadata.Counts[TableTools])
	assert.Equal(t, 8, manifest.Metadata.TotalRecords)
}
