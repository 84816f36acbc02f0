package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"fedaidash/pkg/domain"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fedaidash.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if _, ok, err := store.PersistedAt(ctx); err != nil || ok {
		t.Fatalf("expected no persisted stamp before first write, ok=%v err=%v", ok, err)
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		profile, err := tx.CreateAgencyProfile(domain.AgencyProfile{AgencyName: "Department of Energy", Slug: "department-of-energy"})
		if err != nil {
			return err
		}
		_, err = tx.CreateAgencyTool(domain.AgencyTool{AgencyProfileID: profile.ID, ProductName: "PowerChat", ProductType: domain.ProductStaffChatbot})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if _, ok, err := store.PersistedAt(ctx); err != nil || !ok {
		t.Fatalf("expected persisted stamp, ok=%v err=%v", ok, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	profiles := reopened.ListAgencyProfiles()
	if len(profiles) != 1 || profiles[0].ToolCount != 1 || !profiles[0].HasStaffChatbot {
		t.Fatalf("unexpected reloaded profiles %+v", profiles)
	}
	if reopened.Path() != path || reopened.DB() == nil {
		t.Fatalf("unexpected accessors")
	}
}

func TestFailedTransactionDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedaidash.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateAgencyTool(domain.AgencyTool{AgencyProfileID: "missing"})
		return err
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no persisted buckets, got %d", count)
	}
}

func createProfile(ctx context.Context, store *Store, name string) error {
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAgencyProfile(domain.AgencyProfile{AgencyName: name, Slug: domain.Slugify(name)})
		return err
	})
	return err
}

func TestFailedPersistKeepsPriorState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedaidash.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if err := createProfile(ctx, store, "Department of Energy"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for _, stmt := range []string{
		`CREATE TRIGGER block_insert BEFORE INSERT ON state BEGIN SELECT RAISE(ABORT, 'read only'); END`,
		`CREATE TRIGGER block_update BEFORE UPDATE ON state BEGIN SELECT RAISE(ABORT, 'read only'); END`,
	} {
		if _, err := store.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("trigger: %v", err)
		}
	}
	if err := createProfile(ctx, store, "NASA"); err == nil {
		t.Fatalf("expected persist failure")
	}
	if got := len(store.ListAgencyProfiles()); got != 1 {
		t.Fatalf("failed persist leaked into memory: %d profiles", got)
	}

	for _, stmt := range []string{`DROP TRIGGER block_insert`, `DROP TRIGGER block_update`} {
		if _, err := store.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("drop trigger: %v", err)
		}
	}
	if err := createProfile(ctx, store, "NASA"); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if got := len(store.ListAgencyProfiles()); got != 2 {
		t.Fatalf("expected two profiles after retry, got %d", got)
	}
}

func TestClosedDatabaseLeavesStoreUnchanged(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "fedaidash.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := createProfile(ctx, store, "Department of Energy"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.DB().Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := createProfile(ctx, store, "NASA"); err == nil {
		t.Fatalf("expected write to fail on a closed database")
	}
	if got := len(store.ListAgencyProfiles()); got != 1 {
		t.Fatalf("expected one profile, got %d", got)
	}
}

func TestWriteKeepsDataFromAnotherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedaidash.db")
	ctx := context.Background()
	server, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open server: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })

	cli, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open cli: %v", err)
	}
	if _, err := cli.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateProduct(domain.Product{FedRAMPID: "FR9", ProductName: "Imported"})
		return err
	}); err != nil {
		t.Fatalf("cli write: %v", err)
	}
	if err := cli.Close(); err != nil {
		t.Fatalf("close cli: %v", err)
	}

	if err := createProfile(ctx, server, "NASA"); err != nil {
		t.Fatalf("server write: %v", err)
	}
	if got := len(server.ListProducts()); got != 1 {
		t.Fatalf("server did not reload the imported product, products=%d", got)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	if got := len(reopened.ListProducts()); got != 1 {
		t.Fatalf("imported product lost, products=%d", got)
	}
	if got := len(reopened.ListAgencyProfiles()); got != 1 {
		t.Fatalf("server profile lost, profiles=%d", got)
	}
}

func TestRefreshPicksUpExternalWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fedaidash.db")
	ctx := context.Background()
	server, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open server: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })
	if changed, err := server.Refresh(ctx); err != nil || changed {
		t.Fatalf("unexpected refresh on idle database, changed=%v err=%v", changed, err)
	}

	cli, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open cli: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	if err := createProfile(ctx, cli, "Department of Energy"); err != nil {
		t.Fatalf("cli write: %v", err)
	}

	changed, err := server.Refresh(ctx)
	if err != nil || !changed {
		t.Fatalf("expected refresh to reload, changed=%v err=%v", changed, err)
	}
	if got := len(server.ListAgencyProfiles()); got != 1 {
		t.Fatalf("expected reloaded profile, got %d", got)
	}
}

func TestCommitRejectsConcurrentWriter(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "fedaidash.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if err := createProfile(ctx, store, "Department of Energy"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := store.DB().ExecContext(ctx, `UPDATE state_meta SET value='elsewhere' WHERE key='version'`); err != nil {
			return err
		}
		_, err := tx.CreateAgencyProfile(domain.AgencyProfile{AgencyName: "NASA", Slug: "nasa"})
		return err
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if got := len(store.ListAgencyProfiles()); got != 1 {
		t.Fatalf("rejected write leaked into memory: %d profiles", got)
	}
}
