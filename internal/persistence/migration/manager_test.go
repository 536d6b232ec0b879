package migration

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
)

type fakeExecutor struct {
	applied []AppliedMigration
	failOn  int
	ran     []int
}

func (f *fakeExecutor) InitializeVersionTable(context.Context) error { return nil }

func (f *fakeExecutor) ExecuteMigration(_ context.Context, m Migration) error {
	if m.Version == f.failOn {
		return errors.New("boom")
	}
	f.ran = append(f.ran, m.Version)
	f.applied = append(f.applied, AppliedMigration{Version: m.Version, Checksum: m.Checksum})
	return nil
}

func (f *fakeExecutor) AppliedMigrations(context.Context) ([]AppliedMigration, error) {
	return append([]AppliedMigration(nil), f.applied...), nil
}

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"0001_first.sql":  {Data: []byte("CREATE TABLE a (x INT);")},
		"0002_second.sql": {Data: []byte("CREATE TABLE b (x INT);")},
		"0003_third.sql":  {Data: []byte("CREATE TABLE c (x INT);")},
	}
}

func TestManager_Run(t *testing.T) {
	t.Parallel()

	t.Run("applies pending migrations once", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{}
		manager := NewManager(NewScanner(testFS(), "."), exec, nil)

		n, err := manager.Run(context.Background())
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if n != 3 || len(exec.ran) != 3 {
			t.Fatalf("expected 3 applied migrations, got %d (%v)", n, exec.ran)
		}

		n, err = manager.Run(context.Background())
		if err != nil || n != 0 {
			t.Fatalf("expected no-op second run, got %d, %v", n, err)
		}

		status, err := manager.Status(context.Background())
		if err != nil {
			t.Fatalf("Status returned error: %v", err)
		}
		if status.CurrentVersion != 3 || len(status.Pending) != 0 {
			t.Fatalf("unexpected status: %+v", status)
		}
	})

	t.Run("stops at the failing migration", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{failOn: 2}
		n, err := NewManager(NewScanner(testFS(), "."), exec, nil).Run(context.Background())
		if !errors.Is(err, ErrMigrationFailed) {
			t.Fatalf("expected ErrMigrationFailed, got %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 applied migration, got %d", n)
		}
	})

	t.Run("detects gaps in the sequence", func(t *testing.T) {
		t.Parallel()
		fsys := testFS()
		delete(fsys, "0002_second.sql")
		_, err := NewManager(NewScanner(fsys, "."), &fakeExecutor{}, nil).Run(context.Background())
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("detects applied versions without a file", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{applied: []AppliedMigration{{Version: 9}}}
		_, err := NewManager(NewScanner(testFS(), "."), exec, nil).Run(context.Background())
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("detects edited migrations", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{applied: []AppliedMigration{{Version: 1, Checksum: "stale"}}}
		_, err := NewManager(NewScanner(testFS(), "."), exec, nil).Run(context.Background())
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("expected ErrChecksumMismatch, got %v", err)
		}
	})
}
