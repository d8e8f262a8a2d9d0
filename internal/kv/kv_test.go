package kv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// backends returns one fresh instance of every backend.
func backends(t *testing.T) map[string]Backend {
	t.Helper()

	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	file, err := OpenFile(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlite.Close()
		_ = file.Close()
	})
	return map[string]Backend{"sqlite": sqlite, "file": file}
}

func TestBackend_GetMissing(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get(ctx, "pixel-tennis-data-v1")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestBackend_PutGetOverwrite(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Put(ctx, "doc", []byte(`{"level":1}`)); err != nil {
				t.Fatalf("Put() failed: %v", err)
			}
			if err := b.Put(ctx, "doc", []byte(`{"level":2}`)); err != nil {
				t.Fatalf("second Put() failed: %v", err)
			}
			got, err := b.Get(ctx, "doc")
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			if string(got) != `{"level":2}` {
				t.Errorf("Get() = %s, want overwritten value", got)
			}
		})
	}
}

func TestBackend_DeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Put(ctx, "queue", []byte(`[]`)); err != nil {
				t.Fatalf("Put() failed: %v", err)
			}
			if err := b.Delete(ctx, "queue"); err != nil {
				t.Fatalf("Delete() failed: %v", err)
			}
			if err := b.Delete(ctx, "queue"); err != nil {
				t.Errorf("second Delete() should be a no-op, got %v", err)
			}
			if _, err := b.Get(ctx, "queue"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() after Delete() = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestBackend_RejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "../escape", "a/b", ".lock"} {
				if err := b.Put(ctx, key, []byte("x")); err == nil {
					t.Errorf("Put(%q) should fail", key)
				}
			}
		})
	}
}

// handlePairs opens every backend twice on the same location, the way the
// daemon and a CLI invocation do.
func handlePairs(t *testing.T) map[string][2]Backend {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), SQLiteFilename)
	dir := t.TempDir()

	pairs := make(map[string][2]Backend)
	var sqlites, files [2]Backend
	for i := range 2 {
		db, err := OpenSQLite(dbPath)
		if err != nil {
			t.Fatalf("OpenSQLite() failed: %v", err)
		}
		f, err := OpenFile(dir)
		if err != nil {
			t.Fatalf("OpenFile() failed: %v", err)
		}
		sqlites[i], files[i] = db, f
	}
	t.Cleanup(func() {
		for i := range 2 {
			_ = sqlites[i].Close()
			_ = files[i].Close()
		}
	})
	pairs["sqlite"] = sqlites
	pairs["file"] = files
	return pairs
}

func TestBackend_UpdateIsAtomicAcrossHandles(t *testing.T) {
	ctx := context.Background()
	for name, pair := range handlePairs(t) {
		t.Run(name, func(t *testing.T) {
			const perHandle = 10
			var wg sync.WaitGroup
			errs := make(chan error, 2*perHandle)
			for _, b := range pair {
				for range perHandle {
					wg.Add(1)
					go func() {
						defer wg.Done()
						errs <- b.Update(ctx, "counter", func(old []byte) ([]byte, error) {
							n := 0
							if old != nil {
								var err error
								if n, err = strconv.Atoi(string(old)); err != nil {
									return nil, err
								}
							}
							return []byte(strconv.Itoa(n + 1)), nil
						})
					}()
				}
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					t.Fatalf("Update() failed: %v", err)
				}
			}

			got, err := pair[1].Get(ctx, "counter")
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			if string(got) != strconv.Itoa(2*perHandle) {
				t.Errorf("counter = %s, want %d (lost updates)", got, 2*perHandle)
			}
		})
	}
}

func TestBackend_UpdateErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := b.Put(ctx, "doc", []byte("before")); err != nil {
				t.Fatalf("Put() failed: %v", err)
			}
			err := b.Update(ctx, "doc", func(old []byte) ([]byte, error) {
				if string(old) != "before" {
					t.Errorf("Update() old = %q, want before", old)
				}
				return nil, boom
			})
			if !errors.Is(err, boom) {
				t.Errorf("Update() error = %v, want boom", err)
			}
			if got, _ := b.Get(ctx, "doc"); string(got) != "before" {
				t.Errorf("value after failed Update() = %q, want before", got)
			}

			// A missing key reaches fn as nil.
			if err := b.Update(ctx, "fresh", func(old []byte) ([]byte, error) {
				if old != nil {
					t.Errorf("Update() old = %q for missing key, want nil", old)
				}
				return []byte("new"), nil
			}); err != nil {
				t.Fatalf("Update() failed: %v", err)
			}
			if got, _ := b.Get(ctx, "fresh"); string(got) != "new" {
				t.Errorf("Get() = %q, want new", got)
			}
		})
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "pixeltennis.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	if err := db.Put(ctx, "doc", []byte("hello")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if _, err := db.UpdatedAt(ctx, "doc"); err != nil {
		t.Errorf("UpdatedAt() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() should be a no-op, got %v", err)
	}

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	got, err := db.Get(ctx, "doc")
	if err != nil || string(got) != "hello" {
		t.Errorf("Get() after reopen = %q, %v", got, err)
	}
}

func TestFile_LeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	defer f.Close()

	for i := 0; i < 5; i++ {
		if err := f.Put(ctx, "doc", []byte(strings.Repeat("x", i))); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestWriteFileAtomic_Backup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")

	if err := WriteFileAtomic(path, []byte("v1"), true); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("v2"), true); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "v2" {
		t.Errorf("content = %q, want v2", got)
	}
	backups, _ := filepath.Glob(path + ".backup.*")
	if len(backups) != 1 {
		t.Fatalf("found %d backups, want 1", len(backups))
	}
	prev, _ := os.ReadFile(backups[0])
	if string(prev) != "v1" {
		t.Errorf("backup content = %q, want v1", prev)
	}
}

func TestOpen_UnknownKind(t *testing.T) {
	if _, err := Open("redis", t.TempDir()); err == nil {
		t.Error("Open(redis) should fail")
	}
}
