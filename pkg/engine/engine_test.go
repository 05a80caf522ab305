package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestMemStore_GetSetDelete(t *testing.T) {
	ms := NewMemStore(nil, nil)

	key := "chatMessages_3826"
	val := `[{"text":"hello"}]`

	if err := ms.Set(key, val); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := ms.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != val {
		t.Errorf("Expected %v, got %v", val, got)
	}

	_, err = ms.Get("non-existent")
	if err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	if err := ms.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := ms.Get(key); err != ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}
	if ms.Used() != 0 {
		t.Errorf("Expected 0 bytes used after delete, got %d", ms.Used())
	}

	// Deleting twice is fine
	if err := ms.Delete(key); err != nil {
		t.Errorf("Second delete failed: %v", err)
	}
}

func TestMemStore_InvalidKey(t *testing.T) {
	ms := NewMemStore(nil, nil)
	for _, key := range []string{"", "a b", "../etc", "x/y", ".."} {
		if err := ms.Set(key, "v"); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Set(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestMemStore_Keys(t *testing.T) {
	ms := NewMemStore(map[string]string{"b": "1", "a": "2"}, nil)

	keys, _ := ms.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Expected [a b], got %v", keys)
	}
}

func TestMemStore_Quota(t *testing.T) {
	ms := NewMemStore(nil, nil)
	ms.SetQuota(20)

	if err := ms.Set("k", "0123456789"); err != nil {
		t.Fatalf("Set within quota failed: %v", err)
	}

	err := ms.Set("k2", "0123456789")
	if !errors.Is(err, ErrStorageFull) {
		t.Fatalf("Expected ErrStorageFull, got %v", err)
	}
	if _, err := ms.Get("k2"); err != ErrKeyNotFound {
		t.Errorf("Rejected write must not be visible, got %v", err)
	}

	// Replacing a value only counts the difference
	if err := ms.Set("k", strings.Repeat("x", 19)); err != nil {
		t.Errorf("Replacing within quota failed: %v", err)
	}

	ms.SetQuota(0)
	if err := ms.Set("big", strings.Repeat("x", 1<<10)); err != nil {
		t.Errorf("Unlimited quota rejected write: %v", err)
	}
}

type failingPersister struct{ err error }

func (f failingPersister) LoadAll() (map[string]string, error) { return nil, f.err }
func (f failingPersister) SaveKey(key, val string) error      { return f.err }
func (f failingPersister) DeleteKey(key string) error         { return f.err }

func TestMemStore_PersistFailureLeavesMemoryUntouched(t *testing.T) {
	boom := errors.New("disk gone")
	ms := NewMemStore(map[string]string{"k": "old"}, failingPersister{err: boom})

	if err := ms.Set("k", "new"); !errors.Is(err, boom) {
		t.Fatalf("Expected persist error, got %v", err)
	}
	if got, _ := ms.Get("k"); got != "old" {
		t.Errorf("Expected old value to survive, got %q", got)
	}

	if err := ms.Delete("k"); !errors.Is(err, boom) {
		t.Fatalf("Expected persist error on delete, got %v", err)
	}
	if _, err := ms.Get("k"); err != nil {
		t.Errorf("Key must survive a failed delete: %v", err)
	}
}

func TestPersistence(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := NewPersistence(tmpDir, nil)
	if err != nil {
		t.Fatalf("NewPersistence failed: %v", err)
	}

	if err := p.SaveKey("protocols_3826", `[]`); err != nil {
		t.Fatalf("SaveKey failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "protocols_3826.json")); os.IsNotExist(err) {
		t.Fatal("Value file was not created")
	}

	// Stray files are ignored
	os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0o644)

	all, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(all) != 1 || all["protocols_3826"] != "[]" {
		t.Errorf("Loaded data mismatch: %v", all)
	}

	if err := p.DeleteKey("protocols_3826"); err != nil {
		t.Fatalf("DeleteKey failed: %v", err)
	}
	if err := p.DeleteKey("protocols_3826"); err != nil {
		t.Errorf("DeleteKey on missing file failed: %v", err)
	}
}

func TestMemStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()

	p, _ := NewPersistence(tmpDir, nil)
	ms := NewMemStore(nil, p)

	if err := ms.Set("k1", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	allData, _ := p.LoadAll()
	ms2 := NewMemStore(allData, p)

	val, err := ms2.Get("k1")
	if err != nil {
		t.Fatalf("Get on new store failed: %v", err)
	}
	if val != "v1" {
		t.Errorf("Expected v1, got %v", val)
	}
	if ms2.Used() != int64(len("k1")+len("v1")) {
		t.Errorf("Unexpected usage after reload: %d", ms2.Used())
	}
}

func TestSQLitePersistence(t *testing.T) {
	p, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "comms.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer p.Close()

	ms := NewMemStore(nil, p)
	ms.Set("a", "1")
	ms.Set("a", "2")
	ms.Set("b", "3")
	ms.Delete("b")

	all, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(all) != 1 || all["a"] != "2" {
		t.Errorf("Unexpected rows: %v", all)
	}
}

func TestMemStore_Concurrent(t *testing.T) {
	ms := NewMemStore(nil, nil)
	ms.SetQuota(0)
	const (
		numGoroutines = 10
		numOps        = 100
	)
	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*numOps)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				want := fmt.Sprint(j)
				ms.Set(key, want)
				val, err := ms.Get(key)
				if err != nil || val != want {
					errs <- fmt.Errorf("expected %s, got %v, err %v", want, val, err)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	keys, _ := ms.Keys()
	if len(keys) != numGoroutines*numOps {
		t.Errorf("Expected %d keys, got %d", numGoroutines*numOps, len(keys))
	}
}

func TestMigrate(t *testing.T) {
	src := NewMemStore(map[string]string{"k1": "v1", "k2": "v2"}, nil)
	dst := NewMemStore(nil, nil)

	n, err := Migrate(src, dst)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 keys copied, got %d", n)
	}
	if v, _ := dst.Get("k2"); v != "v2" {
		t.Errorf("Expected v2, got %q", v)
	}
}
