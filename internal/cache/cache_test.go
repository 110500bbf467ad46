package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"qwed/internal/types"
)

func verdictFor(value string) types.Verdict {
	return types.Verdict{
		Verified:   true,
		Value:      value,
		Confidence: 100,
		Evidence:   types.Evidence{Method: "engine", Domain: types.DomainMath},
	}
}

func TestMemoryStoreGetPut(t *testing.T) {
	s := NewMemoryStore(4, 0)

	if _, ok, _ := s.Get("missing"); ok {
		t.Fatal("hit on empty cache")
	}
	if err := s.Put("k1", verdictFor("42")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := s.Get("k1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if v.Value != "42" {
		t.Fatalf("Value = %q", v.Value)
	}
}

func TestMemoryStoreFirstWriteWins(t *testing.T) {
	s := NewMemoryStore(4, 0)
	s.Put("k", verdictFor("first"))
	s.Put("k", verdictFor("second"))

	v, ok, _ := s.Get("k")
	if !ok || v.Value != "first" {
		t.Fatalf("got %q, want the first write to stick", v.Value)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	s := NewMemoryStore(4, time.Minute, WithClock(clock))

	s.Put("k", verdictFor("42"))
	if _, ok, _ := s.Get("k"); !ok {
		t.Fatal("fresh entry should hit")
	}

	now = now.Add(time.Minute)
	if _, ok, _ := s.Get("k"); ok {
		t.Fatal("expired entry should miss")
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d after expiry", s.Len())
	}

	// An expired key is writable again.
	s.Put("k", verdictFor("fresh"))
	v, ok, _ := s.Get("k")
	if !ok || v.Value != "fresh" {
		t.Fatalf("rewrite after expiry failed: %+v ok=%v", v, ok)
	}
}

func TestMemoryStoreLRUEviction(t *testing.T) {
	s := NewMemoryStore(2, 0)
	s.Put("a", verdictFor("a"))
	s.Put("b", verdictFor("b"))
	s.Get("a") // a becomes most recently used
	s.Put("c", verdictFor("c"))

	if _, ok, _ := s.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if _, ok, _ := s.Get("a"); !ok {
		t.Fatal("a was recently used and should survive")
	}
	if _, ok, _ := s.Get("c"); !ok {
		t.Fatal("c was just written and should survive")
	}
}

func TestMemoryStoreFIFOEviction(t *testing.T) {
	s := NewMemoryStore(2, 0, WithPolicy(PolicyFIFO))
	s.Put("a", verdictFor("a"))
	s.Put("b", verdictFor("b"))
	s.Get("a") // no effect under FIFO
	s.Put("c", verdictFor("c"))

	if _, ok, _ := s.Get("a"); ok {
		t.Fatal("a is the oldest write and should have been evicted")
	}
	if _, ok, _ := s.Get("b"); !ok {
		t.Fatal("b should survive")
	}
}

func TestMemoryStoreConcurrent(t *testing.T) {
	s := NewMemoryStore(128, 0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%32)
				s.Put(key, verdictFor(key))
				s.Get(key)
			}
		}(i)
	}
	wg.Wait()
	if s.Len() != 32 {
		t.Fatalf("Len = %d, want 32", s.Len())
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := t.TempDir() + "/verdicts.db"
	s, err := NewSQLiteStore(path, 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	if _, ok, _ := s.Get("missing"); ok {
		t.Fatal("hit on empty database")
	}
	want := verdictFor("162889.462677744140625")
	want.Evidence.Expression = "100000 * (1 + 0.05) ^ 10"
	if err := s.Put("k1", want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := s.Get("k1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d", s.Len())
	}
}

func TestSQLiteStoreFirstWriteWins(t *testing.T) {
	s, err := NewSQLiteStore(t.TempDir()+"/verdicts.db", 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	s.Put("k", verdictFor("first"))
	s.Put("k", verdictFor("second"))
	v, ok, _ := s.Get("k")
	if !ok || v.Value != "first" {
		t.Fatalf("got %q, want the first write to stick", v.Value)
	}
}

func TestSQLiteStoreCorruptRow(t *testing.T) {
	s, err := NewSQLiteStore(t.TempDir()+"/verdicts.db", 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	if _, err := s.db.Exec(
		`INSERT INTO verdicts (key, verdict_json, created_at) VALUES (?, ?, ?)`,
		"bad", "{not json", time.Now().Unix(),
	); err != nil {
		t.Fatalf("inject: %v", err)
	}

	_, ok, err := s.Get("bad")
	if ok {
		t.Fatal("corrupt row reported as hit")
	}
	if !errors.Is(err, types.ErrCacheCorruption) {
		t.Fatalf("err = %v, want ErrCacheCorruption", err)
	}

	// The poisoned row is purged so the next lookup is a clean miss.
	if _, ok, err := s.Get("bad"); ok || err != nil {
		t.Fatalf("second lookup: ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/verdicts.db"
	s, err := NewSQLiteStore(path, 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	s.Put("k", verdictFor("42"))
	s.Close()

	s2, err := NewSQLiteStore(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	v, ok, _ := s2.Get("k")
	if !ok || v.Value != "42" {
		t.Fatalf("verdict lost across reopen: %+v ok=%v", v, ok)
	}
}
