package tokencache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tokens.sqlite"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	claims := map[string]any{
		"oid":    "user-1",
		"groups": []any{"g1", "g2"},
	}
	if err := s.Put("hash-1", claims, now.Add(time.Hour)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := s.Get("hash-1", now)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got["oid"] != "user-1" {
		t.Errorf("claims oid = %v, want user-1", got["oid"])
	}
	groups, ok := got["groups"].([]any)
	if !ok || len(groups) != 2 {
		t.Errorf("claims groups = %v, want 2 entries", got["groups"])
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Get("nope", time.Now())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true for missing hash")
	}
}

func TestGetExpired(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	if err := s.Put("hash-1", map[string]any{"oid": "u"}, now.Add(time.Minute)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	_, ok, err := s.Get("hash-1", now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true for expired entry")
	}
}

func TestPutReplaces(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	if err := s.Put("hash-1", map[string]any{"oid": "old"}, now.Add(time.Hour)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Put("hash-1", map[string]any{"oid": "new"}, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, _ := s.Get("hash-1", now)
	if !ok || got["oid"] != "new" {
		t.Errorf("claims after replace = %v, want oid=new", got)
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	s.Put("live", map[string]any{"oid": "a"}, now.Add(time.Hour))
	s.Put("dead-1", map[string]any{"oid": "b"}, now.Add(-time.Minute))
	s.Put("dead-2", map[string]any{"oid": "c"}, now.Add(-time.Hour))

	n, err := s.Prune(now)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() = %d, want 2", n)
	}

	if _, ok, _ := s.Get("live", now); !ok {
		t.Error("live entry pruned")
	}
	if _, ok, _ := s.Get("dead-1", now); ok {
		t.Error("expired entry survived prune")
	}
}

func TestNilStore(t *testing.T) {
	var s *Store

	if err := s.Put("h", map[string]any{}, time.Now()); err != nil {
		t.Errorf("nil Put() error = %v", err)
	}
	if _, ok, err := s.Get("h", time.Now()); ok || err != nil {
		t.Errorf("nil Get() = (%v, %v), want miss", ok, err)
	}
	if n, err := s.Prune(time.Now()); n != 0 || err != nil {
		t.Errorf("nil Prune() = (%d, %v), want 0", n, err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.sqlite")
	now := time.Now()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.Put("hash-1", map[string]any{"oid": "persisted"}, now.Add(time.Hour)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s2.Close()

	got, ok, err := s2.Get("hash-1", now)
	if err != nil || !ok {
		t.Fatalf("Get() after reopen = (%v, %v, %v)", got, ok, err)
	}
	if got["oid"] != "persisted" {
		t.Errorf("claims oid = %v, want persisted", got["oid"])
	}
}
