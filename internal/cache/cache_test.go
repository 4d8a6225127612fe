package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/panbanda/locksmith/pkg/model"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache"), 24, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestNew(t *testing.T) {
	c := newCache(t)
	if !c.Enabled() {
		t.Error("cache should be enabled")
	}

	c, err := New("", 0, false)
	if err != nil {
		t.Fatalf("New() error for disabled cache: %v", err)
	}
	if c.Enabled() {
		t.Error("cache should be disabled")
	}

	var nilCache *Cache
	if nilCache.Enabled() {
		t.Error("nil cache should be disabled")
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "nested", "cache", "dir")
	if _, err := New(cacheDir, 24, true); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		t.Error("New() should create cache directory")
	}
}

func TestSetAndGetWithHash(t *testing.T) {
	c := newCache(t)
	data := json.RawMessage(`{"v":1}`)

	if err := c.SetWithHash("key", "abc123", data); err != nil {
		t.Fatalf("SetWithHash() error: %v", err)
	}

	got, ok := c.GetWithHash("key", "abc123")
	if !ok {
		t.Fatal("GetWithHash() returned false for matching hash")
	}
	if string(got) != string(data) {
		t.Errorf("GetWithHash() = %s, want %s", got, data)
	}

	if _, ok := c.GetWithHash("key", "different-hash"); ok {
		t.Error("GetWithHash() should return false for non-matching hash")
	}
	if _, ok := c.GetWithHash("missing", "abc123"); ok {
		t.Error("GetWithHash() should return false for non-existent key")
	}
}

func TestCorruptEntryIsDropped(t *testing.T) {
	c := newCache(t)
	path := c.keyPath("key")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.GetWithHash("key", "h"); ok {
		t.Error("corrupt entry should miss")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt entry should be removed")
	}
}

func TestInvalidate(t *testing.T) {
	c := newCache(t)
	if err := c.SetWithHash("key", "h", json.RawMessage(`1`)); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate("key"); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if _, ok := c.GetWithHash("key", "h"); ok {
		t.Error("entry should be gone after Invalidate()")
	}
	if err := c.Invalidate("key"); err != nil {
		t.Errorf("Invalidate() of a missing key should succeed, got %v", err)
	}
}

func TestDisabledCache(t *testing.T) {
	c, err := New("", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetWithHash("key", "h", json.RawMessage(`1`)); err != nil {
		t.Errorf("SetWithHash() on disabled cache should be a no-op, got %v", err)
	}
	if _, ok := c.GetWithHash("key", "h"); ok {
		t.Error("disabled cache should never hit")
	}
	if err := c.StoreDecl("A.java", []byte("x"), &model.FileDecl{}); err != nil {
		t.Errorf("StoreDecl() on disabled cache should be a no-op, got %v", err)
	}
}

func TestTTLExpiration(t *testing.T) {
	c := &Cache{dir: t.TempDir(), ttl: time.Hour, enabled: true}
	stale, err := json.Marshal(Entry{Hash: "h", Timestamp: time.Now().Add(-2 * time.Hour), Data: json.RawMessage(`1`)})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c.keyPath("key"), stale, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.GetWithHash("key", "h"); ok {
		t.Error("GetWithHash() should miss after the TTL")
	}

	c.ttl = 0
	if err := os.WriteFile(c.keyPath("key"), stale, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.GetWithHash("key", "h"); !ok {
		t.Error("a zero TTL should keep entries")
	}
}

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("class A {}"))
	if len(a) != 64 {
		t.Errorf("HashBytes() length = %d, want 64 hex chars", len(a))
	}
	if a != HashBytes([]byte("class A {}")) {
		t.Error("HashBytes() should be deterministic")
	}
	if a == HashBytes([]byte("class B {}")) {
		t.Error("different content should hash differently")
	}
}

func TestKeyPath(t *testing.T) {
	c := newCache(t)
	path1 := c.keyPath("/src/A.java")
	if path1 == c.keyPath("/src/B.java") {
		t.Error("Different keys should produce different paths")
	}
	if path1 != c.keyPath("/src/A.java") {
		t.Error("Same keys should produce same paths")
	}
	if filepath.Ext(path1) != ".json" || filepath.Dir(path1) != c.dir {
		t.Errorf("Key path %s should be a .json file in the cache directory", path1)
	}
}

func TestDeclRoundTrip(t *testing.T) {
	c := newCache(t)
	src := []byte("class Bank { void ab() { synchronized (a) { b.lock(); } } }")
	num := model.Ref("int")
	decl := &model.FileDecl{
		Path:     "/src/Bank.java",
		Language: "java",
		Package:  "bank",
		Classes: []*model.ClassDecl{{
			Name: "Bank",
			Methods: []*model.MethodDecl{{
				Name:   "ab",
				Return: &num,
				Body: []*model.Stmt{
					model.SyncStmt(model.Ident("a"), model.ExprStmt(model.Call(model.Ident("b"), "lock"))),
				},
				Line: 1,
			}},
		}},
	}

	if _, ok := c.LoadDecl(decl.Path, src); ok {
		t.Fatal("LoadDecl() should miss before StoreDecl()")
	}
	if err := c.StoreDecl(decl.Path, src, decl); err != nil {
		t.Fatalf("StoreDecl() error: %v", err)
	}

	got, ok := c.LoadDecl(decl.Path, src)
	if !ok {
		t.Fatal("LoadDecl() should hit for unchanged content")
	}
	want, _ := json.Marshal(decl)
	have, _ := json.Marshal(got)
	if string(want) != string(have) {
		t.Errorf("LoadDecl() = %s, want %s", have, want)
	}
	body := got.Classes[0].Methods[0].Body
	if body[0].Kind != model.StmtSync || body[0].Body[0].Expr.Name != "lock" {
		t.Errorf("statement tree not restored: %+v", body[0])
	}

	if _, ok := c.LoadDecl(decl.Path, append(src, ' ')); ok {
		t.Error("LoadDecl() should miss once the content changes")
	}
}
