package pathcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func TestQueryCachesUntilTTL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plate.exr")

	clock := &fakeClock{t: time.Unix(1000, 0)}
	c := New(10 * time.Second)
	c.SetClock(clock.now)

	if c.Exists(path) {
		t.Fatal("path should not exist yet")
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	clock.t = clock.t.Add(5 * time.Second)
	if c.Exists(path) {
		t.Error("expected stale cached value before TTL expiry")
	}

	clock.t = clock.t.Add(6 * time.Second)
	if !c.Exists(path) {
		t.Error("expected fresh value after TTL expiry")
	}
}

func TestZeroTTLBypassesCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	c := New(0)

	if c.Exists(path) {
		t.Fatal("path should not exist yet")
	}
	os.WriteFile(path, nil, 0644)
	if !c.Exists(path) {
		t.Error("TTL=0 must query the filesystem every time")
	}
	if c.Len() != 0 {
		t.Errorf("TTL=0 cache stored %d entries", c.Len())
	}
}

func TestSetPrimesCache(t *testing.T) {
	c := New(time.Minute)
	c.Set("/does/not/exist", "isDir", true)
	if !c.IsDir("/does/not/exist") {
		t.Error("primed value not returned")
	}
}

func TestSweepRemovesOldestFirst(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	c := New(10 * time.Second)
	c.SetClock(clock.now)

	c.Set("/a", "exists", true)
	clock.t = clock.t.Add(8 * time.Second)
	c.Set("/b", "exists", true)
	clock.t = clock.t.Add(4 * time.Second)

	// Touching any path sweeps /a (12s old) but keeps /b (4s old).
	c.Set("/c", "exists", true)
	if got := c.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestUnknownAttribute(t *testing.T) {
	if _, err := New(time.Minute).Query("/", "colour"); err == nil {
		t.Error("expected error for unknown attribute")
	}
}

func TestTTLFromEnv(t *testing.T) {
	t.Setenv(TTLEnv, "2.5")
	if got := ttlFromEnv(); got != 2500*time.Millisecond {
		t.Errorf("ttlFromEnv() = %v", got)
	}
	t.Setenv(TTLEnv, "nope")
	if got := ttlFromEnv(); got != DefaultTTL {
		t.Errorf("ttlFromEnv() = %v, want default", got)
	}
}
