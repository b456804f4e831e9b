package relay

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestMatcher(t *testing.T) {
	m := NewMatcher([]string{" Hey Asistan ", "", "assistant"})
	tests := map[string]bool{
		"hey asistan nasılsın": true,
		"HEY ASISTAN":          true,
		"Hey Assistant!":       true,
		"asist":                false,
		"":                     false,
	}
	for in, want := range tests {
		if got := m.Match(in); got != want {
			t.Errorf("Match(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStoreSaveAndExpire(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	var active atomic.Int64
	s.OnChange = func(n int) { active.Store(int64(n)) }

	name, err := s.Save([]byte("mp3"), ".mp3")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Ext(name) != ".mp3" {
		t.Fatalf("name = %q", name)
	}
	path, err := s.Path(name)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "mp3" {
		t.Fatalf("content = %q", data)
	}
	if active.Load() != 1 {
		t.Fatalf("active = %d, want 1", active.Load())
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("artifact did not expire")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	if _, err := s.Path(name); err != ErrArtifactNotFound {
		t.Fatalf("Path after expiry = %v", err)
	}
	if active.Load() != 0 {
		t.Fatalf("active = %d, want 0", active.Load())
	}
}

func TestStoreRejectsTraversal(t *testing.T) {
	s, err := NewStore(t.TempDir(), time.Minute)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	for _, name := range []string{"", "../etc/passwd", `a\b`, "x/y.mp3"} {
		if _, err := s.Path(name); err != ErrArtifactNotFound {
			t.Errorf("Path(%q) = %v, want ErrArtifactNotFound", name, err)
		}
	}
}

func TestStoreCloseRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, time.Hour)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Save([]byte("x"), ".mp3"); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	left, _ := os.ReadDir(dir)
	if len(left) != 0 {
		t.Fatalf("%d files left after Close", len(left))
	}
	if _, err := s.Save([]byte("x"), ".mp3"); err == nil {
		t.Fatalf("Save after Close succeeded")
	}
}
