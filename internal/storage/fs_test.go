package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempLibrary(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

// put writes a fixture file below the library root.
func put(t *testing.T, s *FS, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(s.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRead(t *testing.T) {
	s := tempLibrary(t)
	content := []byte("\"AppState\"\n{\n\t\"name\"\t\t\"Game\"\n}\n")
	put(t, s, "steamapps/appmanifest_1.acf", content)
	got, err := s.Read("steamapps/appmanifest_1.acf")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestReadMissingWrapsNotExist(t *testing.T) {
	s := tempLibrary(t)
	_, err := s.Read("steamapps/nope.acf")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}

func TestList_SuffixAndChecksum(t *testing.T) {
	s := tempLibrary(t)
	put(t, s, "steamapps/workshop/appworkshop_1.acf", []byte("a"))
	put(t, s, "steamapps/workshop/appworkshop_2.acf", []byte("b"))
	put(t, s, "steamapps/workshop/content/1/readme.acf", []byte("c"))

	metas, err := s.List("steamapps/workshop", ".acf")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("len = %d, want 2", len(metas))
	}
	if metas[0].Path != "steamapps/workshop/appworkshop_1.acf" {
		t.Errorf("path = %q", metas[0].Path)
	}
	if metas[1].Path != "steamapps/workshop/appworkshop_2.acf" {
		t.Errorf("path = %q", metas[1].Path)
	}
	if metas[0].Checksum == "" || metas[0].Checksum == metas[1].Checksum {
		t.Errorf("checksums not distinct: %q %q", metas[0].Checksum, metas[1].Checksum)
	}
}

func TestPathTraversal(t *testing.T) {
	s := tempLibrary(t)
	cases := []string{
		"../escape.acf",
		"steamapps/../../escape.acf",
		"steamapps/appmanifest_1/../../../x.acf",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("Read(%q) should fail", p)
		}
		if _, err := s.List(p, ".acf"); err == nil {
			t.Errorf("List(%q) should fail", p)
		}
	}
	if _, err := s.Read(filepath.Join(string(os.PathSeparator), "etc", "passwd")); err == nil {
		t.Error("absolute path should be rejected")
	}
}

func TestNewFS_RejectsFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "file")
	_ = os.WriteFile(f, []byte("x"), 0o644)
	if _, err := NewFS(f); err == nil {
		t.Error("expected error for non-directory root")
	}
}

func TestList_MissingDir(t *testing.T) {
	s := tempLibrary(t)
	if _, err := s.List("steamapps/workshop", ".acf"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}
