package store

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	files := filepath.Join(root, "files")
	scratch := filepath.Join(root, "tmp")
	for _, d := range []string{files, scratch} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return New(files), scratch
}

func writeScratch(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPlaceFreeName(t *testing.T) {
	s, scratch := newTestStore(t)
	src := writeScratch(t, scratch, "upload-1.part", "hello")

	name, err := s.Place(src, "a_b.png")
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if name != "a_b.png" {
		t.Fatalf("name = %q", name)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("scratch file still present: %v", err)
	}
	b, err := os.ReadFile(s.Path(name))
	if err != nil || string(b) != "hello" {
		t.Fatalf("stored content = %q, %v", b, err)
	}
}

func TestPlaceCollisionKeepsOriginal(t *testing.T) {
	s, scratch := newTestStore(t)
	s = s.WithClock(func() time.Time { return time.UnixMilli(1700000000123) })

	first, err := s.Place(writeScratch(t, scratch, "u1.part", "original"), "a_b.png")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Place(writeScratch(t, scratch, "u2.part", "second"), "a_b.png")
	if err != nil {
		t.Fatal(err)
	}
	if first != "a_b.png" {
		t.Fatalf("first = %q", first)
	}
	if second != "1700000000123_a_b.png" {
		t.Fatalf("second = %q", second)
	}

	// Same millisecond again: the stamp is bumped instead of overwriting.
	third, err := s.Place(writeScratch(t, scratch, "u3.part", "third"), "a_b.png")
	if err != nil {
		t.Fatal(err)
	}
	if third != "1700000000124_a_b.png" {
		t.Fatalf("third = %q", third)
	}

	for name, want := range map[string]string{first: "original", second: "second", third: "third"} {
		b, err := os.ReadFile(s.Path(name))
		if err != nil || string(b) != want {
			t.Errorf("%s = %q, %v; want %q", name, b, err, want)
		}
	}
}

func TestPlaceRealClockPattern(t *testing.T) {
	s, scratch := newTestStore(t)
	if _, err := s.Place(writeScratch(t, scratch, "u1.part", "x"), "p.jpg"); err != nil {
		t.Fatal(err)
	}
	name, err := s.Place(writeScratch(t, scratch, "u2.part", "y"), "p.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^\d+_p\.jpg$`).MatchString(name) {
		t.Fatalf("name = %q", name)
	}
}

func TestPlaceMissingScratch(t *testing.T) {
	s, scratch := newTestStore(t)
	if _, err := s.Place(filepath.Join(scratch, "gone.part"), "x.png"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := os.Lstat(s.Path("x.png")); !os.IsNotExist(err) {
		t.Fatalf("unexpected file created: %v", err)
	}
}

func TestListRegularFilesOnly(t *testing.T) {
	s, _ := newTestStore(t)
	if err := os.WriteFile(s.Path("a.png"), make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path("b.bin"), []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(s.Path("sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(s.Path("a.png"), s.Path("link.png")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	ents, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := map[string]int64{}
	for _, e := range ents {
		got[e.Name] = e.Size
		if e.ModTime.IsZero() {
			t.Errorf("%s has zero mtime", e.Name)
		}
	}
	if len(got) != 2 || got["a.png"] != 10 || got["b.bin"] != 3 {
		t.Fatalf("entries = %v", got)
	}
}

func TestListMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"))
	if _, err := s.List(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStatAndOpen(t *testing.T) {
	s, _ := newTestStore(t)
	if err := os.WriteFile(s.Path("doc.pdf"), []byte("pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(s.Path("dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	f, st, err := s.Open("doc.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Close()
	if st.Size() != 3 {
		t.Errorf("size = %d", st.Size())
	}
	for _, name := range []string{"missing.txt", "dir"} {
		if _, _, err := s.Open(name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q) err = %v, want ErrNotFound", name, err)
		}
	}
}
