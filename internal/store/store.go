package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var (
	// ErrNotFound means no regular file with that name exists in the store.
	ErrNotFound = errors.New("not found")
	// ErrNameTaken means every collision-safe name tried was already in use.
	ErrNameTaken = errors.New("no free name")
)

// maxPlaceAttempts bounds the timestamp-prefix retries when names collide.
const maxPlaceAttempts = 16

// Store is the flat directory of stored files. Names passed in must already
// be single path segments (see fsutil.BaseName).
type Store struct {
	dir string
	now func() time.Time
}

// Entry describes one stored file.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

func New(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// WithClock returns a copy of s that stamps collisions using now.
func (s *Store) WithClock(now func() time.Time) *Store {
	cp := *s
	cp.now = now
	return &cp
}

// Path returns the absolute path of name inside the store.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// List enumerates regular files in directory order. Symlinks, directories
// and special files are skipped. Any stat error aborts the listing.
func (s *Store) List() ([]Entry, error) {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ents))
	for _, e := range ents {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		out = append(out, Entry{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

// Stat returns info for a regular file. Symlinks are not followed.
func (s *Store) Stat(name string) (fs.FileInfo, error) {
	st, err := os.Lstat(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, ErrNotFound
	}
	return st, nil
}

// Open opens a stored file for reading. The caller closes it.
func (s *Store) Open(name string) (*os.File, fs.FileInfo, error) {
	st, err := s.Stat(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	return f, st, nil
}

func (s *Store) exists(name string) bool {
	_, err := os.Lstat(s.Path(name))
	return err == nil
}

func stamped(ms int64, candidate string) string {
	return strconv.FormatInt(ms, 10) + "_" + candidate
}

// Place moves the scratch file into the store and returns the name it was
// stored under. If candidate is taken the name becomes
// "<unix-millis>_<candidate>". An existing file is never replaced: the move
// is a hard link (exclusive create) followed by removing scratch, and a lost
// race bumps the timestamp and tries again.
//
// When hard links are unavailable (scratch on another device, or a
// filesystem without links) Place falls back to rename, then copy+remove.
// The fallback keeps the collision check but is not race free.
func (s *Store) Place(scratch, candidate string) (string, error) {
	ms := s.now().UnixMilli()
	name := candidate
	if s.exists(name) {
		name = stamped(ms, candidate)
	}
	for i := 0; i < maxPlaceAttempts; i++ {
		err := os.Link(scratch, s.Path(name))
		if err == nil {
			_ = os.Remove(scratch)
			return name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return s.placeFallback(scratch, candidate, name, ms)
		}
		ms++
		name = stamped(ms, candidate)
	}
	return "", ErrNameTaken
}

func (s *Store) placeFallback(scratch, candidate, name string, ms int64) (string, error) {
	for s.exists(name) {
		ms++
		name = stamped(ms, candidate)
	}
	dst := s.Path(name)
	if err := os.Rename(scratch, dst); err == nil {
		return name, nil
	} else if err2 := copyExclusive(scratch, dst); err2 != nil {
		return "", fmt.Errorf("place %s: rename=%v copy=%w", name, err, err2)
	}
	_ = os.Remove(scratch)
	return name, nil
}

func copyExclusive(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
