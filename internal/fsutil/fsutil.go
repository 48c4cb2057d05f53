package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
)

// ErrInvalidName is returned when a client-supplied name has no usable final segment.
var ErrInvalidName = errors.New("invalid file name")

// whitespaceRun matches the same set as JavaScript's \s: ASCII
// whitespace, \v, Unicode separators and the BOM.
var whitespaceRun = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)

// BaseName reduces a client-supplied name to its final path segment. Both
// "/" and "\" count as separators, so "../../etc/passwd" and
// "C:\Users\x\a.png" become "passwd" and "a.png". Names that reduce to
// nothing, ".", ".." or contain NUL are rejected.
func BaseName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(name)
	switch base {
	case "", ".", "..", "/":
		return "", ErrInvalidName
	}
	if strings.ContainsRune(base, 0) {
		return "", ErrInvalidName
	}
	return base, nil
}

// CandidateName turns an uploaded file's original name into the name it is
// stored under: final segment only, whitespace runs collapsed to "_".
func CandidateName(original string) (string, error) {
	base, err := BaseName(original)
	if err != nil {
		return "", err
	}
	return whitespaceRun.ReplaceAllString(base, "_"), nil
}

// EnsureDirs creates every dir (with parents). It is meant for startup;
// nothing is recreated later.
func EnsureDirs(dirs ...string) error {
	for _, d := range dirs {
		if d == "" {
			return errors.New("empty directory path")
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", d, err)
		}
	}
	return nil
}
