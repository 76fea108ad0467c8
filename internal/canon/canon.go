// Package canon turns raw filesystem paths into the canonical form used for
// every safe-zone comparison: absolute, symlinks resolved component by
// component, separators normalized, case folded where the platform's
// filesystems are case-insensitive.
package canon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// maxSymlinkHops bounds symlink expansion for one path (loops, deep chains).
const maxSymlinkHops = 255

var (
	// ErrEmptyPath is returned for an empty or whitespace-only path.
	ErrEmptyPath = errors.New("empty path")
	// ErrNoExistingAncestor means no prefix of the path exists, or a prefix
	// exists but is not a directory.
	ErrNoExistingAncestor = errors.New("no existing ancestor directory")
	// ErrSymlinkLoop is returned when maxSymlinkHops is exceeded.
	ErrSymlinkLoop = errors.New("too many levels of symbolic links")
	// ErrNotDirectory is returned by Root when the path is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)

// ResolveError reports a filesystem failure while canonicalizing.
type ResolveError struct {
	Path string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Path, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Path canonicalizes raw. Components that do not exist yet are re-appended
// literally to the canonical form of the deepest existing ancestor, so write
// targets that will be created still canonicalize.
func Path(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyPath
	}

	abs, err := absolute(ExpandHome(raw))
	if err != nil {
		return "", err
	}

	vol := filepath.VolumeName(abs)
	root := vol + string(filepath.Separator)
	if _, err := os.Lstat(root); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNoExistingAncestor, root, err)
	}

	hops := 0
	return walk(root, split(abs[len(vol):]), &hops)
}

// Root canonicalizes a directory that must already exist.
func Root(raw string) (string, error) {
	p, err := Path(raw)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", &ResolveError{Path: p, Err: err}
	}
	if !info.IsDir() {
		return "", &ResolveError{Path: p, Err: ErrNotDirectory}
	}
	return p, nil
}

// Lexical returns the absolute, cleaned form of raw without touching the
// filesystem beyond the working directory.
func Lexical(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyPath
	}
	abs, err := absolute(ExpandHome(raw))
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// HasParentSegment reports whether raw contains a ".." component. Both '/'
// and the platform separator count as separators.
func HasParentSegment(raw string) bool {
	for _, part := range strings.FieldsFunc(raw, isSeparator) {
		if part == ".." {
			return true
		}
	}
	return false
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, p[2:])
}

// Key returns the comparison key for a canonical path.
func Key(p string) string {
	if caseInsensitive {
		return strings.ToLower(p)
	}
	return p
}

// Within reports whether canonical path p equals root or lies beneath it.
// Both arguments must already be canonical.
func Within(root, p string) bool {
	rk, pk := Key(root), Key(p)
	if pk == rk {
		return true
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(rk, sep) {
		rk += sep
	}
	return strings.HasPrefix(pk, rk)
}

// absolute joins a relative path onto the working directory without
// cleaning, so ".." keeps its on-disk meaning during the walk.
func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", &ResolveError{Path: p, Err: err}
	}
	return cwd + string(filepath.Separator) + p, nil
}

// walk resolves parts against the canonical directory current. Components
// below the deepest existing directory are held in missing; a ".." pops
// them first and only then climbs the resolved path, so the on-disk walk
// resumes (and resolves symlinks again) once the path re-enters existing
// directories.
func walk(current string, parts []string, hops *int) (string, error) {
	var missing []string
	for _, part := range parts {
		switch part {
		case ".":
			continue
		case "..":
			if len(missing) > 0 {
				missing = missing[:len(missing)-1]
			} else {
				current = filepath.Dir(current)
			}
			continue
		}

		if len(missing) > 0 {
			missing = append(missing, part)
			continue
		}

		next := filepath.Join(current, part)
		info, err := os.Lstat(next)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, part)
				continue
			}
			if errors.Is(err, syscall.ENOTDIR) {
				return "", fmt.Errorf("%w: %s", ErrNoExistingAncestor, current)
			}
			return "", &ResolveError{Path: next, Err: err}
		}

		if info.Mode()&fs.ModeSymlink == 0 {
			current = next
			continue
		}

		*hops++
		if *hops > maxSymlinkHops {
			return "", &ResolveError{Path: next, Err: ErrSymlinkLoop}
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", &ResolveError{Path: next, Err: err}
		}

		base := current
		if filepath.IsAbs(target) {
			vol := filepath.VolumeName(target)
			base = vol + string(filepath.Separator)
			target = target[len(vol):]
		}
		resolved, err := walk(base, split(target), hops)
		if err != nil {
			return "", err
		}
		current = resolved
	}
	return filepath.Join(append([]string{current}, missing...)...), nil
}

func split(p string) []string {
	return strings.FieldsFunc(p, isSeparator)
}

func isSeparator(r rune) bool {
	return r == '/' || r == filepath.Separator
}
