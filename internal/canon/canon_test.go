package canon

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// realTempDir returns a temp dir with symlinks already resolved (macOS /var).
func realTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("eval temp dir: %v", err)
	}
	return dir
}

func requireSymlinks(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs privileges on windows")
	}
}

func TestPathExistingFile(t *testing.T) {
	dir := realTempDir(t)
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Path(file)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if got != file {
		t.Fatalf("expected %s, got %s", file, got)
	}
}

func TestPathNonExistentTailIsReappended(t *testing.T) {
	dir := realTempDir(t)
	raw := filepath.Join(dir, "new", "deeper", "file.txt")

	got, err := Path(raw)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if got != raw {
		t.Fatalf("expected %s, got %s", raw, got)
	}
}

func TestPathTrailingSeparatorNormalized(t *testing.T) {
	dir := realTempDir(t)
	got, err := Path(dir + string(filepath.Separator))
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if got != dir {
		t.Fatalf("expected %s, got %s", dir, got)
	}
}

func TestPathParentSegmentsPopNonExistentTail(t *testing.T) {
	dir := realTempDir(t)
	raw := dir + "/missing/../../outside.txt"

	got, err := Path(raw)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := filepath.Join(filepath.Dir(dir), "outside.txt")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestPathResolvesSymlinkAfterNonExistentParent(t *testing.T) {
	requireSymlinks(t)
	zone := realTempDir(t)
	outside := realTempDir(t)
	if err := os.Symlink(outside, filepath.Join(zone, "link")); err != nil {
		t.Fatal(err)
	}

	// missing/.. lands back in zone, so link must still be followed.
	got, err := Path(zone + "/missing/../link/x.txt")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := filepath.Join(outside, "x.txt")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	got, err = Path(zone + "/a/b/../../link/c/../y.txt")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if want := filepath.Join(outside, "y.txt"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestPathResolvesSymlinkBeforeParent(t *testing.T) {
	requireSymlinks(t)
	zone := realTempDir(t)
	outside := realTempDir(t)
	if err := os.Mkdir(filepath.Join(outside, "inner"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(outside, "inner"), filepath.Join(zone, "link")); err != nil {
		t.Fatal(err)
	}

	// Lexically this is zone/secret; on disk link/.. is outside.
	got, err := Path(filepath.Join(zone, "link") + "/../secret")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := filepath.Join(outside, "secret")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestPathRelativeSymlink(t *testing.T) {
	requireSymlinks(t)
	dir := realTempDir(t)
	if err := os.MkdirAll(filepath.Join(dir, "real", "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("real/sub", filepath.Join(dir, "alias")); err != nil {
		t.Fatal(err)
	}

	got, err := Path(filepath.Join(dir, "alias", "file"))
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := filepath.Join(dir, "real", "sub", "file")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestPathSymlinkLoop(t *testing.T) {
	requireSymlinks(t)
	dir := realTempDir(t)
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	if err := os.Symlink(b, a); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(a, b); err != nil {
		t.Fatal(err)
	}

	_, err := Path(filepath.Join(a, "x"))
	if !errors.Is(err, ErrSymlinkLoop) {
		t.Fatalf("expected ErrSymlinkLoop, got %v", err)
	}
}

func TestPathThroughRegularFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("ENOTDIR mapping is unix specific")
	}
	dir := realTempDir(t)
	file := filepath.Join(dir, "plain")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Path(filepath.Join(file, "child"))
	if !errors.Is(err, ErrNoExistingAncestor) {
		t.Fatalf("expected ErrNoExistingAncestor, got %v", err)
	}
}

func TestPathEmpty(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		if _, err := Path(raw); !errors.Is(err, ErrEmptyPath) {
			t.Errorf("Path(%q): expected ErrEmptyPath, got %v", raw, err)
		}
	}
}

func TestRootRejectsFile(t *testing.T) {
	dir := realTempDir(t)
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Root(file); !errors.Is(err, ErrNotDirectory) {
		t.Fatalf("expected ErrNotDirectory, got %v", err)
	}
	if _, err := Root(filepath.Join(dir, "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestWithin(t *testing.T) {
	sep := string(filepath.Separator)
	root := sep + filepath.Join("srv", "zone")

	tests := []struct {
		path string
		want bool
	}{
		{root, true},
		{filepath.Join(root, "a", "b"), true},
		{root + "foo", false},
		{filepath.Dir(root), false},
	}
	for _, tt := range tests {
		if got := Within(root, tt.path); got != tt.want {
			t.Errorf("Within(%q, %q) = %v, want %v", root, tt.path, got, tt.want)
		}
	}

	if !Within(sep, filepath.Join(sep, "anything")) {
		t.Error("filesystem root should contain every path")
	}
}

func TestHasParentSegment(t *testing.T) {
	cases := map[string]bool{
		"/a/../b":     true,
		"../x":        true,
		"a/..":        true,
		"/a/..b/c":    false,
		"/a/b..":      false,
		"/plain/path": false,
	}
	for in, want := range cases {
		if got := HasParentSegment(in); got != want {
			t.Errorf("HasParentSegment(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandHome("~/docs"); got != filepath.Join(home, "docs") {
		t.Errorf("unexpected expansion %q", got)
	}
	if got := ExpandHome("~other/docs"); got != "~other/docs" {
		t.Errorf("~user form must be left alone, got %q", got)
	}
}
