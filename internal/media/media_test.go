package media

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestIsSupported(t *testing.T) {
	for _, path := range []string{"a.mp4", "b.MP3", "c/d.flac", "e.webm"} {
		if !IsSupported(path) {
			t.Fatalf("expected %s to be supported", path)
		}
	}
	for _, path := range []string{"a.txt", "b.srt", "c", "d.mp4.bak"} {
		if IsSupported(path) {
			t.Fatalf("expected %s to be unsupported", path)
		}
	}
}

func TestScanDirectoryFindsMediaSortedByPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "z.mp4"))
	writeFile(t, filepath.Join(dir, "a", "b.wav"))
	writeFile(t, filepath.Join(dir, "notes.txt"))

	files, err := ScanDirectory(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 media files, got %d", len(files))
	}
	if files[0].Name != "b.wav" || files[1].Name != "z.mp4" {
		t.Fatalf("unexpected order: %s, %s", files[0].Name, files[1].Name)
	}
	if files[0].Extension != "wav" {
		t.Fatalf("unexpected extension %q", files[0].Extension)
	}
	if files[1].Size != 1 {
		t.Fatalf("unexpected size %d", files[1].Size)
	}
}

func TestScanDirectoryMissingRoot(t *testing.T) {
	if _, err := ScanDirectory(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected an error for a missing directory")
	}
}

func TestScanDirectoryTreePrunesAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Clips", "talk.mp4"))
	writeFile(t, filepath.Join(dir, "audio", "take.wav"))
	writeFile(t, filepath.Join(dir, "intro.mp3"))
	writeFile(t, filepath.Join(dir, "empty", "readme.txt"))
	writeFile(t, filepath.Join(dir, ".cache", "hidden.mp4"))

	tree, err := ScanDirectoryTree(dir)
	if err != nil {
		t.Fatalf("scan tree: %v", err)
	}
	if !tree.IsDir {
		t.Fatal("expected the root node to be a directory")
	}
	// The hidden directory and the directory without media are pruned;
	// directories sort before files, case-insensitively by name.
	if len(tree.Children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(tree.Children))
	}
	names := []string{tree.Children[0].Name, tree.Children[1].Name, tree.Children[2].Name}
	if names[0] != "audio" || names[1] != "Clips" || names[2] != "intro.mp3" {
		t.Fatalf("unexpected child order: %v", names)
	}
	if len(tree.Children[1].Children) != 1 || tree.Children[1].Children[0].Name != "talk.mp4" {
		t.Fatalf("unexpected Clips contents: %+v", tree.Children[1].Children)
	}
}

func TestScanDirectoryTreeOnSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mkv")
	writeFile(t, path)

	node, err := ScanDirectoryTree(path)
	if err != nil {
		t.Fatalf("scan tree: %v", err)
	}
	if node.IsDir || node.Extension != "mkv" {
		t.Fatalf("unexpected node: %+v", node)
	}
}
