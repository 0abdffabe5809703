// Package media scans directories for transcribable files and watches them
// for changes.
package media

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// supportedExtensions are the file types the transcription pipeline accepts.
var supportedExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".webm": true, ".flv": true, ".wmv": true,
	".mp3": true, ".wav": true, ".m4a": true, ".flac": true,
	".aac": true, ".ogg": true, ".wma": true,
}

// IsSupported reports whether the path has a supported media extension.
func IsSupported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// FileEntry is one media file found by a directory scan.
type FileEntry struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	IsDir     bool   `json:"isDir"`
	Modified  int64  `json:"modified,omitempty"`
	Extension string `json:"extension,omitempty"`
}

// DirectoryNode is one node of the media directory tree. Directories with no
// media files anywhere beneath them are pruned.
type DirectoryNode struct {
	Path      string          `json:"path"`
	Name      string          `json:"name"`
	IsDir     bool            `json:"isDir"`
	Size      int64           `json:"size"`
	Modified  int64           `json:"modified,omitempty"`
	Extension string          `json:"extension,omitempty"`
	Children  []DirectoryNode `json:"children"`
}

// ScanDirectory walks the root recursively and returns all media files as a
// flat list sorted by path.
func ScanDirectory(root string) ([]FileEntry, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("directory does not exist: %s", root)
	}

	var files []FileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal for the whole scan.
			return nil
		}
		if d.IsDir() || !IsSupported(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileEntry{
			Path:      path,
			Name:      d.Name(),
			Size:      info.Size(),
			Modified:  info.ModTime().Unix(),
			Extension: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ScanDirectoryTree returns the root as a tree of directories and media
// files, hidden entries excluded.
func ScanDirectoryTree(root string) (*DirectoryNode, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("directory does not exist: %s", root)
	}
	return buildTreeNode(root)
}

func buildTreeNode(path string) (*DirectoryNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata for %s: %w", path, err)
	}

	node := &DirectoryNode{
		Path:     path,
		Name:     filepath.Base(path),
		IsDir:    info.IsDir(),
		Size:     info.Size(),
		Modified: info.ModTime().Unix(),
	}
	if !info.IsDir() {
		node.Extension = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		return node, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return node, nil
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		childPath := filepath.Join(path, name)
		if !entry.IsDir() && !IsSupported(childPath) {
			continue
		}

		child, err := buildTreeNode(childPath)
		if err != nil {
			continue
		}
		// Directories with no media beneath them are not shown.
		if child.IsDir && len(child.Children) == 0 {
			continue
		}
		node.Children = append(node.Children, *child)
	}

	sort.Slice(node.Children, func(i, j int) bool {
		a, b := node.Children[i], node.Children[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return node, nil
}
