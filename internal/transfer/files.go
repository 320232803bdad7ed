package transfer

import (
	"fmt"
	"os"
	"path/filepath"
)

// File is one user-selected file to send.
type File struct {
	Filename string `json:"filename"`
	FullPath string `json:"full_path"`
	Size     int64  `json:"size"`
}

// Stat builds Files from paths. Directories and unreadable paths are errors.
func Stat(paths ...string) ([]File, error) {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%q is a directory", p)
		}
		files = append(files, File{Filename: info.Name(), FullPath: abs, Size: info.Size()})
	}
	return files, nil
}

// Paths returns the full paths in order.
func Paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.FullPath
	}
	return out
}

// Dedupe keeps the most recently added file for each filename, at that file's
// position, preserving relative order.
func Dedupe(files []File) []File {
	seen := make(map[string]struct{}, len(files))
	kept := make([]File, 0, len(files))
	for i := len(files) - 1; i >= 0; i-- {
		if _, ok := seen[files[i].Filename]; ok {
			continue
		}
		seen[files[i].Filename] = struct{}{}
		kept = append(kept, files[i])
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

// Selection is an ordered, filename-unique file list.
type Selection struct {
	files []File
}

// Add appends files, replacing earlier entries with the same filename.
func (s *Selection) Add(files ...File) {
	s.files = Dedupe(append(s.files, files...))
}

// Files returns a copy of the selection.
func (s *Selection) Files() []File { return append([]File(nil), s.files...) }

// Len returns the number of selected files.
func (s *Selection) Len() int { return len(s.files) }

// TotalSize sums the selected file sizes.
func (s *Selection) TotalSize() int64 {
	var total int64
	for _, f := range s.files {
		total += f.Size
	}
	return total
}
