package tui

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// FileItem is one row of the upload picker.
type FileItem struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
}

// SizeLabel renders the size the way the picker shows it.
func (f FileItem) SizeLabel() string {
	if f.IsDir {
		return ""
	}
	return humanize.IBytes(uint64(f.Size))
}

// browseDirectory lists path for the picker. Hidden entries are skipped and
// files are kept only when their extension is in exts.
func browseDirectory(path string, exts []string) ([]FileItem, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	items := make([]FileItem, 0, len(entries)+1)
	if parent := filepath.Dir(path); parent != path {
		items = append(items, FileItem{Name: "..", Path: parent, IsDir: true})
	}

	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		item := FileItem{
			Name:  entry.Name(),
			Path:  filepath.Join(path, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if !item.IsDir {
			if !hasExtension(item.Name, exts) {
				continue
			}
			if info, err := entry.Info(); err == nil {
				item.Size = info.Size()
			}
		}
		items = append(items, item)
	}

	// directories first, then files, both alphabetically; ".." stays on top
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Name == ".." || items[j].Name == ".." {
			return items[i].Name == ".."
		}
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

func hasExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range exts {
		if ext == allowed {
			return true
		}
	}
	return false
}

// defaultBrowsePath prefers ~/Documents, then ~/Downloads, then home, then cwd.
func defaultBrowsePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		for _, sub := range []string{"Documents", "Downloads"} {
			candidate := filepath.Join(home, sub)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				return candidate
			}
		}
		return home
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

type filePicker struct {
	dir    string
	exts   []string
	items  []FileItem
	cursor int
	err    error
}

func newFilePicker(dir string, exts []string) *filePicker {
	if dir == "" {
		dir = defaultBrowsePath()
	}
	p := &filePicker{exts: exts}
	p.open(dir)
	return p
}

func (p *filePicker) open(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	items, err := browseDirectory(dir, p.exts)
	if err != nil {
		p.err = err
		return
	}
	p.dir = dir
	p.items = items
	p.cursor = 0
	p.err = nil
}

func (p *filePicker) move(delta int) {
	if len(p.items) == 0 {
		return
	}
	p.cursor = (p.cursor + delta + len(p.items)) % len(p.items)
}

// choose enters a directory or returns the selected file.
func (p *filePicker) choose() (FileItem, bool) {
	if p.cursor < 0 || p.cursor >= len(p.items) {
		return FileItem{}, false
	}
	item := p.items[p.cursor]
	if item.IsDir {
		p.open(item.Path)
		return FileItem{}, false
	}
	return item, true
}

func (p *filePicker) parent() string {
	return filepath.Dir(p.dir)
}
