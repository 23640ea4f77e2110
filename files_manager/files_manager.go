package files_manager

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"docpress/contracts"
)

type InputGroup = contracts.InputGroup

var (
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".gif", ".bmp", ".tif", ".tiff"}
	PDFExtensions   = []string{".pdf"}
	TextExtensions  = []string{".txt", ".json", ".md", ".csv"}
	HTMLExtensions  = []string{".html", ".htm"}
)

func matches(name string, exts []string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return len(exts) == 0 || slices.Contains(exts, strings.ToLower(filepath.Ext(name)))
}

// GetInputPaths lists the files of dir with one of exts, in name order.
// Hidden files and AppleDouble "._" entries are skipped.
func GetInputPaths(dir string, exts []string) ([]string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	paths := make([]string, 0, len(entries))
	var size int64
	for _, entry := range entries {
		if entry.IsDir() || !matches(entry.Name(), exts) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, 0, err
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
		size += info.Size()
	}
	return paths, size, nil
}

// GetInputGroups returns one group for the files directly in root and one
// for each immediate subdirectory holding matching files. Empty
// directories produce no group.
func GetInputGroups(root string, exts []string) ([]InputGroup, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	groups := make([]InputGroup, 0, len(entries)+1)

	files, size, err := GetInputPaths(root, exts)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		groups = append(groups, InputGroup{
			FilePaths: files,
			Name:      filepath.Base(filepath.Clean(root)),
			Path:      root,
			TotalSize: size,
		})
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		subDirPath := filepath.Join(root, entry.Name())
		files, size, err := GetInputPaths(subDirPath, exts)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			continue
		}
		groups = append(groups, InputGroup{
			FilePaths: files,
			Name:      entry.Name(),
			Path:      subDirPath,
			TotalSize: size,
		})
	}
	return groups, nil
}

// ExpandInputs resolves command line inputs. Explicit files are kept in the
// given order and form the first group; directories are expanded with
// GetInputGroups. Explicit files are taken whatever their extension.
func ExpandInputs(inputs []string, exts []string) ([]InputGroup, error) {
	var (
		loose  InputGroup
		groups []InputGroup
	)
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in, err)
		}
		if !info.IsDir() {
			loose.FilePaths = append(loose.FilePaths, in)
			loose.TotalSize += info.Size()
			continue
		}
		dirGroups, err := GetInputGroups(in, exts)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in, err)
		}
		groups = append(groups, dirGroups...)
	}
	if len(loose.FilePaths) > 0 {
		first := loose.FilePaths[0]
		loose.Name = strings.TrimSuffix(filepath.Base(first), filepath.Ext(first))
		loose.Path = filepath.Dir(first)
		groups = append([]InputGroup{loose}, groups...)
	}
	return groups, nil
}

// ReadGroup loads every file of g.
func ReadGroup(g InputGroup) ([]contracts.InputFile, error) {
	files := make([]contracts.InputFile, 0, len(g.FilePaths))
	for _, p := range g.FilePaths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, contracts.InputFile{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

// WriteAtomic writes data to a temporary file next to path and renames it
// into place, so readers never see a partial file.
func WriteAtomic(path string, data []byte) (*contracts.OutputFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("rename into %s: %w", path, err)
	}
	return &contracts.OutputFile{Path: path, Size: int64(len(data))}, nil
}
