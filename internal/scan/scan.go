package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CollectPDFs expands a mix of file and directory paths into the list of
// PDF files they contain. Directories are walked recursively; unreadable
// entries are skipped. Input ordering is preserved.
func CollectPDFs(inputPaths []string) ([]string, error) {
	var files []string

	visit := func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ".pdf") {
			files = append(files, path)
		}
		return nil
	}

	for _, in := range inputPaths {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("input path %s: %w", in, err)
		}
		if info.IsDir() {
			_ = filepath.WalkDir(in, visit)
		} else {
			files = append(files, in)
		}
	}
	return files, nil
}

// OutputPath derives the destination for one input file: either inside
// outputDir (when set) or next to the input, with suffix inserted before
// the extension.
func OutputPath(inputPath, outputDir, suffix string) string {
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext) + suffix + ext

	if outputDir != "" {
		return filepath.Join(outputDir, name)
	}
	return filepath.Join(filepath.Dir(inputPath), name)
}
