package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExportDirectory converts every .czi container (case-insensitive extension)
// found directly in params.InputPath, in lexicographic filename order, into
// the shared params.OutputDir. The output directory is created if absent and
// may already exist; filenames cannot collide across inputs because every
// image is prefixed with its input's basename. Conversion stops at the first
// failing file. Metrics of the completed conversions are returned either way.
func ExportDirectory(params Params) ([]Metrics, error) {
	entries, err := os.ReadDir(params.InputPath)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".czi") {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .czi containers found in %s", params.InputPath)
	}

	if err := os.MkdirAll(params.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	all := make([]Metrics, 0, len(files))
	for i, name := range files {
		if params.Verbose {
			fmt.Printf("Converting %s (%d of %d)\n", name, i+1, len(files))
		}
		fileParams := params
		fileParams.InputPath = filepath.Join(params.InputPath, name)
		exporter := NewExporter(fileParams)
		exporter.dirMayExist = true
		if err := exporter.Run(); err != nil {
			return all, fmt.Errorf("converting %s: %w", name, err)
		}
		all = append(all, exporter.GetMetrics())
	}
	return all, nil
}
