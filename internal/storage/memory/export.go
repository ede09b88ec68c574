package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/buildingco2/tracker/pkg/core"
)

// ExportFileName is the base name of the export inside OutputDir.
const ExportFileName = "buildings.json"

// GetExportedFilePath returns the path of the last export, empty before the
// first one.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

func (b *Backend) exportPath() string {
	name := ExportFileName
	if b.cfg.CompressOutput {
		name += ".gz"
	}
	return filepath.Join(b.cfg.OutputDir, name)
}

// exportJSON writes all buildings to the export file. Caller holds the lock.
func (b *Backend) exportJSON() error {
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	export := make([]core.Building, 0, len(b.buildings))
	for _, bld := range b.buildings {
		export = append(export, *bld)
	}
	sort.Slice(export, func(i, j int) bool { return export[i].ID < export[j].ID })

	outputPath := b.exportPath()
	tmp := outputPath + ".tmp"
	if err := WriteBuildings(tmp, export, b.cfg.CompressOutput); err != nil {
		return err
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}

	b.lastExportPath = outputPath
	return nil
}

// WriteBuildings writes buildings as a JSON array, gzipped when compress is set.
func WriteBuildings(path string, buildings []core.Building, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if !compress {
		encoder := json.NewEncoder(f)
		encoder.SetIndent("", "  ")
		return encoder.Encode(buildings)
	}

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(buildings); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode buildings: %w", err)
	}
	return gzWriter.Close()
}

// ReadBuildings reads a JSON array of buildings. Files ending in .gz are
// decompressed.
func ReadBuildings(path string) ([]core.Building, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gzReader, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gzReader.Close()
		r = gzReader
	}

	var buildings []core.Building
	if err := json.NewDecoder(r).Decode(&buildings); err != nil {
		return nil, fmt.Errorf("failed to decode buildings: %w", err)
	}
	for i, b := range buildings {
		if b.ID == "" {
			return nil, fmt.Errorf("building at index %d has no id", i)
		}
	}
	return buildings, nil
}
