package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Drix10/hypothesis-arena/portfolio"
)

// exportVersion tags the JSON layout so an import can refuse files written
// by an incompatible build.
const exportVersion = 1

// ExportFile is the portable, human-readable dump of every agent plus the
// system-wide counters stored under MetaAggregates.
type ExportFile struct {
	Version    int                    `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	Agents     []*portfolio.Portfolio `json:"agents"`
	Aggregates json.RawMessage        `json:"aggregates,omitempty"`
}

// ExportJSON writes agents to path as one JSON document. The write goes to
// a temp file in the same directory and renames into place, so a crash
// mid-write never leaves a half-written export behind.
func ExportJSON(path string, agents []*portfolio.Portfolio, now time.Time) error {
	return ExportState(path, agents, nil, now)
}

// ExportState is ExportJSON carrying the aggregate counters as well, the
// full-fidelity dump of everything the store holds.
func ExportState(path string, agents []*portfolio.Portfolio, aggregates json.RawMessage, now time.Time) error {
	doc := ExportFile{
		Version:    exportVersion,
		ExportedAt: now.UTC(),
		Agents:     agents,
		Aggregates: aggregates,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".export-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// ReadExport parses a full export document, validating every agent before
// returning any of them. One bad agent fails the whole read.
func ReadExport(path string) (*ExportFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc ExportFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, portfolio.Errorf(portfolio.CodeDataCorruption, "parse export %s: %v", path, err)
	}
	if doc.Version != exportVersion {
		return nil, fmt.Errorf("export version %d, this build expects %d", doc.Version, exportVersion)
	}

	for _, p := range doc.Agents {
		if err := Validate(p); err != nil {
			return nil, fmt.Errorf("import %s: %w", path, err)
		}
		p.RecomputeTotals()
	}
	return &doc, nil
}

// ImportJSON reads an export back, returning just the agents.
func ImportJSON(path string) ([]*portfolio.Portfolio, error) {
	doc, err := ReadExport(path)
	if err != nil {
		return nil, err
	}
	return doc.Agents, nil
}
