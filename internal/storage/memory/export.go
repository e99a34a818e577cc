package memory

import (
	"compress/gzip"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/replicator/pkg/core"
)

// SnapshotExport is the root JSON structure
type SnapshotExport struct {
	ExportedAt time.Time    `json:"exportedAt"`
	StartedAt  time.Time    `json:"startedAt"`
	Objects    []ObjectJSON `json:"objects"`
}

// ObjectJSON is one object in an export. Payload is the hex encoded state
// packet and decodes back into the full object.
type ObjectJSON struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Name       string     `json:"name,omitempty"`
	Owner      string     `json:"owner,omitempty"`
	Priority   uint8      `json:"priority,omitempty"`
	Position   [3]float32 `json:"position"`
	UserData   string     `json:"userData,omitempty"`
	LastEdited uint64     `json:"lastEdited"`
	RecordedAt time.Time  `json:"recordedAt"`
	Payload    string     `json:"payload"`
}

// GetExportedFilePath returns the path written by the last Export.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// Export writes every stored object to a JSON file, gzipped when
// configured, and returns its path.
func (b *Backend) Export() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	export := b.buildExport()

	timestamp := export.ExportedAt.UTC().Format("20060102_150405")
	filename := fmt.Sprintf("objects_%s.json", timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return "", err
	}

	b.lastExportPath = outputPath
	return outputPath, nil
}

func (b *Backend) buildExport() SnapshotExport {
	export := SnapshotExport{
		ExportedAt: time.Now(),
		StartedAt:  b.startedAt,
	}
	for _, s := range b.sortedLocked() {
		obj := ObjectJSON{
			ID:         s.ID.String(),
			Type:       s.Type.String(),
			Name:       s.Name,
			Priority:   s.Priority,
			Position:   s.Position,
			UserData:   s.UserData,
			LastEdited: s.LastEdited,
			RecordedAt: s.RecordedAt,
			Payload:    hex.EncodeToString(s.Payload),
		}
		if s.Owner != uuid.Nil {
			obj.Owner = s.Owner.String()
		}
		export.Objects = append(export.Objects, obj)
	}
	return export
}

// ReadExport loads an export file written by Export. Gzipped files are
// recognised by their .gz suffix.
func ReadExport(path string) (*SnapshotExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var export SnapshotExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	return &export, nil
}

// Snapshots converts an export back into snapshots.
func (e *SnapshotExport) Snapshots() ([]core.ObjectSnapshot, error) {
	out := make([]core.ObjectSnapshot, 0, len(e.Objects))
	for _, o := range e.Objects {
		id, err := uuid.Parse(o.ID)
		if err != nil {
			return nil, fmt.Errorf("object id %q: %w", o.ID, err)
		}
		payload, err := hex.DecodeString(o.Payload)
		if err != nil {
			return nil, fmt.Errorf("object %s payload: %w", o.ID, err)
		}
		var owner uuid.UUID
		if o.Owner != "" {
			if owner, err = uuid.Parse(o.Owner); err != nil {
				return nil, fmt.Errorf("object %s owner: %w", o.ID, err)
			}
		}
		out = append(out, core.ObjectSnapshot{
			ID:         id,
			Type:       core.ParseObjectType(o.Type),
			Name:       o.Name,
			Owner:      owner,
			Priority:   o.Priority,
			Position:   o.Position,
			UserData:   o.UserData,
			LastEdited: o.LastEdited,
			Payload:    payload,
			RecordedAt: o.RecordedAt,
		})
	}
	return out, nil
}

func writeJSON(path string, data SnapshotExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data SnapshotExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
