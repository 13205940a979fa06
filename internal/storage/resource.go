package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ResourceWriter saves raw bodies of static resources next to the JSONL archive.
type ResourceWriter struct {
	baseDir string
	now     func() time.Time
}

func NewResourceWriter(baseDir string) *ResourceWriter {
	return &ResourceWriter{baseDir: baseDir, now: time.Now}
}

// WriteRaw saves data to baseDir/<date>/<dir>/resources/<class>/<recordID>_<filename>
// and returns the written path.
func (w *ResourceWriter) WriteRaw(dir, class, recordID, filename string, data []byte) (string, error) {
	date := w.now().UTC().Format("2006-01-02")
	target := filepath.Join(w.baseDir, date, dir, "resources", class)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create resource dir: %w", err)
	}
	filePath := filepath.Join(target, recordID+"_"+filename)
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return "", fmt.Errorf("write resource: %w", err)
	}
	slog.Debug("resource file written", "path", filePath, "size", len(data))
	return filePath, nil
}
