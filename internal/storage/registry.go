package storage

import (
	"log/slog"
	"path"
	"sync"
)

// WriterRegistry owns one JSONLWriter per context and page path segment.
type WriterRegistry struct {
	baseDir    string
	maxSizeMB  int
	bufferSize int

	// writers maps contextDir/pathSegment -> writer
	writers map[string]*JSONLWriter
	mu      sync.RWMutex
}

func NewWriterRegistry(baseDir string, bufferSize, maxSizeMB int) *WriterRegistry {
	return &WriterRegistry{
		baseDir:    baseDir,
		maxSizeMB:  maxSizeMB,
		bufferSize: bufferSize,
		writers:    make(map[string]*JSONLWriter),
	}
}

// GetWriter returns (or creates) the writer for a context's path segment.
// fileBase names the file on first creation only.
func (r *WriterRegistry) GetWriter(contextID, pathSegment, fileBase string) *JSONLWriter {
	key := path.Join(SafeName(contextID), pathSegment)

	r.mu.RLock()
	w, ok := r.writers[key]
	r.mu.RUnlock()
	if ok {
		return w
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.writers[key]; ok {
		return w
	}
	w = NewJSONLWriter(r.baseDir, key, fileBase, r.bufferSize, r.maxSizeMB)
	r.writers[key] = w
	slog.Info("created archive writer", "context_id", contextID, "path_segment", pathSegment)
	return w
}

// Close closes all managed writers.
func (r *WriterRegistry) Close() error {
	r.mu.Lock()
	writers := r.writers
	r.writers = make(map[string]*JSONLWriter)
	r.mu.Unlock()

	var lastErr error
	for key, w := range writers {
		if err := w.Close(); err != nil {
			slog.Error("failed to close archive writer", "key", key, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (r *WriterRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.writers)
}
