package storage

import (
	"log/slog"
	"path"
	"time"

	"github.com/dgnsrekt/netwatch/internal/types"
)

// Entry is one archived line.
type Entry struct {
	ArchivedAt   time.Time    `json:"archived_at"`
	ContextID    string       `json:"context_id"`
	Event        string       `json:"event"`
	Class        string       `json:"class"`
	Record       types.Record `json:"record"`
	ResourcePath string       `json:"resource_path,omitempty"`
}

// Archive is a capture observer that appends finished records to JSONL files
// grouped by context and page path. It only writes; nothing is read back.
type Archive struct {
	registry  *WriterRegistry
	resources *ResourceWriter
	now       func() time.Time
}

// NewArchive writes under baseDir. With saveResources set, untruncated bodies
// of static resources are also saved as raw files.
func NewArchive(baseDir string, bufferSize, maxSizeMB int, saveResources bool) *Archive {
	a := &Archive{
		registry: NewWriterRegistry(baseDir, bufferSize, maxSizeMB),
		now:      time.Now,
	}
	if saveResources {
		a.resources = NewResourceWriter(baseDir)
	}
	return a
}

// Observe implements capture.Observer. Request starts are skipped; the record
// is archived once it completes or fails.
func (a *Archive) Observe(ev types.CaptureEvent) {
	if ev.Type != types.EventResponse && ev.Type != types.EventFailed {
		return
	}
	rec := ev.Record
	segment := TransformURLToPathSegment(rec.PageURL)
	class := MapResourceType(rec.ResourceType)
	entry := Entry{
		ArchivedAt: a.now().UTC(),
		ContextID:  ev.ContextID,
		Event:      ev.Type,
		Class:      class,
		Record:     rec,
	}
	if class == "" {
		entry.Class = "api"
	}

	if a.resources != nil && class != "" && rec.ResponseBody != nil && !rec.ResponseBodyTruncated {
		dir := path.Join(SafeName(ev.ContextID), segment)
		p, err := a.resources.WriteRaw(dir, class, rec.ID, FilenameFromURL(rec.URL), []byte(*rec.ResponseBody))
		if err != nil {
			slog.Warn("failed to save resource body", "record_id", rec.ID, "error", err)
		} else {
			entry.ResourcePath = p
			entry.Record.ResponseBody = nil
		}
	}

	w := a.registry.GetWriter(ev.ContextID, segment, SafeName(ev.PageID))
	if err := w.Write(entry); err != nil {
		slog.Debug("archive write skipped", "record_id", rec.ID, "error", err)
	}
}

// Close flushes and closes every archive file.
func (a *Archive) Close() error {
	return a.registry.Close()
}
