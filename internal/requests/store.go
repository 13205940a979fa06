// Package requests holds the per-context in-memory store of captured traffic.
package requests

import (
	"strconv"
	"sync"
	"time"

	"github.com/dgnsrekt/netwatch/internal/types"
)

// Store is an insertion-ordered map of record ID to record, scoped to one
// browsing context. All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*types.Record
	order    []string
	seq      int
	monitors map[string]any

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records:  make(map[string]*types.Record),
		monitors: make(map[string]any),
		now:      time.Now,
	}
}

// Save assigns a fresh ID and timestamp to data, derives missing byte counts
// and stores it. The returned value is a copy; later changes go through Update.
func (s *Store) Save(data types.Record) types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	rec := data.Clone()
	rec.ID = "req-" + strconv.Itoa(s.seq)
	rec.Timestamp = s.now().UnixMilli()

	if rec.RequestBodyBytes == nil {
		rec.RequestBodyBytes = types.Ptr(bodyLen(rec.RequestBody))
	}
	if rec.RequestBodyOriginalBytes == nil {
		rec.RequestBodyOriginalBytes = types.Ptr(*rec.RequestBodyBytes)
	}
	if rec.ResponseBody != nil {
		if rec.ResponseBodyBytes == nil {
			rec.ResponseBodyBytes = types.Ptr(len(*rec.ResponseBody))
		}
		if rec.ResponseBodyOriginalBytes == nil {
			rec.ResponseBodyOriginalBytes = types.Ptr(*rec.ResponseBodyBytes)
		}
	}

	s.records[rec.ID] = &rec
	s.order = append(s.order, rec.ID)
	return rec.Clone()
}

// Update merges the non-nil fields of patch into the record in place.
// It returns false when id is unknown.
func (s *Store) Update(id string, patch types.Patch) (types.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return types.Record{}, false
	}
	applyPatch(rec, patch)
	return rec.Clone(), true
}

// Get returns a copy of the record with the given ID.
func (s *Store) Get(id string) (types.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return types.Record{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes every record, or only the records of pageID when it is
// non-empty, and returns how many were removed.
func (s *Store) Clear(pageID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pageID == "" {
		n := len(s.records)
		s.records = make(map[string]*types.Record)
		s.order = nil
		return n
	}

	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		if s.records[id].PageID == pageID {
			delete(s.records, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// RegisterPageMonitor records an active monitor for pageID. The token is
// opaque and only counted in Stats.
func (s *Store) RegisterPageMonitor(pageID string, token any) {
	s.mu.Lock()
	s.monitors[pageID] = token
	s.mu.Unlock()
}

// UnregisterPageMonitor forgets the monitor for pageID.
func (s *Store) UnregisterPageMonitor(pageID string) {
	s.mu.Lock()
	delete(s.monitors, pageID)
	s.mu.Unlock()
}

// Reset drops all records and monitors and restarts ID numbering at req-1.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*types.Record)
	s.order = nil
	s.monitors = make(map[string]any)
	s.seq = 0
}

func applyPatch(rec *types.Record, p types.Patch) {
	if p.PageURL != nil {
		rec.PageURL = *p.PageURL
	}
	if p.PageTitle != nil {
		rec.PageTitle = *p.PageTitle
	}
	if p.Status != nil {
		rec.Status = types.Ptr(*p.Status)
	}
	if p.StatusText != nil {
		rec.StatusText = types.Ptr(*p.StatusText)
	}
	if p.ResponseHeaders != nil {
		h := make(map[string]string, len(p.ResponseHeaders))
		for k, v := range p.ResponseHeaders {
			h[k] = v
		}
		rec.ResponseHeaders = h
	}
	if p.ResponseBody != nil {
		rec.ResponseBody = types.Ptr(*p.ResponseBody)
	}
	if p.ResponseBodyTruncated != nil {
		rec.ResponseBodyTruncated = *p.ResponseBodyTruncated
	}
	if p.ResponseBodyError != nil {
		rec.ResponseBodyError = types.Ptr(*p.ResponseBodyError)
	}
	if p.ResponseBodySHA256 != nil {
		rec.ResponseBodySHA256 = *p.ResponseBodySHA256
	}
	if p.ContentType != nil {
		rec.ContentType = types.Ptr(*p.ContentType)
	}
	if p.Timing != nil {
		t := p.Timing.Clone()
		rec.Timing = &t
	}
	if p.DurationMs != nil {
		rec.DurationMs = types.Ptr(*p.DurationMs)
	}
	if p.Error != nil {
		rec.Error = types.Ptr(*p.Error)
	}

	// Explicit counts always win. Derived counts are only filled in once so
	// repeated partial updates cannot count the same body twice.
	switch {
	case p.ResponseBodyBytes != nil:
		rec.ResponseBodyBytes = types.Ptr(*p.ResponseBodyBytes)
	case rec.ResponseBodyBytes == nil && p.ResponseBody != nil:
		rec.ResponseBodyBytes = types.Ptr(len(*p.ResponseBody))
	}
	switch {
	case p.ResponseBodyOriginalBytes != nil:
		rec.ResponseBodyOriginalBytes = types.Ptr(*p.ResponseBodyOriginalBytes)
	case rec.ResponseBodyOriginalBytes == nil && rec.ResponseBodyBytes != nil:
		rec.ResponseBodyOriginalBytes = types.Ptr(*rec.ResponseBodyBytes)
	}
}

func bodyLen(body *string) int {
	if body == nil {
		return 0
	}
	return len(*body)
}
