package requests

import (
	"strconv"
	"strings"

	"github.com/dgnsrekt/netwatch/internal/config"
	"github.com/dgnsrekt/netwatch/internal/types"
)

// Stats groups the stored records by method, status, resource type and page.
func (s *Store) Stats() types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := types.Stats{
		Total:          len(s.records),
		ByMethod:       make(map[string]int),
		ByStatus:       make(map[string]int),
		ByResourceType: make(map[string]int),
		ByPage:         make(map[string]types.PageStats),
		ActiveMonitors: len(s.monitors),
	}

	for _, id := range s.order {
		rec := s.records[id]

		st.ByMethod[strings.ToUpper(rec.Method)]++

		status := "unknown"
		if rec.Status != nil {
			status = strconv.Itoa(*rec.Status)
		}
		st.ByStatus[status]++

		rt := rec.ResourceType
		if rt == "" {
			rt = "unknown"
		}
		st.ByResourceType[rt]++

		ps := st.ByPage[rec.PageID]
		ps.Count++
		ps.Title = rec.PageTitle
		ps.URL = rec.PageURL
		st.ByPage[rec.PageID] = ps
	}

	st.Usage = s.usageLocked()
	return st
}

// Usage sums captured and original body sizes. EstimatedMemoryBytes counts
// captured payload only.
func (s *Store) Usage() types.Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usageLocked()
}

func (s *Store) usageLocked() types.Usage {
	var u types.Usage
	for _, rec := range s.records {
		reqBytes := intOr(rec.RequestBodyBytes, bodyLen(rec.RequestBody))
		u.RequestBytes += int64(reqBytes)
		u.RequestOriginalBytes += int64(intOr(rec.RequestBodyOriginalBytes, reqBytes))
		if rec.RequestBodyTruncated {
			u.RequestTruncated++
		}

		resBytes := intOr(rec.ResponseBodyBytes, bodyLen(rec.ResponseBody))
		u.ResponseBytes += int64(resBytes)
		u.ResponseOriginalBytes += int64(intOr(rec.ResponseBodyOriginalBytes, resBytes))
		if rec.ResponseBodyTruncated {
			u.ResponseTruncated++
		}
	}
	u.EstimatedMemoryBytes = u.RequestBytes + u.ResponseBytes

	lim := config.CurrentLimits()
	u.MaxRequestBodyBytes = lim.MaxRequestBodyBytes
	u.MaxResponseBodyBytes = lim.MaxResponseBodyBytes
	return u
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
