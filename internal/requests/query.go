package requests

import (
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/netwatch/internal/types"
)

type matcher func(*types.Record) bool

// Query filters, sorts newest first and limits the stored records.
// Malformed filter values are skipped rather than failing the query.
func (s *Store) Query(q types.Query) types.QueryResult {
	matchers := buildMatchers(q)

	s.mu.RLock()
	selected := make([]*types.Record, 0, len(s.order))
	for _, id := range s.order {
		rec := s.records[id]
		if matchAll(matchers, rec) {
			selected = append(selected, rec)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Timestamp > selected[j].Timestamp
	})

	total := len(selected)
	if q.Limit > 0 && len(selected) > q.Limit {
		selected = selected[:q.Limit]
	}

	results := make([]types.Record, len(selected))
	for i, rec := range selected {
		results[i] = rec.Clone()
	}
	s.mu.RUnlock()

	return types.QueryResult{Total: total, Results: results}
}

func matchAll(matchers []matcher, rec *types.Record) bool {
	for _, m := range matchers {
		if !m(rec) {
			return false
		}
	}
	return true
}

func buildMatchers(q types.Query) []matcher {
	var out []matcher

	if q.PageID != "" {
		pageID := q.PageID
		out = append(out, func(r *types.Record) bool { return r.PageID == pageID })
	}
	if q.URLPattern != "" {
		if re, err := wildcardRegexp(q.URLPattern); err == nil {
			out = append(out, func(r *types.Record) bool { return re.MatchString(r.URL) })
		} else {
			slog.Debug("ignoring invalid url pattern", "pattern", q.URLPattern, "error", err)
		}
	}
	if q.Method != "" {
		method := strings.ToUpper(q.Method)
		out = append(out, func(r *types.Record) bool { return strings.ToUpper(r.Method) == method })
	}
	if q.Status != nil {
		status := *q.Status
		out = append(out, func(r *types.Record) bool { return r.Status != nil && *r.Status == status })
	}
	if q.ResourceType != "" {
		rt := q.ResourceType
		out = append(out, func(r *types.Record) bool { return r.ResourceType == rt })
	}
	if since, ok := parseSince(q.Since); ok {
		out = append(out, func(r *types.Record) bool { return r.Timestamp >= since })
	}
	if q.Search != "" {
		re := searchRegexp(q.Search)
		out = append(out, func(r *types.Record) bool {
			if re.MatchString(r.URL) {
				return true
			}
			if r.RequestBody != nil && re.MatchString(*r.RequestBody) {
				return true
			}
			return r.ResponseBody != nil && re.MatchString(*r.ResponseBody)
		})
	}
	return out
}

// wildcardRegexp anchors pattern to the whole URL. Only '*' is special.
func wildcardRegexp(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("(?i)^" + strings.Join(parts, ".*") + "$")
}

// searchRegexp compiles search as a case-insensitive regular expression and
// falls back to a literal match when it is not valid syntax.
func searchRegexp(search string) *regexp.Regexp {
	if re, err := regexp.Compile("(?i)" + search); err == nil {
		return re
	}
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(search))
}

// parseSince accepts epoch milliseconds or an RFC 3339 date-time.
func parseSince(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if ms, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(ms) || math.IsInf(ms, 0) || math.Abs(ms) >= math.MaxInt64 {
			slog.Debug("ignoring out of range since filter", "since", raw)
			return 0, false
		}
		return int64(ms), true
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UnixMilli(), true
		}
	}
	slog.Debug("ignoring unparseable since filter", "since", raw)
	return 0, false
}
