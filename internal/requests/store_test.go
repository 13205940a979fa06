package requests

import (
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/netwatch/internal/types"
	"github.com/google/go-cmp/cmp"
)

// newTestStore returns a store whose clock advances one millisecond per save.
func newTestStore(start time.Time) *Store {
	s := NewStore()
	now := start
	s.now = func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
	return s
}

func TestSaveAssignsSequentialIDs(t *testing.T) {
	s := NewStore()
	first := s.Save(types.Record{URL: "http://x/a"})
	second := s.Save(types.Record{URL: "http://x/b"})

	if first.ID != "req-1" {
		t.Fatalf("first.ID = %q; want %q", first.ID, "req-1")
	}
	if second.ID != "req-2" {
		t.Fatalf("second.ID = %q; want %q", second.ID, "req-2")
	}
	if first.Timestamp == 0 {
		t.Fatalf("first.Timestamp = 0; want capture time")
	}
}

func TestSaveDerivesByteCounts(t *testing.T) {
	s := NewStore()

	t.Run("body_present", func(t *testing.T) {
		rec := s.Save(types.Record{RequestBody: types.Ptr("héllo")})
		if got, want := *rec.RequestBodyBytes, len("héllo"); got != want {
			t.Fatalf("RequestBodyBytes = %d; want %d", got, want)
		}
		if got, want := *rec.RequestBodyOriginalBytes, len("héllo"); got != want {
			t.Fatalf("RequestBodyOriginalBytes = %d; want %d", got, want)
		}
		if rec.ResponseBodyBytes != nil {
			t.Fatalf("ResponseBodyBytes = %d; want nil before response", *rec.ResponseBodyBytes)
		}
	})

	t.Run("body_absent", func(t *testing.T) {
		rec := s.Save(types.Record{})
		if *rec.RequestBodyBytes != 0 {
			t.Fatalf("RequestBodyBytes = %d; want 0", *rec.RequestBodyBytes)
		}
	})

	t.Run("supplied_counts_kept", func(t *testing.T) {
		rec := s.Save(types.Record{
			RequestBody:              types.Ptr("abc"),
			RequestBodyTruncated:     true,
			RequestBodyBytes:         types.Ptr(3),
			RequestBodyOriginalBytes: types.Ptr(10),
		})
		if *rec.RequestBodyOriginalBytes != 10 {
			t.Fatalf("RequestBodyOriginalBytes = %d; want 10", *rec.RequestBodyOriginalBytes)
		}
	})
}

func TestUpdate(t *testing.T) {
	s := NewStore()
	rec := s.Save(types.Record{URL: "http://x/a", Method: "GET"})

	t.Run("unknown_id", func(t *testing.T) {
		if _, ok := s.Update("req-999", types.Patch{Status: types.Ptr(200)}); ok {
			t.Fatalf("Update(unknown) ok = true; want false")
		}
	})

	t.Run("merges_fields", func(t *testing.T) {
		got, ok := s.Update(rec.ID, types.Patch{
			Status:       types.Ptr(200),
			StatusText:   types.Ptr("OK"),
			ResponseBody: types.Ptr("hello"),
		})
		if !ok {
			t.Fatalf("Update() ok = false; want true")
		}
		if *got.Status != 200 || *got.StatusText != "OK" {
			t.Fatalf("status = %d %q; want 200 OK", *got.Status, *got.StatusText)
		}
		if *got.ResponseBodyBytes != 5 || *got.ResponseBodyOriginalBytes != 5 {
			t.Fatalf("response bytes = %d/%d; want 5/5", *got.ResponseBodyBytes, *got.ResponseBodyOriginalBytes)
		}
		if got.URL != "http://x/a" || got.ID != rec.ID || got.Timestamp != rec.Timestamp {
			t.Fatalf("Update() changed identity fields: %+v", got)
		}
	})

	t.Run("does_not_rederive_counts", func(t *testing.T) {
		got, _ := s.Update(rec.ID, types.Patch{ResponseBody: types.Ptr("a much longer body")})
		if *got.ResponseBodyBytes != 5 {
			t.Fatalf("ResponseBodyBytes = %d; want 5 (not re-derived)", *got.ResponseBodyBytes)
		}
	})

	t.Run("nil_fields_do_not_clear", func(t *testing.T) {
		got, _ := s.Update(rec.ID, types.Patch{Error: types.Ptr("boom")})
		if got.Status == nil || *got.Status != 200 {
			t.Fatalf("Status cleared by unrelated patch: %v", got.Status)
		}
	})
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	s := NewStore()
	rec := s.Save(types.Record{RequestHeaders: map[string]string{"accept": "*/*"}, RequestBody: types.Ptr("secret")})
	s.Update(rec.ID, types.Patch{
		Status: types.Ptr(200),
		Timing: &types.Timing{StartTime: 1, RequestStart: types.Ptr(2.0)},
	})

	got, ok := s.Get(rec.ID)
	if !ok {
		t.Fatalf("Get(%q) ok = false; want true", rec.ID)
	}
	got.RequestHeaders["accept"] = "mutated"
	got.URL = "mutated"
	*got.Status = 500
	*got.RequestBody = "mutated"
	*got.RequestBodyBytes = 0
	*got.Timing.RequestStart = 99

	again, _ := s.Get(rec.ID)
	if again.RequestHeaders["accept"] != "*/*" || again.URL != "" {
		t.Fatalf("stored record mutated through Get result: %+v", again)
	}
	if *again.Status != 200 || *again.RequestBody != "secret" || *again.RequestBodyBytes != 6 {
		t.Fatalf("stored record = status %d body %q bytes %d; want 200 secret 6", *again.Status, *again.RequestBody, *again.RequestBodyBytes)
	}
	if *again.Timing.RequestStart != 2 {
		t.Fatalf("stored Timing.RequestStart = %v; want 2", *again.Timing.RequestStart)
	}

	if _, ok := s.Get("req-404"); ok {
		t.Fatalf("Get(unknown) ok = true; want false")
	}
}

func TestSaveAndUpdateDoNotAliasCallerValues(t *testing.T) {
	s := NewStore()
	body := "payload"
	rec := s.Save(types.Record{RequestBody: &body})
	body = "changed"

	status := 201
	updated, _ := s.Update(rec.ID, types.Patch{Status: &status})
	status = 404
	*updated.Status = 500
	*rec.RequestBody = "changed via save result"

	got, _ := s.Get(rec.ID)
	if *got.RequestBody != "payload" || *got.Status != 201 {
		t.Fatalf("stored record = body %q status %d; want payload 201", *got.RequestBody, *got.Status)
	}
}

func TestClear(t *testing.T) {
	s := NewStore()
	s.Save(types.Record{PageID: "page-1"})
	s.Save(types.Record{PageID: "page-2"})
	s.Save(types.Record{PageID: "page-2"})
	s.Save(types.Record{PageID: "page-3"})

	if got := s.Clear("page-2"); got != 2 {
		t.Fatalf("Clear(page-2) = %d; want 2", got)
	}
	if res := s.Query(types.Query{PageID: "page-2"}); res.Total != 0 {
		t.Fatalf("Query(page-2).Total = %d; want 0", res.Total)
	}
	if got := s.Len(); got != 2 {
		t.Fatalf("Len() = %d; want 2", got)
	}
	if got := s.Clear(""); got != 2 {
		t.Fatalf("Clear(all) = %d; want 2", got)
	}
	if got := s.Len(); got != 0 {
		t.Fatalf("Len() after clear = %d; want 0", got)
	}
}

func TestResetRestartsNumbering(t *testing.T) {
	s := NewStore()
	s.Save(types.Record{})
	s.Save(types.Record{})
	s.RegisterPageMonitor("page-1", struct{}{})

	s.Reset()

	if st := s.Stats(); st.Total != 0 || st.ActiveMonitors != 0 {
		t.Fatalf("Stats() after Reset = total %d monitors %d; want 0 0", st.Total, st.ActiveMonitors)
	}
	if rec := s.Save(types.Record{}); rec.ID != "req-1" {
		t.Fatalf("ID after Reset = %q; want req-1", rec.ID)
	}
}

func TestQueryOrderingAndLimit(t *testing.T) {
	s := newTestStore(time.UnixMilli(1_700_000_000_000))
	for _, u := range []string{"http://x/1", "http://x/2", "http://x/3"} {
		s.Save(types.Record{URL: u})
	}

	res := s.Query(types.Query{})
	var urls []string
	for _, r := range res.Results {
		urls = append(urls, r.URL)
	}
	if diff := cmp.Diff([]string{"http://x/3", "http://x/2", "http://x/1"}, urls); diff != "" {
		t.Fatalf("Query() order mismatch (-want +got):\n%s", diff)
	}
	if res.Total != 3 {
		t.Fatalf("Total = %d; want 3", res.Total)
	}

	limited := s.Query(types.Query{Limit: 2})
	if limited.Total != 3 || len(limited.Results) != 2 {
		t.Fatalf("Query(limit 2) = total %d len %d; want 3 2", limited.Total, len(limited.Results))
	}
}

func TestQueryFilters(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore()
	clock := base.Add(-time.Hour)
	s.now = func() time.Time { return clock }

	save := func(at time.Time, rec types.Record) {
		clock = at
		s.Save(rec)
	}
	save(base.Add(-time.Minute), types.Record{PageID: "page-1", URL: "http://x/a.png", Method: "GET", ResourceType: "image", Status: types.Ptr(200)})
	save(base, types.Record{PageID: "page-1", URL: "http://x/a.png.js", Method: "get", ResourceType: "script", Status: types.Ptr(404)})
	save(base.Add(time.Minute), types.Record{PageID: "page-2", URL: "http://x/API/users", Method: "POST", ResourceType: "fetch",
		RequestBody: types.Ptr(`{"name":"Ada"}`)})
	save(base.Add(2*time.Minute), types.Record{PageID: "page-2", URL: "http://x/search?q=(a+b)", Method: "GET",
		ResponseBody: types.Ptr("result: a+b")})

	urlsOf := func(res types.QueryResult) []string {
		out := make([]string, 0, len(res.Results))
		for _, r := range res.Results {
			out = append(out, r.URL)
		}
		return out
	}

	tests := []struct {
		name string
		q    types.Query
		want []string
	}{
		{"page_id", types.Query{PageID: "page-1"}, []string{"http://x/a.png.js", "http://x/a.png"}},
		{"wildcard_suffix", types.Query{URLPattern: "*.png"}, []string{"http://x/a.png"}},
		{"wildcard_case_insensitive", types.Query{URLPattern: "*/api/*"}, []string{"http://x/API/users"}},
		{"wildcard_literal_metachars", types.Query{URLPattern: "*?q=(a+b)"}, []string{"http://x/search?q=(a+b)"}},
		{"method_case_insensitive", types.Query{Method: "get"}, []string{"http://x/search?q=(a+b)", "http://x/a.png.js", "http://x/a.png"}},
		{"status", types.Query{Status: types.Ptr(404)}, []string{"http://x/a.png.js"}},
		{"resource_type", types.Query{ResourceType: "fetch"}, []string{"http://x/API/users"}},
		{"since_rfc3339", types.Query{Since: "2025-01-01T00:00:00Z"}, []string{"http://x/search?q=(a+b)", "http://x/API/users", "http://x/a.png.js"}},
		{"since_millis", types.Query{Since: "1735689660000"}, []string{"http://x/search?q=(a+b)", "http://x/API/users"}},
		{"since_invalid_ignored", types.Query{Since: "yesterday-ish"}, []string{"http://x/search?q=(a+b)", "http://x/API/users", "http://x/a.png.js", "http://x/a.png"}},
		{"since_nan_ignored", types.Query{Since: "NaN"}, []string{"http://x/search?q=(a+b)", "http://x/API/users", "http://x/a.png.js", "http://x/a.png"}},
		{"since_inf_ignored", types.Query{Since: "+Inf"}, []string{"http://x/search?q=(a+b)", "http://x/API/users", "http://x/a.png.js", "http://x/a.png"}},
		{"search_regex", types.Query{Search: `"name":"a\w+"`}, []string{"http://x/API/users"}},
		{"search_response_body", types.Query{Search: "RESULT"}, []string{"http://x/search?q=(a+b)"}},
		{"search_invalid_regex_literal", types.Query{Search: "(a+b"}, []string{"http://x/search?q=(a+b)"}},
		{"combined", types.Query{PageID: "page-2", Method: "GET"}, []string{"http://x/search?q=(a+b)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Query(tt.q)
			if diff := cmp.Diff(tt.want, urlsOf(res)); diff != "" {
				t.Fatalf("Query(%+v) mismatch (-want +got):\n%s", tt.q, diff)
			}
			if res.Total != len(tt.want) {
				t.Fatalf("Total = %d; want %d", res.Total, len(tt.want))
			}
		})
	}
}

func TestQueryResultsAreCopies(t *testing.T) {
	s := NewStore()
	rec := s.Save(types.Record{URL: "http://x/", RequestBody: types.Ptr("secret"), ResponseHeaders: map[string]string{"a": "1"}})
	s.Update(rec.ID, types.Patch{Status: types.Ptr(200), ContentType: types.Ptr("text/plain")})

	res := s.Query(types.Query{})
	res.Results[0].URL = "changed"
	res.Results[0].ResponseHeaders["a"] = "2"
	*res.Results[0].Status = 500
	*res.Results[0].RequestBody = "mutated"
	*res.Results[0].ContentType = "mutated"

	again := s.Query(types.Query{}).Results[0]
	if again.URL != "http://x/" || again.ResponseHeaders["a"] != "1" {
		t.Fatalf("stored record mutated through query result: %+v", again)
	}
	if *again.Status != 200 || *again.RequestBody != "secret" || *again.ContentType != "text/plain" {
		t.Fatalf("stored record = status %d body %q type %q; want 200 secret text/plain", *again.Status, *again.RequestBody, *again.ContentType)
	}
}

func TestStats(t *testing.T) {
	s := NewStore()
	s.Save(types.Record{PageID: "page-1", PageTitle: "Old", PageURL: "http://x/old", Method: "get", ResourceType: "document", Status: types.Ptr(200)})
	s.Save(types.Record{PageID: "page-1", PageTitle: "New", PageURL: "http://x/new", Method: "POST", ResourceType: "xhr"})
	s.Save(types.Record{PageID: "page-2", Method: "GET"})
	s.RegisterPageMonitor("page-1", struct{}{})
	s.RegisterPageMonitor("page-2", struct{}{})
	s.UnregisterPageMonitor("page-2")

	st := s.Stats()
	if st.Total != 3 {
		t.Fatalf("Total = %d; want 3", st.Total)
	}
	if diff := cmp.Diff(map[string]int{"GET": 2, "POST": 1}, st.ByMethod); diff != "" {
		t.Fatalf("ByMethod mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"200": 1, "unknown": 2}, st.ByStatus); diff != "" {
		t.Fatalf("ByStatus mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"document": 1, "xhr": 1, "unknown": 1}, st.ByResourceType); diff != "" {
		t.Fatalf("ByResourceType mismatch (-want +got):\n%s", diff)
	}
	want := types.PageStats{Count: 2, Title: "New", URL: "http://x/new"}
	if got := st.ByPage["page-1"]; got != want {
		t.Fatalf("ByPage[page-1] = %+v; want %+v", got, want)
	}
	if st.ActiveMonitors != 1 {
		t.Fatalf("ActiveMonitors = %d; want 1", st.ActiveMonitors)
	}
}

func TestUsage(t *testing.T) {
	s := NewStore()
	s.Save(types.Record{RequestBody: types.Ptr(strings.Repeat("a", 100))})

	rec := s.Save(types.Record{})
	truncated := strings.Repeat("b", 65536)
	s.Update(rec.ID, types.Patch{
		ResponseBody:              &truncated,
		ResponseBodyTruncated:     types.Ptr(true),
		ResponseBodyBytes:         types.Ptr(65536),
		ResponseBodyOriginalBytes: types.Ptr(70000),
	})

	u := s.Usage()
	if u.RequestBytes != 100 || u.RequestOriginalBytes != 100 {
		t.Fatalf("request bytes = %d/%d; want 100/100", u.RequestBytes, u.RequestOriginalBytes)
	}
	if u.ResponseBytes != 65536 {
		t.Fatalf("ResponseBytes = %d; want 65536", u.ResponseBytes)
	}
	if u.ResponseOriginalBytes != 70000 {
		t.Fatalf("ResponseOriginalBytes = %d; want 70000", u.ResponseOriginalBytes)
	}
	if u.ResponseTruncated != 1 || u.RequestTruncated != 0 {
		t.Fatalf("truncated counts = req %d res %d; want 0 1", u.RequestTruncated, u.ResponseTruncated)
	}
	if u.EstimatedMemoryBytes != 100+65536 {
		t.Fatalf("EstimatedMemoryBytes = %d; want %d", u.EstimatedMemoryBytes, 100+65536)
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		raw    string
		want   int64
		wantOK bool
	}{
		{raw: "1735689660000", want: 1735689660000, wantOK: true},
		{raw: "2025-01-01", want: 1735689600000, wantOK: true},
		{raw: "", wantOK: false},
		{raw: "NaN", wantOK: false},
		{raw: "Inf", wantOK: false},
		{raw: "-Inf", wantOK: false},
		{raw: "1e300", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseSince(tt.raw)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("parseSince(%q) = %d, %v; want %d, %v", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
