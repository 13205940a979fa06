package capture

import "github.com/dgnsrekt/netwatch/internal/types"

// RawTiming is a host timing breakdown. StartTime is epoch milliseconds;
// every phase is milliseconds relative to StartTime, or -1 when unknown.
type RawTiming struct {
	StartTime             float64
	DomainLookupStart     float64
	DomainLookupEnd       float64
	ConnectStart          float64
	SecureConnectionStart float64
	ConnectEnd            float64
	RequestStart          float64
	ResponseStart         float64
	ResponseEnd           float64
}

// Unavailable is the phase value for a timing the host did not report.
const Unavailable = -1

// normalizeTiming converts raw into the stored form and derives the total
// duration. Duration is nil unless both start and response end are known.
func normalizeTiming(raw RawTiming) (*types.Timing, *float64) {
	t := &types.Timing{
		StartTime:             raw.StartTime,
		DomainLookupStart:     phase(raw.DomainLookupStart),
		DomainLookupEnd:       phase(raw.DomainLookupEnd),
		ConnectStart:          phase(raw.ConnectStart),
		SecureConnectionStart: phase(raw.SecureConnectionStart),
		ConnectEnd:            phase(raw.ConnectEnd),
		RequestStart:          phase(raw.RequestStart),
		ResponseStart:         phase(raw.ResponseStart),
		ResponseEnd:           phase(raw.ResponseEnd),
	}
	if raw.StartTime <= 0 || t.ResponseEnd == nil {
		return t, nil
	}
	d := *t.ResponseEnd
	return t, &d
}

func phase(v float64) *float64 {
	if v < 0 {
		return nil
	}
	return &v
}
