package capture

import (
	"fmt"
	"log/slog"
)

// bestEffort reads one field from the live browser object graph. Errors and
// panics both degrade to def so the rest of the record can still be captured.
func bestEffort[T any](log *slog.Logger, field string, def T, read func() (T, error)) (v T) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("capture field unavailable", "field", field, "error", fmt.Sprint(r))
			v = def
		}
	}()
	got, err := read()
	if err != nil {
		log.Debug("capture field unavailable", "field", field, "error", err)
		return def
	}
	return got
}

// value adapts an infallible accessor for bestEffort.
func value[T any](get func() T) func() (T, error) {
	return func() (T, error) { return get(), nil }
}
