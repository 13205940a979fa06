package types

import "errors"

// ErrUnknownContext reports a browser context that is not known to the browser connection.
var ErrUnknownContext = errors.New("unknown browser context")
