package capture

import (
	"crypto/sha256"
	"encoding/hex"
)

// truncateBytes keeps at most maxBytes of in. It reports whether anything was
// dropped, the original length, and the SHA-256 of the original when it was.
func truncateBytes(in []byte, maxBytes int) ([]byte, bool, int, string) {
	if maxBytes <= 0 || len(in) <= maxBytes {
		return in, false, len(in), ""
	}
	sum := sha256.Sum256(in)
	return in[:maxBytes], true, len(in), hex.EncodeToString(sum[:])
}

// truncateStringBytes is truncateBytes for body text. The cut is by byte, so a
// multi-byte rune at the boundary may be split.
func truncateStringBytes(in string, maxBytes int) (string, bool, int, string) {
	out, truncated, origLen, hash := truncateBytes([]byte(in), maxBytes)
	return string(out), truncated, origLen, hash
}

// truncatedBody is a body after the active limit has been applied.
type truncatedBody struct {
	text          string
	truncated     bool
	bytes         int
	originalBytes int
	sha256        string
}

func applyLimit(body string, limit int) truncatedBody {
	text, truncated, origLen, hash := truncateStringBytes(body, limit)
	return truncatedBody{
		text:          text,
		truncated:     truncated,
		bytes:         len(text),
		originalBytes: origLen,
		sha256:        hash,
	}
}
