package storage

import (
	"net/url"
	stdpath "path"
	"strings"
)

// TransformURLToPathSegment turns a page URL path into a single
// filesystem-safe directory name. Unparseable URLs map to "unknown".
func TransformURLToPathSegment(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	p := strings.Trim(parsed.Path, "/")
	if p == "" {
		if parsed.Host == "" {
			return "root"
		}
		return SafeName(parsed.Host)
	}
	return SafeName(strings.ReplaceAll(p, "/", "_"))
}

// SafeName replaces characters that are awkward in file names.
func SafeName(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "." || out == ".." {
		return "_"
	}
	return out
}

// MapResourceType maps a lowercased resource type to a static resource
// directory. Empty means API or event traffic.
func MapResourceType(resourceType string) string {
	switch resourceType {
	case "xhr", "fetch", "websocket", "eventsource", "ping", "preflight":
		return ""
	case "script":
		return "js"
	case "stylesheet":
		return "css"
	case "image":
		return "img"
	case "font":
		return "font"
	case "media":
		return "media"
	case "document":
		return "docs"
	case "manifest":
		return "manifest"
	default:
		return "other"
	}
}

// FilenameFromURL extracts a safe file name from a URL path.
func FilenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "resource"
	}
	name := stdpath.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		return "resource"
	}
	return SafeName(name)
}
