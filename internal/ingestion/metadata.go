package ingestion

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/54b3r/docqa-go/internal/store"
)

// InferredSource holds the kind, id and title guessed from a locator. CLI
// flags and request fields take precedence over inferred values; this is the
// best-effort fallback when the caller doesn't specify them.
type InferredSource struct {
	// Kind is document or video.
	Kind store.Kind
	// SourceID is the video id for videos, or a slug of the file name for
	// documents. Empty when nothing usable could be derived.
	SourceID string
	// Title is a human readable name, usually the file name.
	Title string
}

// youtubeID matches the 11 character ids YouTube assigns to videos.
var youtubeID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// slugUnsafe matches every run of characters not allowed in a source id.
var slugUnsafe = regexp.MustCompile(`[^a-z0-9._-]+`)

// InferSource inspects a URL or file path and returns best-effort source
// metadata. Unrecognized locators are treated as documents.
//
// Supported video URL patterns:
//
//	youtube.com/watch?v={id}
//	youtube.com/shorts/{id}
//	youtube.com/embed/{id}
//	youtube.com/live/{id}
//	youtu.be/{id}
func InferSource(locator string) InferredSource {
	locator = strings.TrimSpace(locator)

	if isRemote(locator) {
		if parsed, err := url.Parse(locator); err == nil {
			if id := youtubeVideoID(parsed); id != "" {
				return InferredSource{Kind: store.KindVideo, SourceID: id, Title: id}
			}
			name := path.Base(parsed.Path)
			if name == "." || name == "/" {
				name = parsed.Hostname()
			}
			return InferredSource{Kind: store.KindDocument, SourceID: slugify(name), Title: name}
		}
	}

	name := filepath.Base(locator)
	if name == "." || name == string(filepath.Separator) {
		return InferredSource{Kind: store.KindDocument}
	}
	return InferredSource{Kind: store.KindDocument, SourceID: slugify(name), Title: name}
}

// youtubeVideoID returns the video id of a YouTube URL, or "".
func youtubeVideoID(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := trimSegments(u.Path)

	var id string
	switch host {
	case "youtu.be":
		if len(segments) > 0 {
			id = segments[0]
		}
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch {
		case len(segments) == 1 && segments[0] == "watch":
			id = u.Query().Get("v")
		case len(segments) >= 2 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "live" || segments[0] == "v"):
			id = segments[1]
		}
	}

	if !youtubeID.MatchString(id) {
		return ""
	}
	return id
}

// slugify lowercases name and replaces characters outside [a-z0-9._-] so the
// result is safe to use as a source id and inside chunk ids.
func slugify(name string) string {
	s := slugUnsafe.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-.")
}

// trimSegments splits a URL path into non-empty segments.
func trimSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
