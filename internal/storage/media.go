package storage

import (
	"bytes"
	"path"
	"strings"
)

// DetectMediaType infers an image MIME type from magic bytes, falling back
// to the extension of the hint (a suffix or full path) and finally to JPEG.
func DetectMediaType(data []byte, suffixHint string) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("\xff\xd8")):
		return "image/jpeg"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	}

	suffix := suffixHint
	if ext := path.Ext(suffixHint); ext != "" {
		suffix = ext
	}
	switch strings.ToLower(strings.TrimPrefix(suffix, ".")) {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	}
	return "image/jpeg"
}
