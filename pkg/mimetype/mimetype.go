// Package mimetype resolves content types from file extensions against a
// fixed table. Resolution is extension-driven on purpose: assets keep the
// type their filename declares, never one sniffed from content.
package mimetype

import (
	"path/filepath"
	"strings"
)

// Fallback is used for unknown extensions.
const Fallback = "application/octet-stream"

var byExtension = map[string]string{
	".aac":  "audio/aac",
	".aiff": "audio/aiff",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".mid":  "audio/midi",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",

	".gif":  "image/gif",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",

	".mov":  "video/quicktime",
	".mp4":  "video/mp4",
	".webm": "video/webm",

	".json": "application/json",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".xml":  "application/xml",
	".zip":  "application/zip",
}

// Resolve maps a filename to its MIME type, falling back to a generic
// binary type for unknown extensions.
func Resolve(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := byExtension[ext]; ok {
		return ct
	}
	return Fallback
}
