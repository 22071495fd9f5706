package negotiate

import (
	"mime"
	"strings"
)

// types maps bare extension names to the MIME type Express-style
// middleware expects for them. The host's mime tables are only consulted
// for names missing here, since they differ between systems.
var types = map[string]string{
	"bin":      "application/octet-stream",
	"css":      "text/css",
	"csv":      "text/csv",
	"form":     "application/x-www-form-urlencoded",
	"gif":      "image/gif",
	"htm":      "text/html",
	"html":     "text/html",
	"ico":      "image/x-icon",
	"jpeg":     "image/jpeg",
	"jpg":      "image/jpeg",
	"js":       "application/javascript",
	"json":     "application/json",
	"jsonld":   "application/ld+json",
	"md":       "text/markdown",
	"markdown": "text/markdown",
	"mjs":      "application/javascript",
	"mp4":      "video/mp4",
	"pdf":      "application/pdf",
	"png":      "image/png",
	"svg":      "image/svg+xml",
	"text":     "text/plain",
	"txt":      "text/plain",
	"wasm":     "application/wasm",
	"webp":     "image/webp",
	"woff":     "font/woff",
	"woff2":    "font/woff2",
	"xhtml":    "application/xhtml+xml",
	"xml":      "application/xml",
	"yaml":     "text/yaml",
	"yml":      "text/yaml",
	"zip":      "application/zip",
}

// Lookup resolves an extension name ("json", ".json" or "file.json") to its
// MIME type without parameters. It returns "" when the name is unknown.
func Lookup(name string) string {
	ext := strings.ToLower(name)
	if i := strings.LastIndexByte(ext, '.'); i >= 0 {
		ext = ext[i+1:]
	}
	if ext == "" {
		return ""
	}
	if t, ok := types[ext]; ok {
		return t
	}
	t := mime.TypeByExtension("." + ext)
	if t == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil {
		return ""
	}
	return mediaType
}

// Normalize turns an extension name into a MIME type and leaves anything
// containing a slash untouched.
func Normalize(t string) string {
	if strings.Contains(t, "/") {
		return t
	}
	return Lookup(t)
}
