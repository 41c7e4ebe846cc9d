package scope

import (
	"mime"
	"path"
	"strings"
)

// extraTypes supplements the platform MIME table with types SPAs commonly
// serve, so extension classification does not depend on the host's
// mime.types file.
var extraTypes = map[string]string{
	".avif":  "image/avif",
	".bmp":   "image/bmp",
	".csv":   "text/csv",
	".eot":   "application/vnd.ms-fontobject",
	".gz":    "application/gzip",
	".ico":   "image/vnd.microsoft.icon",
	".jpe":   "image/jpeg",
	".map":   "application/json",
	".md":    "text/markdown",
	".mp3":   "audio/mpeg",
	".mp4":   "video/mp4",
	".ogg":   "audio/ogg",
	".otf":   "font/otf",
	".tar":   "application/x-tar",
	".tif":   "image/tiff",
	".tiff":  "image/tiff",
	".ttf":   "font/ttf",
	".txt":   "text/plain",
	".wav":   "audio/wav",
	".webm":  "video/webm",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".zip":   "application/zip",
}

// preferredExt picks one extension per content type where the MIME table
// lists several.
var preferredExt = map[string]string{
	"application/javascript":   ".js",
	"application/x-javascript": ".js",
	"text/javascript":          ".js",
	"text/css":                 ".css",
	"text/html":                ".html",
	"text/plain":               ".txt",
	"application/json":         ".json",
	"image/jpeg":               ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/svg+xml":            ".svg",
	"image/vnd.microsoft.icon": ".ico",
	"image/x-icon":             ".ico",
	"font/woff":                ".woff",
	"font/woff2":               ".woff2",
	"application/wasm":         ".wasm",
	"application/xml":          ".xml",
	"text/xml":                 ".xml",
}

func init() {
	for ext, typ := range extraTypes {
		_ = mime.AddExtensionType(ext, typ)
	}
}

// FileSuffix returns the extension of the last path element. Names that
// start with a dot and have no other dot, or end with a dot, have none.
func FileSuffix(p string) string {
	name := path.Base(p)
	i := strings.LastIndex(name, ".")
	if i <= 0 || i >= len(name)-1 {
		return ""
	}
	return name[i:]
}

// HasKnownExtension reports whether the last segment of p carries an
// extension with a registered MIME type.
func HasKnownExtension(p string) bool {
	ext := FileSuffix(p)
	if ext == "" {
		return false
	}
	return mime.TypeByExtension(ext) != ""
}

// ExtensionForContentType returns the extension for a Content-Type header
// value, or "" when the type is unknown. Parameters such as charset are
// ignored.
func ExtensionForContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ct == "" {
		return ""
	}
	if ext, ok := preferredExt[ct]; ok {
		return ext
	}

	exts, err := mime.ExtensionsByType(ct)
	if err != nil || len(exts) == 0 {
		return ""
	}
	if exts[0] == ".jpe" {
		return ".jpg"
	}
	return exts[0]
}
