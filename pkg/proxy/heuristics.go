package proxy

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

// navigableTypes are media types a browser renders or executes in place.
var navigableTypes = map[string]bool{
	"text/html":                 true,
	"application/xhtml+xml":     true,
	"text/css":                  true,
	"text/javascript":           true,
	"application/javascript":    true,
	"application/x-javascript":  true,
	"application/ecmascript":    true,
	"application/json":          true,
	"text/json":                 true,
	"application/xml":           true,
	"text/xml":                  true,
	"text/event-stream":         true,
	"application/manifest+json": true,
	"application/wasm":          true,
}

// navigablePrefixes cover whole families of in-page resources.
var navigablePrefixes = []string{"image/", "font/", "audio/", "video/", "multipart/"}

// downloadExtensions are URL path extensions that almost always name a file
// meant to be saved rather than displayed.
var downloadExtensions = map[string]bool{
	".7z": true, ".apk": true, ".bin": true, ".bz2": true, ".csv": true,
	".deb": true, ".dmg": true, ".doc": true, ".docx": true, ".epub": true,
	".exe": true, ".gz": true, ".iso": true, ".jar": true, ".msi": true,
	".odp": true, ".ods": true, ".odt": true, ".pdf": true, ".pkg": true,
	".ppt": true, ".pptx": true, ".rar": true, ".rpm": true, ".rtf": true,
	".tar": true, ".tgz": true, ".tsv": true, ".txt": true, ".xls": true,
	".xlsx": true, ".xz": true, ".zip": true, ".zst": true,
}

// IsDownload reports whether a response looks like a file download. Only
// successful responses with a body qualify; among those, any of an attachment
// disposition, a media type the browser would not render, or a GET for a path
// with a download extension is enough.
func IsDownload(req *http.Request, resp *http.Response) bool {
	if resp == nil || req == nil {
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.StatusCode == http.StatusNoContent {
		return false
	}
	if req.Method == http.MethodHead {
		return false
	}

	if isAttachment(resp.Header.Get("Content-Disposition")) {
		return true
	}

	if mediaType := MediaType(resp.Header); mediaType != "" && !isNavigable(mediaType) {
		return true
	}

	return req.Method == http.MethodGet && req.URL != nil &&
		downloadExtensions[strings.ToLower(path.Ext(req.URL.Path))]
}

// MediaType returns the lower-cased Content-Type without parameters.
func MediaType(header http.Header) string {
	ct := header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		// keep whatever precedes the parameters
		mediaType, _, _ = strings.Cut(ct, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isNavigable(mediaType string) bool {
	if navigableTypes[mediaType] {
		return true
	}
	if strings.HasSuffix(mediaType, "+json") || strings.HasSuffix(mediaType, "+xml") {
		return true
	}
	for _, prefix := range navigablePrefixes {
		if strings.HasPrefix(mediaType, prefix) {
			return true
		}
	}
	return false
}

func isAttachment(disposition string) bool {
	if disposition == "" {
		return false
	}
	dispType, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		lower := strings.ToLower(strings.TrimSpace(disposition))
		return strings.HasPrefix(lower, "attachment") || strings.Contains(lower, "filename")
	}
	if dispType == "attachment" {
		return true
	}
	_, hasName := params["filename"]
	return hasName
}
