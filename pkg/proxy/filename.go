package proxy

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// commonExtensions takes precedence over the host's mime tables, which
// disagree across platforms for the most frequent download types.
var commonExtensions = map[string]string{
	"application/pdf":          ".pdf",
	"application/zip":          ".zip",
	"application/gzip":         ".gz",
	"application/x-gzip":       ".gz",
	"application/x-tar":        ".tar",
	"application/octet-stream": ".bin",
	"application/msword":       ".doc",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ".xlsx",
	"text/csv":   ".csv",
	"text/plain": ".txt",
}

// ExtractName picks a file name for a captured response: the
// Content-Disposition filename, then the last segment of the URL path, then a
// generated "download-<id>" name. Generated and extension-less URL names get
// an extension guessed from the media type.
func ExtractName(header http.Header, u *url.URL) string {
	if name := DispositionFilename(header.Get("Content-Disposition")); name != "" {
		return name
	}

	ext := ExtensionFor(MediaType(header))
	if seg := lastSegment(u); seg != "" {
		if path.Ext(seg) == "" {
			return seg + ext
		}
		return seg
	}
	return "download-" + uuid.NewString()[:8] + ext
}

// DispositionFilename returns the file name carried by a Content-Disposition
// header, or "" if there is none. filename* (RFC 5987) wins over filename;
// RFC 2047 encoded words in filename are decoded. Headers that do not parse
// strictly are read with a lenient parser.
func DispositionFilename(disposition string) string {
	if strings.TrimSpace(disposition) == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := params["filename"]; name != "" {
			return decodeEncodedWords(name)
		}
	}
	return lenientFilename(disposition)
}

// ExtensionFor guesses a file extension, including the dot, for a media type.
func ExtensionFor(mediaType string) string {
	if mediaType == "" {
		return ""
	}
	if ext, ok := commonExtensions[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func lenientFilename(disposition string) string {
	var plain, extended string
	for _, part := range strings.Split(disposition, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "filename*":
			extended = decodeExtValue(value)
		case "filename":
			plain = unquote(value)
		}
	}
	if extended != "" {
		return extended
	}
	return decodeEncodedWords(plain)
}

// decodeExtValue decodes charset'language'percent-encoded-value.
func decodeExtValue(v string) string {
	v = strings.Trim(v, `"`)
	charset, rest, ok := strings.Cut(v, "'")
	if !ok {
		return ""
	}
	_, encoded, ok := strings.Cut(rest, "'")
	if !ok {
		return ""
	}
	raw, err := url.PathUnescape(encoded)
	if err != nil {
		return ""
	}

	switch strings.ToLower(charset) {
	case "iso-8859-1", "latin1":
		runes := make([]rune, 0, len(raw))
		for i := 0; i < len(raw); i++ {
			runes = append(runes, rune(raw[i]))
		}
		return string(runes)
	default:
		if !utf8.ValidString(raw) {
			return ""
		}
		return raw
	}
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		v = v[1 : len(v)-1]
		v = strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(v)
	}
	return v
}

func decodeEncodedWords(s string) string {
	if !strings.Contains(s, "=?") {
		return s
	}
	dec := new(mime.WordDecoder)
	if out, err := dec.DecodeHeader(s); err == nil {
		return out
	}
	return s
}

func lastSegment(u *url.URL) string {
	if u == nil {
		return ""
	}
	escaped := strings.TrimRight(u.EscapedPath(), "/")
	if i := strings.LastIndex(escaped, "/"); i >= 0 {
		escaped = escaped[i+1:]
	}
	if escaped == "" {
		return ""
	}
	seg, err := url.PathUnescape(escaped)
	if err != nil {
		return escaped
	}
	return seg
}
