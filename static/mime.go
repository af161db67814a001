package static

import (
	"mime"
	"path/filepath"
	"strings"
)

// MimeForFilename returns the content type for the file name. Text types always carry a charset.
func MimeForFilename(name string) string {
	typ := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if typ == "" {
		return "application/octet-stream"
	}

	if strings.HasPrefix(typ, "text/") && !strings.Contains(typ, "charset=") {
		typ += ";charset=UTF-8"
	}

	return typ
}
