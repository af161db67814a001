// Package probe turns a request path into the documents that could serve it, and finds the first one
// that exists on disk.
package probe

import (
	"strings"

	"github.com/advdv/twine/vhost"
)

// Candidates lists the on-disk paths that may serve the request path, most specific first. The root
// path maps to the domain's index document only. Any other path maps to itself, followed by an index
// document per processable extension in the order the extensions were registered.
func Candidates(path string, d *vhost.Domain, exts []string) []string {
	if path == "/" {
		return []string{d.Root + d.Index}
	}

	p := strings.TrimPrefix(path, "..")
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")

	out := make([]string, 0, len(exts)+1)
	out = append(out, d.Root+p)
	for _, ext := range exts {
		out = append(out, d.Root+p+"/index."+ext)
	}

	return out
}
